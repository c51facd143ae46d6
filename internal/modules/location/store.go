// README: Last-known rider location cache backed by Redis GEO.
package location

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"mediroute/internal/types"
)

const (
	geoKey     = "mediroute:rider_geo"
	metaPrefix = "mediroute:rider_loc:"
)

var ErrNoSample = errors.New("no location sample")

// Store caches the latest sample per order so sibling instances and ops
// tooling can read last-known positions. A nil Store is a no-op sink.
type Store struct {
	redis *redis.Client
}

func NewStore(redisClient *redis.Client) *Store {
	return &Store{redis: redisClient}
}

func (s *Store) SetLast(ctx context.Context, sample Sample) error {
	if s == nil || s.redis == nil {
		return nil
	}
	if err := s.redis.GeoAdd(ctx, geoKey, &redis.GeoLocation{
		Name:      string(sample.OrderID),
		Latitude:  sample.Position.Lat,
		Longitude: sample.Position.Lng,
	}).Err(); err != nil {
		return fmt.Errorf("geoadd: %w", err)
	}
	err := s.redis.HSet(ctx, metaPrefix+string(sample.OrderID),
		"rider_id", string(sample.RiderID),
		"lat", sample.Position.Lat,
		"lng", sample.Position.Lng,
		"recorded_at", sample.RecordedAt.UTC().Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return fmt.Errorf("hset: %w", err)
	}
	return nil
}

func (s *Store) GetLast(ctx context.Context, orderID types.ID) (Sample, error) {
	if s == nil || s.redis == nil {
		return Sample{}, ErrNoSample
	}
	m, err := s.redis.HGetAll(ctx, metaPrefix+string(orderID)).Result()
	if err != nil {
		return Sample{}, fmt.Errorf("hgetall: %w", err)
	}
	if len(m) == 0 {
		return Sample{}, ErrNoSample
	}
	lat, _ := strconv.ParseFloat(m["lat"], 64)
	lng, _ := strconv.ParseFloat(m["lng"], 64)
	recordedAt, err := time.Parse(time.RFC3339Nano, m["recorded_at"])
	if err != nil {
		return Sample{}, fmt.Errorf("parse recorded_at: %w", err)
	}
	return Sample{
		OrderID:    orderID,
		RiderID:    types.ID(m["rider_id"]),
		Position:   types.Point{Lat: lat, Lng: lng},
		RecordedAt: recordedAt,
	}, nil
}

// Forget drops the cached sample once an order reaches a terminal state.
func (s *Store) Forget(ctx context.Context, orderID types.ID) error {
	if s == nil || s.redis == nil {
		return nil
	}
	if err := s.redis.ZRem(ctx, geoKey, string(orderID)).Err(); err != nil {
		return err
	}
	return s.redis.Del(ctx, metaPrefix+string(orderID)).Err()
}
