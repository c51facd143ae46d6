// README: Config loader with env defaults for HTTP, backend, polling, and optional infra.
package config

import (
	"os"
	"strconv"
	"time"
)

type TrackingConfig struct {
	// SnapshotInterval is the cadence for full order+location snapshots.
	SnapshotInterval time.Duration
	// LocationInterval is the cadence for rider-location-only refreshes and
	// doubles as the staleness bound for displayed rider positions.
	LocationInterval time.Duration
	// BackoffCeiling caps the doubled retry interval after consecutive
	// fetch failures.
	BackoffCeiling time.Duration
}

type GeoConfig struct {
	// AvgSpeedKmh feeds the linear ETA estimate.
	AvgSpeedKmh float64
	// RegionPadding is the fractional padding applied around map bounds.
	RegionPadding float64
	// MinSpanDeg is the minimum map span so near-colocated points never
	// produce a zero-area region.
	MinSpanDeg float64
}

type Config struct {
	HTTP struct {
		Addr string
	}
	Backend struct {
		BaseURL string
	}
	DB struct {
		DSN string // optional; empty disables the audit journal
	}
	Redis struct {
		Addr string // optional; empty disables the location cache
	}
	Maps struct {
		APIKey string // optional; empty disables road-network ETA refinement
	}
	Firebase struct {
		ProjectID       string
		CredentialsFile string
	}
	Tracking TrackingConfig
	Geo      GeoConfig
}

func Load() (Config, error) {
	var cfg Config
	cfg.HTTP.Addr = envOrDefault("MEDIROUTE_HTTP_ADDR", ":8080")
	cfg.Backend.BaseURL = envOrDefault("MEDIROUTE_BACKEND_URL", "http://localhost:9090")
	cfg.DB.DSN = os.Getenv("MEDIROUTE_DB_DSN")
	cfg.Redis.Addr = os.Getenv("MEDIROUTE_REDIS_ADDR")
	cfg.Maps.APIKey = os.Getenv("MEDIROUTE_MAPS_API_KEY")
	cfg.Firebase.ProjectID = os.Getenv("MEDIROUTE_FIREBASE_PROJECT_ID")
	cfg.Firebase.CredentialsFile = os.Getenv("MEDIROUTE_FIREBASE_CREDENTIALS")
	cfg.Tracking.SnapshotInterval = envOrDefaultDuration("MEDIROUTE_SNAPSHOT_INTERVAL", 5*time.Second)
	cfg.Tracking.LocationInterval = envOrDefaultDuration("MEDIROUTE_LOCATION_INTERVAL", 30*time.Second)
	cfg.Tracking.BackoffCeiling = envOrDefaultDuration("MEDIROUTE_BACKOFF_CEILING", 60*time.Second)
	cfg.Geo.AvgSpeedKmh = envOrDefaultFloat("MEDIROUTE_AVG_SPEED_KMH", 40.0)
	cfg.Geo.RegionPadding = envOrDefaultFloat("MEDIROUTE_REGION_PADDING", 0.2)
	cfg.Geo.MinSpanDeg = envOrDefaultFloat("MEDIROUTE_MIN_SPAN_DEG", 0.01)
	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
