package location

import (
	"testing"
	"time"
)

func TestStaleAfter(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name       string
		recordedAt time.Time
		bound      time.Duration
		want       bool
	}{
		{"fresh sample", now.Add(-10 * time.Second), 30 * time.Second, false},
		{"exactly at bound", now.Add(-30 * time.Second), 30 * time.Second, false},
		{"past bound", now.Add(-31 * time.Second), 30 * time.Second, true},
		{"future capture from skewed clock", now.Add(5 * time.Second), 30 * time.Second, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Sample{RecordedAt: tt.recordedAt}
			if got := s.StaleAfter(tt.bound, now); got != tt.want {
				t.Errorf("StaleAfter() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAge_FlooredAtZero(t *testing.T) {
	now := time.Now()
	s := Sample{RecordedAt: now.Add(10 * time.Second)}
	if got := s.Age(now); got != 0 {
		t.Errorf("Age() = %v, want 0 for future capture instant", got)
	}
	s = Sample{RecordedAt: now.Add(-45 * time.Second)}
	if got := s.Age(now); got != 45*time.Second {
		t.Errorf("Age() = %v, want 45s", got)
	}
}
