package maps

import (
	"testing"

	"mediroute/internal/types"
)

func TestLatLng(t *testing.T) {
	cases := []struct {
		name  string
		point types.Point
		want  string
	}{
		{"city", types.Point{Lat: 25.033, Lng: 121.5654}, "25.033000,121.565400"},
		{"southern hemisphere", types.Point{Lat: -33.8688, Lng: 151.2093}, "-33.868800,151.209300"},
		{"western hemisphere", types.Point{Lat: 40.7128, Lng: -74.006}, "40.712800,-74.006000"},
		{"origin", types.Point{}, "0.000000,0.000000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := latLng(tc.point); got != tc.want {
				t.Errorf("latLng(%+v) = %q, want %q", tc.point, got, tc.want)
			}
		})
	}
}
