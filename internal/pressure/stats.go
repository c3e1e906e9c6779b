// Package pressure derives summary values from a pump's pressure readings.
package pressure

import (
	"fmt"

	"github.com/KevinKickass/PumpFleet/internal/types"
)

// Stats summarizes a reading sequence.
type Stats struct {
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Current float64 `json:"current"`
}

// GetStats scans readings once for min and max. Current is the last reading
// in sequence order, not the one with the latest timestamp. An empty
// sequence yields zero stats.
func GetStats(readings []types.PressureReading) Stats {
	if len(readings) == 0 {
		return Stats{}
	}

	lo, hi := readings[0].Pressure, readings[0].Pressure
	for _, r := range readings[1:] {
		if r.Pressure < lo {
			lo = r.Pressure
		}
		if r.Pressure > hi {
			hi = r.Pressure
		}
	}

	return Stats{
		Min:     lo,
		Max:     hi,
		Current: readings[len(readings)-1].Pressure,
	}
}

// Point is one chart sample labelled by the hour of its reading.
type Point struct {
	Label    string  `json:"time"`
	Pressure float64 `json:"pressure"`
}

// HourlySeries labels every reading with its hour ("15:00"), keeping order.
func HourlySeries(readings []types.PressureReading) []Point {
	points := make([]Point, 0, len(readings))
	for _, r := range readings {
		points = append(points, Point{
			Label:    fmt.Sprintf("%02d:00", r.Timestamp.Hour()),
			Pressure: r.Pressure,
		})
	}
	return points
}
