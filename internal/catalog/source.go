// Package catalog provides the pump record sources the collection
// controllers load from.
package catalog

import (
	"context"
	"time"

	"github.com/KevinKickass/PumpFleet/internal/types"
)

// Source is a read-only pump record store.
type Source interface {
	// FetchAll returns the full collection.
	FetchAll(ctx context.Context) ([]types.Pump, error)
	// FetchByID returns nil, nil when no pump has the id.
	FetchByID(ctx context.Context, id string) (*types.Pump, error)
}

// MockSource serves a fixed collection after a fixed artificial delay.
type MockSource struct {
	pumps []types.Pump
	delay time.Duration
}

func NewMockSource(pumps []types.Pump, delay time.Duration) *MockSource {
	return &MockSource{
		pumps: ClonePumps(pumps),
		delay: delay,
	}
}

func (m *MockSource) FetchAll(ctx context.Context) ([]types.Pump, error) {
	if err := wait(ctx, m.delay); err != nil {
		return nil, err
	}
	return ClonePumps(m.pumps), nil
}

func (m *MockSource) FetchByID(ctx context.Context, id string) (*types.Pump, error) {
	if err := wait(ctx, m.delay); err != nil {
		return nil, err
	}
	for _, p := range m.pumps {
		if p.ID == id {
			clone := ClonePump(p)
			return &clone, nil
		}
	}
	return nil, nil
}

// Len reports the size of the seed collection.
func (m *MockSource) Len() int {
	return len(m.pumps)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ClonePump copies p so the pressure sequence is not shared.
func ClonePump(p types.Pump) types.Pump {
	p.Pressure = append([]types.PressureReading{}, p.Pressure...)
	return p
}

func ClonePumps(pumps []types.Pump) []types.Pump {
	out := make([]types.Pump, len(pumps))
	for i, p := range pumps {
		out[i] = ClonePump(p)
	}
	return out
}
