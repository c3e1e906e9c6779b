package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/KevinKickass/PumpFleet/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS pumps (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	type        TEXT NOT NULL,
	area        TEXT NOT NULL,
	latitude    DOUBLE PRECISION NOT NULL,
	longitude   DOUBLE PRECISION NOT NULL,
	address     TEXT NOT NULL DEFAULT '',
	flow_rate   DOUBLE PRECISION NOT NULL CHECK (flow_rate >= 0),
	"offset"    DOUBLE PRECISION NOT NULL DEFAULT 0,
	pressure    JSONB NOT NULL DEFAULT '[]',
	status      TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	position    SERIAL
)`

const selectPumps = `
	SELECT id, name, type, area, latitude, longitude, address,
	       flow_rate, "offset", pressure, status, created_at, updated_at
	FROM pumps`

// EnsureSchema creates the pumps table when missing.
func (p *PostgresClient) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create pumps table: %w", err)
	}
	return nil
}

// CountPumps returns the number of stored pumps.
func (p *PostgresClient) CountPumps(ctx context.Context) (int, error) {
	var n int
	if err := p.pool.QueryRow(ctx, `SELECT count(*) FROM pumps`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pumps: %w", err)
	}
	return n, nil
}

// ImportPumps inserts pumps in one transaction, keeping their order.
// Existing ids are left untouched.
func (p *PostgresClient) ImportPumps(ctx context.Context, pumps []types.Pump) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, pump := range pumps {
		pressureJSON, err := json.Marshal(pump.Pressure)
		if err != nil {
			return fmt.Errorf("failed to marshal pressure of %s: %w", pump.ID, err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO pumps (id, name, type, area, latitude, longitude, address,
			                   flow_rate, "offset", pressure, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (id) DO NOTHING
		`, pump.ID, pump.Name, string(pump.Type), pump.Area,
			pump.Location.Latitude, pump.Location.Longitude, pump.Location.Address,
			pump.FlowRate, pump.Offset, pressureJSON, string(pump.Status),
			pump.CreatedAt, pump.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert pump %s: %w", pump.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// PumpSource serves pump records straight from PostgreSQL.
type PumpSource struct {
	client *PostgresClient
}

func NewPumpSource(client *PostgresClient) *PumpSource {
	return &PumpSource{client: client}
}

func (s *PumpSource) FetchAll(ctx context.Context) ([]types.Pump, error) {
	rows, err := s.client.pool.Query(ctx, selectPumps+` ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pumps: %w", err)
	}
	defer rows.Close()

	pumps := make([]types.Pump, 0)
	for rows.Next() {
		pump, err := scanPump(rows)
		if err != nil {
			return nil, err
		}
		pumps = append(pumps, pump)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pumps: %w", err)
	}

	return pumps, nil
}

func (s *PumpSource) FetchByID(ctx context.Context, id string) (*types.Pump, error) {
	row := s.client.pool.QueryRow(ctx, selectPumps+` WHERE id = $1`, id)

	pump, err := scanPump(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pump, nil
}

func scanPump(row pgx.Row) (types.Pump, error) {
	var (
		pump         types.Pump
		pumpType     string
		status       string
		pressureJSON []byte
	)

	err := row.Scan(
		&pump.ID, &pump.Name, &pumpType, &pump.Area,
		&pump.Location.Latitude, &pump.Location.Longitude, &pump.Location.Address,
		&pump.FlowRate, &pump.Offset, &pressureJSON, &status,
		&pump.CreatedAt, &pump.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.Pump{}, err
		}
		return types.Pump{}, fmt.Errorf("failed to scan pump: %w", err)
	}

	pump.Type = types.PumpType(pumpType)
	pump.Status = types.PumpStatus(status)
	pump.Pressure, err = decodePressure(pressureJSON)
	if err != nil {
		return types.Pump{}, fmt.Errorf("pump %s: %w", pump.ID, err)
	}
	return pump, nil
}

func decodePressure(data []byte) ([]types.PressureReading, error) {
	readings := make([]types.PressureReading, 0)
	if len(data) == 0 {
		return readings, nil
	}
	if err := json.Unmarshal(data, &readings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pressure: %w", err)
	}
	if readings == nil {
		readings = make([]types.PressureReading, 0)
	}
	return readings, nil
}
