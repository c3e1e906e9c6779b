package storage

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/KevinKickass/PumpFleet/internal/config"
	"github.com/KevinKickass/PumpFleet/internal/types"
)

func TestDecodePressure(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    int
		wantErr bool
	}{
		{"empty column", "", 0, false},
		{"json null", "null", 0, false},
		{"empty array", "[]", 0, false},
		{"two readings", `[{"timestamp":"2024-03-01T08:00:00Z","pressure":42.5},{"timestamp":"2024-03-01T09:00:00Z","pressure":40}]`, 2, false},
		{"garbage", "{", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodePressure([]byte(tt.in))
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodePressure() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got == nil {
				t.Fatal("decodePressure() returned nil slice")
			}
			if len(got) != tt.want {
				t.Errorf("len = %d, want %d", len(got), tt.want)
			}
		})
	}
}

// testClient connects to the database named by PUMPFLEET_TEST_DB_HOST and
// friends, or skips.
func testClient(t *testing.T) *PostgresClient {
	t.Helper()
	host := os.Getenv("PUMPFLEET_TEST_DB_HOST")
	if host == "" {
		t.Skip("PUMPFLEET_TEST_DB_HOST not set")
	}
	port, _ := strconv.Atoi(os.Getenv("PUMPFLEET_TEST_DB_PORT"))
	if port == 0 {
		port = 5432
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := NewPostgresClient(ctx, config.DatabaseConfig{
		Host:           host,
		Port:           port,
		Database:       os.Getenv("PUMPFLEET_TEST_DB_NAME"),
		User:           os.Getenv("PUMPFLEET_TEST_DB_USER"),
		Password:       os.Getenv("PUMPFLEET_TEST_DB_PASSWORD"),
		MaxConnections: 2,
	})
	if err != nil {
		t.Fatalf("NewPostgresClient() error: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestPumpSource_RoundTrip(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()

	if err := client.EnsureSchema(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := client.Pool().Exec(ctx, `TRUNCATE pumps`); err != nil {
		t.Fatal(err)
	}

	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	pumps := []types.Pump{
		{
			ID: "PMP-T1", Name: "First", Type: types.PumpTypeRotary, Area: "Test",
			Location: types.Location{Latitude: 1.5, Longitude: -2.5, Address: "Somewhere"},
			FlowRate: 10, Offset: 3, Status: types.PumpStatusOperational,
			Pressure:  []types.PressureReading{{Timestamp: now, Pressure: 12}},
			CreatedAt: now, UpdatedAt: now,
		},
		{
			ID: "PMP-T2", Name: "Second", Type: types.PumpTypeDiaphragm, Area: "Test",
			Status: types.PumpStatusOffline, Pressure: []types.PressureReading{},
			CreatedAt: now, UpdatedAt: now,
		},
	}
	if err := client.ImportPumps(ctx, pumps); err != nil {
		t.Fatalf("ImportPumps() error: %v", err)
	}

	src := NewPumpSource(client)
	all, err := src.FetchAll(ctx)
	if err != nil {
		t.Fatalf("FetchAll() error: %v", err)
	}
	if len(all) != 2 || all[0].ID != "PMP-T1" || all[1].ID != "PMP-T2" {
		t.Fatalf("FetchAll() = %+v", all)
	}
	if all[0].Location != pumps[0].Location || len(all[0].Pressure) != 1 {
		t.Errorf("first pump = %+v", all[0])
	}

	got, err := src.FetchByID(ctx, "PMP-T2")
	if err != nil || got == nil || got.Name != "Second" {
		t.Errorf("FetchByID(PMP-T2) = %+v, %v", got, err)
	}

	missing, err := src.FetchByID(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("FetchByID(nope) = %+v, %v; want nil, nil", missing, err)
	}
}
