package interfaces

import (
	"context"

	"github.com/KevinKickass/PumpFleet/internal/config"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	State            string `json:"state"`
	CatalogSource    string `json:"catalog_source"`
	CatalogReady     bool   `json:"catalog_ready"`
	CatalogSize      int    `json:"catalog_size"`
	ActiveSessions   int    `json:"active_sessions"`
	ConnectedClients int    `json:"connected_clients"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
}

type LifecycleManager interface {
	Config() *config.Config
	GetCurrentStatus() SystemStatus
	Shutdown(ctx context.Context) error
}
