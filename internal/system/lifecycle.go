// Package system wires the catalog, auth, collections and servers together
// and owns their startup and shutdown.
package system

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/KevinKickass/PumpFleet/internal/api/rest"
	"github.com/KevinKickass/PumpFleet/internal/api/websocket"
	"github.com/KevinKickass/PumpFleet/internal/auth"
	"github.com/KevinKickass/PumpFleet/internal/catalog"
	"github.com/KevinKickass/PumpFleet/internal/collection"
	"github.com/KevinKickass/PumpFleet/internal/config"
	"github.com/KevinKickass/PumpFleet/internal/interfaces"
	"github.com/KevinKickass/PumpFleet/internal/storage"
)

// CatalogService is the name reported to gRPC health checks for the pump
// catalog.
const CatalogService = "pumpfleet.Catalog"

type LifecycleManager struct {
	config *config.Config
	logger *zap.Logger

	db          *storage.PostgresClient
	source      *catalog.CachedSource
	catalogSize int

	authService *auth.Service
	hub         *websocket.Hub
	registry    *collection.Registry

	restServer *rest.Server
	grpcServer *grpc.Server
	health     *health.Server
	hubCancel  context.CancelFunc

	stateMu      sync.RWMutex
	currentState SystemState
	lastError    error
	startedAt    time.Time

	listenersMu     sync.RWMutex
	statusListeners []chan StatusEvent

	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

// NewLifecycleManager opens the catalog and builds every service. Nothing
// listens until Start.
func NewLifecycleManager(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*LifecycleManager, error) {
	lm := &LifecycleManager{
		config:       cfg,
		logger:       logger,
		currentState: StateInitializing,
		shutdownChan: make(chan struct{}),
		health:       health.NewServer(),
	}

	if err := lm.openCatalog(ctx); err != nil {
		return nil, err
	}

	authService, err := auth.NewService(cfg.Auth, logger)
	if err != nil {
		lm.closeDB()
		return nil, fmt.Errorf("failed to create auth service: %w", err)
	}
	lm.authService = authService

	lm.hub = websocket.NewHub(logger, authService)
	lm.registry = collection.NewRegistry(lm.source, collection.RegistryConfig{
		LoadTimeout: cfg.Collection.LoadTimeout,
		Locale:      cfg.Collection.Locale,
		Listener:    lm.hub,
	}, logger)

	lm.restServer = rest.NewServer(cfg, rest.Dependencies{
		Lifecycle: lm,
		Auth:      authService,
		Registry:  lm.registry,
		Source:    lm.source,
		Hub:       lm.hub,
		Logger:    logger,
	})

	return lm, nil
}

// openCatalog selects the pump source. Postgres is seeded from the seed
// file the first time it is found empty.
func (lm *LifecycleManager) openCatalog(ctx context.Context) error {
	loader, err := catalog.NewSeedLoader()
	if err != nil {
		return fmt.Errorf("failed to create seed loader: %w", err)
	}
	seed, err := loader.LoadFile(lm.config.Catalog.SeedFile)
	if err != nil {
		return fmt.Errorf("failed to load seed: %w", err)
	}

	var src catalog.Source
	switch lm.config.Catalog.Source {
	case config.SourcePostgres:
		db, err := storage.NewPostgresClient(ctx, lm.config.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		lm.db = db

		if err := db.EnsureSchema(ctx); err != nil {
			lm.closeDB()
			return fmt.Errorf("failed to prepare schema: %w", err)
		}
		n, err := db.CountPumps(ctx)
		if err != nil {
			lm.closeDB()
			return err
		}
		if n == 0 {
			if err := db.ImportPumps(ctx, seed); err != nil {
				lm.closeDB()
				return fmt.Errorf("failed to import seed: %w", err)
			}
			n = len(seed)
			lm.logger.Info("Seeded empty pump table", zap.Int("count", n))
		}
		lm.catalogSize = n
		src = storage.NewPumpSource(db)

	default:
		lm.catalogSize = len(seed)
		src = catalog.NewMockSource(seed, lm.config.Catalog.FetchDelay)
	}

	lm.source = catalog.NewCachedSource(src, lm.config.Catalog.CacheSize, lm.config.Catalog.CacheTTL)
	lm.logger.Info("Pump catalog ready",
		zap.String("source", lm.config.Catalog.Source),
		zap.Int("pumps", lm.catalogSize))
	return nil
}

// Start brings up the hub, the gRPC health endpoint and the REST API.
func (lm *LifecycleManager) Start() error {
	lm.logger.Info("Starting PumpFleet")
	lm.broadcastStatus()

	hubCtx, cancel := context.WithCancel(context.Background())
	lm.hubCancel = cancel
	go lm.hub.Run(hubCtx)

	if err := lm.startGRPCServer(); err != nil {
		lm.setError(fmt.Errorf("failed to start gRPC: %w", err))
		return err
	}

	if err := lm.restServer.Start(); err != nil {
		lm.setError(fmt.Errorf("failed to start REST API: %w", err))
		return err
	}

	lm.health.SetServingStatus(CatalogService, healthpb.HealthCheckResponse_SERVING)
	lm.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	lm.stateMu.Lock()
	lm.startedAt = time.Now()
	lm.stateMu.Unlock()
	lm.setState(StateRunning)
	lm.broadcastStatus()

	lm.logger.Info("System started successfully",
		zap.Int("grpc_port", lm.config.Server.GRPCPort),
		zap.Int("http_port", lm.config.Server.HTTPPort),
		zap.String("catalog_source", lm.config.Catalog.Source))

	return nil
}

func (lm *LifecycleManager) startGRPCServer() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", lm.config.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	lm.grpcServer = grpc.NewServer()
	healthpb.RegisterHealthServer(lm.grpcServer, lm.health)
	reflection.Register(lm.grpcServer)

	lm.logger.Info("gRPC server listening",
		zap.String("address", lis.Addr().String()),
		zap.String("services", "grpc.health.v1.Health"))
	srv := lm.grpcServer
	go func() {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			lm.logger.Error("gRPC server failed", zap.Error(err))
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the system
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")

		lm.setState(StateStopping)
		lm.broadcastStatus()

		shutdownErr = lm.gracefulShutdown(ctx)

		lm.setState(StateStopped)
		lm.broadcastStatus()

		close(lm.shutdownChan)
	})

	return shutdownErr
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	lm.health.Shutdown()

	var wg sync.WaitGroup
	errChan := make(chan error, 2)

	// 1. REST API, in-flight requests finish first
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := lm.restServer.Shutdown(ctx); err != nil {
			errChan <- fmt.Errorf("rest api shutdown failed: %w", err)
		}
	}()

	// 2. gRPC
	if lm.grpcServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lm.logger.Info("Stopping gRPC server")
			lm.grpcServer.GracefulStop()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		lm.logger.Warn("Shutdown timeout, forcing stop")
		if lm.grpcServer != nil {
			lm.grpcServer.Stop()
		}
		err = fmt.Errorf("shutdown timeout exceeded")
	}
	select {
	case e := <-errChan:
		if err == nil {
			err = e
		}
	default:
	}

	// 3. Collections, then the hub that listens to them
	lm.registry.Close()
	if lm.hubCancel != nil {
		lm.hubCancel()
		<-lm.hub.Done()
	}

	lm.closeDB()

	if err == nil {
		lm.logger.Info("Graceful shutdown completed")
	}
	return err
}

func (lm *LifecycleManager) closeDB() {
	if lm.db != nil {
		lm.db.Close()
		lm.db = nil
	}
}

// Done is closed once Shutdown has finished.
func (lm *LifecycleManager) Done() <-chan struct{} {
	return lm.shutdownChan
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()
	if err := ValidateTransition(lm.currentState, state); err != nil {
		lm.logger.Warn("Unexpected state change", zap.Error(err))
	}
	lm.currentState = state
}

func (lm *LifecycleManager) setError(err error) {
	lm.logger.Error("System error", zap.Error(err))
	lm.stateMu.Lock()
	lm.currentState = StateError
	lm.lastError = err
	lm.stateMu.Unlock()
	lm.broadcastStatus()
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	lm.stateMu.RLock()
	state := lm.currentState
	startedAt := lm.startedAt
	lm.stateMu.RUnlock()

	var uptime int64
	if !startedAt.IsZero() {
		uptime = int64(time.Since(startedAt).Seconds())
	}

	return interfaces.SystemStatus{
		State:            state.String(),
		CatalogSource:    lm.config.Catalog.Source,
		CatalogReady:     lm.source != nil,
		CatalogSize:      lm.catalogSize,
		ActiveSessions:   lm.registry.Len(),
		ConnectedClients: lm.hub.GetClientCount(),
		UptimeSeconds:    uptime,
	}
}

func (lm *LifecycleManager) statusEvent() StatusEvent {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()

	ev := StatusEvent{
		State:     lm.currentState,
		Timestamp: time.Now().Unix(),
	}
	if lm.lastError != nil {
		ev.Error = lm.lastError.Error()
	}
	return ev
}

// broadcastStatus notifies subscribers and every WebSocket client.
func (lm *LifecycleManager) broadcastStatus() {
	ev := lm.statusEvent()

	lm.listenersMu.RLock()
	for _, listener := range lm.statusListeners {
		select {
		case listener <- ev:
		default:
			// Channel full, skip
		}
	}
	lm.listenersMu.RUnlock()

	if lm.hub != nil {
		lm.hub.Broadcast(websocket.NewMessage(websocket.MessageTypeSystemStatus, lm.GetCurrentStatus()))
	}
}

// SubscribeStatus subscribes to status updates
func (lm *LifecycleManager) SubscribeStatus() chan StatusEvent {
	ch := make(chan StatusEvent, 10)

	lm.listenersMu.Lock()
	lm.statusListeners = append(lm.statusListeners, ch)
	lm.listenersMu.Unlock()

	return ch
}

// UnsubscribeStatus unsubscribes from status updates
func (lm *LifecycleManager) UnsubscribeStatus(ch chan StatusEvent) {
	lm.listenersMu.Lock()
	defer lm.listenersMu.Unlock()

	for i, listener := range lm.statusListeners {
		if listener == ch {
			lm.statusListeners = append(lm.statusListeners[:i], lm.statusListeners[i+1:]...)
			close(ch)
			break
		}
	}
}

// Config returns the configuration
func (lm *LifecycleManager) Config() *config.Config {
	return lm.config
}

// Handler exposes the REST router.
func (lm *LifecycleManager) Handler() http.Handler {
	return lm.restServer.Handler()
}
