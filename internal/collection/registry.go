package collection

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/KevinKickass/PumpFleet/internal/catalog"
)

var activeControllers = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "pumpfleet_collection_active_controllers",
	Help: "Collection controllers currently held by the registry.",
})

type RegistryConfig struct {
	LoadTimeout time.Duration
	Locale      string
	Listener    Listener
}

// Registry hands out one controller per signed-in user. A controller is
// created on first use and starts loading immediately.
type Registry struct {
	source catalog.Source
	config RegistryConfig
	logger *zap.Logger

	mu          sync.Mutex
	controllers map[string]*Controller
	wg          sync.WaitGroup
}

func NewRegistry(source catalog.Source, config RegistryConfig, logger *zap.Logger) *Registry {
	if config.LoadTimeout <= 0 {
		config.LoadTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		source:      source,
		config:      config,
		logger:      logger,
		controllers: make(map[string]*Controller),
	}
}

// Get returns the owner's controller, creating and loading it on first use.
func (r *Registry) Get(owner string) *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.controllers[owner]; ok {
		return c
	}

	c := NewController(r.source, Options{
		Owner:    owner,
		Locale:   r.config.Locale,
		Logger:   r.logger,
		Listener: r.config.Listener,
	})
	r.controllers[owner] = c
	activeControllers.Inc()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.config.LoadTimeout)
		defer cancel()

		if err := c.Load(ctx); err != nil && !errors.Is(err, ErrStaleLoad) {
			r.logger.Warn("Initial pump load failed",
				zap.String("owner", owner),
				zap.Error(err))
		}
	}()

	return c
}

// Lookup returns the owner's controller without creating one.
func (r *Registry) Lookup(owner string) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.controllers[owner]
	return c, ok
}

// Release closes and forgets the owner's controller.
func (r *Registry) Release(owner string) {
	r.mu.Lock()
	c, ok := r.controllers[owner]
	delete(r.controllers, owner)
	r.mu.Unlock()

	if ok {
		c.Close()
		activeControllers.Dec()
		r.logger.Debug("Collection controller released", zap.String("owner", owner))
	}
}

// Len reports how many controllers are held.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.controllers)
}

// Close releases every controller and waits for background loads to return.
func (r *Registry) Close() {
	r.mu.Lock()
	owners := make([]string, 0, len(r.controllers))
	for owner := range r.controllers {
		owners = append(owners, owner)
	}
	r.mu.Unlock()

	for _, owner := range owners {
		r.Release(owner)
	}
	r.wg.Wait()
}
