// Package collection owns the per-user working set of pumps and every
// list-level interaction on it: load, search, sort, selection, bulk delete,
// create and update.
package collection

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/KevinKickass/PumpFleet/internal/catalog"
	"github.com/KevinKickass/PumpFleet/internal/types"
)

// LoadErrorMessage is the user-visible message of a failed load.
const LoadErrorMessage = "Failed to load pumps data"

var (
	ErrPumpNotFound = errors.New("pump not found")
	ErrClosed       = errors.New("collection controller closed")
	// ErrStaleLoad is returned by a load whose result was discarded because
	// the controller was closed or a newer load started.
	ErrStaleLoad = errors.New("pump load superseded")
)

var operationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pumpfleet_collection_operations_total",
		Help: "Collection controller operations by kind.",
	},
	[]string{"op"},
)

// Options configures a Controller. Zero values get defaults.
type Options struct {
	Owner    string
	Locale   string
	Logger   *zap.Logger
	Listener Listener
	Now      func() time.Time
	NewID    func() string
}

// Controller is the single authoritative view over one user's pump
// collection. All state is mutated only through its methods, each of which
// applies completely under the lock.
//
// The displayed collection is always derived from the canonical one:
// filter by the search term, then order by the active sort key. The
// canonical collection keeps load order with created pumps prepended.
type Controller struct {
	owner    string
	source   catalog.Source
	logger   *zap.Logger
	listener Listener
	sorter   *sorter
	now      func() time.Time
	newID    func() string

	mu              sync.RWMutex
	pumps           []types.Pump
	original        []types.Pump
	loading         bool
	loaded          bool
	loadErr         string
	showSearch      bool
	searchTerm      string
	editMode        bool
	selected        map[string]struct{}
	showDeleteModal bool
	sortKey         SortKey

	loadGen    uint64
	cancelLoad context.CancelFunc
	closed     bool
}

// State is an immutable snapshot of a controller.
type State struct {
	Pumps           []types.Pump `json:"pumps"`
	TotalPumps      int          `json:"total_pumps"`
	Loading         bool         `json:"loading"`
	Error           string       `json:"error,omitempty"`
	ShowSearch      bool         `json:"show_search"`
	SearchTerm      string       `json:"search_term"`
	EditMode        bool         `json:"edit_mode"`
	Selected        []string     `json:"selected"`
	ShowDeleteModal bool         `json:"show_delete_modal"`
	SortKey         SortKey      `json:"sort_key,omitempty"`
}

// NewController returns a controller in the loading state with an empty
// collection. Call Load to fill it.
func NewController(source catalog.Source, opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Locale == "" {
		opts.Locale = "en"
	}
	if opts.Listener == nil {
		opts.Listener = nopListener{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	return &Controller{
		owner:    opts.Owner,
		source:   source,
		logger:   opts.Logger.With(zap.String("owner", opts.Owner)),
		listener: opts.Listener,
		sorter:   newSorter(opts.Locale),
		now:      opts.Now,
		newID:    opts.NewID,
		pumps:    []types.Pump{},
		original: []types.Pump{},
		loading:  true,
		selected: make(map[string]struct{}),
	}
}

// Owner returns the user the controller belongs to.
func (c *Controller) Owner() string {
	return c.owner
}

// Load fetches the full collection from the source. It always settles the
// loading flag. A result that arrives after Close or after a newer Load
// started is dropped and ErrStaleLoad is returned.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.cancelLoad != nil {
		c.cancelLoad()
	}
	c.loadGen++
	gen := c.loadGen
	ctx, cancel := context.WithCancel(ctx)
	c.cancelLoad = cancel
	c.loading = true
	c.loadErr = ""
	c.mu.Unlock()
	defer cancel()

	operationsTotal.WithLabelValues("load").Inc()
	start := time.Now()
	pumps, err := c.source.FetchAll(ctx)

	c.mu.Lock()
	if c.closed || gen != c.loadGen {
		c.mu.Unlock()
		c.logger.Debug("Discarding stale pump load", zap.Uint64("generation", gen))
		return ErrStaleLoad
	}
	c.cancelLoad = nil
	c.loading = false

	if err != nil {
		c.loadErr = LoadErrorMessage
		c.mu.Unlock()
		c.logger.Error("Failed to load pumps", zap.Error(err))
		c.notify(Change{Kind: ChangeLoadFailed})
		return fmt.Errorf("failed to load pumps: %w", err)
	}

	c.original = catalog.ClonePumps(pumps)
	c.loaded = true
	c.pruneSelection()
	c.project()
	count := len(c.original)
	c.mu.Unlock()

	c.logger.Info("Pumps loaded",
		zap.Int("count", count),
		zap.Duration("took", time.Since(start)))
	c.notify(Change{Kind: ChangeLoaded})
	return nil
}

// Search filters the canonical collection by a case-insensitive substring
// match on name, type, area or address. A blank term shows everything.
func (c *Controller) Search(term string) {
	c.mu.Lock()
	c.searchTerm = term
	c.project()
	c.mu.Unlock()

	operationsTotal.WithLabelValues("search").Inc()
	c.notify(Change{Kind: ChangeView})
}

// ClearSearch empties the term, hides the search box and restores the
// displayed collection.
func (c *Controller) ClearSearch() {
	c.mu.Lock()
	c.clearSearchLocked()
	c.mu.Unlock()

	operationsTotal.WithLabelValues("clear_search").Inc()
	c.notify(Change{Kind: ChangeView})
}

// ToggleSearch flips search visibility. Hiding the search box always clears
// the search. It returns the new visibility.
func (c *Controller) ToggleSearch() bool {
	c.mu.Lock()
	if c.showSearch {
		c.clearSearchLocked()
	} else {
		c.showSearch = true
	}
	visible := c.showSearch
	c.mu.Unlock()

	c.notify(Change{Kind: ChangeView})
	return visible
}

func (c *Controller) clearSearchLocked() {
	c.searchTerm = ""
	c.showSearch = false
	c.project()
}

// ToggleEditMode flips edit mode. Leaving edit mode always clears the
// selection. It returns the new mode.
func (c *Controller) ToggleEditMode() bool {
	c.mu.Lock()
	c.editMode = !c.editMode
	if !c.editMode {
		clear(c.selected)
	}
	mode := c.editMode
	c.mu.Unlock()

	c.notify(Change{Kind: ChangeView})
	return mode
}

// SelectPump adds or removes id from the selection. Selecting an id that is
// not in the collection does nothing.
func (c *Controller) SelectPump(id string, selected bool) {
	c.mu.Lock()
	if selected {
		if !c.has(id) {
			c.mu.Unlock()
			c.logger.Debug("Ignoring selection of unknown pump", zap.String("pump_id", id))
			return
		}
		c.selected[id] = struct{}{}
	} else {
		delete(c.selected, id)
	}
	c.mu.Unlock()

	c.notify(Change{Kind: ChangeView, IDs: []string{id}})
}

// SelectAll selects exactly the pumps currently displayed, or clears the
// selection.
func (c *Controller) SelectAll(selected bool) {
	c.mu.Lock()
	clear(c.selected)
	if selected {
		for _, p := range c.pumps {
			c.selected[p.ID] = struct{}{}
		}
	}
	c.mu.Unlock()

	c.notify(Change{Kind: ChangeView})
}

// RequestDelete opens the delete confirmation when something is selected.
// It reports whether the confirmation is open.
func (c *Controller) RequestDelete() bool {
	c.mu.Lock()
	if len(c.selected) > 0 {
		c.showDeleteModal = true
	}
	open := c.showDeleteModal
	c.mu.Unlock()

	c.notify(Change{Kind: ChangeView})
	return open
}

// ConfirmDelete removes every selected pump from the collection, clears the
// selection and closes the confirmation. It only acts while the
// confirmation is open and returns the removed ids.
func (c *Controller) ConfirmDelete() []string {
	c.mu.Lock()
	if !c.showDeleteModal {
		c.mu.Unlock()
		return nil
	}

	removed := make([]string, 0, len(c.selected))
	kept := c.original[:0:0]
	for _, p := range c.original {
		if _, ok := c.selected[p.ID]; ok {
			removed = append(removed, p.ID)
			continue
		}
		kept = append(kept, p)
	}
	c.original = kept
	clear(c.selected)
	c.showDeleteModal = false
	c.project()
	c.mu.Unlock()

	operationsTotal.WithLabelValues("delete").Inc()
	c.logger.Info("Pumps deleted", zap.Strings("pump_ids", removed))
	c.notify(Change{Kind: ChangeDeleted, IDs: removed})
	return removed
}

// CancelDelete closes the confirmation without touching anything else.
func (c *Controller) CancelDelete() {
	c.mu.Lock()
	c.showDeleteModal = false
	c.mu.Unlock()

	c.notify(Change{Kind: ChangeView})
}

// Sort sets the active sort order. Unknown keys are ignored; the return
// value reports whether the key was applied.
func (c *Controller) Sort(key SortKey) bool {
	if !key.Valid() {
		c.logger.Debug("Ignoring unknown sort key", zap.String("key", string(key)))
		return false
	}

	c.mu.Lock()
	c.sortKey = key
	c.project()
	c.mu.Unlock()

	operationsTotal.WithLabelValues("sort").Inc()
	c.notify(Change{Kind: ChangeView})
	return true
}

// Create adds a new pump at the front of the collection with a fresh id and
// CreatedAt == UpdatedAt == now.
func (c *Controller) Create(draft types.PumpDraft) types.Pump {
	now := c.now()

	c.mu.Lock()
	id := c.newID()
	for c.has(id) {
		id = c.newID()
	}

	pump := types.Pump{
		ID:        id,
		Name:      draft.Name,
		Type:      draft.Type,
		Area:      draft.Area,
		Location:  draft.Location,
		FlowRate:  draft.FlowRate,
		Offset:    draft.Offset,
		Pressure:  append([]types.PressureReading{}, draft.Pressure...),
		Status:    draft.Status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	c.original = append([]types.Pump{pump}, c.original...)
	c.project()
	c.mu.Unlock()

	operationsTotal.WithLabelValues("create").Inc()
	c.logger.Info("Pump created", zap.String("pump_id", pump.ID), zap.String("name", pump.Name))
	c.notify(Change{Kind: ChangeCreated, IDs: []string{pump.ID}})
	return catalog.ClonePump(pump)
}

// Update shallow-merges patch into the pump with the given id and advances
// UpdatedAt. It returns ErrPumpNotFound when the id is absent.
func (c *Controller) Update(id string, patch types.PumpPatch) (types.Pump, error) {
	now := c.now()

	c.mu.Lock()
	i, ok := c.indexOf(id)
	if !ok {
		c.mu.Unlock()
		return types.Pump{}, fmt.Errorf("%w: %s", ErrPumpNotFound, id)
	}

	p := c.original[i]
	patch.Apply(&p)
	// UpdatedAt must advance even when the clock does not
	if !now.After(p.UpdatedAt) {
		now = p.UpdatedAt.Add(time.Millisecond)
	}
	p.UpdatedAt = now
	c.original[i] = p
	c.project()
	c.mu.Unlock()

	operationsTotal.WithLabelValues("update").Inc()
	c.logger.Info("Pump updated", zap.String("pump_id", id))
	c.notify(Change{Kind: ChangeUpdated, IDs: []string{id}})
	return catalog.ClonePump(p), nil
}

// State returns a snapshot of the displayed collection and all flags.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	selected := make([]string, 0, len(c.selected))
	for id := range c.selected {
		selected = append(selected, id)
	}
	slices.Sort(selected)

	return State{
		Pumps:           catalog.ClonePumps(c.pumps),
		TotalPumps:      len(c.original),
		Loading:         c.loading,
		Error:           c.loadErr,
		ShowSearch:      c.showSearch,
		SearchTerm:      c.searchTerm,
		EditMode:        c.editMode,
		Selected:        selected,
		ShowDeleteModal: c.showDeleteModal,
		SortKey:         c.sortKey,
	}
}

// Canonical returns the unfiltered collection in canonical order.
func (c *Controller) Canonical() []types.Pump {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return catalog.ClonePumps(c.original)
}

// Find looks a pump up in the canonical collection.
func (c *Controller) Find(id string) (types.Pump, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i, ok := c.indexOf(id)
	if !ok {
		return types.Pump{}, false
	}
	return catalog.ClonePump(c.original[i]), true
}

// Loaded reports whether a load has completed successfully.
func (c *Controller) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Page returns one page of the displayed collection.
func (c *Controller) Page(number, size int) Page {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Paginate(c.pumps, number, size)
}

// Close detaches the controller: an in-flight load is cancelled and its
// result discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.cancelLoad != nil {
		c.cancelLoad()
		c.cancelLoad = nil
	}
}

// project rebuilds the displayed collection. Callers hold the write lock.
func (c *Controller) project() {
	var out []types.Pump
	if strings.TrimSpace(c.searchTerm) == "" {
		out = slices.Clone(c.original)
	} else {
		needle := strings.ToLower(c.searchTerm)
		out = make([]types.Pump, 0, len(c.original))
		for _, p := range c.original {
			if matches(p, needle) {
				out = append(out, p)
			}
		}
	}
	if out == nil {
		out = []types.Pump{}
	}
	c.sorter.apply(out, c.sortKey)
	c.pumps = out
}

func matches(p types.Pump, needle string) bool {
	return strings.Contains(strings.ToLower(p.Name), needle) ||
		strings.Contains(strings.ToLower(string(p.Type)), needle) ||
		strings.Contains(strings.ToLower(p.Area), needle) ||
		strings.Contains(strings.ToLower(p.Location.Address), needle)
}

// pruneSelection drops selected ids no longer in the canonical collection.
func (c *Controller) pruneSelection() {
	for id := range c.selected {
		if !c.has(id) {
			delete(c.selected, id)
		}
	}
}

func (c *Controller) indexOf(id string) (int, bool) {
	i := slices.IndexFunc(c.original, func(p types.Pump) bool { return p.ID == id })
	return i, i >= 0
}

func (c *Controller) has(id string) bool {
	_, ok := c.indexOf(id)
	return ok
}

func (c *Controller) notify(change Change) {
	c.listener.CollectionChanged(c.owner, change)
}
