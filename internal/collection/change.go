package collection

type ChangeKind string

const (
	ChangeLoaded     ChangeKind = "loaded"
	ChangeLoadFailed ChangeKind = "load_failed"
	ChangeCreated    ChangeKind = "created"
	ChangeUpdated    ChangeKind = "updated"
	ChangeDeleted    ChangeKind = "deleted"
	// ChangeView covers search, sort, selection and modal changes.
	ChangeView ChangeKind = "view"
)

// Change describes one applied controller operation.
type Change struct {
	Kind ChangeKind `json:"kind"`
	IDs  []string   `json:"ids,omitempty"`
}

// Listener receives changes after they are applied. It is called outside
// the controller lock and must not block.
type Listener interface {
	CollectionChanged(owner string, change Change)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(owner string, change Change)

func (f ListenerFunc) CollectionChanged(owner string, change Change) {
	f(owner, change)
}

type nopListener struct{}

func (nopListener) CollectionChanged(string, Change) {}
