package spawn

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/lehigh-university-libraries/furnisher/internal/events"
	"github.com/lehigh-university-libraries/furnisher/internal/model3d"
)

// Placeholder stands in a menu slot while a model is fetched
type Placeholder struct {
	ID        string
	RequestID string
	// ItemName is the item that caused the placeholder. The model shown in
	// its slot is whichever resolution reaches it first.
	ItemName string
	Slot     int

	destroyed atomic.Bool
}

// Destroy marks the placeholder as removed by the UI
func (p *Placeholder) Destroy() {
	p.destroyed.Store(true)
}

func (p *Placeholder) Destroyed() bool {
	return p.destroyed.Load()
}

// Display shows a resolved model in a placeholder's slot, replacing the placeholder
type Display interface {
	Present(p *Placeholder, itemName string, asset *model3d.Asset) error
}

// Reconciler keeps one FIFO of placeholders per catalog request and hands
// each resolution of that request to the oldest outstanding placeholder.
type Reconciler struct {
	display Display

	mu     sync.Mutex
	queues map[string][]*Placeholder
	slots  map[string]int
}

func New(display Display) *Reconciler {
	return &Reconciler{
		display: display,
		queues:  make(map[string][]*Placeholder),
		slots:   make(map[string]int),
	}
}

// Attach subscribes the reconciler to bus
func (r *Reconciler) Attach(bus *events.Bus) (detach func()) {
	return bus.Subscribe(r.OnResolved)
}

// CreatePlaceholder queues a new placeholder at the back of requestID's FIFO
func (r *Reconciler) CreatePlaceholder(requestID, itemName string) *Placeholder {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := &Placeholder{
		ID:        uuid.NewString(),
		RequestID: requestID,
		ItemName:  itemName,
		Slot:      r.slots[requestID],
	}
	r.slots[requestID]++
	r.queues[requestID] = append(r.queues[requestID], p)
	slog.Debug("Placeholder created", "request", requestID, "item", itemName, "slot", p.Slot)
	return p
}

// OnResolved services the oldest placeholder of ev's request. A resolution
// with nothing waiting is dropped, and one that reaches a destroyed
// placeholder is used up without being shown.
func (r *Reconciler) OnResolved(ev events.Resolved) {
	r.mu.Lock()
	q := r.queues[ev.RequestID]
	if len(q) == 0 {
		r.mu.Unlock()
		slog.Debug("No placeholder waiting, dropping resolution", "request", ev.RequestID, "item", ev.ItemName)
		return
	}
	p := q[0]
	q[0] = nil
	if len(q) == 1 {
		delete(r.queues, ev.RequestID)
	} else {
		r.queues[ev.RequestID] = q[1:]
	}
	r.mu.Unlock()

	if p.Destroyed() {
		return
	}
	if err := r.display.Present(p, ev.ItemName, ev.Asset); err != nil {
		slog.Error("Unable to present model", "item", ev.ItemName, "slot", p.Slot, "error", err)
	}
}

// Pending is the number of placeholders still waiting for requestID
func (r *Reconciler) Pending(requestID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queues[requestID])
}

// Release destroys requestID's outstanding placeholders and forgets the request
func (r *Reconciler) Release(requestID string) int {
	r.mu.Lock()
	q := r.queues[requestID]
	delete(r.queues, requestID)
	delete(r.slots, requestID)
	r.mu.Unlock()

	for _, p := range q {
		p.Destroy()
	}
	return len(q)
}
