package strategy

import "github.com/eddiefleurent/condor_backtest/internal/models"

// Registry holds open positions keyed by id, iterated in insertion order.
type Registry struct {
	positions map[string]*models.IronCondorPosition
	order     []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{positions: make(map[string]*models.IronCondorPosition)}
}

// Add registers a position. Re-adding an id replaces the position in place.
func (r *Registry) Add(p *models.IronCondorPosition) {
	if r.positions == nil {
		r.positions = make(map[string]*models.IronCondorPosition)
	}
	if _, exists := r.positions[p.ID]; !exists {
		r.order = append(r.order, p.ID)
	}
	r.positions[p.ID] = p
}

// Get returns the position with the given id, or nil.
func (r *Registry) Get(id string) *models.IronCondorPosition {
	return r.positions[id]
}

// Remove deletes and returns the position with the given id, or nil.
func (r *Registry) Remove(id string) *models.IronCondorPosition {
	p, ok := r.positions[id]
	if !ok {
		return nil
	}
	delete(r.positions, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return p
}

// Len returns the number of registered positions.
func (r *Registry) Len() int {
	return len(r.order)
}

// IsEmpty reports whether no positions are registered.
func (r *Registry) IsEmpty() bool {
	return len(r.order) == 0
}

// Positions returns the registered positions in insertion order.
func (r *Registry) Positions() []*models.IronCondorPosition {
	out := make([]*models.IronCondorPosition, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.positions[id])
	}
	return out
}

// Clear removes every position.
func (r *Registry) Clear() {
	r.positions = make(map[string]*models.IronCondorPosition)
	r.order = nil
}
