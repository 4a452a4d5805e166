package registry

import "querybot/internal/models"

// Registry holds report templates keyed by id, preserving file order.
// It is immutable once loaded.
type Registry struct {
	order []string
	byID  map[string]*models.ReportTemplate
}

// New builds a registry from templates in the given order. Later duplicates are ignored.
func New(templates ...*models.ReportTemplate) *Registry {
	r := &Registry{byID: make(map[string]*models.ReportTemplate, len(templates))}
	for _, t := range templates {
		if _, exists := r.byID[t.ID]; exists {
			continue
		}
		r.order = append(r.order, t.ID)
		r.byID[t.ID] = t
	}
	return r
}

// Get returns the template registered under id.
func (r *Registry) Get(id string) (*models.ReportTemplate, bool) {
	t, ok := r.byID[id]
	return t, ok
}

// IDs returns report ids in insertion order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// All returns templates in insertion order.
func (r *Registry) All() []*models.ReportTemplate {
	out := make([]*models.ReportTemplate, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Len returns the number of templates.
func (r *Registry) Len() int {
	return len(r.order)
}
