package match

import (
	"sync/atomic"

	"github.com/faro-watch/faro/backend/pkg/registry"
)

// Holder publishes the current Matcher. A registry import swaps in a new
// matcher; runs already holding the old one keep using it.
type Holder struct {
	current atomic.Pointer[Matcher]
}

// NewHolder returns a Holder serving a matcher over reg.
func NewHolder(reg *registry.Registry) *Holder {
	h := &Holder{}
	h.Replace(reg)
	return h
}

// Load returns the current matcher. It is never nil.
func (h *Holder) Load() *Matcher {
	return h.current.Load()
}

// Replace indexes reg and makes it current.
func (h *Holder) Replace(reg *registry.Registry) {
	h.current.Store(New(reg))
}
