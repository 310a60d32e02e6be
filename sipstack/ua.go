package sipstack

import "sync"

// UA is the user-agent dialog registry of spec.md §6: "UA.newDialog(self)
// / UA.destroyDialog(self) to register/unregister by id". spec.md
// invariant 3 requires NewDialog and DestroyDialog to be called exactly
// once per dialog with an established id.
type UA interface {
	NewDialog(d Dialog)
	DestroyDialog(d Dialog)
	Contact() string
}

// Registry is the concrete dialog table a UA owns, grounded on
// rainliu-sip's provider/stack map-of-self pattern. It is safe for
// concurrent use so a deferred destroy (the subscriber's 32s grace
// delay, spec.md §5) racing a fresh NewDialog on another subscription
// cannot corrupt the table.
type Registry struct {
	mu      sync.Mutex
	dialogs map[string]Dialog
	contact string
}

// NewRegistry builds an empty dialog registry advertising contact as
// the UA's own Contact header value.
func NewRegistry(contact string) *Registry {
	return &Registry{
		dialogs: make(map[string]Dialog),
		contact: contact,
	}
}

func (r *Registry) NewDialog(d Dialog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dialogs[d.ID()] = d
}

func (r *Registry) DestroyDialog(d Dialog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.dialogs, d.ID())
}

func (r *Registry) Contact() string {
	return r.contact
}

// Lookup returns the dialog registered under id, if any. Exposed for
// the stack adapter's inbound-request dispatch (receiveRequest in
// spec.md §2's data-flow description), not used by the core itself.
func (r *Registry) Lookup(id string) (Dialog, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.dialogs[id]
	return d, ok
}

// Count reports the number of live dialogs, used by the "dialog
// accounting" property test in spec.md §8.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.dialogs)
}
