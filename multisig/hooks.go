package multisig

import (
	"sync"

	"github.com/marwen-abid/stablecoin-sdk-go"
)

// HookEvent names a lifecycle event of a multi-signature record.
type HookEvent string

const (
	HookCreated      HookEvent = "multisig:created"
	HookSigned       HookEvent = "multisig:signed"
	HookThresholdMet HookEvent = "multisig:threshold_met"
	HookSubmitted    HookEvent = "multisig:submitted"
	HookDeleted      HookEvent = "multisig:deleted"
)

// HookRegistry holds lifecycle handlers. Handlers for an event run
// sequentially in registration order. It is safe for concurrent use.
type HookRegistry struct {
	handlers map[HookEvent][]func(*stablecoin.MultiSigTransaction)
	mu       sync.RWMutex
}

// NewHookRegistry creates an empty registry.
func NewHookRegistry() *HookRegistry {
	return &HookRegistry{
		handlers: make(map[HookEvent][]func(*stablecoin.MultiSigTransaction)),
	}
}

// On registers handler for event. Handlers should return quickly; a panicking
// handler stops the ones registered after it.
func (r *HookRegistry) On(event HookEvent, handler func(*stablecoin.MultiSigTransaction)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[event] = append(r.handlers[event], handler)
}

// Trigger runs the handlers of event with tx.
func (r *HookRegistry) Trigger(event HookEvent, tx *stablecoin.MultiSigTransaction) {
	if r == nil {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, handler := range r.handlers[event] {
		handler(tx)
	}
}
