package snliveness

import (
	"slices"
	"sync"

	"github.com/gordian-engine/gsentor/sn/snsubject"
)

// Detector invokes every registered callback once per observed message.
// The zero value is ready to use.
type Detector struct {
	mu  sync.RWMutex
	cbs []snsubject.Handler
}

// Register adds a callback.
func (d *Detector) Register(h snsubject.Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cbs = append(d.cbs, h)
}

// Observe dispatches m to the registered callbacks.
func (d *Detector) Observe(m snsubject.Message) {
	d.mu.RLock()
	cbs := slices.Clone(d.cbs)
	d.mu.RUnlock()

	for _, cb := range cbs {
		cb(m)
	}
}
