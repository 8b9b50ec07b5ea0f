// Package monitoring forwards operational incidents (audit loss, store
// outages, panics in background loops) to an error tracker. The default
// monitor drops everything; infra/monitoring provides a Sentry backend.
package monitoring

import (
	"sync"
	"time"
)

// Monitor defines methods used for error reporting.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	Recover()
	Flush(timeout time.Duration)
}

type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) Recover()                                  {}
func (NopMonitor) Flush(time.Duration)                       {}

var (
	mu      sync.RWMutex
	current Monitor = NopMonitor{}
)

// Init sets the global monitor implementation. A nil monitor restores the
// no-op default.
func Init(m Monitor) {
	mu.Lock()
	defer mu.Unlock()
	if m == nil {
		current = NopMonitor{}
		return
	}
	current = m
}

func get() Monitor {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// CaptureException records the error with optional tags.
func CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	get().CaptureException(err, tags)
}

// Recover captures panics in goroutines. It must be deferred directly.
func Recover() {
	if r := recover(); r != nil {
		m := get()
		if _, nop := m.(NopMonitor); nop {
			panic(r)
		}
		// re-panic through the monitor so it can record the stack
		func() {
			defer m.Recover()
			panic(r)
		}()
	}
}

// Flush flushes buffered events.
func Flush(d time.Duration) {
	get().Flush(d)
}
