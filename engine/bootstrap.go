// Package engine boots the vendor secure execution engine from a firmware
// blob. Boot happens at most once per process: the handle slot is guarded so
// concurrent triggers (duplicate readiness broadcasts included) collapse into
// a single boot.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.uber.org/atomic"

	"github.com/sistema-id/smarttoken-provisioning/events"
	"github.com/sistema-id/smarttoken-provisioning/interfaces"
	"github.com/sistema-id/smarttoken-provisioning/metrics"
)

// Handle is the process-wide view of a running secure engine instance. It is
// read-only after creation; consumers may read its fields without further
// synchronization once published.
type Handle struct {
	BootCode          int64
	TroubleshootingID string
	Password          []byte
	CustomerID        string
}

// BootError reports a failed engine boot. There is no recovery path other
// than restarting the process; the whole application depends on the engine.
type BootError struct {
	Code int64
	Err  error
}

func (e *BootError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("engine boot failed: %v", e.Err)
	}
	return fmt.Sprintf("engine boot failed: code %d", e.Code)
}

func (e *BootError) Unwrap() error { return e.Err }

// BootTask is the handle for an in-flight or finished boot. Callers may
// await it, poll it, or ignore it and watch Bootstrap.Ready instead.
type BootTask struct {
	done   chan struct{}
	handle *Handle
	err    error
}

// Done is closed when the boot attempt finished, successfully or not.
func (t *BootTask) Done() <-chan struct{} { return t.done }

// Wait blocks until the boot attempt finishes or the context is cancelled.
func (t *BootTask) Wait(ctx context.Context) (*Handle, error) {
	select {
	case <-t.done:
		return t.handle, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Bootstrap starts the secure engine exactly once per process.
type Bootstrap struct {
	runtime  interfaces.EngineRuntime
	firmware func() ([]byte, error)
	log      *slog.Logger

	handle atomic.Pointer[Handle]
	ready  chan struct{}

	mu   sync.Mutex
	task *BootTask
}

// New creates a Bootstrap. firmware is the asset source consulted when an
// engine-ready broadcast triggers the boot.
func New(runtime interfaces.EngineRuntime, firmware func() ([]byte, error), log *slog.Logger) *Bootstrap {
	return &Bootstrap{
		runtime:  runtime,
		firmware: firmware,
		log:      log,
		ready:    make(chan struct{}),
	}
}

// Start boots the engine from the firmware blob on a background goroutine.
// The first call wins; any later call is a no-op that returns the task from
// the original call, which enforces the singleton invariant under concurrent
// triggers.
func (b *Bootstrap) Start(ctx context.Context, firmware []byte) *BootTask {
	b.mu.Lock()
	if b.task != nil {
		task := b.task
		b.mu.Unlock()
		b.log.Debug("Engine boot already triggered, ignoring")
		return task
	}
	task := &BootTask{done: make(chan struct{})}
	b.task = task
	b.mu.Unlock()

	go b.boot(ctx, task, firmware)
	return task
}

func (b *Bootstrap) boot(ctx context.Context, task *BootTask, firmware []byte) {
	defer close(task.done)

	if err := ctx.Err(); err != nil {
		task.err = err
		return
	}
	if len(firmware) == 0 {
		task.err = &BootError{Err: errors.New("empty firmware blob")}
		b.log.Error("Engine boot failed", "err", task.err)
		metrics.IncEngineBoot("failed")
		return
	}

	code, err := b.runtime.Start(firmware)
	if err != nil {
		task.err = &BootError{Err: err}
		b.log.Error("Engine boot failed", "err", err)
		metrics.IncEngineBoot("failed")
		return
	}
	if code <= 0 {
		// Fatal for this process lifetime; logged, never retried.
		task.err = &BootError{Code: code}
		b.log.Error("Engine boot returned non-positive code", "code", code)
		metrics.IncEngineBoot("failed")
		return
	}

	handle := &Handle{
		BootCode:          code,
		TroubleshootingID: b.runtime.TroubleshootingID(),
		Password:          b.runtime.Password(),
		CustomerID:        b.runtime.CustomerID(),
	}
	if !b.handle.CompareAndSwap(nil, handle) {
		// Another boot won the slot; keep the published handle.
		task.handle = b.handle.Load()
		return
	}

	task.handle = handle
	close(b.ready)
	metrics.IncEngineBoot("success")
	b.log.Info("Secure engine started",
		"code", code,
		"troubleshootingId", handle.TroubleshootingID,
		"customerId", handle.CustomerID)
}

// OnEngineReady handles the engine-ready broadcast. A non-negative firmware
// return code triggers the guarded boot; a negative code is fatal and only
// logged.
func (b *Bootstrap) OnEngineReady(ev events.Event) {
	if ev.Kind != events.EngineReady {
		return
	}
	if ev.FirmwareReturnCode < 0 {
		b.log.Error("Engine layer reported firmware failure, cannot boot",
			"firmwareReturnCode", ev.FirmwareReturnCode)
		metrics.IncEngineBoot("firmware_failure")
		return
	}

	firmware, err := b.firmware()
	if err != nil {
		b.log.Error("Cannot read firmware asset", "err", err)
		metrics.IncEngineBoot("failed")
		return
	}
	b.Start(context.Background(), firmware)
}

// Handle returns the published engine handle, if the boot succeeded.
func (b *Bootstrap) Handle() (*Handle, bool) {
	h := b.handle.Load()
	return h, h != nil
}

// Ready is closed once the engine has booted successfully.
func (b *Bootstrap) Ready() <-chan struct{} { return b.ready }
