package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sistema-id/smarttoken-provisioning/events"
)

// fakeRuntime counts Start invocations and returns a fixed boot code.
type fakeRuntime struct {
	mu     sync.Mutex
	starts int
	code   int64
}

func (r *fakeRuntime) Start(firmware []byte) (int64, error) {
	r.mu.Lock()
	r.starts++
	r.mu.Unlock()
	return r.code, nil
}

func (r *fakeRuntime) startCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts
}

func (r *fakeRuntime) TroubleshootingID() string { return "ts-0001" }
func (r *fakeRuntime) Password() []byte          { return []byte{0xde, 0xad} }
func (r *fakeRuntime) CustomerID() string        { return "7824" }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func staticFirmware(b []byte) func() ([]byte, error) {
	return func() ([]byte, error) { return b, nil }
}

func TestBootstrapStartOnce(t *testing.T) {
	rt := &fakeRuntime{code: 42}
	b := New(rt, staticFirmware([]byte("fw")), testLogger())

	task := b.Start(context.Background(), []byte("fw"))
	handle, err := task.Wait(context.Background())
	require.NoError(t, err)
	require.NotNil(t, handle)

	assert.Equal(t, int64(42), handle.BootCode)
	assert.Equal(t, "ts-0001", handle.TroubleshootingID)
	assert.Equal(t, "7824", handle.CustomerID)

	got, ok := b.Handle()
	require.True(t, ok)
	assert.Same(t, handle, got)

	select {
	case <-b.Ready():
	default:
		t.Fatal("Ready must be closed after a successful boot")
	}
}

func TestBootstrapConcurrentStartIsIdempotent(t *testing.T) {
	rt := &fakeRuntime{code: 1}
	b := New(rt, staticFirmware([]byte("fw")), testLogger())

	const callers = 16
	tasks := make([]*BootTask, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tasks[i] = b.Start(context.Background(), []byte("fw"))
		}(i)
	}
	wg.Wait()

	first, err := tasks[0].Wait(context.Background())
	require.NoError(t, err)
	for _, task := range tasks[1:] {
		h, err := task.Wait(context.Background())
		require.NoError(t, err)
		assert.Same(t, first, h, "all callers must observe the same handle")
	}
	assert.Equal(t, 1, rt.startCount(), "runtime must start exactly once")
}

func TestBootstrapNonPositiveCodeIsFatal(t *testing.T) {
	rt := &fakeRuntime{code: -5}
	b := New(rt, staticFirmware([]byte("fw")), testLogger())

	task := b.Start(context.Background(), []byte("fw"))
	handle, err := task.Wait(context.Background())
	assert.Nil(t, handle)

	var bootErr *BootError
	require.ErrorAs(t, err, &bootErr)
	assert.Equal(t, int64(-5), bootErr.Code)

	_, ok := b.Handle()
	assert.False(t, ok, "no handle may be published on boot failure")

	select {
	case <-b.Ready():
		t.Fatal("Ready must not fire on boot failure")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBootstrapEmptyFirmware(t *testing.T) {
	rt := &fakeRuntime{code: 1}
	b := New(rt, staticFirmware(nil), testLogger())

	task := b.Start(context.Background(), nil)
	_, err := task.Wait(context.Background())

	var bootErr *BootError
	require.ErrorAs(t, err, &bootErr)
	assert.Equal(t, 0, rt.startCount(), "runtime must not be invoked with an empty blob")
}

func TestBootstrapOnEngineReady(t *testing.T) {
	rt := &fakeRuntime{code: 3}
	b := New(rt, staticFirmware([]byte("fw")), testLogger())

	b.OnEngineReady(events.Event{Kind: events.EngineReady, FirmwareReturnCode: 0})

	select {
	case <-b.Ready():
	case <-time.After(time.Second):
		t.Fatal("engine-ready broadcast with code >= 0 must trigger the boot")
	}

	// A duplicate broadcast must be a silent no-op.
	b.OnEngineReady(events.Event{Kind: events.EngineReady, FirmwareReturnCode: 0})
	assert.Equal(t, 1, rt.startCount())
}

func TestBootstrapOnEngineReadyNegativeCode(t *testing.T) {
	rt := &fakeRuntime{code: 3}
	b := New(rt, staticFirmware([]byte("fw")), testLogger())

	b.OnEngineReady(events.Event{Kind: events.EngineReady, FirmwareReturnCode: -2})

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, rt.startCount(), "negative firmware code must not trigger a boot")
	_, ok := b.Handle()
	assert.False(t, ok)
}

func TestLocalRuntimeDeterministic(t *testing.T) {
	a := NewLocalRuntime("7824")
	codeA, err := a.Start([]byte("firmware-image"))
	require.NoError(t, err)
	require.Positive(t, codeA)

	b := NewLocalRuntime("7824")
	codeB, err := b.Start([]byte("firmware-image"))
	require.NoError(t, err)

	assert.Equal(t, codeA, codeB)
	assert.Equal(t, a.TroubleshootingID(), b.TroubleshootingID())
	assert.Equal(t, a.Password(), b.Password())
	assert.NotEmpty(t, a.TroubleshootingID())
	assert.Len(t, a.Password(), 16)
}

func TestLocalRuntimeEmptyFirmware(t *testing.T) {
	rt := NewLocalRuntime("7824")
	code, err := rt.Start(nil)
	require.NoError(t, err)
	assert.Negative(t, code)
}
