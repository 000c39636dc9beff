package eventloop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoop_DispatchesFrames(t *testing.T) {
	frames := make(chan Frame, 1)
	var got Frame
	done := make(chan struct{})

	loop := New(frames, func(now time.Time, f Frame) {
		got = f
		close(done)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go loop.Run(ctx)

	frames <- Frame{Iface: "wlan0", WireLen: 64}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("frame handler never invoked")
	}
	assert.Equal(t, "wlan0", got.Iface)
}

func TestLoop_FiresTimersPeriodically(t *testing.T) {
	frames := make(chan Frame)
	var fireCount int32

	loop := New(frames, func(time.Time, Frame) {})
	loop.AddTimer(15*time.Millisecond, func(time.Time) {
		atomic.AddInt32(&fireCount, 1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)

	time.Sleep(120 * time.Millisecond)
	cancel()

	assert.GreaterOrEqual(t, atomic.LoadInt32(&fireCount), int32(3))
}

func TestLoop_StopsOnContextCancel(t *testing.T) {
	frames := make(chan Frame)
	loop := New(frames, func(time.Time, Frame) {})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- loop.Run(ctx) }()

	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop after context cancellation")
	}
}
