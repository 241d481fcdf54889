package runtime

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDebouncer_Burst_Fires_Once(t *testing.T) {
	req := require.New(t)
	var fired atomic.Int32
	debouncer := NewDebouncer(30*time.Millisecond, func() { fired.Add(1) })
	defer debouncer.Stop()

	// When a burst of triggers arrives
	for i := 0; i < 20; i++ {
		debouncer.Trigger()
		time.Sleep(time.Millisecond)
	}

	// Then exactly one fire happens shortly after the burst ends
	req.Eventually(func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(80 * time.Millisecond)
	req.EqualValues(1, fired.Load())
}

func TestDebouncer_Separate_Bursts_Fire_Separately(t *testing.T) {
	req := require.New(t)
	var fired atomic.Int32
	debouncer := NewDebouncer(20*time.Millisecond, func() { fired.Add(1) })
	defer debouncer.Stop()

	debouncer.Trigger()
	req.Eventually(func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)

	debouncer.Trigger()
	req.Eventually(func() bool { return fired.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestDebouncer_Stop_Cancels_Pending_Fire(t *testing.T) {
	req := require.New(t)
	var fired atomic.Int32
	debouncer := NewDebouncer(20*time.Millisecond, func() { fired.Add(1) })

	debouncer.Trigger()
	debouncer.Stop()

	time.Sleep(60 * time.Millisecond)
	req.Zero(fired.Load())
}
