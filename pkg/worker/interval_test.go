package worker

import (
	"errors"
	"sync"
	"testing"
)

func TestIntervalSet(t *testing.T) {
	iv := NewInterval(1)
	if err := iv.Set(5); err != nil {
		t.Fatalf("Set(5): %v", err)
	}
	if got := iv.Get(); got != 5 {
		t.Fatalf("Get() = %d, want 5", got)
	}
	if err := iv.Set(-1); !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("Set(-1) err=%v, want ErrInvalidInterval", err)
	}
	if got := iv.Get(); got != 5 {
		t.Fatalf("rejected Set changed the interval to %d", got)
	}
	if err := iv.Set(0); err != nil || iv.Get() != 0 {
		t.Fatalf("Set(0): err=%v value=%d", err, iv.Get())
	}
}

func TestNewIntervalClamps(t *testing.T) {
	if got := NewInterval(-3).Get(); got != 0 {
		t.Fatalf("NewInterval(-3) = %d, want 0", got)
	}
}

func TestIntervalConcurrentAccess(t *testing.T) {
	iv := NewInterval(0)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				iv.Set(n)
				if v := iv.Get(); v < 0 || v > 3 {
					t.Errorf("unexpected interval %d", v)
					return
				}
			}
		}(i)
	}
	wg.Wait()
}
