package sync

import (
	"sync"
	"time"
)

// WaitGroupTimeout waits for wg at most timeout.
// It returns true when the timeout passed before all goroutines were done.
func WaitGroupTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return false
	case <-timer.C:
		return true
	}
}
