package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyLocksReturnsSameMutexForSameKey(t *testing.T) {
	kl := newKeyLocks()
	require.Same(t, kl.get("a"), kl.get("a"))
}

func TestKeyLocksDifferentKeysDoNotContend(t *testing.T) {
	kl := newKeyLocks()
	a := kl.get("a")
	b := kl.get("b")
	require.NotSame(t, a, b)

	a.Lock()
	defer a.Unlock()

	done := make(chan struct{})
	go func() {
		b.Lock()
		b.Unlock()
		close(done)
	}()
	<-done
}

func TestKeyLocksSerializesSameKey(t *testing.T) {
	kl := newKeyLocks()
	var mu sync.Mutex
	counter := 0
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l := kl.get("shared")
			l.Lock()
			defer l.Unlock()
			mu.Lock()
			counter++
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Equal(t, 20, counter)
}
