package permission

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusGranted(t *testing.T) {
	assert.True(t, Granted.Granted())
	assert.True(t, Limited.Granted())
	assert.False(t, Denied.Granted())
	assert.False(t, NotDetermined.Granted())
	assert.False(t, Restricted.Granted())
}

func TestStubFacadeAlwaysGrants(t *testing.T) {
	f := StubFacade{}
	status, err := f.Check(context.Background(), "contacts.read")
	require.NoError(t, err)
	assert.Equal(t, Granted, status)
}

type slowFacade struct {
	inFlight int32
	maxSeen  int32
}

func (s *slowFacade) Check(ctx context.Context, id string) (Status, error) {
	n := atomic.AddInt32(&s.inFlight, 1)
	for {
		max := atomic.LoadInt32(&s.maxSeen)
		if n <= max || atomic.CompareAndSwapInt32(&s.maxSeen, max, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	atomic.AddInt32(&s.inFlight, -1)
	return Granted, nil
}

func (s *slowFacade) Request(ctx context.Context, id string) (Status, error) {
	return s.Check(ctx, id)
}

func TestWorkerFacadeBoundsConcurrency(t *testing.T) {
	backend := &slowFacade{}
	w := NewWorkerFacade(backend, 2)

	done := make(chan struct{}, 10)
	for i := 0; i < 10; i++ {
		go func() {
			_, _ = w.Check(context.Background(), "contacts.read")
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	assert.LessOrEqual(t, atomic.LoadInt32(&backend.maxSeen), int32(2))
}

func TestWorkerFacadeRespectsContextCancellation(t *testing.T) {
	backend := &slowFacade{}
	w := NewWorkerFacade(backend, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := w.Check(ctx, "contacts.read")
	assert.Error(t, err)
}
