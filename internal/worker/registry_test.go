package worker_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifyhub/alert-relay/internal/domain"
	"github.com/notifyhub/alert-relay/internal/repository"
	"github.com/notifyhub/alert-relay/internal/worker"
)

func TestRegistry_TryAcquireIsExclusive(t *testing.T) {
	reg := worker.NewRegistry()
	rid := domain.RecipientID(1)

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := reg.TryAcquire(context.Background(), rid); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins.Load())
	assert.Equal(t, []string{rid}, reg.Active())
}

func TestRegistry_ReleaseAllowsReacquire(t *testing.T) {
	reg := worker.NewRegistry()
	ctx := context.Background()
	rid := domain.RecipientID(2)

	ok, err := reg.TryAcquire(ctx, rid)
	require.NoError(t, err)
	require.True(t, ok)

	held, err := reg.Refresh(ctx, rid)
	require.NoError(t, err)
	assert.True(t, held)

	require.NoError(t, reg.Release(ctx, rid))
	assert.False(t, reg.IsActive(rid))

	ok, err = reg.TryAcquire(ctx, rid)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRegistry_LeasesSpanRegistries(t *testing.T) {
	store := repository.NewMockAlertStore()
	nodeA := worker.NewLeasedRegistry(store, time.Minute)
	nodeB := worker.NewLeasedRegistry(store, time.Minute)
	ctx := context.Background()
	rid := domain.RecipientID(3)

	ok, err := nodeA.TryAcquire(ctx, rid)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = nodeB.TryAcquire(ctx, rid)
	require.NoError(t, err)
	assert.False(t, ok, "another process holds the lease")
	assert.False(t, nodeB.IsActive(rid), "a failed lease must not leave a local claim")

	held, err := nodeB.Refresh(ctx, rid)
	require.NoError(t, err)
	assert.False(t, held)

	require.NoError(t, nodeA.Release(ctx, rid))
	assert.Empty(t, store.LeaseOwner(rid))

	ok, err = nodeB.TryAcquire(ctx, rid)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRegistry_RefreshEvery(t *testing.T) {
	assert.Zero(t, worker.NewRegistry().RefreshEvery(), "local claims need no refresh")
	assert.Equal(t, 10*time.Second, worker.NewLeasedRegistry(repository.NewMockAlertStore(), 30*time.Second).RefreshEvery())
}
