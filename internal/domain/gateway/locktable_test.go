package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockTableRunsInReservationOrder(t *testing.T) {
	table := NewLockTable()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := range 5 {
		ticket := table.Reserve("conv")
		wg.Add(1)
		go func(i int, ticket *Ticket) {
			defer wg.Done()
			// later tickets try to get ahead
			time.Sleep(time.Duration(5-i) * 5 * time.Millisecond)
			assert.NoError(t, ticket.Wait(context.Background()))
			defer ticket.Release()

			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}(i, ticket)
	}

	wg.Wait()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
	assert.Equal(t, 0, table.Len())
}

func TestLockTableKeysAreIndependent(t *testing.T) {
	table := NewLockTable()

	a := table.Reserve("a")
	require.NoError(t, a.Wait(context.Background()))

	b := table.Reserve("b")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, b.Wait(ctx))

	b.Release()
	a.Release()
	assert.Equal(t, 0, table.Len())
}

func TestLockTableWaitHonoursContext(t *testing.T) {
	table := NewLockTable()

	first := table.Reserve("conv")
	require.NoError(t, first.Wait(context.Background()))

	second := table.Reserve("conv")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, second.Wait(ctx), context.DeadlineExceeded)

	third := table.Reserve("conv")
	second.Release()

	// third must still wait for first even though second gave up
	ctx2, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	assert.Error(t, third.Wait(ctx2))

	first.Release()
	require.NoError(t, third.Wait(context.Background()))
	third.Release()

	assert.Eventually(t, func() bool { return table.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestTicketReleaseIsIdempotent(t *testing.T) {
	table := NewLockTable()
	ticket := table.Reserve("conv")
	require.NoError(t, ticket.Wait(context.Background()))

	ticket.Release()
	assert.NotPanics(t, ticket.Release)
}
