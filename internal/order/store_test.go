package order

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/flash-sale-order-simulator/internal/model"
)

func TestStoreCreateAndGet(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Create(model.Order{OrderID: "o1", ProductID: "p1", BuyerID: "b1"}))

	o, ok := s.Get("o1")
	require.True(t, ok)
	require.Equal(t, model.StatusAwaitingPayment, o.Status)
	require.Equal(t, "p1", o.ProductID)
	require.Equal(t, "b1", o.BuyerID)

	_, ok = s.Get("missing")
	require.False(t, ok)
}

func TestStoreCreateDuplicate(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Create(model.Order{OrderID: "o1"}))
	require.ErrorIs(t, s.Create(model.Order{OrderID: "o1"}), ErrExists)
}

func TestTransitionGuard(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Create(model.Order{OrderID: "o1", ProductID: "p1", BuyerID: "b1"}))

	ok, err := s.Transition("o1", model.StatusAwaitingPayment, model.StatusPaid)
	require.NoError(t, err)
	require.True(t, ok)

	// A late cancel or timeout against a paid order is a no-op.
	ok, err = s.Transition("o1", model.StatusAwaitingPayment, model.StatusCancelled)
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = s.Transition("o1", model.StatusAwaitingPayment, model.StatusTimeoutCancelled)
	require.NoError(t, err)
	require.False(t, ok)

	o, _ := s.Get("o1")
	require.Equal(t, model.StatusPaid, o.Status)
}

func TestTransitionUnknownOrder(t *testing.T) {
	s := NewStore()
	_, err := s.Transition("ghost", model.StatusAwaitingPayment, model.StatusPaid)
	require.ErrorIs(t, err, ErrNotFound)
}

// Concurrent pay, cancel, and timeout racing on the same order: exactly one
// terminal transition lands.
func TestTransitionSingleWinner(t *testing.T) {
	for round := 0; round < 50; round++ {
		s := NewStore()
		require.NoError(t, s.Create(model.Order{OrderID: "o1"}))

		terminals := []model.Status{
			model.StatusPaid, model.StatusCancelled, model.StatusTimeoutCancelled,
		}
		wins := make(chan model.Status, len(terminals))
		var wg sync.WaitGroup
		for _, to := range terminals {
			wg.Add(1)
			go func(to model.Status) {
				defer wg.Done()
				ok, err := s.Transition("o1", model.StatusAwaitingPayment, to)
				require.NoError(t, err)
				if ok {
					wins <- to
				}
			}(to)
		}
		wg.Wait()
		close(wins)

		var winners []model.Status
		for w := range wins {
			winners = append(winners, w)
		}
		require.Len(t, winners, 1)
		o, _ := s.Get("o1")
		require.Equal(t, winners[0], o.Status)
		require.True(t, o.Status.Terminal())
	}
}

func TestSnapshotSortedAndCounts(t *testing.T) {
	s := NewStore()
	for i := 3; i >= 1; i-- {
		require.NoError(t, s.Create(model.Order{OrderID: fmt.Sprintf("o%d", i)}))
	}
	_, err := s.Transition("o2", model.StatusAwaitingPayment, model.StatusPaid)
	require.NoError(t, err)

	snap := s.Snapshot()
	require.Len(t, snap, 3)
	require.Equal(t, "o1", snap[0].OrderID)
	require.Equal(t, "o3", snap[2].OrderID)

	counts := s.CountByStatus()
	require.Equal(t, 2, counts[model.StatusAwaitingPayment])
	require.Equal(t, 1, counts[model.StatusPaid])

	first, ok := s.FirstAwaitingPayment()
	require.True(t, ok)
	require.Equal(t, "o1", first.OrderID)
}
