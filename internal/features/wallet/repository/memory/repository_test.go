package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureUserKeepsExistingBalance(t *testing.T) {
	ctx := context.Background()
	ledger := New()

	require.NoError(t, ledger.EnsureUser(ctx, 100001, 100))
	balance, err := ledger.GetBalance(ctx, 100001)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)

	// A repeat ensure must not reset the balance.
	_, err = ledger.Debit(ctx, 100001, 30, "test")
	require.NoError(t, err)
	require.NoError(t, ledger.EnsureUser(ctx, 100001, 100))
	balance, err = ledger.GetBalance(ctx, 100001)
	require.NoError(t, err)
	assert.Equal(t, int64(70), balance)
}

func TestDebitInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	ledger := New()
	require.NoError(t, ledger.EnsureUser(ctx, 100001, 5))

	ok, err := ledger.Debit(ctx, 100001, 10, "too much")
	require.NoError(t, err)
	assert.False(t, ok)

	balance, err := ledger.GetBalance(ctx, 100001)
	require.NoError(t, err)
	assert.Equal(t, int64(5), balance, "a refused debit must not touch the balance")
}

func TestDebitRejectsNonPositiveAmount(t *testing.T) {
	ctx := context.Background()
	ledger := New()
	require.NoError(t, ledger.EnsureUser(ctx, 100001, 5))

	ok, err := ledger.Debit(ctx, 100001, 0, "zero")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = ledger.Debit(ctx, 100001, -3, "negative")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	ledger := New()
	require.NoError(t, ledger.EnsureUser(ctx, 100001, 10))

	const attempts = 50
	var wg sync.WaitGroup
	results := make([]bool, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := ledger.Debit(ctx, 100001, 1, "race")
			assert.NoError(t, err)
			results[i] = ok
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, ok := range results {
		if ok {
			succeeded++
		}
	}
	assert.Equal(t, 10, succeeded)

	balance, err := ledger.GetBalance(ctx, 100001)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestJournalRecordsReasons(t *testing.T) {
	ctx := context.Background()
	ledger := New()
	require.NoError(t, ledger.EnsureUser(ctx, 100001, 10))

	_, err := ledger.Debit(ctx, 100001, 1, "raffle:1:entry")
	require.NoError(t, err)
	_, err = ledger.Credit(ctx, 100001, 1, "raffle:1:refund")
	require.NoError(t, err)

	assert.Equal(t, []string{"raffle:1:entry", "raffle:1:refund"}, ledger.Operations(100001))
}
