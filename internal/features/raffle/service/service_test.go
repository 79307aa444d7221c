package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raffle-backend/internal/features/raffle/models"
	"raffle-backend/internal/features/raffle/repository"
	rafflememory "raffle-backend/internal/features/raffle/repository/memory"
	"raffle-backend/internal/features/raffle/seedvault"
	walletmemory "raffle-backend/internal/features/wallet/repository/memory"
)

func sha256HexOf(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

func testDefaults() Defaults {
	return Defaults{
		Threshold:          3,
		EntryCost:          1,
		WinnerSharePercent: 70,
		CommissionPercent:  30,
		GraceSeconds:       1,
		AutoCreateNext:     true,
		InitialBalance:     50,
	}
}

type fixture struct {
	svc    *RaffleService
	repo   *rafflememory.Repository
	ledger *walletmemory.Ledger
	vault  seedvault.Vault
}

func newFixture(t *testing.T, defaults Defaults) *fixture {
	t.Helper()
	repo := rafflememory.New()
	ledger := walletmemory.New()
	vault := seedvault.NewMemory()
	svc := New(repo, ledger, vault, defaults, zerolog.Nop())
	return &fixture{svc: svc, repo: repo, ledger: ledger, vault: vault}
}

// advanceClock makes the service see a time past the grace window.
func (f *fixture) advanceClock(d time.Duration) {
	f.svc.now = func() time.Time { return time.Now().Add(d) }
}

func TestJoinDrawFullScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testDefaults())

	users := []int64{100001, 100002, 100003}
	for i, userID := range users {
		result, err := f.svc.Join(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, JoinSuccess, result.Status)
		assert.Equal(t, int64(i+1), result.EntrySequence)
		assert.Equal(t, int64(i+1), result.Raffle.TotalFund)
		assert.Equal(t, int64(i+1), result.Raffle.TotalEntries)

		if i < 2 {
			assert.False(t, result.ThresholdReached)
			assert.Equal(t, models.RaffleStatusCollecting, result.Raffle.Status)
		} else {
			assert.True(t, result.ThresholdReached)
			assert.True(t, result.Committed)
			assert.Equal(t, models.RaffleStatusReady, result.Raffle.Status)
			assert.NotEmpty(t, result.Raffle.SeedHash)
			require.NotNil(t, result.Raffle.ReadyAt)
		}

		balance, err := f.ledger.GetBalance(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, int64(49), balance, "entry cost must be debited")
	}

	// Immediately after the commit the grace window blocks the draw.
	early, err := f.svc.Draw(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, DrawTooEarly, early.Status)
	assert.False(t, early.NotBefore.IsZero(), "too_early must carry the retry timestamp")

	f.advanceClock(2 * time.Second)
	done, err := f.svc.Draw(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, DrawSuccess, done.Status)

	assert.Contains(t, users, done.WinnerUserID)
	assert.GreaterOrEqual(t, done.WinnerIndex, 0)
	assert.Less(t, done.WinnerIndex, len(users))
	assert.Equal(t, len(users), done.ParticipantsCount)
	assert.Equal(t, sha256HexOf(done.Seed), done.SeedHash, "revealed seed must match the commitment")
	assert.Equal(t, sha256HexOf("100001,100002,100003"), done.ParticipantsHash)
	assert.Equal(t, int64(2), done.WinnerPrize, "floor(3 * 70 / 100)")

	final, err := f.repo.GetByID(ctx, done.RaffleID)
	require.NoError(t, err)
	assert.Equal(t, models.RaffleStatusCompleted, final.Status)
	assert.Equal(t, done.Seed, final.SeedRevealed)
	assert.Equal(t, sha256HexOf(final.SeedRevealed), final.SeedHash)
}

func TestJoinIsIdempotentPerUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testDefaults())

	first, err := f.svc.Join(ctx, 100001)
	require.NoError(t, err)
	require.Equal(t, JoinSuccess, first.Status)

	second, err := f.svc.Join(ctx, 100001)
	require.NoError(t, err)
	assert.Equal(t, JoinAlreadyJoined, second.Status)
	assert.Equal(t, first.EntrySequence, second.EntrySequence)
	assert.Equal(t, first.Raffle.TotalEntries, second.Raffle.TotalEntries)
	assert.Equal(t, first.Raffle.TotalFund, second.Raffle.TotalFund)

	balance, err := f.ledger.GetBalance(ctx, 100001)
	require.NoError(t, err)
	assert.Equal(t, int64(49), balance, "a repeat join must not charge again")
}

func TestJoinInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	defaults := testDefaults()
	defaults.InitialBalance = 0
	f := newFixture(t, defaults)

	result, err := f.svc.Join(ctx, 100001)
	require.NoError(t, err)
	assert.Equal(t, JoinInsufficientBalance, result.Status)

	raffle, err := f.repo.FindActiveRaffle(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), raffle.TotalEntries, "a refused charge must not admit")
}

func TestJoinNoActiveRaffleWhenAutoCreateOff(t *testing.T) {
	ctx := context.Background()
	defaults := testDefaults()
	defaults.AutoCreateNext = false
	f := newFixture(t, defaults)

	result, err := f.svc.Join(ctx, 100001)
	require.NoError(t, err)
	assert.Equal(t, JoinNoActiveRaffle, result.Status)
}

func TestConcurrentJoinsDistinctUsers(t *testing.T) {
	ctx := context.Background()
	defaults := testDefaults()
	defaults.Threshold = 1000 // keep the raffle collecting for the whole test
	f := newFixture(t, defaults)

	// Create the raffle up front so every goroutine joins the same one.
	_, err := f.svc.Join(ctx, 99999)
	require.NoError(t, err)

	const users = 40
	var wg sync.WaitGroup
	sequences := make([]int64, users)
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := f.svc.Join(ctx, int64(100000+i))
			assert.NoError(t, err)
			assert.Equal(t, JoinSuccess, result.Status)
			sequences[i] = result.EntrySequence
		}(i)
	}
	wg.Wait()

	sort.Slice(sequences, func(i, j int) bool { return sequences[i] < sequences[j] })
	for i, seq := range sequences {
		assert.Equal(t, int64(i+2), seq, "sequences must be gap-free after the priming entry")
	}

	raffle, err := f.repo.FindActiveRaffle(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(users+1), raffle.TotalEntries)
	assert.Equal(t, int64(users+1)*raffle.EntryCost, raffle.TotalFund)
}

func TestConcurrentJoinsSameUserChargeOnce(t *testing.T) {
	ctx := context.Background()
	defaults := testDefaults()
	defaults.Threshold = 1000
	f := newFixture(t, defaults)

	_, err := f.svc.Join(ctx, 99999)
	require.NoError(t, err)

	const attempts = 12
	var wg sync.WaitGroup
	statuses := make([]JoinStatus, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := f.svc.Join(ctx, 100001)
			assert.NoError(t, err)
			statuses[i] = result.Status
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, s := range statuses {
		if s == JoinSuccess {
			successes++
		} else {
			assert.Equal(t, JoinAlreadyJoined, s)
		}
	}
	assert.Equal(t, 1, successes, "exactly one racing join may create the entry")

	// Every duplicate debit must have been refunded.
	balance, err := f.ledger.GetBalance(ctx, 100001)
	require.NoError(t, err)
	assert.Equal(t, int64(49), balance)
}

func TestConcurrentDrawsSingleWinner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testDefaults())

	for _, userID := range []int64{100001, 100002, 100003} {
		_, err := f.svc.Join(ctx, userID)
		require.NoError(t, err)
	}
	f.advanceClock(2 * time.Second)

	raffle, err := f.repo.FindActiveRaffle(ctx)
	require.NoError(t, err)
	require.Equal(t, models.RaffleStatusReady, raffle.Status)

	var wg sync.WaitGroup
	results := make([]*DrawResult, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := f.svc.Draw(ctx, raffle.ID)
			assert.NoError(t, err)
			results[i] = result
		}(i)
	}
	wg.Wait()

	statuses := []DrawStatus{results[0].Status, results[1].Status}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })
	assert.Equal(t, []DrawStatus{DrawSuccess, DrawWrongStatus}, statuses,
		"of two concurrent draws exactly one wins")
}

func TestDrawOutcomes(t *testing.T) {
	ctx := context.Background()

	t.Run("not found without an active raffle", func(t *testing.T) {
		f := newFixture(t, testDefaults())
		result, err := f.svc.Draw(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, DrawNotFound, result.Status)
	})

	t.Run("not found for an unknown id", func(t *testing.T) {
		f := newFixture(t, testDefaults())
		result, err := f.svc.Draw(ctx, 424242)
		require.NoError(t, err)
		assert.Equal(t, DrawNotFound, result.Status)
	})

	t.Run("wrong status while collecting", func(t *testing.T) {
		f := newFixture(t, testDefaults())
		joined, err := f.svc.Join(ctx, 100001)
		require.NoError(t, err)
		result, err := f.svc.Draw(ctx, joined.Raffle.ID)
		require.NoError(t, err)
		assert.Equal(t, DrawWrongStatus, result.Status)
	})

	t.Run("missing seed after a vault wipe", func(t *testing.T) {
		f := newFixture(t, testDefaults())
		for _, userID := range []int64{100001, 100002, 100003} {
			_, err := f.svc.Join(ctx, userID)
			require.NoError(t, err)
		}
		raffle, err := f.repo.FindActiveRaffle(ctx)
		require.NoError(t, err)
		require.NoError(t, f.vault.Delete(ctx, raffle.ID))

		f.advanceClock(2 * time.Second)
		result, err := f.svc.Draw(ctx, raffle.ID)
		require.NoError(t, err)
		assert.Equal(t, DrawMissingSeed, result.Status)

		// The documented recovery: cancel the stuck raffle.
		cancelled, err := f.svc.Cancel(ctx, raffle.ID, "seed lost on restart")
		require.NoError(t, err)
		assert.Equal(t, models.RaffleStatusCancelled, cancelled.Status)
	})
}

// flakyCommitRepo fails the first CommitSeedIfThreshold calls, mimicking a
// transient store outage between vaulting the seed and publishing the hash.
type flakyCommitRepo struct {
	*rafflememory.Repository
	mu       sync.Mutex
	failures int
}

func (r *flakyCommitRepo) CommitSeedIfThreshold(ctx context.Context, raffleID int64, seedHash string, graceSeconds int64) (*models.Raffle, bool, error) {
	r.mu.Lock()
	if r.failures > 0 {
		r.failures--
		r.mu.Unlock()
		return nil, false, errors.New("connection reset")
	}
	r.mu.Unlock()
	return r.Repository.CommitSeedIfThreshold(ctx, raffleID, seedHash, graceSeconds)
}

func TestSeedCommitRetriedAfterTransientStoreFailure(t *testing.T) {
	ctx := context.Background()
	repo := &flakyCommitRepo{Repository: rafflememory.New(), failures: 1}
	ledger := walletmemory.New()
	vault := seedvault.NewMemory()
	svc := New(repo, ledger, vault, testDefaults(), zerolog.Nop())

	for _, userID := range []int64{100001, 100002} {
		result, err := svc.Join(ctx, userID)
		require.NoError(t, err)
		require.Equal(t, JoinSuccess, result.Status)
	}

	// The threshold-crossing join vaults a seed, then the store commit fails.
	// The entry itself is still admitted.
	third, err := svc.Join(ctx, 100003)
	require.NoError(t, err)
	assert.Equal(t, JoinSuccess, third.Status)
	assert.True(t, third.ThresholdReached)
	assert.False(t, third.Committed)
	assert.Equal(t, models.RaffleStatusCollecting, third.Raffle.Status)

	// The next join must find the vaulted seed and re-issue the commit
	// instead of leaving the raffle stuck in collecting.
	fourth, err := svc.Join(ctx, 100004)
	require.NoError(t, err)
	require.Equal(t, JoinSuccess, fourth.Status)
	assert.True(t, fourth.Committed)
	require.Equal(t, models.RaffleStatusReady, fourth.Raffle.Status)

	seed, ok, err := vault.Get(ctx, fourth.Raffle.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sha256HexOf(seed), fourth.Raffle.SeedHash,
		"the committed hash must match the vaulted seed, not a regenerated one")

	svc.now = func() time.Time { return time.Now().Add(2 * time.Second) }
	done, err := svc.Draw(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, DrawSuccess, done.Status)
}

// closingAdmitRepo rejects every admission, standing in for a raffle that
// stopped accepting entries between the pre-check and the insert.
type closingAdmitRepo struct {
	*rafflememory.Repository
}

func (r *closingAdmitRepo) AdmitEntry(_ context.Context, _, _ int64) (*repository.AdmitResult, error) {
	return nil, repository.ErrNotAcceptingEntries
}

func TestJoinLosingFinalizationRaceIsBusinessOutcome(t *testing.T) {
	ctx := context.Background()
	repo := &closingAdmitRepo{Repository: rafflememory.New()}
	ledger := walletmemory.New()
	svc := New(repo, ledger, seedvault.NewMemory(), testDefaults(), zerolog.Nop())

	result, err := svc.Join(ctx, 100001)
	require.NoError(t, err, "losing the finalization race is not an infra failure")
	assert.Equal(t, JoinNoActiveRaffle, result.Status)

	balance, err := ledger.GetBalance(ctx, 100001)
	require.NoError(t, err)
	assert.Equal(t, int64(50), balance, "the debit must be refunded")
}

func TestLateEntriesDuringGraceAreIncluded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testDefaults())

	for _, userID := range []int64{100001, 100002, 100003} {
		_, err := f.svc.Join(ctx, userID)
		require.NoError(t, err)
	}

	// The raffle is ready; a late joiner still gets in during grace.
	late, err := f.svc.Join(ctx, 100004)
	require.NoError(t, err)
	assert.Equal(t, JoinSuccess, late.Status)
	assert.Equal(t, models.RaffleStatusReady, late.Raffle.Status)
	assert.Equal(t, int64(4), late.Raffle.TotalEntries)
	assert.False(t, late.Committed, "the seed is committed once, not per late entry")

	f.advanceClock(2 * time.Second)
	done, err := f.svc.Draw(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, DrawSuccess, done.Status)
	assert.Equal(t, 4, done.ParticipantsCount)
	assert.Equal(t, sha256HexOf("100001,100002,100003,100004"), done.ParticipantsHash)
}

func TestDerivedVaultSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	repo := rafflememory.New()
	ledger := walletmemory.New()
	svc := New(repo, ledger, seedvault.NewDerived("master-secret"), testDefaults(), zerolog.Nop())

	for _, userID := range []int64{100001, 100002, 100003} {
		result, err := svc.Join(ctx, userID)
		require.NoError(t, err)
		require.Equal(t, JoinSuccess, result.Status)
	}

	raffle, err := repo.FindActiveRaffle(ctx)
	require.NoError(t, err)
	require.Equal(t, models.RaffleStatusReady, raffle.Status)

	// Simulate a restart: a fresh service with a fresh vault built from the
	// same master secret must still be able to reveal.
	restarted := New(repo, ledger, seedvault.NewDerived("master-secret"), testDefaults(), zerolog.Nop())
	restarted.now = func() time.Time { return time.Now().Add(2 * time.Second) }

	done, err := restarted.Draw(ctx, raffle.ID)
	require.NoError(t, err)
	require.Equal(t, DrawSuccess, done.Status)
	assert.Equal(t, sha256HexOf(done.Seed), done.SeedHash)
	assert.Equal(t, raffle.SeedHash, done.SeedHash, "the committed hash must verify the derived seed")
}
