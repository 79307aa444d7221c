// Package seedvault holds the secret seed between commit and reveal. The
// vault is constructed once at startup and injected into its consumers; no
// ambient global state.
package seedvault

import (
	"context"
	"sync"
	"time"
)

// SeedRetention bounds how long a vaulted seed outlives its raffle. Seeds
// for completed raffles are not deleted eagerly (a concurrent losing draw
// still reads the seed before hitting the finalize conflict), so retention
// is what keeps the vault from growing without bound. The window is far
// above any sane grace period.
const SeedRetention = 7 * 24 * time.Hour

// Vault is keyed custody of raffle seeds. StoreIfAbsent is first-writer-wins:
// concurrent threshold-crossing callers converge on one committed seed even
// if more than one independently computed a commit.
type Vault interface {
	// StoreIfAbsent stores seed for the raffle unless one is already present.
	// Returns true only for the writer that placed the seed.
	StoreIfAbsent(ctx context.Context, raffleID int64, seed string) (bool, error)
	// Get returns the seed and whether one is present.
	Get(ctx context.Context, raffleID int64) (string, bool, error)
	// Delete discards the seed after a completed reveal.
	Delete(ctx context.Context, raffleID int64) error
}

type memoryEntry struct {
	seed    string
	expires time.Time
}

// Memory is the process-local vault. A restart between commit and draw loses
// the seed; the draw then reports missing_seed and the raffle stays ready
// until an operator cancels or retries it.
type Memory struct {
	mu    sync.Mutex
	seeds map[int64]memoryEntry

	// now is swapped in tests to cross the retention window without sleeping.
	now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		seeds: make(map[int64]memoryEntry),
		now:   time.Now,
	}
}

func (m *Memory) StoreIfAbsent(_ context.Context, raffleID int64, seed string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.seeds[raffleID]; ok && m.now().Before(e.expires) {
		return false, nil
	}
	m.seeds[raffleID] = memoryEntry{seed: seed, expires: m.now().Add(SeedRetention)}
	return true, nil
}

func (m *Memory) Get(_ context.Context, raffleID int64) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.seeds[raffleID]
	if !ok {
		return "", false, nil
	}
	if !m.now().Before(e.expires) {
		delete(m.seeds, raffleID)
		return "", false, nil
	}
	return e.seed, true, nil
}

func (m *Memory) Delete(_ context.Context, raffleID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seeds, raffleID)
	return nil
}
