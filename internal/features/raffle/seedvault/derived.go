package seedvault

import (
	"context"
	"crypto/subtle"

	"raffle-backend/internal/features/raffle/fairness"
)

// SeedDeriver is implemented by vaults that compute seeds instead of storing
// random ones. The admission controller commits the derived seed rather than
// generating a fresh one.
type SeedDeriver interface {
	SeedFor(raffleID int64) string
}

// Derived recomputes each raffle's seed from a master secret on demand;
// nothing is stored, so restarts cannot lose a seed. The commitment stays
// binding: the seed for a raffle id is fixed before any participant joins.
type Derived struct {
	masterSecret string
}

func NewDerived(masterSecret string) *Derived {
	return &Derived{masterSecret: masterSecret}
}

func (d *Derived) SeedFor(raffleID int64) string {
	return fairness.DeriveSeed(d.masterSecret, raffleID)
}

// StoreIfAbsent accepts only the seed this vault itself derives. Every
// concurrent committer derives the same value, so convergence needs no state;
// the conditional commit in the repository picks the single winner.
func (d *Derived) StoreIfAbsent(_ context.Context, raffleID int64, seed string) (bool, error) {
	expected := d.SeedFor(raffleID)
	if subtle.ConstantTimeCompare([]byte(seed), []byte(expected)) != 1 {
		return false, nil
	}
	return true, nil
}

func (d *Derived) Get(_ context.Context, raffleID int64) (string, bool, error) {
	return d.SeedFor(raffleID), true, nil
}

func (d *Derived) Delete(_ context.Context, _ int64) error {
	return nil
}
