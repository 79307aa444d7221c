package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"raffle-backend/internal/features/raffle/fairness"
	"raffle-backend/internal/features/raffle/models"
	"raffle-backend/internal/features/raffle/repository"
	"raffle-backend/internal/features/raffle/seedvault"
	walletrepo "raffle-backend/internal/features/wallet/repository"
)

// Defaults parameterize raffles created on demand when no active one exists.
type Defaults struct {
	Threshold          int64
	EntryCost          int64
	WinnerSharePercent int
	CommissionPercent  int
	GraceSeconds       int64
	AutoCreateNext     bool
	InitialBalance     int64
}

type RaffleService struct {
	repo     repository.RaffleRepository
	ledger   walletrepo.Ledger
	vault    seedvault.Vault
	defaults Defaults
	logger   zerolog.Logger

	// now is swapped in tests to cross the grace window without sleeping.
	now func() time.Time
}

func New(
	repo repository.RaffleRepository,
	ledger walletrepo.Ledger,
	vault seedvault.Vault,
	defaults Defaults,
	logger zerolog.Logger,
) *RaffleService {
	return &RaffleService{
		repo:     repo,
		ledger:   ledger,
		vault:    vault,
		defaults: defaults,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *RaffleService) createParams() repository.CreateRaffleParams {
	return repository.CreateRaffleParams{
		Threshold:          s.defaults.Threshold,
		EntryCost:          s.defaults.EntryCost,
		WinnerSharePercent: s.defaults.WinnerSharePercent,
		CommissionPercent:  s.defaults.CommissionPercent,
		GraceSeconds:       s.defaults.GraceSeconds,
	}
}

// Join admits userID into the active raffle, creating one from the defaults
// when auto-create is on. Charge policy: the entry cost is debited before
// admission and refunded whenever the admission does not create an entry, so
// a successful admission is never left unpaid.
func (s *RaffleService) Join(ctx context.Context, userID int64) (*JoinResult, error) {
	var raffle *models.Raffle
	var err error
	if s.defaults.AutoCreateNext {
		raffle, err = s.repo.FindOrCreateActiveRaffle(ctx, s.createParams())
	} else {
		raffle, err = s.repo.FindActiveRaffle(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve active raffle: %w", err)
	}
	if raffle == nil {
		return &JoinResult{Status: JoinNoActiveRaffle}, nil
	}
	if raffle.Status != models.RaffleStatusInit && !raffle.CanAcceptEntries() {
		// A raffle mid-finalization admits nobody; from the joiner's point
		// of view there is no raffle to enter.
		return &JoinResult{Status: JoinNoActiveRaffle}, nil
	}

	if err := s.ledger.EnsureUser(ctx, userID, s.defaults.InitialBalance); err != nil {
		return nil, fmt.Errorf("ensure user %d: %w", userID, err)
	}

	// Cheap idempotency pre-check; the authoritative one is the conditional
	// insert below.
	hasEntry, err := s.repo.UserHasEntry(ctx, raffle.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("check entry: %w", err)
	}
	if hasEntry {
		admit, err := s.repo.AdmitEntry(ctx, raffle.ID, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotAcceptingEntries) {
				return &JoinResult{Status: JoinNoActiveRaffle}, nil
			}
			return nil, fmt.Errorf("admit entry: %w", err)
		}
		return &JoinResult{
			Status:           JoinAlreadyJoined,
			Raffle:           admit.Raffle,
			EntrySequence:    admit.EntrySequence,
			ThresholdReached: admit.ThresholdReached,
		}, nil
	}

	debitReason := fmt.Sprintf("raffle:%d:entry", raffle.ID)
	charged, err := s.ledger.Debit(ctx, userID, raffle.EntryCost, debitReason)
	if err != nil {
		return nil, fmt.Errorf("debit entry cost: %w", err)
	}
	if !charged {
		return &JoinResult{Status: JoinInsufficientBalance, Raffle: raffle}, nil
	}

	admit, err := s.repo.AdmitEntry(ctx, raffle.ID, userID)
	if err != nil {
		s.refund(ctx, userID, raffle, "admission failed")
		if errors.Is(err, repository.ErrNotAcceptingEntries) {
			// Finalization won the race after the pre-check passed.
			return &JoinResult{Status: JoinNoActiveRaffle}, nil
		}
		return nil, fmt.Errorf("admit entry: %w", err)
	}
	if !admit.Created {
		// Lost a same-user race after the pre-check; the winner paid.
		s.refund(ctx, userID, raffle, "duplicate entry")
		return &JoinResult{
			Status:           JoinAlreadyJoined,
			Raffle:           admit.Raffle,
			EntrySequence:    admit.EntrySequence,
			ThresholdReached: admit.ThresholdReached,
		}, nil
	}

	result := &JoinResult{
		Status:           JoinSuccess,
		Raffle:           admit.Raffle,
		EntrySequence:    admit.EntrySequence,
		ThresholdReached: admit.ThresholdReached,
	}

	if admit.ThresholdReached && admit.Raffle.Status == models.RaffleStatusCollecting {
		committed, updated, err := s.commitSeed(ctx, admit.Raffle)
		if err != nil {
			// The entry itself is admitted; the next threshold-satisfying
			// join retries the commit with the vaulted seed.
			s.logger.Error().Err(err).Int64("raffle_id", admit.Raffle.ID).
				Msg("seed commit failed")
			return result, nil
		}
		result.Committed = committed
		if updated != nil {
			result.Raffle = updated
		}
	}

	s.logger.Info().
		Int64("raffle_id", admit.Raffle.ID).
		Int64("user_id", userID).
		Int64("sequence", admit.EntrySequence).
		Int64("total_fund", result.Raffle.TotalFund).
		Bool("threshold_reached", admit.ThresholdReached).
		Msg("entry admitted")
	return result, nil
}

// commitSeed publishes the seed hash before the participant set is final.
// The vault is the in-process convergence point; the conditional update in
// the repository is the cross-process one.
func (s *RaffleService) commitSeed(ctx context.Context, raffle *models.Raffle) (bool, *models.Raffle, error) {
	var commit fairness.Commit
	if deriver, ok := s.vault.(seedvault.SeedDeriver); ok {
		commit = fairness.CommitOf(deriver.SeedFor(raffle.ID), raffle.GraceSeconds)
	} else {
		var err error
		commit, err = fairness.GenerateCommit(raffle.GraceSeconds)
		if err != nil {
			return false, nil, err
		}
	}

	stored, err := s.vault.StoreIfAbsent(ctx, raffle.ID, commit.Seed)
	if err != nil {
		return false, nil, fmt.Errorf("store seed: %w", err)
	}
	if !stored {
		// First writer won. Re-issue the repository commit with its seed so
		// a commit that failed after vaulting is retried instead of leaving
		// the raffle stuck in collecting; the conditional update makes the
		// retry a no-op when the first writer already succeeded.
		vaulted, ok, err := s.vault.Get(ctx, raffle.ID)
		if err != nil {
			return false, nil, fmt.Errorf("read vaulted seed: %w", err)
		}
		if !ok {
			return false, nil, nil
		}
		commit = fairness.CommitOf(vaulted, raffle.GraceSeconds)
	}

	updated, committed, err := s.repo.CommitSeedIfThreshold(ctx, raffle.ID, commit.SeedHash, commit.GraceSeconds)
	if err != nil {
		return false, nil, fmt.Errorf("commit seed: %w", err)
	}
	if committed {
		s.logger.Info().
			Int64("raffle_id", raffle.ID).
			Str("seed_hash", commit.SeedHash).
			Int64("grace_seconds", commit.GraceSeconds).
			Msg("seed committed, raffle ready")
	}
	return committed, updated, nil
}

func (s *RaffleService) refund(ctx context.Context, userID int64, raffle *models.Raffle, cause string) {
	reason := fmt.Sprintf("raffle:%d:refund", raffle.ID)
	if _, err := s.ledger.Credit(ctx, userID, raffle.EntryCost, reason); err != nil {
		s.logger.Error().Err(err).
			Int64("raffle_id", raffle.ID).
			Int64("user_id", userID).
			Str("cause", cause).
			Msg("refund failed")
	}
}

// ActiveRaffle returns the current non-terminal raffle, nil when none exists.
func (s *RaffleService) ActiveRaffle(ctx context.Context) (*models.Raffle, error) {
	return s.repo.FindActiveRaffle(ctx)
}

// GetRaffle returns any raffle by id, for fairness verification of past draws.
func (s *RaffleService) GetRaffle(ctx context.Context, id int64) (*models.Raffle, error) {
	return s.repo.GetByID(ctx, id)
}

// Cancel is the administrative escape hatch, e.g. for a ready raffle whose
// seed was lost to a restart.
func (s *RaffleService) Cancel(ctx context.Context, raffleID int64, reason string) (*models.Raffle, error) {
	raffle, err := s.repo.CancelRaffle(ctx, raffleID, reason)
	if err != nil {
		return nil, err
	}
	if err := s.vault.Delete(ctx, raffleID); err != nil {
		s.logger.Warn().Err(err).Int64("raffle_id", raffleID).Msg("seed cleanup failed")
	}
	s.logger.Warn().Int64("raffle_id", raffleID).Str("reason", reason).Msg("raffle cancelled")
	return raffle, nil
}
