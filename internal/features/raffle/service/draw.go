package service

import (
	"context"
	"errors"
	"fmt"

	"raffle-backend/internal/features/raffle/fairness"
	"raffle-backend/internal/features/raffle/models"
	"raffle-backend/internal/features/raffle/repository"
)

// Draw finalizes a raffle after the grace period. raffleID 0 targets the
// current active raffle. Safe to call blindly and repeatedly: every mutation
// is guarded by a condition on prior state, and of two concurrent calls on
// the same ready raffle exactly one succeeds while the other observes
// wrong_status.
func (s *RaffleService) Draw(ctx context.Context, raffleID int64) (*DrawResult, error) {
	var raffle *models.Raffle
	var err error
	if raffleID != 0 {
		raffle, err = s.repo.GetByID(ctx, raffleID)
		if errors.Is(err, repository.ErrRaffleNotFound) {
			return &DrawResult{Status: DrawNotFound, RaffleID: raffleID, Message: "raffle not found"}, nil
		}
	} else {
		raffle, err = s.repo.FindActiveRaffle(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve raffle: %w", err)
	}
	if raffle == nil {
		return &DrawResult{Status: DrawNotFound, Message: "no active raffle"}, nil
	}

	if raffle.Status != models.RaffleStatusReady {
		return &DrawResult{
			Status:   DrawWrongStatus,
			RaffleID: raffle.ID,
			Message:  fmt.Sprintf("raffle status is %s, expected ready", raffle.Status),
		}, nil
	}

	now := s.now()
	if !raffle.IsDrawEligible(now) {
		return &DrawResult{
			Status:    DrawTooEarly,
			RaffleID:  raffle.ID,
			NotBefore: raffle.DrawEligibleAt(),
			Message:   "grace period has not elapsed",
		}, nil
	}

	seed, ok, err := s.vault.Get(ctx, raffle.ID)
	if err != nil {
		return nil, fmt.Errorf("get seed: %w", err)
	}
	if !ok {
		return &DrawResult{
			Status:   DrawMissingSeed,
			RaffleID: raffle.ID,
			Message:  "seed not found in vault (process restart?)",
		}, nil
	}

	// The full current participant list, which may have grown past the
	// committed threshold during the grace window.
	participantIDs, err := s.repo.ListEntries(ctx, raffle.ID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	if len(participantIDs) == 0 {
		return &DrawResult{
			Status:   DrawNoParticipants,
			RaffleID: raffle.ID,
			Message:  "no participants for raffle",
		}, nil
	}

	draw, err := fairness.ComputeWinner(seed, participantIDs)
	if err != nil {
		return nil, fmt.Errorf("compute winner: %w", err)
	}

	finalized, err := s.repo.FinalizeDraw(ctx, repository.FinalizeDrawParams{
		RaffleID:         raffle.ID,
		Seed:             draw.Seed,
		SeedHash:         draw.SeedHash,
		WinnerUserID:     draw.WinnerUserID,
		WinnerIndex:      draw.WinnerIndex,
		ParticipantsHash: draw.ParticipantsHash,
		WinnerHash:       draw.WinnerHash,
		FairnessVersion:  fairness.Version,
	})
	if errors.Is(err, repository.ErrFinalizeConflict) {
		return &DrawResult{
			Status:   DrawWrongStatus,
			RaffleID: raffle.ID,
			Message:  "raffle was finalized concurrently",
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finalize draw: %w", err)
	}

	// The seed stays in the vault after the reveal: a concurrent draw that
	// lost the finalize race must still observe wrong_status, not a spurious
	// missing_seed.

	s.logger.Info().
		Int64("raffle_id", finalized.ID).
		Int64("winner_user_id", draw.WinnerUserID).
		Int("winner_index", draw.WinnerIndex).
		Int("participants", len(participantIDs)).
		Str("winner_hash", draw.WinnerHash).
		Msg("raffle completed")

	return &DrawResult{
		Status:            DrawSuccess,
		RaffleID:          finalized.ID,
		WinnerUserID:      draw.WinnerUserID,
		WinnerIndex:       draw.WinnerIndex,
		ParticipantsCount: len(participantIDs),
		ParticipantsHash:  draw.ParticipantsHash,
		WinnerHash:        draw.WinnerHash,
		Seed:              draw.Seed,
		SeedHash:          draw.SeedHash,
		FairnessVersion:   fairness.Version,
		WinnerPrize:       finalized.WinnerPrize(),
	}, nil
}
