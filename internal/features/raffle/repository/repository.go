package repository

import (
	"context"
	"errors"

	"raffle-backend/internal/features/raffle/models"
)

var (
	ErrRaffleNotFound = errors.New("raffle not found")
	// ErrNotAcceptingEntries is returned by AdmitEntry when the raffle is in
	// a state that no longer admits entries.
	ErrNotAcceptingEntries = errors.New("raffle is not accepting entries")
	// ErrFinalizeConflict is returned when the compound finalize condition
	// (status still ready, seed hash unchanged) does not hold. A concurrent
	// draw already consumed the ready state.
	ErrFinalizeConflict = errors.New("finalize condition no longer holds")
	// ErrCancelConflict is returned when cancelling a raffle that already
	// reached a terminal state.
	ErrCancelConflict = errors.New("raffle already in a terminal state")
)

type CreateRaffleParams struct {
	Threshold          int64
	EntryCost          int64
	WinnerSharePercent int
	CommissionPercent  int
	GraceSeconds       int64
}

// AdmitResult reports the outcome of a (conditionally) admitted entry.
// Created is false when the user already has an entry; the raffle aggregates
// are then the current ones, untouched by this call.
type AdmitResult struct {
	Raffle           *models.Raffle
	Created          bool
	EntrySequence    int64
	ThresholdReached bool
}

type FinalizeDrawParams struct {
	RaffleID         int64
	Seed             string
	SeedHash         string
	WinnerUserID     int64
	WinnerIndex      int
	ParticipantsHash string
	WinnerHash       string
	FairnessVersion  string
}

// RaffleRepository is the persistence collaborator for the raffle core.
// Every mutation is a single conditional write (or transaction) keyed on the
// row's current state; callers may retry any operation blindly.
type RaffleRepository interface {
	// FindActiveRaffle returns the current non-terminal raffle, nil if none.
	FindActiveRaffle(ctx context.Context) (*models.Raffle, error)
	GetByID(ctx context.Context, id int64) (*models.Raffle, error)
	CreateRaffle(ctx context.Context, params CreateRaffleParams) (*models.Raffle, error)
	FindOrCreateActiveRaffle(ctx context.Context, params CreateRaffleParams) (*models.Raffle, error)
	UserHasEntry(ctx context.Context, raffleID, userID int64) (bool, error)
	// AdmitEntry atomically checks for an existing entry, inserts one with
	// the next gap-free sequence number and updates the aggregates. Exactly
	// one of two racing calls for the same user observes Created=true.
	AdmitEntry(ctx context.Context, raffleID, userID int64) (*AdmitResult, error)
	// CommitSeedIfThreshold flips collecting->ready and records the public
	// seed hash, guarded on status, an unset hash and the threshold being
	// met. The bool reports whether this call performed the commit.
	CommitSeedIfThreshold(ctx context.Context, raffleID int64, seedHash string, graceSeconds int64) (*models.Raffle, bool, error)
	// ListEntries returns participant user ids in admission order.
	ListEntries(ctx context.Context, raffleID int64) ([]int64, error)
	// FinalizeDraw flips ready->completed guarded on status and seed hash,
	// persisting the revealed seed and the proof bundle.
	FinalizeDraw(ctx context.Context, params FinalizeDrawParams) (*models.Raffle, error)
	// CancelRaffle moves any non-terminal raffle to cancelled.
	CancelRaffle(ctx context.Context, raffleID int64, reason string) (*models.Raffle, error)
}
