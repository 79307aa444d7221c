package service

import (
	"time"

	"raffle-backend/internal/features/raffle/models"
)

// Business outcomes are discriminated values, never errors. The error return
// of Join/Draw is reserved for infrastructure failures (storage unavailable
// and the like), which callers retry or surface as 500s.

type JoinStatus string

const (
	JoinSuccess             JoinStatus = "success"
	JoinAlreadyJoined       JoinStatus = "already_joined"
	JoinNoActiveRaffle      JoinStatus = "no_active_raffle"
	JoinInsufficientBalance JoinStatus = "insufficient_balance"
)

type JoinResult struct {
	Status JoinStatus     `json:"status"`
	Raffle *models.Raffle `json:"raffle,omitempty"`
	// EntrySequence is this user's admission order (also set when the user
	// had already joined earlier).
	EntrySequence    int64 `json:"entry_sequence,omitempty"`
	ThresholdReached bool  `json:"threshold_reached"`
	// Committed is true when this call performed the seed commit.
	Committed bool `json:"committed"`
}

type DrawStatus string

const (
	DrawSuccess        DrawStatus = "success"
	DrawTooEarly       DrawStatus = "too_early"
	DrawWrongStatus    DrawStatus = "wrong_status"
	DrawNotFound       DrawStatus = "not_found"
	DrawMissingSeed    DrawStatus = "missing_seed"
	DrawNoParticipants DrawStatus = "no_participants"
)

type DrawResult struct {
	Status   DrawStatus `json:"status"`
	RaffleID int64      `json:"raffle_id,omitempty"`
	Message  string     `json:"message,omitempty"`

	// NotBefore is the earliest timestamp at which a too_early retry can
	// succeed.
	NotBefore time.Time `json:"not_before,omitempty"`

	// Proof bundle, set on success.
	WinnerUserID      int64  `json:"winner_user_id,omitempty"`
	WinnerIndex       int    `json:"winner_index,omitempty"`
	ParticipantsCount int    `json:"participants_count,omitempty"`
	ParticipantsHash  string `json:"participants_hash,omitempty"`
	WinnerHash        string `json:"winner_hash,omitempty"`
	Seed              string `json:"seed,omitempty"`
	SeedHash          string `json:"seed_hash,omitempty"`
	FairnessVersion   string `json:"fairness_version,omitempty"`
	// WinnerPrize is informational; settlement is not executed here.
	WinnerPrize int64 `json:"winner_prize,omitempty"`
}
