package models

import "time"

// RaffleStatus represents the lifecycle state of a raffle.
type RaffleStatus string

const (
	RaffleStatusInit       RaffleStatus = "init"       // Created, no entries yet
	RaffleStatusCollecting RaffleStatus = "collecting" // Accepting entries below threshold
	RaffleStatusReady      RaffleStatus = "ready"      // Seed committed, grace period running
	RaffleStatusDrawing    RaffleStatus = "drawing"    // Transient marker during finalization
	RaffleStatusCompleted  RaffleStatus = "completed"  // Winner selected, seed revealed
	RaffleStatusCancelled  RaffleStatus = "cancelled"  // Administratively cancelled
)

// Raffle represents one instance of the pooled-stake draw.
type Raffle struct {
	ID     int64        `json:"id"`
	Status RaffleStatus `json:"status"`

	Threshold          int64 `json:"threshold"`
	EntryCost          int64 `json:"entry_cost"`
	WinnerSharePercent int   `json:"winner_share_percent"`
	CommissionPercent  int   `json:"commission_percent"`
	TotalEntries       int64 `json:"total_entries"`
	TotalFund          int64 `json:"total_fund"`

	SeedHash         string `json:"seed_hash,omitempty"`
	SeedRevealed     string `json:"seed_revealed,omitempty"`
	ParticipantsHash string `json:"participants_hash,omitempty"`
	WinnerHash       string `json:"winner_hash,omitempty"`
	FairnessVersion  string `json:"fairness_version,omitempty"`

	WinnerUserID *int64 `json:"winner_user_id,omitempty"`
	WinnerIndex  *int   `json:"winner_index,omitempty"`

	GraceSeconds int64      `json:"grace_seconds"`
	CreatedAt    time.Time  `json:"created_at"`
	ReadyAt      *time.Time `json:"ready_at,omitempty"`
	DrawAt       *time.Time `json:"draw_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`

	Forced                  bool   `json:"forced"`
	AutoStartedDueToTimeout bool   `json:"auto_started_due_to_timeout"`
	CancelledReason         string `json:"cancelled_reason,omitempty"`
}

// CanAcceptEntries reports whether new entries are admissible. Entries remain
// acceptable after the seed commit for the rest of the grace window; late
// joiners grow the pool past the originally committed threshold.
func (r *Raffle) CanAcceptEntries() bool {
	return r.Status == RaffleStatusCollecting || r.Status == RaffleStatusReady
}

// DrawEligibleAt returns the earliest time a draw may finalize. Zero time if
// the raffle has not been committed yet.
func (r *Raffle) DrawEligibleAt() time.Time {
	if r.ReadyAt == nil {
		return time.Time{}
	}
	return r.ReadyAt.Add(time.Duration(r.GraceSeconds) * time.Second)
}

// IsDrawEligible reports whether the grace period has elapsed.
func (r *Raffle) IsDrawEligible(now time.Time) bool {
	if r.Status != RaffleStatusReady || r.ReadyAt == nil {
		return false
	}
	return !now.Before(r.DrawEligibleAt())
}

// IsTerminal reports whether the raffle reached a final state.
func (r *Raffle) IsTerminal() bool {
	return r.Status == RaffleStatusCompleted || r.Status == RaffleStatusCancelled
}

// WinnerPrize computes the winner's share of the pool. Display only: payout
// settlement is a separate responsibility and is not executed by this service.
func (r *Raffle) WinnerPrize() int64 {
	return r.TotalFund * int64(r.WinnerSharePercent) / 100
}

// Entry records a single user's admitted participation in one raffle.
// EntrySequence is the 1-based admission order, kept for audit only; winner
// selection re-sorts participants numerically and ignores it.
type Entry struct {
	RaffleID      int64     `json:"raffle_id"`
	UserID        int64     `json:"user_id"`
	EntrySequence int64     `json:"entry_sequence"`
	CreatedAt     time.Time `json:"created_at"`
}
