// Package memory provides an in-process raffle store with the same
// conditional-write semantics as the postgres driver. It backs the tests and
// the zero-dependency local mode; every mutation happens inside one critical
// section, mirroring what the SQL driver achieves with row locks.
package memory

import (
	"context"
	"sync"
	"time"

	"raffle-backend/internal/features/raffle/models"
	"raffle-backend/internal/features/raffle/repository"
)

type Repository struct {
	mu      sync.Mutex
	nextID  int64
	raffles map[int64]*models.Raffle
	entries map[int64][]models.Entry
}

func New() *Repository {
	return &Repository{
		nextID:  1,
		raffles: make(map[int64]*models.Raffle),
		entries: make(map[int64][]models.Entry),
	}
}

func cloneRaffle(r *models.Raffle) *models.Raffle {
	c := *r
	if r.WinnerUserID != nil {
		v := *r.WinnerUserID
		c.WinnerUserID = &v
	}
	if r.WinnerIndex != nil {
		v := *r.WinnerIndex
		c.WinnerIndex = &v
	}
	if r.ReadyAt != nil {
		t := *r.ReadyAt
		c.ReadyAt = &t
	}
	if r.DrawAt != nil {
		t := *r.DrawAt
		c.DrawAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

func (s *Repository) findActiveLocked() *models.Raffle {
	var active *models.Raffle
	for _, r := range s.raffles {
		if !r.IsTerminal() && (active == nil || r.ID > active.ID) {
			active = r
		}
	}
	return active
}

func (s *Repository) FindActiveRaffle(_ context.Context) (*models.Raffle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r := s.findActiveLocked(); r != nil {
		return cloneRaffle(r), nil
	}
	return nil, nil
}

func (s *Repository) GetByID(_ context.Context, id int64) (*models.Raffle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.raffles[id]
	if !ok {
		return nil, repository.ErrRaffleNotFound
	}
	return cloneRaffle(r), nil
}

func (s *Repository) createLocked(params repository.CreateRaffleParams) *models.Raffle {
	r := &models.Raffle{
		ID:                 s.nextID,
		Status:             models.RaffleStatusInit,
		Threshold:          params.Threshold,
		EntryCost:          params.EntryCost,
		WinnerSharePercent: params.WinnerSharePercent,
		CommissionPercent:  params.CommissionPercent,
		GraceSeconds:       params.GraceSeconds,
		CreatedAt:          time.Now().UTC(),
	}
	s.nextID++
	s.raffles[r.ID] = r
	return r
}

func (s *Repository) CreateRaffle(_ context.Context, params repository.CreateRaffleParams) (*models.Raffle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneRaffle(s.createLocked(params)), nil
}

func (s *Repository) FindOrCreateActiveRaffle(_ context.Context, params repository.CreateRaffleParams) (*models.Raffle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r := s.findActiveLocked(); r != nil {
		return cloneRaffle(r), nil
	}
	return cloneRaffle(s.createLocked(params)), nil
}

func (s *Repository) UserHasEntry(_ context.Context, raffleID, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries[raffleID] {
		if e.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Repository) AdmitEntry(_ context.Context, raffleID, userID int64) (*repository.AdmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.raffles[raffleID]
	if !ok {
		return nil, repository.ErrRaffleNotFound
	}
	if r.Status != models.RaffleStatusInit && !r.CanAcceptEntries() {
		return nil, repository.ErrNotAcceptingEntries
	}

	for _, e := range s.entries[raffleID] {
		if e.UserID == userID {
			return &repository.AdmitResult{
				Raffle:           cloneRaffle(r),
				Created:          false,
				EntrySequence:    e.EntrySequence,
				ThresholdReached: r.TotalFund >= r.Threshold,
			}, nil
		}
	}

	sequence := r.TotalEntries + 1
	s.entries[raffleID] = append(s.entries[raffleID], models.Entry{
		RaffleID:      raffleID,
		UserID:        userID,
		EntrySequence: sequence,
		CreatedAt:     time.Now().UTC(),
	})
	r.TotalEntries++
	r.TotalFund += r.EntryCost
	if r.Status == models.RaffleStatusInit {
		r.Status = models.RaffleStatusCollecting
	}

	return &repository.AdmitResult{
		Raffle:           cloneRaffle(r),
		Created:          true,
		EntrySequence:    sequence,
		ThresholdReached: r.TotalFund >= r.Threshold,
	}, nil
}

func (s *Repository) CommitSeedIfThreshold(_ context.Context, raffleID int64, seedHash string, graceSeconds int64) (*models.Raffle, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.raffles[raffleID]
	if !ok {
		return nil, false, repository.ErrRaffleNotFound
	}
	if r.Status != models.RaffleStatusCollecting || r.SeedHash != "" || r.TotalFund < r.Threshold {
		return cloneRaffle(r), false, nil
	}
	now := time.Now().UTC()
	r.Status = models.RaffleStatusReady
	r.SeedHash = seedHash
	r.ReadyAt = &now
	r.GraceSeconds = graceSeconds
	return cloneRaffle(r), true, nil
}

func (s *Repository) ListEntries(_ context.Context, raffleID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.entries[raffleID]
	ids := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.UserID
	}
	return ids, nil
}

func (s *Repository) FinalizeDraw(_ context.Context, params repository.FinalizeDrawParams) (*models.Raffle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.raffles[params.RaffleID]
	if !ok {
		return nil, repository.ErrRaffleNotFound
	}
	// Compound guard: only the caller whose view of (status, seed hash) is
	// still current may finalize.
	if r.Status != models.RaffleStatusReady || r.SeedHash != params.SeedHash {
		return nil, repository.ErrFinalizeConflict
	}
	now := time.Now().UTC()
	r.Status = models.RaffleStatusCompleted
	r.DrawAt = &now
	r.CompletedAt = &now
	r.SeedRevealed = params.Seed
	winnerUserID := params.WinnerUserID
	winnerIndex := params.WinnerIndex
	r.WinnerUserID = &winnerUserID
	r.WinnerIndex = &winnerIndex
	r.ParticipantsHash = params.ParticipantsHash
	r.WinnerHash = params.WinnerHash
	r.FairnessVersion = params.FairnessVersion
	return cloneRaffle(r), nil
}

func (s *Repository) CancelRaffle(_ context.Context, raffleID int64, reason string) (*models.Raffle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.raffles[raffleID]
	if !ok {
		return nil, repository.ErrRaffleNotFound
	}
	if r.IsTerminal() {
		return nil, repository.ErrCancelConflict
	}
	r.Status = models.RaffleStatusCancelled
	r.CancelledReason = reason
	return cloneRaffle(r), nil
}
