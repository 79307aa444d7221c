package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"raffle-backend/internal/features/raffle/models"
	"raffle-backend/internal/features/raffle/repository"
)

// Repository persists raffles and entries in PostgreSQL. All mutations are
// conditional writes or row-locked transactions; the database is the only
// serialization point, so any number of processes can share it safely.
type Repository struct {
	db *sql.DB
}

func New(db *sql.DB) *Repository { return &Repository{db: db} }

const raffleColumns = `id, status, threshold, entry_cost, winner_share_percent, commission_percent,
	total_entries, total_fund, seed_hash, seed_revealed, participants_hash, winner_hash,
	fairness_version, winner_user_id, winner_index, grace_seconds, created_at, ready_at,
	draw_at, completed_at, forced, auto_started_due_to_timeout, cancelled_reason`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanRaffle maps one row into the entity, validating nullable columns at the
// boundary so the core never sees a partially typed raffle.
func scanRaffle(row rowScanner) (*models.Raffle, error) {
	var (
		r                                                    models.Raffle
		seedHash, seedRevealed, participantsHash, winnerHash sql.NullString
		fairnessVersion, cancelledReason                     sql.NullString
		winnerUserID, winnerIndex                            sql.NullInt64
		readyAt, drawAt, completedAt                         sql.NullTime
	)
	err := row.Scan(
		&r.ID, &r.Status, &r.Threshold, &r.EntryCost, &r.WinnerSharePercent, &r.CommissionPercent,
		&r.TotalEntries, &r.TotalFund, &seedHash, &seedRevealed, &participantsHash, &winnerHash,
		&fairnessVersion, &winnerUserID, &winnerIndex, &r.GraceSeconds, &r.CreatedAt, &readyAt,
		&drawAt, &completedAt, &r.Forced, &r.AutoStartedDueToTimeout, &cancelledReason,
	)
	if err != nil {
		return nil, err
	}
	r.SeedHash = seedHash.String
	r.SeedRevealed = seedRevealed.String
	r.ParticipantsHash = participantsHash.String
	r.WinnerHash = winnerHash.String
	r.FairnessVersion = fairnessVersion.String
	r.CancelledReason = cancelledReason.String
	if winnerUserID.Valid {
		v := winnerUserID.Int64
		r.WinnerUserID = &v
	}
	if winnerIndex.Valid {
		v := int(winnerIndex.Int64)
		r.WinnerIndex = &v
	}
	if readyAt.Valid {
		t := readyAt.Time
		r.ReadyAt = &t
	}
	if drawAt.Valid {
		t := drawAt.Time
		r.DrawAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		r.CompletedAt = &t
	}
	return &r, nil
}

func (r *Repository) FindActiveRaffle(ctx context.Context) (*models.Raffle, error) {
	q := fmt.Sprintf(`SELECT %s FROM raffles
		WHERE status IN ('init','collecting','ready','drawing')
		ORDER BY id DESC LIMIT 1`, raffleColumns)
	raffle, err := scanRaffle(r.db.QueryRowContext(ctx, q))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return raffle, err
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*models.Raffle, error) {
	q := fmt.Sprintf(`SELECT %s FROM raffles WHERE id = $1`, raffleColumns)
	raffle, err := scanRaffle(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrRaffleNotFound
	}
	return raffle, err
}

func (r *Repository) CreateRaffle(ctx context.Context, params repository.CreateRaffleParams) (*models.Raffle, error) {
	q := fmt.Sprintf(`INSERT INTO raffles
		(status, threshold, entry_cost, winner_share_percent, commission_percent, grace_seconds)
		VALUES ('init', $1, $2, $3, $4, $5)
		RETURNING %s`, raffleColumns)
	return scanRaffle(r.db.QueryRowContext(ctx, q,
		params.Threshold, params.EntryCost, params.WinnerSharePercent, params.CommissionPercent, params.GraceSeconds))
}

// FindOrCreateActiveRaffle relies on the partial unique index over active
// statuses: two racing creators produce one raffle, the loser re-reads it.
func (r *Repository) FindOrCreateActiveRaffle(ctx context.Context, params repository.CreateRaffleParams) (*models.Raffle, error) {
	raffle, err := r.FindActiveRaffle(ctx)
	if err != nil || raffle != nil {
		return raffle, err
	}
	raffle, err = r.CreateRaffle(ctx, params)
	if isUniqueViolation(err) {
		return r.FindActiveRaffle(ctx)
	}
	return raffle, err
}

func (r *Repository) UserHasEntry(ctx context.Context, raffleID, userID int64) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM raffle_entries WHERE raffle_id = $1 AND user_id = $2)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, q, raffleID, userID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// AdmitEntry performs the existence check, insert and aggregate update as one
// transaction under a row lock on the raffle. The lock serializes admissions
// per raffle, which is what makes the sequence numbers gap-free.
func (r *Repository) AdmitEntry(ctx context.Context, raffleID, userID int64) (*repository.AdmitResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	qLock := fmt.Sprintf(`SELECT %s FROM raffles WHERE id = $1 FOR UPDATE`, raffleColumns)
	raffle, err := scanRaffle(tx.QueryRowContext(ctx, qLock, raffleID))
	if errors.Is(err, sql.ErrNoRows) {
		err = repository.ErrRaffleNotFound
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if raffle.Status != models.RaffleStatusInit && !raffle.CanAcceptEntries() {
		err = repository.ErrNotAcceptingEntries
		return nil, err
	}

	var existingSeq sql.NullInt64
	err = tx.QueryRowContext(ctx,
		`SELECT entry_sequence FROM raffle_entries WHERE raffle_id = $1 AND user_id = $2`,
		raffleID, userID).Scan(&existingSeq)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err == nil {
		if err = tx.Commit(); err != nil {
			return nil, err
		}
		return &repository.AdmitResult{
			Raffle:           raffle,
			Created:          false,
			EntrySequence:    existingSeq.Int64,
			ThresholdReached: raffle.TotalFund >= raffle.Threshold,
		}, nil
	}

	sequence := raffle.TotalEntries + 1
	_, err = tx.ExecContext(ctx,
		`INSERT INTO raffle_entries (raffle_id, user_id, entry_sequence) VALUES ($1, $2, $3)`,
		raffleID, userID, sequence)
	if err != nil {
		return nil, err
	}

	qUpdate := fmt.Sprintf(`UPDATE raffles SET
			total_entries = total_entries + 1,
			total_fund = total_fund + entry_cost,
			status = CASE WHEN status = 'init' THEN 'collecting' ELSE status END
		WHERE id = $1
		RETURNING %s`, raffleColumns)
	raffle, err = scanRaffle(tx.QueryRowContext(ctx, qUpdate, raffleID))
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return &repository.AdmitResult{
		Raffle:           raffle,
		Created:          true,
		EntrySequence:    sequence,
		ThresholdReached: raffle.TotalFund >= raffle.Threshold,
	}, nil
}

func (r *Repository) CommitSeedIfThreshold(ctx context.Context, raffleID int64, seedHash string, graceSeconds int64) (*models.Raffle, bool, error) {
	q := fmt.Sprintf(`UPDATE raffles SET
			status = 'ready', seed_hash = $2, ready_at = now(), grace_seconds = $3
		WHERE id = $1 AND status = 'collecting' AND seed_hash IS NULL AND total_fund >= threshold
		RETURNING %s`, raffleColumns)
	raffle, err := scanRaffle(r.db.QueryRowContext(ctx, q, raffleID, seedHash, graceSeconds))
	if err == nil {
		return raffle, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, err
	}
	// Condition did not hold: another caller committed first, or the
	// threshold is not met. Report the current row.
	raffle, err = r.GetByID(ctx, raffleID)
	return raffle, false, err
}

func (r *Repository) ListEntries(ctx context.Context, raffleID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id FROM raffle_entries WHERE raffle_id = $1 ORDER BY entry_sequence`, raffleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Repository) FinalizeDraw(ctx context.Context, params repository.FinalizeDrawParams) (*models.Raffle, error) {
	q := fmt.Sprintf(`UPDATE raffles SET
			status = 'completed', draw_at = now(), completed_at = now(),
			seed_revealed = $3, winner_user_id = $4, winner_index = $5,
			participants_hash = $6, winner_hash = $7, fairness_version = $8
		WHERE id = $1 AND status = 'ready' AND seed_hash = $2
		RETURNING %s`, raffleColumns)
	raffle, err := scanRaffle(r.db.QueryRowContext(ctx, q,
		params.RaffleID, params.SeedHash, params.Seed, params.WinnerUserID, params.WinnerIndex,
		params.ParticipantsHash, params.WinnerHash, params.FairnessVersion))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrFinalizeConflict
	}
	return raffle, err
}

func (r *Repository) CancelRaffle(ctx context.Context, raffleID int64, reason string) (*models.Raffle, error) {
	q := fmt.Sprintf(`UPDATE raffles SET status = 'cancelled', cancelled_reason = $2
		WHERE id = $1 AND status NOT IN ('completed','cancelled')
		RETURNING %s`, raffleColumns)
	raffle, err := scanRaffle(r.db.QueryRowContext(ctx, q, raffleID, reason))
	if err == nil {
		return raffle, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if _, err := r.GetByID(ctx, raffleID); err != nil {
		return nil, err
	}
	return nil, repository.ErrCancelConflict
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
