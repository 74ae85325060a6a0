package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/Mutter0815/BotDispatch/internal/bot"
	"github.com/Mutter0815/BotDispatch/internal/dispatch"
)

type Store struct {
	DB *sql.DB
}

type RunRow struct {
	ID         int64     `json:"id"`
	BotID      string    `json:"bot_id,omitempty"`
	Account    string    `json:"account"`
	Trigger    string    `json:"trigger"`
	Body       string    `json:"body"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	Total      int       `json:"total"`
	Success    int       `json:"success"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	CreatedAt  time.Time `json:"created_at"`
}

type RecipientRow struct {
	Position  int    `json:"position"`
	Address   string `json:"address"`
	Status    string `json:"status"`
	MessageID string `json:"message_id,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

type RunStats struct {
	Total   int `json:"total"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

const (
	RecipientSent    = "sent"
	RecipientFailed  = "failed"
	RecipientSkipped = "skipped"
)

func New(db *sql.DB) *Store { return &Store{DB: db} }

var schema = []string{
	`CREATE TABLE IF NOT EXISTS dispatch_runs (
		id          BIGSERIAL PRIMARY KEY,
		bot_id      TEXT NOT NULL DEFAULT '',
		account     TEXT NOT NULL,
		trigger     TEXT NOT NULL,
		body        TEXT NOT NULL,
		status      TEXT NOT NULL,
		reason      TEXT NOT NULL DEFAULT '',
		total       INT  NOT NULL DEFAULT 0,
		success     INT  NOT NULL DEFAULT 0,
		failed      INT  NOT NULL DEFAULT 0,
		skipped     INT  NOT NULL DEFAULT 0,
		started_at  TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS dispatch_runs_bot_idx ON dispatch_runs (bot_id, id DESC)`,
	`CREATE TABLE IF NOT EXISTS dispatch_recipients (
		run_id     BIGINT NOT NULL REFERENCES dispatch_runs(id) ON DELETE CASCADE,
		position   INT    NOT NULL,
		address    TEXT   NOT NULL,
		status     TEXT   NOT NULL,
		message_id TEXT   NOT NULL DEFAULT '',
		error_kind TEXT   NOT NULL DEFAULT '',
		last_error TEXT   NOT NULL DEFAULT '',
		PRIMARY KEY (run_id, position)
	)`,
}

func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) InsertRun(ctx context.Context, tx *sql.Tx, r RunRow) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO dispatch_runs (bot_id,account,trigger,body,status,reason,total,success,failed,skipped,started_at,finished_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING id`,
		r.BotID, r.Account, r.Trigger, r.Body, r.Status, r.Reason,
		r.Total, r.Success, r.Failed, r.Skipped, r.StartedAt, r.FinishedAt,
	).Scan(&id)
	return id, err
}

func (s *Store) InsertRecipientOutcome(ctx context.Context, tx *sql.Tx, runID int64, r RecipientRow) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO dispatch_recipients (run_id,position,address,status,message_id,error_kind,last_error)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		runID, r.Position, r.Address, r.Status, r.MessageID, r.ErrorKind, r.LastError,
	)
	return err
}

func recipientRow(pos int, o dispatch.Outcome) RecipientRow {
	r := RecipientRow{Position: pos, Address: o.Address, MessageID: o.MessageID}
	switch {
	case !o.Attempted:
		r.Status = RecipientSkipped
	case o.Failed:
		r.Status = RecipientFailed
		r.ErrorKind = string(o.Kind)
		r.LastError = o.Error
	default:
		r.Status = RecipientSent
	}
	return r
}

// RecordRun implements bot.Journal: the run row and one row per resolved
// recipient are written in a single transaction.
func (s *Store) RecordRun(ctx context.Context, run bot.Run) (int64, error) {
	res := run.Result
	row := RunRow{
		BotID:      run.BotID,
		Account:    run.Account,
		Trigger:    run.Trigger,
		Body:       run.Body,
		Status:     run.Status,
		Reason:     run.Reason,
		Total:      res.TotalTargets,
		Success:    res.SuccessCount,
		Failed:     res.FailureCount,
		Skipped:    res.Skipped,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}

	var id int64
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = s.InsertRun(ctx, tx, row)
		if err != nil {
			return err
		}
		for i, o := range res.Outcomes {
			if err := s.InsertRecipientOutcome(ctx, tx, id, recipientRow(i, o)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

const runColumns = `id, bot_id, account, trigger, body, status, reason, total, success, failed, skipped, started_at, finished_at, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (RunRow, error) {
	var r RunRow
	err := sc.Scan(&r.ID, &r.BotID, &r.Account, &r.Trigger, &r.Body, &r.Status, &r.Reason,
		&r.Total, &r.Success, &r.Failed, &r.Skipped, &r.StartedAt, &r.FinishedAt, &r.CreatedAt)
	return r, err
}

func (s *Store) GetRun(ctx context.Context, id int64) (RunRow, error) {
	r, err := scanRun(s.DB.QueryRowContext(ctx, `SELECT `+runColumns+` FROM dispatch_runs WHERE id = $1`, id))
	if err != nil {
		return RunRow{}, err
	}
	return r, nil
}

func (s *Store) GetRunStats(ctx context.Context, id int64) (RunStats, error) {
	var st RunStats
	err := s.DB.QueryRowContext(ctx, `
		SELECT
		  COUNT(*)                                   AS total,
		  COUNT(*) FILTER (WHERE status='sent')      AS sent,
		  COUNT(*) FILTER (WHERE status='failed')    AS failed,
		  COUNT(*) FILTER (WHERE status='skipped')   AS skipped
		FROM dispatch_recipients
		WHERE run_id = $1
	`, id).Scan(&st.Total, &st.Sent, &st.Failed, &st.Skipped)
	if err != nil {
		return RunStats{}, err
	}
	return st, nil
}

// ListFailures returns the failed recipients of a run in send order.
func (s *Store) ListFailures(ctx context.Context, runID int64) ([]RecipientRow, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT position, address, status, message_id, error_kind, last_error
		FROM dispatch_recipients
		WHERE run_id = $1 AND status = 'failed'
		ORDER BY position
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RecipientRow
	for rows.Next() {
		var r RecipientRow
		if err := rows.Scan(&r.Position, &r.Address, &r.Status, &r.MessageID, &r.ErrorKind, &r.LastError); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListRuns pages through runs newest first. An empty botID lists all.
func (s *Store) ListRuns(ctx context.Context, botID string, limit, offset int) ([]RunRow, error) {
	if limit <= 0 || limit > 1000 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM dispatch_runs
		WHERE ($1 = '' OR bot_id = $1)
		ORDER BY id DESC
		LIMIT $2 OFFSET $3
	`, botID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if out == nil {
		out = []RunRow{}
	}
	return out, nil
}
