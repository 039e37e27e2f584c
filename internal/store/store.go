// Package store keeps execution requests in SQLite and bridges them onto the
// dispatch loop's link.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chachacholly/kairoi/internal/execution"
)

// Store is the SQLite-backed job store.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Submit stores a pending request and returns its identifier.
func (s *Store) Submit(ctx context.Context, jobID string, spec execution.RunnerSpec) (uuid.UUID, error) {
	if strings.TrimSpace(jobID) == "" {
		return uuid.Nil, fmt.Errorf("job_id is empty")
	}
	runner, err := execution.MarshalRunnerSpec(spec)
	if err != nil {
		return uuid.Nil, err
	}

	id := uuid.New()
	_, err = s.db.ExecContext(ctx, `
INSERT INTO execution_request(id, job_id, runner, status, created_at)
VALUES(?, ?, ?, ?, ?);
`, id.String(), jobID, string(runner), StatusPending, now())
	if err != nil {
		return uuid.Nil, fmt.Errorf("submit request: %w", err)
	}
	return id, nil
}

// Claim marks up to limit of the oldest pending requests dispatched and
// returns them in submission order.
func (s *Store) Claim(ctx context.Context, limit int) ([]execution.Request, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
UPDATE execution_request
SET status = ?, dispatched_at = ?
WHERE id IN (
  SELECT id FROM execution_request
  WHERE status = ?
  ORDER BY created_at ASC, rowid ASC
  LIMIT ?
)
RETURNING rowid, id, job_id, runner;
`, StatusDispatched, now(), StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("claim requests: %w", err)
	}
	defer rows.Close()

	type claimed struct {
		rowid int64
		req   execution.Request
	}
	var batch []claimed
	for rows.Next() {
		var (
			c      claimed
			idS    string
			runner string
		)
		if err := rows.Scan(&c.rowid, &idS, &c.req.JobID, &runner); err != nil {
			return nil, fmt.Errorf("scan claimed request: %w", err)
		}
		if c.req.ID, err = uuid.Parse(idS); err != nil {
			return nil, fmt.Errorf("claimed request has invalid id %q: %w", idS, err)
		}
		if c.req.Runner, err = execution.UnmarshalRunnerSpec([]byte(runner)); err != nil {
			// Still hand it to the loop so the request gets its failure response.
			c.req.Runner = execution.Unknown{Type: "invalid"}
		}
		batch = append(batch, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim requests: %w", err)
	}

	// RETURNING order is unspecified.
	slices.SortFunc(batch, func(a, b claimed) int {
		switch {
		case a.rowid < b.rowid:
			return -1
		case a.rowid > b.rowid:
			return 1
		}
		return 0
	})

	out := make([]execution.Request, len(batch))
	for i, c := range batch {
		out[i] = c.req
	}
	return out, nil
}

// Complete records the outcome of a dispatched request.
func (s *Store) Complete(ctx context.Context, resp execution.Response) error {
	status := StatusFailed
	if resp.Outcome == execution.Success {
		status = StatusSucceeded
	}

	res, err := s.db.ExecContext(ctx, `
UPDATE execution_request
SET status = ?, result = ?, completed_at = ?
WHERE id = ? AND status = ?;
`, status, resp.Outcome.String(), now(), resp.ID.String(), StatusDispatched)
	if err != nil {
		return fmt.Errorf("complete request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete request: %w", err)
	}
	if n == 1 {
		return nil
	}

	rec, err := s.Get(ctx, resp.ID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s is %s", ErrNotDispatched, resp.ID, rec.Status)
}

// Get returns the stored record for id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT job_id, runner, status, result, reason, created_at, dispatched_at, completed_at
FROM execution_request
WHERE id = ?;
`, id.String())

	var (
		rec           = Record{ID: id}
		runner        string
		statusS       string
		result        sql.NullString
		reason        sql.NullString
		createdAtS    string
		dispatchedAtS sql.NullString
		completedAtS  sql.NullString
	)
	err := row.Scan(&rec.JobID, &runner, &statusS, &result, &reason, &createdAtS, &dispatchedAtS, &completedAtS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}

	rec.Status = Status(statusS)
	if spec, err := execution.UnmarshalRunnerSpec([]byte(runner)); err == nil {
		rec.Runner = spec
	}
	if result.Valid {
		var o execution.Outcome
		if err := o.UnmarshalText([]byte(result.String)); err == nil {
			rec.Result = &o
		}
	}
	if reason.Valid {
		rec.Reason = &reason.String
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
		rec.CreatedAt = t
	}
	rec.DispatchedAt = parseTime(dispatchedAtS)
	rec.CompletedAt = parseTime(completedAtS)
	return &rec, nil
}

func parseTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}

// Depth returns the number of pending requests.
func (s *Store) Depth(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM execution_request WHERE status = ?;`, StatusPending,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return n, nil
}

// RecoverOrphaned fails every request left dispatched by a previous process.
// Such requests may or may not have run, so they are not retried.
func (s *Store) RecoverOrphaned(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE execution_request
SET status = ?, result = ?, reason = ?, completed_at = ?
WHERE status = ?;
`, StatusFailed, execution.Failure.String(), ReasonInterrupted, now(), StatusDispatched)
	if err != nil {
		return 0, fmt.Errorf("recover orphaned requests: %w", err)
	}
	return res.RowsAffected()
}

// Requeue returns dispatched requests to pending. It is used for requests
// that were claimed but never reached the dispatch loop.
func (s *Store) Requeue(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("requeue requests: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var total int64
	for _, id := range ids {
		res, err := tx.ExecContext(ctx, `
UPDATE execution_request
SET status = ?, dispatched_at = NULL
WHERE id = ? AND status = ?;
`, StatusPending, id.String(), StatusDispatched)
		if err != nil {
			return 0, fmt.Errorf("requeue %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("requeue %s: %w", id, err)
		}
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("requeue requests: %w", err)
	}
	return total, nil
}
