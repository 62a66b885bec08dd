package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/Abhii8084/token-price-storage-system/internal/perrors"
)

// PostgresStore claims work with SELECT ... FOR UPDATE SKIP LOCKED, the
// standard Postgres job-queue pattern and the SQL-level analogue of the
// teacher's NextTransfersSafe windowed claim-by-cursor approach, adapted
// to claim-by-row-lock since jobs are deleted/requeued rather than
// replayed from a cursor.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "parse queue dsn")
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "open queue pool")
	}
	s := &PostgresStore{pool: pool}
	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS batch_jobs (
			id uuid PRIMARY KEY,
			queue text NOT NULL,
			payload jsonb NOT NULL,
			priority int NOT NULL DEFAULT 0,
			status text NOT NULL DEFAULT 'pending',
			attempts int NOT NULL DEFAULT 0,
			max_attempts int NOT NULL,
			run_at timestamptz NOT NULL DEFAULT now(),
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now()
		)
	`); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "migrate batch_jobs")
	}
	if _, err := pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS batch_jobs_claim_idx ON batch_jobs (queue, status, priority DESC, run_at ASC)`); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "index batch_jobs")
	}
	return s, nil
}

func (s *PostgresStore) Close() { s.pool.Close() }

func (s *PostgresStore) Enqueue(ctx context.Context, queue string, payload interface{}, priority int, maxAttempts int) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return perrors.Store(err, "marshal job payload")
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO batch_jobs (id, queue, payload, priority, status, attempts, max_attempts, run_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'pending', 0, $5, now(), now(), now())
	`, uuid.New(), queue, raw, priority, maxAttempts)
	if err != nil {
		return perrors.Store(err, "enqueue job")
	}
	return nil
}

func (s *PostgresStore) Claim(ctx context.Context, queue string, n int) ([]Job, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, perrors.Store(err, "begin claim tx")
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id, payload, priority, attempts, max_attempts
		FROM batch_jobs
		WHERE queue = $1 AND status = 'pending' AND run_at <= now()
		ORDER BY priority DESC, run_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, queue, n)
	if err != nil {
		return nil, perrors.Store(err, "claim query")
	}
	var jobs []Job
	var ids []uuid.UUID
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.Payload, &j.Priority, &j.Attempts, &j.MaxAttempts); err != nil {
			rows.Close()
			return nil, perrors.Store(err, "scan claimed job")
		}
		j.Queue = queue
		jobs = append(jobs, j)
		ids = append(ids, j.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, perrors.Store(err, "claim rows")
	}
	if len(ids) > 0 {
		if _, err := tx.Exec(ctx, `UPDATE batch_jobs SET status = 'processing', updated_at = now() WHERE id = ANY($1)`, ids); err != nil {
			return nil, perrors.Store(err, "mark processing")
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, perrors.Store(err, "commit claim tx")
	}
	return jobs, nil
}

func (s *PostgresStore) Complete(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM batch_jobs WHERE id = $1`, id)
	if err != nil {
		return perrors.Store(err, "complete job")
	}
	return nil
}

func (s *PostgresStore) Fail(ctx context.Context, id uuid.UUID, backoffBase time.Duration) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE batch_jobs SET
			attempts = attempts + 1,
			status = CASE WHEN attempts + 1 >= max_attempts THEN 'dead' ELSE 'pending' END,
			run_at = now() + (POWER(2, attempts + 1) * $2 || ' milliseconds')::interval,
			updated_at = now()
		WHERE id = $1
	`, id, backoffBase.Milliseconds())
	if err != nil {
		return perrors.Store(err, "fail job")
	}
	return nil
}

func (s *PostgresStore) Depth(ctx context.Context, queue string) (int64, int64, error) {
	var pending, processing int64
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'processing')
		FROM batch_jobs WHERE queue = $1
	`, queue).Scan(&pending, &processing)
	if err != nil {
		return 0, 0, perrors.Store(err, "queue depth")
	}
	return pending, processing, nil
}
