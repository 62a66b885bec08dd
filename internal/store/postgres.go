// Postgres implements Store on top of pgx, following the teacher's
// pgxpool-and-raw-SQL approach rather than an ORM. The schema is created by
// an embedded migration block run once at startup (SPEC_FULL.md §4.2).
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/Abhii8084/token-price-storage-system/internal/domain"
	"github.com/Abhii8084/token-price-storage-system/internal/perrors"
)

type Postgres struct {
	pool *pgxpool.Pool
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS prices (
		token text NOT NULL,
		network text NOT NULL,
		ts timestamptz NULL,
		usd numeric NOT NULL,
		last_updated timestamptz NOT NULL,
		symbol text NOT NULL DEFAULT '',
		name text NOT NULL DEFAULT '',
		decimals int NOT NULL DEFAULT 0,
		total_supply text NOT NULL DEFAULT '',
		logo_uri text NOT NULL DEFAULT '',
		provenance text NOT NULL,
		interpolated boolean NOT NULL DEFAULT false,
		method text NOT NULL DEFAULT '',
		confidence double precision NOT NULL DEFAULT 0,
		data_points_used jsonb,
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS prices_current_uk ON prices (token, network) WHERE ts IS NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS prices_historical_uk ON prices (token, network, ts) WHERE ts IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS prices_token_network_idx ON prices (token, network)`,
	`CREATE INDEX IF NOT EXISTS prices_ts_idx ON prices (ts)`,
	`CREATE INDEX IF NOT EXISTS prices_usd_idx ON prices (usd)`,
	`CREATE INDEX IF NOT EXISTS prices_created_at_idx ON prices (created_at)`,
	`CREATE TABLE IF NOT EXISTS daily_rollups (
		token text NOT NULL,
		network text NOT NULL,
		date text NOT NULL,
		count bigint NOT NULL DEFAULT 0,
		first_usd numeric NOT NULL DEFAULT 0,
		last_usd numeric NOT NULL DEFAULT 0,
		min_usd numeric NOT NULL DEFAULT 0,
		max_usd numeric NOT NULL DEFAULT 0,
		prices jsonb NOT NULL DEFAULT '[]',
		updated_at timestamptz NOT NULL DEFAULT now(),
		PRIMARY KEY (token, network, date)
	)`,
	`CREATE TABLE IF NOT EXISTS tokens (
		token text NOT NULL,
		network text NOT NULL,
		creation_date timestamptz,
		added_at timestamptz NOT NULL DEFAULT now(),
		PRIMARY KEY (token, network)
	)`,
	`CREATE TABLE IF NOT EXISTS cache_stats (
		date text PRIMARY KEY,
		hit bigint NOT NULL DEFAULT 0,
		miss bigint NOT NULL DEFAULT 0,
		"set" bigint NOT NULL DEFAULT 0,
		delete bigint NOT NULL DEFAULT 0,
		total bigint NOT NULL DEFAULT 0,
		by_strategy jsonb NOT NULL DEFAULT '{}'
	)`,
	`CREATE TABLE IF NOT EXISTS archived_prices (
		LIKE prices INCLUDING ALL,
		archived_at timestamptz NOT NULL DEFAULT now(),
		compressed boolean NOT NULL DEFAULT false
	)`,
	`CREATE TABLE IF NOT EXISTS batch_jobs (
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
	)`,
	`CREATE INDEX IF NOT EXISTS batch_jobs_claim_idx ON batch_jobs (queue, status, priority DESC, run_at ASC)`,
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "parse postgres dsn")
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres pool")
	}
	p := &Postgres{pool: pool}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return errors.Wrapf(err, "run migration: %s", stmt)
		}
	}
	return nil
}

func (p *Postgres) Close() { p.pool.Close() }

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) StorePrice(ctx context.Context, rec domain.PriceRecord) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return perrors.Store(err, "begin store-price tx")
	}
	defer tx.Rollback(ctx)

	var dataPoints []byte
	if len(rec.DataPointsUsed) > 0 {
		dataPoints, err = json.Marshal(rec.DataPointsUsed)
		if err != nil {
			return perrors.Store(err, "marshal data points used")
		}
	}

	if rec.Timestamp == nil {
		_, err = tx.Exec(ctx, `
			INSERT INTO prices (token, network, ts, usd, last_updated, symbol, name, decimals, total_supply, logo_uri, provenance, interpolated, method, confidence, data_points_used)
			VALUES ($1, $2, NULL, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (token, network) WHERE ts IS NULL
			DO UPDATE SET usd = EXCLUDED.usd, last_updated = EXCLUDED.last_updated,
				symbol = EXCLUDED.symbol, name = EXCLUDED.name, decimals = EXCLUDED.decimals,
				total_supply = EXCLUDED.total_supply, logo_uri = EXCLUDED.logo_uri,
				provenance = EXCLUDED.provenance, interpolated = EXCLUDED.interpolated,
				method = EXCLUDED.method, confidence = EXCLUDED.confidence,
				data_points_used = EXCLUDED.data_points_used
		`, rec.Token, string(rec.Network), rec.USD, rec.LastUpdated, rec.Symbol, rec.Name,
			rec.Decimals, rec.TotalSupply, rec.LogoURI, string(rec.Provenance), rec.InterpolatedFlag,
			string(rec.Method), rec.Confidence, dataPoints)
	} else {
		_, err = tx.Exec(ctx, `
			INSERT INTO prices (token, network, ts, usd, last_updated, symbol, name, decimals, total_supply, logo_uri, provenance, interpolated, method, confidence, data_points_used)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			ON CONFLICT (token, network, ts) WHERE ts IS NOT NULL
			DO UPDATE SET usd = EXCLUDED.usd, last_updated = EXCLUDED.last_updated,
				symbol = EXCLUDED.symbol, name = EXCLUDED.name, decimals = EXCLUDED.decimals,
				total_supply = EXCLUDED.total_supply, logo_uri = EXCLUDED.logo_uri,
				provenance = EXCLUDED.provenance, interpolated = EXCLUDED.interpolated,
				method = EXCLUDED.method, confidence = EXCLUDED.confidence,
				data_points_used = EXCLUDED.data_points_used
		`, rec.Token, string(rec.Network), rec.Timestamp.UTC(), rec.USD, rec.LastUpdated, rec.Symbol, rec.Name,
			rec.Decimals, rec.TotalSupply, rec.LogoURI, string(rec.Provenance), rec.InterpolatedFlag,
			string(rec.Method), rec.Confidence, dataPoints)
	}
	if err != nil {
		return perrors.Store(err, "upsert price")
	}

	if rec.Timestamp != nil {
		if err := upsertRollup(ctx, tx, rec); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return perrors.Store(err, "commit store-price tx")
	}
	return nil
}

// upsertRollup folds rec into its UTC-day rollup using atomic min/max/inc/
// append operators, generalizing the teacher's LEAST(...)-based metadata
// upsert to min, max, count, and append.
func upsertRollup(ctx context.Context, tx pgx.Tx, rec domain.PriceRecord) error {
	date := rec.Timestamp.UTC().Format("2006-01-02")
	entry := domain.DailyRollupEntry{Timestamp: rec.Timestamp.UTC(), USD: rec.USD, Source: rec.Provenance}
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return perrors.Store(err, "marshal rollup entry")
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO daily_rollups (token, network, date, count, first_usd, last_usd, min_usd, max_usd, prices, updated_at)
		VALUES ($1, $2, $3, 1, $4, $4, $4, $4, jsonb_build_array($5::jsonb), now())
		ON CONFLICT (token, network, date) DO UPDATE SET
			count = daily_rollups.count + 1,
			last_usd = EXCLUDED.first_usd,
			min_usd = LEAST(daily_rollups.min_usd, EXCLUDED.first_usd),
			max_usd = GREATEST(daily_rollups.max_usd, EXCLUDED.first_usd),
			prices = daily_rollups.prices || jsonb_build_array($5::jsonb),
			updated_at = now()
	`, rec.Token, string(rec.Network), date, rec.USD, string(entryJSON))
	if err != nil {
		return perrors.Store(err, "upsert daily rollup")
	}
	return nil
}

const priceSelectSQL = `SELECT token, network, ts, usd, last_updated, symbol, name, decimals, total_supply, logo_uri, provenance, interpolated, method, confidence, data_points_used FROM prices`

func (p *Postgres) GetPrice(ctx context.Context, token string, network domain.Network, ts *time.Time) (*domain.PriceRecord, error) {
	var row pgx.Row
	if ts == nil {
		row = p.pool.QueryRow(ctx, priceSelectSQL+` WHERE token = $1 AND network = $2 AND ts IS NULL`, token, string(network))
	} else {
		row = p.pool.QueryRow(ctx, priceSelectSQL+` WHERE token = $1 AND network = $2 AND ts = $3`, token, string(network), ts.UTC())
	}
	rec, err := scanPrice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, perrors.Store(err, "get price")
	}
	return rec, nil
}

func scanPrice(row pgx.Row) (*domain.PriceRecord, error) {
	var rec domain.PriceRecord
	var network string
	var ts *time.Time
	var usd decimal.Decimal
	var provenance, method string
	var dataPoints []byte
	err := row.Scan(&rec.Token, &network, &ts, &usd, &rec.LastUpdated, &rec.Symbol, &rec.Name,
		&rec.Decimals, &rec.TotalSupply, &rec.LogoURI, &provenance, &rec.InterpolatedFlag,
		&method, &rec.Confidence, &dataPoints)
	if err != nil {
		return nil, err
	}
	rec.Network = domain.Network(network)
	rec.Timestamp = ts
	rec.USD = usd
	rec.Provenance = domain.Provenance(provenance)
	rec.Method = domain.InterpolationMethod(method)
	if len(dataPoints) > 0 {
		_ = json.Unmarshal(dataPoints, &rec.DataPointsUsed)
	}
	return &rec, nil
}

func (p *Postgres) GetNearestPrices(ctx context.Context, token string, network domain.Network, target time.Time, limit int) ([]domain.PriceRecord, error) {
	half := limit / 2
	if half < 1 {
		half = 1
	}
	before, err := p.queryPrices(ctx, priceSelectSQL+`
		WHERE token = $1 AND network = $2 AND ts IS NOT NULL AND ts < $3
		ORDER BY ts DESC LIMIT $4`, token, string(network), target.UTC(), half)
	if err != nil {
		return nil, perrors.Store(err, "get nearest prices (before)")
	}
	after, err := p.queryPrices(ctx, priceSelectSQL+`
		WHERE token = $1 AND network = $2 AND ts IS NOT NULL AND ts > $3
		ORDER BY ts ASC LIMIT $4`, token, string(network), target.UTC(), half)
	if err != nil {
		return nil, perrors.Store(err, "get nearest prices (after)")
	}
	merged := make([]domain.PriceRecord, 0, len(before)+len(after))
	for i := len(before) - 1; i >= 0; i-- {
		merged = append(merged, before[i])
	}
	merged = append(merged, after...)
	return merged, nil
}

func (p *Postgres) GetPriceHistory(ctx context.Context, token string, network domain.Network, start, end time.Time) ([]domain.PriceRecord, error) {
	recs, err := p.queryPrices(ctx, priceSelectSQL+`
		WHERE token = $1 AND network = $2 AND ts IS NOT NULL AND ts >= $3 AND ts <= $4
		ORDER BY ts ASC`, token, string(network), start.UTC(), end.UTC())
	if err != nil {
		return nil, perrors.Store(err, "get price history")
	}
	return recs, nil
}

func (p *Postgres) queryPrices(ctx context.Context, sql string, args ...interface{}) ([]domain.PriceRecord, error) {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.PriceRecord
	for rows.Next() {
		rec, err := scanPrice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (p *Postgres) GetAllTokens(ctx context.Context) ([]domain.TokenEntry, error) {
	rows, err := p.pool.Query(ctx, `SELECT token, network, creation_date, added_at FROM tokens ORDER BY token, network`)
	if err != nil {
		return nil, perrors.Store(err, "get all tokens")
	}
	defer rows.Close()
	var out []domain.TokenEntry
	for rows.Next() {
		var e domain.TokenEntry
		var network string
		if err := rows.Scan(&e.Token, &network, &e.CreationDate, &e.AddedAt); err != nil {
			return nil, perrors.Store(err, "scan token entry")
		}
		e.Network = domain.Network(network)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) AddToken(ctx context.Context, token string, network domain.Network, creationDate *time.Time) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO tokens (token, network, creation_date, added_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (token, network) DO UPDATE SET
			creation_date = COALESCE(tokens.creation_date, EXCLUDED.creation_date)
	`, token, string(network), creationDate)
	if err != nil {
		return perrors.Store(err, "add token")
	}
	return nil
}

func (p *Postgres) GetToken(ctx context.Context, token string, network domain.Network) (*domain.TokenEntry, error) {
	var e domain.TokenEntry
	var net string
	err := p.pool.QueryRow(ctx, `SELECT token, network, creation_date, added_at FROM tokens WHERE token = $1 AND network = $2`,
		token, string(network)).Scan(&e.Token, &net, &e.CreationDate, &e.AddedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, perrors.Store(err, "get token")
	}
	e.Network = domain.Network(net)
	return &e, nil
}

func (p *Postgres) ArchiveOlderThan(ctx context.Context, days int) (int64, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, perrors.Store(err, "begin archive tx")
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx, `
		INSERT INTO archived_prices
		SELECT p.*, now(), false FROM prices p
		WHERE p.last_updated < now() - ($1 || ' days')::interval
	`, days)
	if err != nil {
		return 0, perrors.Store(err, "copy to archive")
	}
	archived := ct.RowsAffected()

	if _, err := tx.Exec(ctx, `DELETE FROM prices WHERE last_updated < now() - ($1 || ' days')::interval`, days); err != nil {
		return 0, perrors.Store(err, "delete archived")
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, perrors.Store(err, "commit archive tx")
	}
	return archived, nil
}

func (p *Postgres) IncrCacheStat(ctx context.Context, date string, field string, strategy string) error {
	col := ""
	switch field {
	case "hit":
		col = "hit"
	case "miss":
		col = "miss"
	case "set":
		col = `"set"`
	case "delete":
		col = "delete"
	default:
		return perrors.Store(errors.Errorf("unknown cache stat field %q", field), "incr cache stat")
	}
	sql := `
		INSERT INTO cache_stats (date, ` + col + `, total, by_strategy)
		VALUES ($1, 1, 1, jsonb_build_object($2::text, 1))
		ON CONFLICT (date) DO UPDATE SET
			` + col + ` = cache_stats.` + col + ` + 1,
			total = cache_stats.total + 1,
			by_strategy = cache_stats.by_strategy || jsonb_build_object($2::text,
				COALESCE((cache_stats.by_strategy->>$2)::bigint, 0) + 1)
	`
	if _, err := p.pool.Exec(ctx, sql, date, strategy); err != nil {
		return perrors.Store(err, "incr cache stat")
	}
	return nil
}

func (p *Postgres) GetCacheStats(ctx context.Context, date string) (*domain.CacheStatsBucket, error) {
	var b domain.CacheStatsBucket
	var byStrategy []byte
	err := p.pool.QueryRow(ctx, `SELECT date, hit, miss, "set", delete, total, by_strategy FROM cache_stats WHERE date = $1`, date).
		Scan(&b.Date, &b.Hit, &b.Miss, &b.Set, &b.Delete, &b.Total, &byStrategy)
	if errors.Is(err, pgx.ErrNoRows) {
		return &domain.CacheStatsBucket{Date: date, ByStrategy: map[string]int64{}}, nil
	}
	if err != nil {
		return nil, perrors.Store(err, "get cache stats")
	}
	b.ByStrategy = map[string]int64{}
	_ = json.Unmarshal(byStrategy, &b.ByStrategy)
	return &b, nil
}
