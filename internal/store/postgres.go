package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/provider-validator/internal/db"
	"github.com/sells-group/provider-validator/internal/model"
	"github.com/sells-group/provider-validator/internal/normalize"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS validated_providers (
	npi                TEXT PRIMARY KEY,
	name               TEXT NOT NULL,
	name_key           TEXT NOT NULL,
	address            TEXT,
	state              TEXT,
	phone              TEXT,
	website            TEXT,
	specialty          TEXT,
	license_number     TEXT,
	license_status     TEXT,
	is_excluded        BOOLEAN NOT NULL DEFAULT false,
	score              DOUBLE PRECISION NOT NULL,
	tier               TEXT NOT NULL,
	path               TEXT NOT NULL,
	data               JSONB NOT NULL,
	last_validation_id TEXT NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS verification_history (
	id         TEXT PRIMARY KEY,
	npi        TEXT NOT NULL,
	score      DOUBLE PRECISION NOT NULL,
	tier       TEXT NOT NULL,
	path       TEXT NOT NULL,
	summary    TEXT,
	validation JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS review_queue (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	validation_id TEXT NOT NULL,
	npi           TEXT,
	provider_name TEXT NOT NULL,
	score         DOUBLE PRECISION NOT NULL,
	tier          TEXT NOT NULL,
	priority      TEXT NOT NULL,
	priority_rank INTEGER NOT NULL,
	status        TEXT NOT NULL DEFAULT 'PENDING',
	reason        TEXT,
	data          JSONB,
	reviewer      TEXT,
	notes         TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	reviewed_at   TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS data_source_logs (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	validation_id TEXT NOT NULL,
	kind          TEXT NOT NULL,
	source        TEXT NOT NULL,
	latency_ms    BIGINT NOT NULL,
	success       BOOLEAN NOT NULL,
	error         TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_providers_state ON validated_providers(state);
CREATE INDEX IF NOT EXISTS idx_providers_name_key ON validated_providers(name_key);
CREATE INDEX IF NOT EXISTS idx_providers_score ON validated_providers(score DESC);
CREATE INDEX IF NOT EXISTS idx_history_npi ON verification_history(npi, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_history_created_at ON verification_history(created_at);
CREATE INDEX IF NOT EXISTS idx_review_status ON review_queue(status, priority_rank DESC, created_at);
CREATE INDEX IF NOT EXISTS idx_source_logs_created_at ON data_source_logs(created_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveValidation(ctx context.Context, v *model.Validation) error {
	if v == nil || v.ID == "" {
		return eris.New("postgres: validation id is required")
	}
	now := time.Now().UTC()
	p := providerFromValidation(v, now)

	validationJSON, err := json.Marshal(v)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal validation")
	}
	blob, err := marshalProvider(p)
	if err != nil {
		return err
	}

	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO verification_history (id, npi, score, tier, path, summary, validation, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			v.ID, p.NPI, p.Score, p.Tier, string(p.Path), v.Summary, validationJSON, now,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert history %s", v.ID)
		}
		if p.NPI == "" {
			return nil
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO validated_providers (npi, name, name_key, address, state, phone, website, specialty,
				license_number, license_status, is_excluded, score, tier, path, data, last_validation_id, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $17)
			 ON CONFLICT (npi) DO UPDATE SET
				name = EXCLUDED.name, name_key = EXCLUDED.name_key, address = EXCLUDED.address,
				state = EXCLUDED.state, phone = EXCLUDED.phone, website = EXCLUDED.website,
				specialty = EXCLUDED.specialty, license_number = EXCLUDED.license_number,
				license_status = EXCLUDED.license_status, is_excluded = EXCLUDED.is_excluded,
				score = EXCLUDED.score, tier = EXCLUDED.tier, path = EXCLUDED.path, data = EXCLUDED.data,
				last_validation_id = EXCLUDED.last_validation_id, updated_at = EXCLUDED.updated_at`,
			p.NPI, p.Name, normalize.Name(p.Name), p.Address, p.State, p.Phone, p.Website, p.Specialty,
			p.LicenseNumber, string(p.LicenseStatus), p.Excluded, p.Score, p.Tier, string(p.Path), blob,
			p.LastValidation, now,
		)
		return eris.Wrapf(err, "postgres: upsert provider %s", p.NPI)
	})
}

const pgProviderColumns = `npi, name, address, state, phone, website, specialty, license_number,
	license_status, is_excluded, score, tier, path, data, last_validation_id, created_at, updated_at`

func (s *PostgresStore) GetProvider(ctx context.Context, npi string) (*model.ProviderRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgProviderColumns+` FROM validated_providers WHERE npi = $1`,
		normalize.Digits(npi),
	)
	p, err := scanPgProvider(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: provider %s", npi)
	}
	return p, err
}

func (s *PostgresStore) SearchProviders(ctx context.Context, filter ProviderFilter) ([]model.ProviderRecord, error) {
	query := `SELECT ` + pgProviderColumns + ` FROM validated_providers WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Name != "" {
		query += fmt.Sprintf(` AND name_key LIKE $%d`, argIdx)
		args = append(args, "%"+normalize.Name(filter.Name)+"%")
		argIdx++
	}
	if filter.State != "" {
		query += fmt.Sprintf(` AND state = $%d`, argIdx)
		args = append(args, strings.ToUpper(filter.State))
		argIdx++
	}
	if filter.Specialty != "" {
		query += fmt.Sprintf(` AND specialty ILIKE $%d`, argIdx)
		args = append(args, "%"+filter.Specialty+"%")
		argIdx++
	}
	if filter.MinConfidence > 0 {
		query += fmt.Sprintf(` AND score >= $%d`, argIdx)
		args = append(args, filter.MinConfidence)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY score DESC, name ASC LIMIT $%d`, argIdx)
	args = append(args, limitOr(filter.Limit))
	argIdx++
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: search providers")
	}
	defer rows.Close()

	var out []model.ProviderRecord
	for rows.Next() {
		p, err := scanPgProvider(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: search providers iterate")
}

func (s *PostgresStore) ListHistory(ctx context.Context, npi string) ([]model.HistoryEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, npi, score, tier, path, summary, created_at FROM verification_history
		 WHERE npi = $1 ORDER BY created_at DESC`,
		normalize.Digits(npi),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list history")
	}
	defer rows.Close()

	var out []model.HistoryEntry
	for rows.Next() {
		var h model.HistoryEntry
		var path string
		var summary *string
		if err := rows.Scan(&h.ValidationID, &h.NPI, &h.Score, &h.Tier, &path, &summary, &h.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan history")
		}
		h.Path = model.Path(path)
		if summary != nil {
			h.Summary = *summary
		}
		out = append(out, h)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list history iterate")
}

func (s *PostgresStore) EnqueueReview(ctx context.Context, item *model.ReviewItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.Status == "" {
		item.Status = model.ReviewPending
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	blob, err := marshalReview(item)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO review_queue (id, validation_id, npi, provider_name, score, tier, priority, priority_rank,
			status, reason, data, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		item.ID, item.ValidationID, item.NPI, item.ProviderName, item.Score, item.Tier,
		string(item.Priority), item.Priority.Rank(), string(item.Status), item.Reason, blob, item.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: enqueue review %s", item.ID)
}

const pgReviewColumns = `id, validation_id, npi, provider_name, score, tier, priority, status, reason,
	data, reviewer, notes, created_at, reviewed_at`

func (s *PostgresStore) GetReview(ctx context.Context, id string) (*model.ReviewItem, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgReviewColumns+` FROM review_queue WHERE id = $1`, id)
	r, err := scanPgReview(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: review %s", id)
	}
	return r, err
}

func (s *PostgresStore) ListReviews(ctx context.Context, filter ReviewFilter) ([]model.ReviewItem, error) {
	query := `SELECT ` + pgReviewColumns + ` FROM review_queue WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Priority != "" {
		query += fmt.Sprintf(` AND priority = $%d`, argIdx)
		args = append(args, string(filter.Priority))
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY priority_rank DESC, created_at ASC LIMIT $%d`, argIdx)
	args = append(args, limitOr(filter.Limit))
	argIdx++
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list reviews")
	}
	defer rows.Close()

	var out []model.ReviewItem
	for rows.Next() {
		r, err := scanPgReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list reviews iterate")
}

func (s *PostgresStore) ResolveReview(ctx context.Context, id string, status model.ReviewStatus, reviewer, notes string) error {
	if err := validateResolution(id, status); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE review_queue SET status = $1, reviewer = $2, notes = $3, reviewed_at = $4
		 WHERE id = $5 AND status = $6`,
		string(status), reviewer, notes, time.Now().UTC(), id, string(model.ReviewPending),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: resolve review %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "pending review %s", id)
	}
	return nil
}

var sourceLogColumns = []string{"id", "validation_id", "kind", "source", "latency_ms", "success", "error", "created_at"}

func (s *PostgresStore) LogSources(ctx context.Context, logs []model.SourceLog) error {
	now := time.Now().UTC()
	_, err := db.CopyRows(ctx, s.pool, "data_source_logs", sourceLogColumns, logs, func(l model.SourceLog) []any {
		at := l.CreatedAt
		if at.IsZero() {
			at = now
		}
		return []any{uuid.New().String(), l.ValidationID, string(l.Kind), l.Source, l.LatencyMS, l.Success, l.Error, at}
	})
	return eris.Wrap(err, "postgres: log sources")
}

func (s *PostgresStore) Stats(ctx context.Context, since time.Time) (*Stats, error) {
	st := &Stats{ByPath: make(map[model.Path]int)}

	rows, err := s.pool.Query(ctx,
		`SELECT path, COUNT(*), COALESCE(SUM(score), 0) FROM verification_history
		 WHERE created_at >= $1 GROUP BY path`, since.UTC())
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats by path")
	}
	var scoreSum float64
	for rows.Next() {
		var path string
		var n int
		var sum float64
		if err := rows.Scan(&path, &n, &sum); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: scan path stats")
		}
		st.ByPath[model.Path(path)] = n
		st.Validations += n
		scoreSum += sum
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: path stats iterate")
	}
	if st.Validations > 0 {
		st.AvgScore = scoreSum / float64(st.Validations)
	}

	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM review_queue WHERE status = $1`, string(model.ReviewPending),
	).Scan(&st.PendingReviews); err != nil {
		return nil, eris.Wrap(err, "postgres: count pending reviews")
	}

	rows, err = s.pool.Query(ctx,
		`SELECT source, COUNT(*), COUNT(*) FILTER (WHERE NOT success), AVG(latency_ms)::float8
		 FROM data_source_logs WHERE created_at >= $1 GROUP BY source ORDER BY source`, since.UTC())
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats by source")
	}
	defer rows.Close()
	for rows.Next() {
		var ss SourceStat
		if err := rows.Scan(&ss.Source, &ss.Calls, &ss.Failures, &ss.AvgLatencyMS); err != nil {
			return nil, eris.Wrap(err, "postgres: scan source stats")
		}
		st.Sources = append(st.Sources, ss)
	}
	return st, eris.Wrap(rows.Err(), "postgres: source stats iterate")
}

func scanPgProvider(row pgx.Row) (*model.ProviderRecord, error) {
	var p model.ProviderRecord
	var address, state, phone, website, specialty, licNum, licStatus *string
	var tier, path string
	var blob []byte

	err := row.Scan(&p.NPI, &p.Name, &address, &state, &phone, &website, &specialty, &licNum,
		&licStatus, &p.Excluded, &p.Score, &tier, &path, &blob, &p.LastValidation, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan provider")
	}
	p.Address = deref(address)
	p.State = deref(state)
	p.Phone = deref(phone)
	p.Website = deref(website)
	p.Specialty = deref(specialty)
	p.LicenseNumber = deref(licNum)
	p.LicenseStatus = model.LicenseStatus(deref(licStatus))
	p.Tier = tier
	p.Path = model.Path(path)
	if err := unmarshalProvider(blob, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanPgReview(row pgx.Row) (*model.ReviewItem, error) {
	var r model.ReviewItem
	var npi, reason, reviewer, notes *string
	var priority, status string
	var blob []byte

	err := row.Scan(&r.ID, &r.ValidationID, &npi, &r.ProviderName, &r.Score, &r.Tier, &priority,
		&status, &reason, &blob, &reviewer, &notes, &r.CreatedAt, &r.ReviewedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan review")
	}
	r.Priority = model.ReviewPriority(priority)
	r.Status = model.ReviewStatus(status)
	r.NPI = deref(npi)
	r.Reason = deref(reason)
	r.Reviewer = deref(reviewer)
	r.Notes = deref(notes)
	if err := unmarshalReview(blob, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
