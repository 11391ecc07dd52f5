package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/provider-validator/internal/model"
	"github.com/sells-group/provider-validator/internal/normalize"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
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
	is_excluded        INTEGER NOT NULL DEFAULT 0,
	score              REAL NOT NULL,
	tier               TEXT NOT NULL,
	path               TEXT NOT NULL,
	data               TEXT NOT NULL,
	last_validation_id TEXT NOT NULL,
	created_at         DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS verification_history (
	id          TEXT PRIMARY KEY,
	npi         TEXT NOT NULL,
	score       REAL NOT NULL,
	tier        TEXT NOT NULL,
	path        TEXT NOT NULL,
	summary     TEXT,
	validation  TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS review_queue (
	id            TEXT PRIMARY KEY,
	validation_id TEXT NOT NULL,
	npi           TEXT,
	provider_name TEXT NOT NULL,
	score         REAL NOT NULL,
	tier          TEXT NOT NULL,
	priority      TEXT NOT NULL,
	priority_rank INTEGER NOT NULL,
	status        TEXT NOT NULL DEFAULT 'PENDING',
	reason        TEXT,
	data          TEXT,
	reviewer      TEXT,
	notes         TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	reviewed_at   DATETIME
);

CREATE TABLE IF NOT EXISTS data_source_logs (
	id            TEXT PRIMARY KEY,
	validation_id TEXT NOT NULL,
	kind          TEXT NOT NULL,
	source        TEXT NOT NULL,
	latency_ms    INTEGER NOT NULL,
	success       INTEGER NOT NULL,
	error         TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_providers_state ON validated_providers(state);
CREATE INDEX IF NOT EXISTS idx_providers_name_key ON validated_providers(name_key);
CREATE INDEX IF NOT EXISTS idx_history_npi ON verification_history(npi, created_at);
CREATE INDEX IF NOT EXISTS idx_history_created_at ON verification_history(created_at);
CREATE INDEX IF NOT EXISTS idx_review_status ON review_queue(status, priority_rank, created_at);
CREATE INDEX IF NOT EXISTS idx_source_logs_created_at ON data_source_logs(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveValidation(ctx context.Context, v *model.Validation) error {
	if v == nil || v.ID == "" {
		return eris.New("sqlite: validation id is required")
	}
	now := time.Now().UTC()
	p := providerFromValidation(v, now)

	validationJSON, err := json.Marshal(v)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal validation")
	}
	blob, err := marshalProvider(p)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO verification_history (id, npi, score, tier, path, summary, validation, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, p.NPI, p.Score, p.Tier, string(p.Path), v.Summary, string(validationJSON), now,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert history %s", v.ID)
	}

	if p.NPI != "" {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO validated_providers (npi, name, name_key, address, state, phone, website, specialty,
				license_number, license_status, is_excluded, score, tier, path, data, last_validation_id, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (npi) DO UPDATE SET
				name = excluded.name, name_key = excluded.name_key, address = excluded.address,
				state = excluded.state, phone = excluded.phone, website = excluded.website,
				specialty = excluded.specialty, license_number = excluded.license_number,
				license_status = excluded.license_status, is_excluded = excluded.is_excluded,
				score = excluded.score, tier = excluded.tier, path = excluded.path, data = excluded.data,
				last_validation_id = excluded.last_validation_id, updated_at = excluded.updated_at`,
			p.NPI, p.Name, normalize.Name(p.Name), p.Address, p.State, p.Phone, p.Website, p.Specialty,
			p.LicenseNumber, string(p.LicenseStatus), p.Excluded, p.Score, p.Tier, string(p.Path), string(blob),
			p.LastValidation, now, now,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: upsert provider %s", p.NPI)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit validation")
}

const sqliteProviderColumns = `npi, name, address, state, phone, website, specialty, license_number,
	license_status, is_excluded, score, tier, path, data, last_validation_id, created_at, updated_at`

func (s *SQLiteStore) GetProvider(ctx context.Context, npi string) (*model.ProviderRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteProviderColumns+` FROM validated_providers WHERE npi = ?`,
		normalize.Digits(npi),
	)
	p, err := scanProvider(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: provider %s", npi)
	}
	return p, err
}

func (s *SQLiteStore) SearchProviders(ctx context.Context, filter ProviderFilter) ([]model.ProviderRecord, error) {
	query := `SELECT ` + sqliteProviderColumns + ` FROM validated_providers WHERE 1=1`
	var args []any

	if filter.Name != "" {
		query += ` AND name_key LIKE ?`
		args = append(args, "%"+normalize.Name(filter.Name)+"%")
	}
	if filter.State != "" {
		query += ` AND state = ?`
		args = append(args, strings.ToUpper(filter.State))
	}
	if filter.Specialty != "" {
		query += ` AND UPPER(specialty) LIKE ?`
		args = append(args, "%"+strings.ToUpper(filter.Specialty)+"%")
	}
	if filter.MinConfidence > 0 {
		query += ` AND score >= ?`
		args = append(args, filter.MinConfidence)
	}
	query += ` ORDER BY score DESC, name ASC LIMIT ?`
	args = append(args, limitOr(filter.Limit))
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: search providers")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ProviderRecord
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: search providers iterate")
}

func (s *SQLiteStore) ListHistory(ctx context.Context, npi string) ([]model.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, npi, score, tier, path, summary, created_at FROM verification_history
		 WHERE npi = ? ORDER BY created_at DESC`,
		normalize.Digits(npi),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list history")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.HistoryEntry
	for rows.Next() {
		var h model.HistoryEntry
		var summary sql.NullString
		if err := rows.Scan(&h.ValidationID, &h.NPI, &h.Score, &h.Tier, &h.Path, &summary, &h.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan history")
		}
		h.Summary = summary.String
		out = append(out, h)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list history iterate")
}

func (s *SQLiteStore) EnqueueReview(ctx context.Context, item *model.ReviewItem) error {
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
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO review_queue (id, validation_id, npi, provider_name, score, tier, priority, priority_rank,
			status, reason, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.ValidationID, item.NPI, item.ProviderName, item.Score, item.Tier,
		string(item.Priority), item.Priority.Rank(), string(item.Status), item.Reason, string(blob), item.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: enqueue review %s", item.ID)
}

const sqliteReviewColumns = `id, validation_id, npi, provider_name, score, tier, priority, status, reason,
	data, reviewer, notes, created_at, reviewed_at`

func (s *SQLiteStore) GetReview(ctx context.Context, id string) (*model.ReviewItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteReviewColumns+` FROM review_queue WHERE id = ?`, id)
	r, err := scanReview(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: review %s", id)
	}
	return r, err
}

func (s *SQLiteStore) ListReviews(ctx context.Context, filter ReviewFilter) ([]model.ReviewItem, error) {
	query := `SELECT ` + sqliteReviewColumns + ` FROM review_queue WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Priority != "" {
		query += ` AND priority = ?`
		args = append(args, string(filter.Priority))
	}
	query += ` ORDER BY priority_rank DESC, created_at ASC LIMIT ?`
	args = append(args, limitOr(filter.Limit))
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list reviews")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ReviewItem
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list reviews iterate")
}

func (s *SQLiteStore) ResolveReview(ctx context.Context, id string, status model.ReviewStatus, reviewer, notes string) error {
	if err := validateResolution(id, status); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE review_queue SET status = ?, reviewer = ?, notes = ?, reviewed_at = ?
		 WHERE id = ? AND status = ?`,
		string(status), reviewer, notes, time.Now().UTC(), id, string(model.ReviewPending),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: resolve review %s", id)
	}
	return checkRowsAffected(res, "pending review", id)
}

func (s *SQLiteStore) LogSources(ctx context.Context, logs []model.SourceLog) error {
	if len(logs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO data_source_logs (id, validation_id, kind, source, latency_ms, success, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare source log")
	}
	defer stmt.Close() //nolint:errcheck

	for _, l := range logs {
		at := l.CreatedAt
		if at.IsZero() {
			at = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx, uuid.New().String(), l.ValidationID, string(l.Kind), l.Source,
			l.LatencyMS, l.Success, l.Error, at); err != nil {
			return eris.Wrapf(err, "sqlite: insert source log %s", l.Source)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit source logs")
}

func (s *SQLiteStore) Stats(ctx context.Context, since time.Time) (*Stats, error) {
	st := &Stats{ByPath: make(map[model.Path]int)}

	rows, err := s.db.QueryContext(ctx,
		`SELECT path, COUNT(*), COALESCE(SUM(score), 0) FROM verification_history
		 WHERE created_at >= ? GROUP BY path`, since.UTC())
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats by path")
	}
	var scoreSum float64
	for rows.Next() {
		var path string
		var n int
		var sum float64
		if err := rows.Scan(&path, &n, &sum); err != nil {
			rows.Close() //nolint:errcheck
			return nil, eris.Wrap(err, "sqlite: scan path stats")
		}
		st.ByPath[model.Path(path)] = n
		st.Validations += n
		scoreSum += sum
	}
	rows.Close() //nolint:errcheck
	if st.Validations > 0 {
		st.AvgScore = scoreSum / float64(st.Validations)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM review_queue WHERE status = ?`, string(model.ReviewPending),
	).Scan(&st.PendingReviews); err != nil {
		return nil, eris.Wrap(err, "sqlite: count pending reviews")
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT source, COUNT(*), SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), AVG(latency_ms)
		 FROM data_source_logs WHERE created_at >= ? GROUP BY source ORDER BY source`, since.UTC())
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats by source")
	}
	defer rows.Close() //nolint:errcheck
	for rows.Next() {
		var ss SourceStat
		if err := rows.Scan(&ss.Source, &ss.Calls, &ss.Failures, &ss.AvgLatencyMS); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source stats")
		}
		st.Sources = append(st.Sources, ss)
	}
	return st, eris.Wrap(rows.Err(), "sqlite: source stats iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanProvider(row scannable) (*model.ProviderRecord, error) {
	var p model.ProviderRecord
	var address, state, phone, website, specialty, licNum, licStatus sql.NullString
	var blob string

	err := row.Scan(&p.NPI, &p.Name, &address, &state, &phone, &website, &specialty, &licNum,
		&licStatus, &p.Excluded, &p.Score, &p.Tier, &p.Path, &blob, &p.LastValidation, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan provider")
	}
	p.Address = address.String
	p.State = state.String
	p.Phone = phone.String
	p.Website = website.String
	p.Specialty = specialty.String
	p.LicenseNumber = licNum.String
	p.LicenseStatus = model.LicenseStatus(licStatus.String)
	if err := unmarshalProvider([]byte(blob), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanReview(row scannable) (*model.ReviewItem, error) {
	var r model.ReviewItem
	var npi, reason, blob, reviewer, notes sql.NullString
	var reviewedAt sql.NullTime

	err := row.Scan(&r.ID, &r.ValidationID, &npi, &r.ProviderName, &r.Score, &r.Tier, &r.Priority,
		&r.Status, &reason, &blob, &reviewer, &notes, &r.CreatedAt, &reviewedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan review")
	}
	r.NPI = npi.String
	r.Reason = reason.String
	r.Reviewer = reviewer.String
	r.Notes = notes.String
	if reviewedAt.Valid {
		t := reviewedAt.Time
		r.ReviewedAt = &t
	}
	if err := unmarshalReview([]byte(blob.String), &r); err != nil {
		return nil, err
	}
	return &r, nil
}
