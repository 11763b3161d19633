package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cognicore/corpact/pkg/corpact/category"
	"github.com/cognicore/corpact/pkg/corpact/internalerr"
	"github.com/cognicore/corpact/pkg/corpact/store"
)

// timestamps are stored as fixed-width UTC text so they sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// sqliteStore implements the Store interface using SQLite
type sqliteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens a SQLite database with WAL mode and foreign keys enabled.
func OpenSQLite(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %v: %w", path, err, internalerr.ErrStoreUnavailable)
	}
	// One connection keeps per-connection pragmas and :memory: databases consistent.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable wal: %v: %w", err, internalerr.ErrStoreUnavailable)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %v: %w", err, internalerr.ErrStoreUnavailable)
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %v: %w", err, internalerr.ErrStoreUnavailable)
	}

	return &sqliteStore{db: db, now: time.Now}, nil
}

func dsn(path string) string {
	if path == ":memory:" || strings.Contains(path, "?") {
		return path
	}
	return path + "?_pragma=busy_timeout(5000)"
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS entities (
	id TEXT PRIMARY KEY,
	ticker TEXT NOT NULL UNIQUE COLLATE NOCASE,
	name TEXT NOT NULL,
	sector TEXT,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS announcements (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	url TEXT NOT NULL UNIQUE,
	source TEXT NOT NULL,
	published_at TEXT NOT NULL,
	category TEXT NOT NULL,
	confidence REAL,
	entity_id TEXT,
	created_at TEXT NOT NULL,
	FOREIGN KEY(entity_id) REFERENCES entities(id)
);

CREATE INDEX IF NOT EXISTS idx_announcements_published ON announcements(published_at DESC);
CREATE INDEX IF NOT EXISTS idx_announcements_entity ON announcements(entity_id, published_at DESC);
CREATE INDEX IF NOT EXISTS idx_announcements_category ON announcements(category, published_at DESC);
`

	_, err := db.ExecContext(ctx, schema)
	return err
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %v: %w", op, err, internalerr.ErrStoreUnavailable)
}

// FindEntityByTicker looks up an entity by case-insensitive ticker
func (s *sqliteStore) FindEntityByTicker(ctx context.Context, ticker string) (store.Entity, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, ticker, name, sector, created_at FROM entities WHERE ticker = ?`, store.NormalizeTicker(ticker))
	ent, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Entity{}, false, nil
	}
	if err != nil {
		return store.Entity{}, false, unavailable("find entity", err)
	}
	return ent, true, nil
}

// CreateEntity inserts an entity; an existing ticker yields ErrDuplicate
func (s *sqliteStore) CreateEntity(ctx context.Context, e store.NewEntity) (store.Entity, error) {
	ent, err := store.PrepareEntity(e, s.now())
	if err != nil {
		return store.Entity{}, err
	}

	const stmt = `
INSERT INTO entities (id, ticker, name, sector, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(ticker) DO NOTHING
RETURNING id;
`
	var id string
	err = s.db.QueryRowContext(ctx, stmt,
		ent.ID, ent.Ticker, ent.Name, nullString(ent.Sector), ent.CreatedAt.Format(timeLayout),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Entity{}, fmt.Errorf("entity %s: %w", ent.Ticker, internalerr.ErrDuplicate)
	}
	if err != nil {
		return store.Entity{}, unavailable("create entity", err)
	}
	return roundTrip(ent), nil
}

// GetEntity retrieves an entity by ID
func (s *sqliteStore) GetEntity(ctx context.Context, id string) (store.Entity, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, ticker, name, sector, created_at FROM entities WHERE id = ?`, id)
	ent, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Entity{}, fmt.Errorf("entity %s: %w", id, internalerr.ErrNotFound)
	}
	if err != nil {
		return store.Entity{}, unavailable("get entity", err)
	}
	return ent, nil
}

// ListEntities returns one page of entities ordered by ticker and the
// total number matching the filter
func (s *sqliteStore) ListEntities(ctx context.Context, f store.EntityFilter) ([]store.Entity, int, error) {
	limit, offset := store.Page(f.Limit, f.Offset)

	var clause string
	var args []interface{}
	if needle := store.NormalizeTicker(f.TickerContains); needle != "" {
		clause = ` WHERE ticker LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(needle)+"%")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities`+clause, args...).Scan(&total); err != nil {
		return nil, 0, unavailable("count entities", err)
	}

	query := `SELECT id, ticker, name, sector, created_at FROM entities` + clause + ` ORDER BY ticker LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, unavailable("list entities", err)
	}
	defer rows.Close()

	results := []store.Entity{}
	for rows.Next() {
		ent, err := scanEntity(rows)
		if err != nil {
			return nil, 0, unavailable("scan entity", err)
		}
		results = append(results, ent)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, unavailable("list entities", err)
	}
	return results, total, nil
}

// FindAnnouncementsByURLs returns the subset of urls already stored
func (s *sqliteStore) FindAnnouncementsByURLs(ctx context.Context, urls []string) (map[string]struct{}, error) {
	found := make(map[string]struct{})
	unique := uniqueStrings(urls)
	if len(unique) == 0 {
		return found, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(unique)), ",")
	args := make([]interface{}, 0, len(unique))
	for _, u := range unique {
		args = append(args, u)
	}

	query := fmt.Sprintf(`SELECT url FROM announcements WHERE url IN (%s)`, placeholders)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("find announcements", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, unavailable("scan url", err)
		}
		found[u] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("find announcements", err)
	}
	return found, nil
}

// CreateAnnouncement inserts an announcement; an existing URL yields
// ErrDuplicate and an unknown entity ErrNotFound
func (s *sqliteStore) CreateAnnouncement(ctx context.Context, a store.NewAnnouncement) (store.Announcement, error) {
	ann, err := store.PrepareAnnouncement(a, s.now())
	if err != nil {
		return store.Announcement{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Announcement{}, unavailable("begin", err)
	}
	defer tx.Rollback()

	if ann.EntityID != "" {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM entities WHERE id = ?`, ann.EntityID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return store.Announcement{}, fmt.Errorf("entity %s: %w", ann.EntityID, internalerr.ErrNotFound)
		}
		if err != nil {
			return store.Announcement{}, unavailable("check entity", err)
		}
	}

	const stmt = `
INSERT INTO announcements (id, title, url, source, published_at, category, confidence, entity_id, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(url) DO NOTHING
RETURNING id;
`
	var conf sql.NullFloat64
	if ann.Confidence != nil {
		conf = sql.NullFloat64{Float64: *ann.Confidence, Valid: true}
	}

	var id string
	err = tx.QueryRowContext(ctx, stmt,
		ann.ID,
		ann.Title,
		ann.URL,
		ann.Source,
		ann.PublishedAt.Format(timeLayout),
		string(ann.Category),
		conf,
		nullString(ann.EntityID),
		ann.CreatedAt.Format(timeLayout),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Announcement{}, fmt.Errorf("announcement %s: %w", ann.URL, internalerr.ErrDuplicate)
	}
	if err != nil {
		return store.Announcement{}, unavailable("create announcement", err)
	}

	if err := tx.Commit(); err != nil {
		return store.Announcement{}, unavailable("commit", err)
	}

	ann.PublishedAt = truncate(ann.PublishedAt)
	ann.CreatedAt = truncate(ann.CreatedAt)
	return ann, nil
}

// ListAnnouncements returns matching announcements newest first and the
// total number of matches before paging
func (s *sqliteStore) ListAnnouncements(ctx context.Context, f store.AnnouncementFilter) ([]store.Announcement, int, error) {
	var where []string
	var args []interface{}

	if f.EntityID != "" {
		where = append(where, "entity_id = ?")
		args = append(args, f.EntityID)
	}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, string(f.Category))
	}
	from, to := f.Window()
	if !from.IsZero() {
		where = append(where, "published_at >= ?")
		args = append(args, from.UTC().Format(timeLayout))
	}
	if !to.IsZero() {
		where = append(where, "published_at <= ?")
		args = append(args, to.UTC().Format(timeLayout))
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM announcements`+clause, args...).Scan(&total); err != nil {
		return nil, 0, unavailable("count announcements", err)
	}

	limit, offset := store.Page(f.Limit, f.Offset)
	query := `
SELECT id, title, url, source, published_at, category, confidence, entity_id, created_at
FROM announcements` + clause + `
ORDER BY published_at DESC, id DESC
LIMIT ? OFFSET ?`
	pageArgs := append(append([]interface{}{}, args...), limit, offset)

	rows, err := s.db.QueryContext(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, unavailable("list announcements", err)
	}
	defer rows.Close()

	results := []store.Announcement{}
	for rows.Next() {
		ann, err := scanAnnouncement(rows)
		if err != nil {
			return nil, 0, unavailable("scan announcement", err)
		}
		results = append(results, ann)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, unavailable("list announcements", err)
	}
	return results, total, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntity(row scanner) (store.Entity, error) {
	var (
		ent     store.Entity
		sector  sql.NullString
		created string
	)
	if err := row.Scan(&ent.ID, &ent.Ticker, &ent.Name, &sector, &created); err != nil {
		return store.Entity{}, err
	}
	ent.Sector = sector.String
	t, err := time.Parse(timeLayout, created)
	if err != nil {
		return store.Entity{}, fmt.Errorf("created_at %q: %w", created, err)
	}
	ent.CreatedAt = t
	return ent, nil
}

func scanAnnouncement(row scanner) (store.Announcement, error) {
	var (
		ann                store.Announcement
		cat                string
		conf               sql.NullFloat64
		entityID           sql.NullString
		published, created string
	)
	if err := row.Scan(&ann.ID, &ann.Title, &ann.URL, &ann.Source, &published, &cat, &conf, &entityID, &created); err != nil {
		return store.Announcement{}, err
	}
	ann.Category = category.Category(cat)
	if conf.Valid {
		v := conf.Float64
		ann.Confidence = &v
	}
	ann.EntityID = entityID.String

	var err error
	if ann.PublishedAt, err = time.Parse(timeLayout, published); err != nil {
		return store.Announcement{}, fmt.Errorf("published_at %q: %w", published, err)
	}
	if ann.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return store.Announcement{}, fmt.Errorf("created_at %q: %w", created, err)
	}
	return ann, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// truncate drops the monotonic clock reading so values compare equal to
// what a later read returns.
func truncate(t time.Time) time.Time {
	return t.UTC().Round(0)
}

func roundTrip(e store.Entity) store.Entity {
	e.CreatedAt = truncate(e.CreatedAt)
	return e
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
