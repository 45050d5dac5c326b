package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // Register Postgres driver "pgx".
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Pure Go SQLite driver "sqlite".

	"github.com/madcrx/FADirect/internal/domain"
)

// Dialect captures the few statements that differ between SQLite and Postgres.
type Dialect struct {
	Driver string
	// jsonText extracts a top-level JSON field as text; $N is the path/key argument.
	jsonText func(arg string) string
	// forUpdate locks the selected row inside a transaction.
	forUpdate string
	// path converts a field name into the argument jsonText expects.
	path func(field string) string
	// ordinal keeps $N placeholders; otherwise they become "?". Queries
	// number their placeholders in order of appearance.
	ordinal bool
}

var placeholder = regexp.MustCompile(`\$[0-9]+`)

func (d Dialect) bind(query string) string {
	if d.ordinal {
		return query
	}
	return placeholder.ReplaceAllString(query, "?")
}

var (
	SQLite = Dialect{
		Driver:    "sqlite",
		jsonText:  func(arg string) string { return "CAST(json_extract(data, " + arg + ") AS TEXT)" },
		forUpdate: "",
		path:      func(field string) string { return "$." + field },
	}
	Postgres = Dialect{
		Driver:    "pgx",
		jsonText:  func(arg string) string { return "(data::jsonb ->> " + arg + "::text)" },
		forUpdate: " FOR UPDATE",
		path:      func(field string) string { return field },
		ordinal:   true,
	}
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	tbl        TEXT   NOT NULL,
	id         TEXT   NOT NULL,
	data       TEXT   NOT NULL,
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL,
	PRIMARY KEY (tbl, id)
);
CREATE INDEX IF NOT EXISTS documents_created ON documents (tbl, created_at);
`

// SQL is a DocumentStore over database/sql. Every document of every table
// lives in one "documents" relation keyed by (tbl, id) with its JSON body in
// data. Change notifications cover writes made through this instance.
type SQL struct {
	db      *sql.DB
	dialect Dialect
	hub     *Hub
	log     *zap.SugaredLogger
	now     func() time.Time
}

// OpenSQL connects with dialect's driver and creates the schema.
func OpenSQL(ctx context.Context, dialect Dialect, dsn string, log *zap.SugaredLogger) (*SQL, error) {
	db, err := sql.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect.Driver, err)
	}
	if dialect.Driver == SQLite.Driver {
		// A single connection serialises SQLite transactions and keeps
		// ":memory:" databases shared.
		db.SetMaxOpenConns(1)
	}
	s := NewSQL(db, dialect, log)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQL wraps an existing connection pool. Call Migrate before use.
func NewSQL(db *sql.DB, dialect Dialect, log *zap.SugaredLogger) *SQL {
	return &SQL{db: db, dialect: dialect, hub: NewHub(log), log: log, now: time.Now}
}

// Migrate creates the documents relation if needed.
func (s *SQL) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *SQL) Close() error { return s.db.Close() }

func (s *SQL) Get(ctx context.Context, table, id string) (domain.Stored, error) {
	row := s.db.QueryRowContext(ctx,
		s.dialect.bind(`SELECT id, data, created_at, updated_at FROM documents WHERE tbl = $1 AND id = $2`), table, id)
	st, err := scanStored(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Stored{}, fmt.Errorf("%s/%s: %w", table, id, domain.ErrDocumentNotFound)
	}
	return st, err
}

func (s *SQL) Set(ctx context.Context, table, id string, doc domain.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	now := s.now().UnixNano()
	var created int64
	err = s.db.QueryRowContext(ctx, s.dialect.bind(`
		INSERT INTO documents (tbl, id, data, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tbl, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
		RETURNING created_at`),
		table, id, string(data), now, now).Scan(&created)
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", table, id, err)
	}
	kind := domain.ChangeUpdate
	if created == now {
		kind = domain.ChangeInsert
	}
	s.hub.Publish(domain.Change{Table: table, Kind: kind, ID: id, Data: clone(doc)})
	return nil
}

func (s *SQL) Update(ctx context.Context, table, id string, patch domain.Document) error {
	var merged domain.Document
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		cur, err := s.lockedGet(ctx, tx, table, id)
		if err != nil {
			return err
		}
		merged = merge(cur, patch)
		return s.replace(ctx, tx, table, id, merged)
	})
	if err != nil {
		return err
	}
	s.hub.Publish(domain.Change{Table: table, Kind: domain.ChangeUpdate, ID: id, Data: clone(merged)})
	return nil
}

func (s *SQL) Insert(ctx context.Context, table string, doc domain.Document) (string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	if err := s.insert(ctx, s.db, table, id, data, s.now().UnixNano()); err != nil {
		return "", err
	}
	s.hub.Publish(domain.Change{Table: table, Kind: domain.ChangeInsert, ID: id, Data: clone(doc)})
	return id, nil
}

func (s *SQL) Find(ctx context.Context, table string, filter domain.Filter) ([]domain.Stored, error) {
	query := `SELECT id, data, created_at, updated_at FROM documents WHERE tbl = $1`
	args := []any{table}
	if filter.Field != "" {
		if err := validField(filter.Field); err != nil {
			return nil, err
		}
		query += ` AND ` + s.dialect.jsonText("$2") + ` = $3`
		args = append(args, s.dialect.path(filter.Field), filter.Value)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, s.dialect.bind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", table, err)
	}
	defer rows.Close()

	var out []domain.Stored
	for rows.Next() {
		st, err := scanStored(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *SQL) TakeOne(ctx context.Context, table, id, field string, pick domain.Pick) (json.RawMessage, bool, error) {
	var (
		item  json.RawMessage
		taken bool
		next  domain.Document
	)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		cur, err := s.lockedGet(ctx, tx, table, id)
		if err != nil {
			return err
		}
		item, next, taken, err = takeFrom(cur, field, pick)
		if err != nil || !taken {
			return err
		}
		return s.replace(ctx, tx, table, id, next)
	})
	if err != nil || !taken {
		return nil, false, err
	}
	s.hub.Publish(domain.Change{Table: table, Kind: domain.ChangeUpdate, ID: id, Data: clone(next)})
	return item, true, nil
}

func (s *SQL) Append(ctx context.Context, table, id, field string, items []json.RawMessage) error {
	var next domain.Document
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		cur, err := s.lockedGet(ctx, tx, table, id)
		if err != nil {
			return err
		}
		if next, err = appendTo(cur, field, items); err != nil {
			return err
		}
		return s.replace(ctx, tx, table, id, next)
	})
	if err != nil {
		return err
	}
	s.hub.Publish(domain.Change{Table: table, Kind: domain.ChangeUpdate, ID: id, Data: clone(next)})
	return nil
}

func (s *SQL) Delete(ctx context.Context, table, id string) error {
	res, err := s.db.ExecContext(ctx, s.dialect.bind(`DELETE FROM documents WHERE tbl = $1 AND id = $2`), table, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", table, id, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.hub.Publish(domain.Change{Table: table, Kind: domain.ChangeDelete, ID: id})
	}
	return nil
}

func (s *SQL) Subscribe(ctx context.Context, table string, filter domain.Filter) (domain.Subscription, error) {
	return s.hub.Subscribe(ctx, table, filter), nil
}

// --- helpers ---

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *SQL) insert(ctx context.Context, db execer, table, id string, data []byte, now int64) error {
	_, err := db.ExecContext(ctx,
		s.dialect.bind(`INSERT INTO documents (tbl, id, data, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`),
		table, id, string(data), now, now)
	if err != nil {
		return fmt.Errorf("insert %s/%s: %w", table, id, err)
	}
	return nil
}

func (s *SQL) replace(ctx context.Context, tx *sql.Tx, table, id string, doc domain.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		s.dialect.bind(`UPDATE documents SET data = $1, updated_at = $2 WHERE tbl = $3 AND id = $4`),
		string(data), s.now().UnixNano(), table, id)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", table, id, err)
	}
	return nil
}

// lockedGet reads a document inside tx, locking its row where supported.
func (s *SQL) lockedGet(ctx context.Context, tx *sql.Tx, table, id string) (domain.Document, error) {
	var data string
	err := tx.QueryRowContext(ctx,
		s.dialect.bind(`SELECT data FROM documents WHERE tbl = $1 AND id = $2`+s.dialect.forUpdate), table, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", table, id, domain.ErrDocumentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", table, id, err)
	}
	var doc domain.Document
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", table, id, err)
	}
	return doc, nil
}

func (s *SQL) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			s.log.Warnf("rollback failed: %s", rerr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func scanStored(row scanner) (domain.Stored, error) {
	var (
		st               domain.Stored
		data             string
		created, updated int64
	)
	if err := row.Scan(&st.ID, &data, &created, &updated); err != nil {
		return domain.Stored{}, err
	}
	if err := json.Unmarshal([]byte(data), &st.Data); err != nil {
		return domain.Stored{}, fmt.Errorf("decode %s: %w", st.ID, err)
	}
	st.CreatedAt = time.Unix(0, created).UTC()
	st.UpdatedAt = time.Unix(0, updated).UTC()
	return st, nil
}

// Compile-time assertion that SQL implements domain.DocumentStore.
var _ domain.DocumentStore = (*SQL)(nil)
