// Package store provides member.Store implementations.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"whatsapp-proxybot/internal/errs"
	"whatsapp-proxybot/internal/member"
)

// name_key holds the lowercased name so the unique index is case-insensitive
// for any script, not just ASCII. SQLite treats NULLs as distinct, so any
// number of untagged members can coexist under the proxy_tag index.
const schema = `
CREATE TABLE IF NOT EXISTS members (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	id           TEXT    NOT NULL UNIQUE,
	owner_id     TEXT    NOT NULL,
	name         TEXT    NOT NULL,
	name_key     TEXT    NOT NULL,
	display_name TEXT,
	proxy_tag    TEXT,
	avatar_url   TEXT,
	created_at   INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS members_owner_name ON members(owner_id, name_key);
CREATE UNIQUE INDEX IF NOT EXISTS members_owner_proxy ON members(owner_id, proxy_tag);
`

const selectColumns = `SELECT id, owner_id, name, display_name, proxy_tag, avatar_url, created_at FROM members`

// SQLite stores members in a SQLite database through go-sqlite3.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens dsn and creates the schema if needed.
func OpenSQLite(ctx context.Context, dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// pragmas are per connection
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{"PRAGMA journal_mode = WAL", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run %q: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) CreateMember(ctx context.Context, m member.Member) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO members (id, owner_id, name, name_key, display_name, proxy_tag, avatar_url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.OwnerID, m.Name, nameKey(m.Name),
		nullable(m.DisplayName), nullable(m.ProxyTag), nullable(m.AvatarURL),
		m.CreatedAt.UnixNano(),
	)
	if err != nil {
		return classify(err, "insert member")
	}
	return nil
}

func (s *SQLite) FindByName(ctx context.Context, ownerID, name string) (member.Member, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE owner_id = ? AND name_key = ?`, ownerID, nameKey(name))
	return scanOne(row)
}

func (s *SQLite) FindByProxyTag(ctx context.Context, ownerID, tag string) (member.Member, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE owner_id = ? AND proxy_tag = ?`, ownerID, tag)
	return scanOne(row)
}

func (s *SQLite) ListByOwner(ctx context.Context, ownerID string) ([]member.Member, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` WHERE owner_id = ? ORDER BY created_at, seq`, ownerID)
	if err != nil {
		return nil, classify(err, "list members")
	}
	defer rows.Close()

	var out []member.Member
	for rows.Next() {
		m, err := scan(rows)
		if err != nil {
			return nil, classify(err, "scan member")
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "list members")
	}
	return out, nil
}

func (s *SQLite) UpdateField(ctx context.Context, ownerID, name string, field member.Field, value string) error {
	var (
		res sql.Result
		err error
	)
	where := ` WHERE owner_id = ? AND name_key = ?`
	switch field {
	case member.FieldName:
		res, err = s.db.ExecContext(ctx, `UPDATE members SET name = ?, name_key = ?`+where,
			value, nameKey(value), ownerID, nameKey(name))
	case member.FieldDisplayName:
		res, err = s.db.ExecContext(ctx, `UPDATE members SET display_name = ?`+where, nullable(value), ownerID, nameKey(name))
	case member.FieldProxyTag:
		res, err = s.db.ExecContext(ctx, `UPDATE members SET proxy_tag = ?`+where, nullable(value), ownerID, nameKey(name))
	case member.FieldAvatarURL:
		res, err = s.db.ExecContext(ctx, `UPDATE members SET avatar_url = ?`+where, nullable(value), ownerID, nameKey(name))
	default:
		return errs.Newf(errs.Internal, "unknown member field %q", string(field))
	}
	if err != nil {
		return classify(err, "update member")
	}
	return expectRow(res, "update member")
}

func (s *SQLite) DeleteByName(ctx context.Context, ownerID, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM members WHERE owner_id = ? AND name_key = ?`, ownerID, nameKey(name))
	if err != nil {
		return classify(err, "delete member")
	}
	return expectRow(res, "delete member")
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(sc scanner) (member.Member, error) {
	var (
		m                         member.Member
		display, proxyTag, avatar sql.NullString
		createdAt                 int64
	)
	if err := sc.Scan(&m.ID, &m.OwnerID, &m.Name, &display, &proxyTag, &avatar, &createdAt); err != nil {
		return member.Member{}, err
	}
	m.DisplayName = display.String
	m.ProxyTag = proxyTag.String
	m.AvatarURL = avatar.String
	m.CreatedAt = time.Unix(0, createdAt)
	return m, nil
}

func scanOne(row *sql.Row) (member.Member, error) {
	m, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return member.Member{}, errs.New(errs.NotFound, "member not found")
	}
	if err != nil {
		return member.Member{}, classify(err, "find member")
	}
	return m, nil
}

func expectRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errs.Wrap(err, errs.Storage, op)
	}
	if n == 0 {
		return errs.New(errs.NotFound, "member not found")
	}
	return nil
}

// classify maps unique index violations onto the member conflict kinds and
// everything else onto errs.Storage.
func classify(err error, op string) error {
	var se sqlite3.Error
	if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
		switch msg := se.Error(); {
		case strings.Contains(msg, "name_key"):
			return errs.Wrap(err, errs.NameTaken, "member name already taken")
		case strings.Contains(msg, "proxy_tag"):
			return errs.Wrap(err, errs.ProxyTagTaken, "proxy tag already taken")
		}
	}
	return errs.Wrap(err, errs.Storage, op)
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
