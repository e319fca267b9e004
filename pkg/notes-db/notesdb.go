package notesdb

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/mrshanahan/notes-sync/pkg/notes"
)

var (
	//go:embed files/create_notes_tables.sql
	CREATE_NOTES_TABLES_SQL string
)

// Fixed-width so that timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const sqliteResolution = time.Microsecond

const noteColumns = "id, user_id, title, content, tags, created_on, updated_on"

// DB is the SQLite-backed Store.
type DB struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*DB)(nil)

func Initialize(path string, opts ...Option) (*DB, error) {
	o := buildOptions(opts)

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "sql.Open")
	}

	tx, err := db.Begin()
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "db.Begin")
	}

	if _, err = tx.Exec(CREATE_NOTES_TABLES_SQL); err != nil {
		tx.Rollback()
		db.Close()
		return nil, errors.Wrap(err, "create tables")
	}

	if err = tx.Commit(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "tx.Commit")
	}

	return &DB{db: db, now: o.now}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Principals

func (d *DB) CreatePrincipal(ctx context.Context, email string, passwordHash string) (*notes.Principal, error) {
	stmt, err := d.db.PrepareContext(ctx, "INSERT INTO principals (id, email, password_hash, created_on) VALUES (?, ?, ?, ?)")
	if err != nil {
		return nil, errors.Wrap(err, "prepare insert principal")
	}
	defer stmt.Close()

	principal := &notes.Principal{
		ID:        uuid.NewString(),
		Email:     email,
		CreatedAt: d.now().UTC(),
	}
	hash := sql.NullString{String: passwordHash, Valid: passwordHash != ""}
	_, err = stmt.ExecContext(ctx, principal.ID, principal.Email, hash, formatTime(principal.CreatedAt))
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, notes.ErrPrincipalExists
		}
		return nil, errors.Wrap(err, "insert principal")
	}
	return principal, nil
}

func (d *DB) GetPrincipal(ctx context.Context, id string) (*notes.Principal, error) {
	row := d.db.QueryRowContext(ctx, "SELECT id, email, password_hash, created_on FROM principals WHERE id = ?", id)
	record, err := scanPrincipal(row)
	if err != nil {
		return nil, err
	}
	return &record.Principal, nil
}

func (d *DB) GetPrincipalByEmail(ctx context.Context, email string) (*PrincipalRecord, error) {
	row := d.db.QueryRowContext(ctx, "SELECT id, email, password_hash, created_on FROM principals WHERE email = ?", email)
	return scanPrincipal(row)
}

// Sessions

func (d *DB) CreateSession(ctx context.Context, session *Session) error {
	_, err := d.db.ExecContext(ctx,
		"INSERT INTO sessions (id, principal_id, created_on, expires_on) VALUES (?, ?, ?, ?)",
		session.ID, session.PrincipalID, formatTime(session.CreatedOn), formatTime(session.ExpiresOn))
	return errors.Wrap(err, "insert session")
}

func (d *DB) GetSession(ctx context.Context, id string) (*Session, error) {
	row := d.db.QueryRowContext(ctx, "SELECT id, principal_id, created_on, expires_on FROM sessions WHERE id = ?", id)

	session := &Session{}
	var createdOn, expiresOn string
	err := row.Scan(&session.ID, &session.PrincipalID, &createdOn, &expiresOn)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notes.ErrNotFound
	} else if err != nil {
		return nil, errors.Wrap(err, "scan session")
	}
	if session.CreatedOn, err = parseTime(createdOn); err != nil {
		return nil, err
	}
	if session.ExpiresOn, err = parseTime(expiresOn); err != nil {
		return nil, err
	}
	return session, nil
}

func (d *DB) DeleteSession(ctx context.Context, id string) error {
	_, err := d.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	return errors.Wrap(err, "delete session")
}

func (d *DB) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	result, err := d.db.ExecContext(ctx, "DELETE FROM sessions WHERE expires_on <= ?", formatTime(now))
	if err != nil {
		return 0, errors.Wrap(err, "delete expired sessions")
	}
	return result.RowsAffected()
}

// Notes

func (d *DB) ListNotes(ctx context.Context, ownerID string) ([]*notes.Note, error) {
	stmt, err := d.db.PrepareContext(ctx,
		"SELECT "+noteColumns+" FROM notes WHERE user_id = ? ORDER BY created_on DESC, id DESC")
	if err != nil {
		return nil, errors.Wrap(err, "prepare list notes")
	}
	defer stmt.Close()

	rows, err := stmt.QueryContext(ctx, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "query notes")
	}
	defer rows.Close()

	result := []*notes.Note{}
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, note)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows.Err")
	}

	return result, nil
}

func (d *DB) GetNote(ctx context.Context, ownerID string, id string) (*notes.Note, error) {
	return getNote(ctx, d.db, ownerID, id)
}

func (d *DB) CreateNote(ctx context.Context, ownerID string, input notes.NoteInput) (*notes.Note, error) {
	stmt, err := d.db.PrepareContext(ctx, "INSERT INTO notes ("+noteColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return nil, errors.Wrap(err, "prepare insert note")
	}
	defer stmt.Close()

	now := d.now().UTC().Truncate(sqliteResolution)
	note := &notes.Note{
		ID:        uuid.NewString(),
		UserID:    ownerID,
		Title:     input.Title,
		Content:   input.Content,
		Tags:      input.Tags,
		CreatedAt: now,
		UpdatedAt: now,
	}
	tags, err := encodeTags(note.Tags)
	if err != nil {
		return nil, err
	}

	_, err = stmt.ExecContext(ctx, note.ID, note.UserID, note.Title, note.Content, tags,
		formatTime(note.CreatedAt), formatTime(note.UpdatedAt))
	if err != nil {
		return nil, errors.Wrap(err, "insert note")
	}
	return note, nil
}

func (d *DB) UpdateNote(ctx context.Context, ownerID string, id string, update notes.NoteUpdate) (*notes.Note, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "db.BeginTx")
	}
	defer tx.Rollback()

	note, err := getNote(ctx, tx, ownerID, id)
	if err != nil {
		return nil, err
	}

	update.Apply(note)
	note.UpdatedAt = nextUpdatedOn(note.UpdatedAt, d.now(), sqliteResolution)

	tags, err := encodeTags(note.Tags)
	if err != nil {
		return nil, err
	}
	result, err := tx.ExecContext(ctx,
		"UPDATE notes SET title = ?, content = ?, tags = ?, updated_on = ? WHERE id = ? AND user_id = ?",
		note.Title, note.Content, tags, formatTime(note.UpdatedAt), id, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "update note")
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return nil, notes.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "tx.Commit")
	}
	return note, nil
}

func (d *DB) DeleteNote(ctx context.Context, ownerID string, id string) (bool, error) {
	stmt, err := d.db.PrepareContext(ctx, "DELETE FROM notes WHERE id = ? AND user_id = ?")
	if err != nil {
		return false, errors.Wrap(err, "prepare delete note")
	}
	defer stmt.Close()

	result, err := stmt.ExecContext(ctx, id, ownerID)
	if err != nil {
		return false, errors.Wrap(err, "delete note")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "result.RowsAffected")
	}
	return n > 0, nil
}

// Private

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func getNote(ctx context.Context, q queryer, ownerID string, id string) (*notes.Note, error) {
	row := q.QueryRowContext(ctx, "SELECT "+noteColumns+" FROM notes WHERE id = ? AND user_id = ?", id, ownerID)
	note, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notes.ErrNotFound
	}
	return note, err
}

func scanNote(row rowScanner) (*notes.Note, error) {
	note := &notes.Note{}
	var tags sql.NullString
	var createdOn, updatedOn string
	err := row.Scan(&note.ID, &note.UserID, &note.Title, &note.Content, &tags, &createdOn, &updatedOn)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	} else if err != nil {
		return nil, errors.Wrap(err, "scan note")
	}
	if tags.Valid {
		if err := json.Unmarshal([]byte(tags.String), &note.Tags); err != nil {
			return nil, errors.Wrapf(err, "decode tags of note %s", note.ID)
		}
	}
	if note.CreatedAt, err = parseTime(createdOn); err != nil {
		return nil, err
	}
	if note.UpdatedAt, err = parseTime(updatedOn); err != nil {
		return nil, err
	}
	return note, nil
}

func scanPrincipal(row rowScanner) (*PrincipalRecord, error) {
	record := &PrincipalRecord{}
	var hash sql.NullString
	var createdOn string
	err := row.Scan(&record.ID, &record.Email, &hash, &createdOn)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notes.ErrNotFound
	} else if err != nil {
		return nil, errors.Wrap(err, "scan principal")
	}
	record.PasswordHash = hash.String
	if record.CreatedAt, err = parseTime(createdOn); err != nil {
		return nil, err
	}
	return record, nil
}

func encodeTags(tags []string) (sql.NullString, error) {
	if tags == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return sql.NullString{}, errors.Wrap(err, "encode tags")
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse time %q", s)
	}
	return t.UTC(), nil
}
