package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"wirdbot/internal/model"
	logx "wirdbot/pkg/logx"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

func (d dialect) migrationFile() string {
	if d == dialectPostgres {
		return "migrations/postgres.sql"
	}
	return "migrations/sqlite.sql"
}

// sqlStore implements Store for every database/sql backed driver.
// Queries are written with '?' placeholders and rebound per dialect.
type sqlStore struct {
	db      *sql.DB
	dialect dialect
	log     logx.Logger
}

func newSQLStore(db *sql.DB, d dialect, log logx.Logger) (*sqlStore, error) {
	s := &sqlStore{db: db, dialect: d, log: log}
	if err := s.migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *sqlStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile(s.dialect.migrationFile())
	if err != nil {
		return err
	}
	for _, stmt := range strings.Split(string(b), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqlStore) q(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (s *sqlStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqlStore) GetUser(ctx context.Context, id int64) (model.User, error) {
	var (
		u       model.User
		lang    string
		created int64
	)
	err := s.db.QueryRowContext(ctx, s.q(`SELECT id, language, created_at FROM users WHERE id = ?`), id).
		Scan(&u.ID, &lang, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("get user %d: %w", id, err)
	}
	u.Language = model.Language(lang)
	u.CreatedAt = time.UnixMilli(created)
	return u, nil
}

func (s *sqlStore) SetUserLanguage(ctx context.Context, id int64, lang model.Language) error {
	if !lang.Valid() {
		return invalid(fmt.Errorf("language %q", lang))
	}
	_, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO users(id, language, created_at) VALUES(?,?,?)
		 ON CONFLICT(id) DO UPDATE SET language = excluded.language`),
		id, string(lang), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("set language %d: %w", id, err)
	}
	return nil
}

const targetCols = `id, kind, owner_id, name, current_page, pages_per_send, cron_schedules, is_active, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTarget(r rowScanner) (model.Target, error) {
	var (
		t       model.Target
		kind    string
		crons   string
		active  int
		created int64
	)
	if err := r.Scan(&t.ID, &kind, &t.OwnerID, &t.Name, &t.CurrentPage, &t.PagesPerSend, &crons, &active, &created); err != nil {
		return model.Target{}, err
	}
	list, err := model.DecodeSchedules(crons)
	if err != nil {
		return model.Target{}, fmt.Errorf("target %d: %w", t.ID, err)
	}
	t.Kind = model.Kind(kind)
	t.Schedules = list
	t.IsActive = active != 0
	t.CreatedAt = time.UnixMilli(created)
	return t, nil
}

func (s *sqlStore) GetTarget(ctx context.Context, id int64) (model.Target, error) {
	t, err := scanTarget(s.db.QueryRowContext(ctx, s.q(`SELECT `+targetCols+` FROM targets WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Target{}, ErrNotFound
	}
	if err != nil {
		return model.Target{}, fmt.Errorf("get target %d: %w", id, err)
	}
	return t, nil
}

func (s *sqlStore) listTargets(ctx context.Context, query string, args ...any) ([]model.Target, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			// One corrupt row should not hide the others.
			s.log.Warn("skip unreadable target", logx.Err(err))
			continue
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqlStore) ListTargetsByOwner(ctx context.Context, owner int64, kind model.Kind) ([]model.Target, error) {
	out, err := s.listTargets(ctx, `SELECT `+targetCols+` FROM targets WHERE owner_id = ? AND kind = ? ORDER BY created_at, id`, owner, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list targets of %d: %w", owner, err)
	}
	return out, nil
}

func (s *sqlStore) ListActiveTargets(ctx context.Context) ([]model.Target, error) {
	out, err := s.listTargets(ctx, `SELECT `+targetCols+` FROM targets WHERE is_active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list active targets: %w", err)
	}
	return out, nil
}

func (s *sqlStore) CreateTarget(ctx context.Context, t model.Target) error {
	if err := t.Validate(); err != nil {
		return invalid(err)
	}
	crons, err := model.EncodeSchedules(t.Schedules)
	if err != nil {
		return err
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO targets(`+targetCols+`) VALUES(?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO NOTHING`),
		t.ID, string(t.Kind), t.OwnerID, t.Name, t.CurrentPage, t.PagesPerSend, crons, boolInt(t.IsActive), t.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("create target %d: %w", t.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// UpdateTarget locks the row (FOR UPDATE on Postgres; SQLite runs one
// connection), validates the patched target and writes only the patched
// columns, so a concurrent update to other fields is never written back.
func (s *sqlStore) UpdateTarget(ctx context.Context, id int64, p model.TargetPatch) (model.Target, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Target{}, err
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT ` + targetCols + ` FROM targets WHERE id = ?`
	if s.dialect == dialectPostgres {
		query += ` FOR UPDATE`
	}
	cur, err := scanTarget(tx.QueryRowContext(ctx, s.q(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Target{}, ErrNotFound
	}
	if err != nil {
		return model.Target{}, fmt.Errorf("update target %d: %w", id, err)
	}
	if p.Empty() {
		return cur, nil
	}
	next := p.Apply(cur)
	if err := next.Validate(); err != nil {
		return model.Target{}, invalid(err)
	}
	stmt, args, err := patchUpdate(p, next)
	if err != nil {
		return model.Target{}, err
	}
	if _, err := tx.ExecContext(ctx, s.q(stmt), append(args, id)...); err != nil {
		return model.Target{}, fmt.Errorf("update target %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return model.Target{}, err
	}
	return next, nil
}

// patchUpdate builds an UPDATE that touches only the columns set in p. The
// trailing id placeholder is left to the caller.
func patchUpdate(p model.TargetPatch, next model.Target) (string, []any, error) {
	var (
		sets []string
		args []any
	)
	if p.Name != nil {
		sets, args = append(sets, "name = ?"), append(args, next.Name)
	}
	if p.CurrentPage != nil {
		sets, args = append(sets, "current_page = ?"), append(args, next.CurrentPage)
	}
	if p.PagesPerSend != nil {
		sets, args = append(sets, "pages_per_send = ?"), append(args, next.PagesPerSend)
	}
	if p.Schedules != nil {
		crons, err := model.EncodeSchedules(next.Schedules)
		if err != nil {
			return "", nil, err
		}
		sets, args = append(sets, "cron_schedules = ?"), append(args, crons)
	}
	if p.IsActive != nil {
		sets, args = append(sets, "is_active = ?"), append(args, boolInt(next.IsActive))
	}
	return `UPDATE targets SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`, args, nil
}

func (s *sqlStore) DeleteTarget(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM targets WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete target %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqlStore) RememberGroup(ctx context.Context, g model.Group) error {
	if g.ChatID == 0 {
		return invalid(errors.New("group chat id required"))
	}
	if g.UpdatedAt.IsZero() {
		g.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO known_groups(chat_id, title, updated_at) VALUES(?,?,?)
		 ON CONFLICT(chat_id) DO UPDATE SET title = excluded.title, updated_at = excluded.updated_at`),
		g.ChatID, g.Title, g.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("remember group %d: %w", g.ChatID, err)
	}
	return nil
}

func (s *sqlStore) ForgetGroup(ctx context.Context, chatID int64) error {
	_, err := s.db.ExecContext(ctx, s.q(`DELETE FROM known_groups WHERE chat_id = ?`), chatID)
	if err != nil {
		return fmt.Errorf("forget group %d: %w", chatID, err)
	}
	return nil
}

func (s *sqlStore) ListGroups(ctx context.Context) ([]model.Group, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chat_id, title, updated_at FROM known_groups ORDER BY title, chat_id`)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()
	var out []model.Group
	for rows.Next() {
		var (
			g  model.Group
			ms int64
		)
		if err := rows.Scan(&g.ChatID, &g.Title, &ms); err != nil {
			return nil, err
		}
		g.UpdatedAt = time.UnixMilli(ms)
		out = append(out, g)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
