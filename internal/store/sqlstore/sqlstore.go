// Package sqlstore implements store.Store on top of database/sql. The same
// statements serve both backends; queries are written with ? placeholders and
// rebound to $n for postgres.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skillhub/skillhub/internal/store"
)

// Dialect selects placeholder style and backend-specific statements.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DB implements store.Store.
type DB struct {
	db      *sql.DB
	dialect Dialect
}

// New wraps an open connection and applies the schema.
func New(db *sql.DB, dialect Dialect) (*DB, error) {
	s := &DB{db: db, dialect: dialect}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *DB) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL DEFAULT 'user',
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS refresh_tokens (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	token_hash TEXT NOT NULL UNIQUE,
	expires_at TIMESTAMP NOT NULL,
	revoked BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS skills (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	owner_id TEXT NOT NULL DEFAULT '',
	tags TEXT NOT NULL DEFAULT '[]',
	visibility TEXT NOT NULL DEFAULT 'public',
	deleted BOOLEAN NOT NULL DEFAULT FALSE,
	deleted_at TIMESTAMP,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS skill_versions (
	id TEXT PRIMARY KEY,
	skill_id TEXT NOT NULL,
	version INTEGER NOT NULL,
	content TEXT NOT NULL,
	created_by TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	UNIQUE (skill_id, version)
);

CREATE TABLE IF NOT EXISTS skill_favorites (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	skill_id TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	UNIQUE (user_id, skill_id)
);

CREATE TABLE IF NOT EXISTS skill_ratings (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	skill_id TEXT NOT NULL,
	rating INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	UNIQUE (user_id, skill_id)
);

CREATE TABLE IF NOT EXISTS skill_comments (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	skill_id TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS chat_sessions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS chat_messages (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	skill_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS skill_suggestions (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	skill_id TEXT NOT NULL,
	message_id TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'pending',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS memories (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	scope TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	UNIQUE (user_id, key, scope)
);

CREATE TABLE IF NOT EXISTS notifications (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	type TEXT NOT NULL,
	content TEXT NOT NULL,
	is_read BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS reports (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	title TEXT NOT NULL,
	content TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'open',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_refresh_tokens_user ON refresh_tokens(user_id);
CREATE INDEX IF NOT EXISTS idx_skills_owner ON skills(owner_id);
CREATE INDEX IF NOT EXISTS idx_skill_versions_skill ON skill_versions(skill_id);
CREATE INDEX IF NOT EXISTS idx_skill_favorites_user ON skill_favorites(user_id);
CREATE INDEX IF NOT EXISTS idx_skill_ratings_skill ON skill_ratings(skill_id);
CREATE INDEX IF NOT EXISTS idx_skill_comments_skill ON skill_comments(skill_id);
CREATE INDEX IF NOT EXISTS idx_chat_sessions_user ON chat_sessions(user_id);
CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id);
CREATE INDEX IF NOT EXISTS idx_skill_suggestions_session ON skill_suggestions(session_id);
CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id);
CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id);
CREATE INDEX IF NOT EXISTS idx_reports_user ON reports(user_id);
`
	// One statement per Exec; pgx does not accept multi-statement strings.
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Close releases underlying resources.
func (s *DB) Close() error {
	return s.db.Close()
}

// rebind converts ? placeholders to $n for postgres.
func (s *DB) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *DB) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *DB) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

func (s *DB) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}

func now() time.Time {
	return time.Now().UTC()
}

// --- users ---

func (s *DB) CreateUser(ctx context.Context, email, passwordHash, displayName string) (*store.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	u := &store.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		DisplayName:  displayName,
		Role:         store.RoleUser,
		IsActive:     true,
		CreatedAt:    now(),
		UpdatedAt:    now(),
	}
	_, err := s.exec(ctx, `INSERT INTO users(id, email, password_hash, display_name, role, is_active, created_at, updated_at) VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.DisplayName, u.Role, u.IsActive, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (s *DB) scanUser(row *sql.Row) (*store.User, error) {
	var u store.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *DB) GetUser(ctx context.Context, id string) (*store.User, error) {
	return s.scanUser(s.queryRow(ctx, `SELECT id, email, password_hash, display_name, role, is_active, created_at, updated_at FROM users WHERE id = ?`, id))
}

func (s *DB) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	return s.scanUser(s.queryRow(ctx, `SELECT id, email, password_hash, display_name, role, is_active, created_at, updated_at FROM users WHERE email = ?`, email))
}

func (s *DB) CreateRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (*store.RefreshToken, error) {
	t := &store.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: now(),
	}
	_, err := s.exec(ctx, `INSERT INTO refresh_tokens(id, user_id, token_hash, expires_at, revoked, created_at) VALUES(?, ?, ?, ?, FALSE, ?)`,
		t.ID, t.UserID, t.TokenHash, t.ExpiresAt, t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create refresh token: %w", err)
	}
	return t, nil
}

func (s *DB) GetRefreshToken(ctx context.Context, tokenHash string) (*store.RefreshToken, error) {
	var t store.RefreshToken
	err := s.queryRow(ctx, `SELECT id, user_id, token_hash, expires_at, revoked, created_at FROM refresh_tokens WHERE token_hash = ?`, tokenHash).
		Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.Revoked, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *DB) RevokeRefreshToken(ctx context.Context, id string) error {
	_, err := s.exec(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE id = ?`, id)
	return err
}

// --- skills ---

func marshalTags(tags []string) string {
	if len(tags) == 0 {
		return "[]"
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func unmarshalTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return []string{}
	}
	return tags
}

func (s *DB) CreateSkill(ctx context.Context, sk store.Skill) (*store.Skill, error) {
	sk.ID = uuid.NewString()
	sk.CreatedAt = now()
	sk.UpdatedAt = sk.CreatedAt
	if sk.Visibility == "" {
		sk.Visibility = store.VisibilityPublic
	}
	if sk.Tags == nil {
		sk.Tags = []string{}
	}
	_, err := s.exec(ctx, `INSERT INTO skills(id, name, description, owner_id, tags, visibility, deleted, deleted_at, created_at, updated_at) VALUES(?, ?, ?, ?, ?, ?, FALSE, NULL, ?, ?)`,
		sk.ID, sk.Name, sk.Description, sk.OwnerID, marshalTags(sk.Tags), sk.Visibility, sk.CreatedAt, sk.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create skill: %w", err)
	}
	return &sk, nil
}

const skillColumns = `id, name, description, owner_id, tags, visibility, deleted, deleted_at, created_at, updated_at`

func scanSkill(scan func(dest ...any) error) (*store.Skill, error) {
	var sk store.Skill
	var tags string
	var deletedAt sql.NullTime
	err := scan(&sk.ID, &sk.Name, &sk.Description, &sk.OwnerID, &tags, &sk.Visibility, &sk.Deleted, &deletedAt, &sk.CreatedAt, &sk.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sk.Tags = unmarshalTags(tags)
	if deletedAt.Valid {
		t := deletedAt.Time
		sk.DeletedAt = &t
	}
	return &sk, nil
}

func (s *DB) GetSkill(ctx context.Context, id string) (*store.Skill, error) {
	row := s.queryRow(ctx, `SELECT `+skillColumns+` FROM skills WHERE id = ?`, id)
	sk, err := scanSkill(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sk, nil
}

func (s *DB) ListSkills(ctx context.Context, f store.SkillFilter) ([]store.Skill, error) {
	query := `SELECT ` + skillColumns + ` FROM skills WHERE deleted = FALSE`
	var args []any
	if f.Query != "" {
		query += ` AND (name LIKE ? OR description LIKE ?)`
		like := "%" + f.Query + "%"
		args = append(args, like, like)
	}
	if f.Visibility != "" {
		query += ` AND visibility = ?`
		args = append(args, f.Visibility)
	}
	if f.OwnerID != "" {
		query += ` AND owner_id = ?`
		args = append(args, f.OwnerID)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, limit, f.Offset)

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.Skill
	for rows.Next() {
		sk, err := scanSkill(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *sk)
	}
	return out, rows.Err()
}

func (s *DB) UpdateSkill(ctx context.Context, sk *store.Skill) error {
	sk.UpdatedAt = now()
	var deletedAt any
	if sk.DeletedAt != nil {
		deletedAt = sk.DeletedAt.UTC()
	}
	_, err := s.exec(ctx, `UPDATE skills SET name = ?, description = ?, tags = ?, visibility = ?, deleted = ?, deleted_at = ?, updated_at = ? WHERE id = ?`,
		sk.Name, sk.Description, marshalTags(sk.Tags), sk.Visibility, sk.Deleted, deletedAt, sk.UpdatedAt, sk.ID)
	if err != nil {
		return fmt.Errorf("update skill: %w", err)
	}
	return nil
}

func (s *DB) CreateSkillVersion(ctx context.Context, skillID, content, createdBy string) (*store.SkillVersion, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var next int
	if err := tx.QueryRowContext(ctx, s.rebind(`SELECT COALESCE(MAX(version), 0) + 1 FROM skill_versions WHERE skill_id = ?`), skillID).Scan(&next); err != nil {
		return nil, err
	}
	v := &store.SkillVersion{
		ID:        uuid.NewString(),
		SkillID:   skillID,
		Version:   next,
		Content:   content,
		CreatedBy: createdBy,
		CreatedAt: now(),
	}
	if _, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO skill_versions(id, skill_id, version, content, created_by, created_at) VALUES(?, ?, ?, ?, ?, ?)`),
		v.ID, v.SkillID, v.Version, v.Content, v.CreatedBy, v.CreatedAt); err != nil {
		return nil, fmt.Errorf("create skill version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *DB) InsertSkillVersion(ctx context.Context, skillID string, version int, content, createdBy string) (*store.SkillVersion, error) {
	v := &store.SkillVersion{
		ID:        uuid.NewString(),
		SkillID:   skillID,
		Version:   version,
		Content:   content,
		CreatedBy: createdBy,
		CreatedAt: now(),
	}
	_, err := s.exec(ctx, `INSERT INTO skill_versions(id, skill_id, version, content, created_by, created_at) VALUES(?, ?, ?, ?, ?, ?)`,
		v.ID, v.SkillID, v.Version, v.Content, v.CreatedBy, v.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert skill version: %w", err)
	}
	return v, nil
}

func (s *DB) GetSkillVersion(ctx context.Context, skillID string, version int) (*store.SkillVersion, error) {
	var v store.SkillVersion
	err := s.queryRow(ctx, `SELECT id, skill_id, version, content, created_by, created_at FROM skill_versions WHERE skill_id = ? AND version = ?`, skillID, version).
		Scan(&v.ID, &v.SkillID, &v.Version, &v.Content, &v.CreatedBy, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *DB) ListSkillVersions(ctx context.Context, skillID string) ([]store.SkillVersion, error) {
	rows, err := s.query(ctx, `SELECT id, skill_id, version, content, created_by, created_at FROM skill_versions WHERE skill_id = ? ORDER BY version ASC`, skillID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.SkillVersion
	for rows.Next() {
		var v store.SkillVersion
		if err := rows.Scan(&v.ID, &v.SkillID, &v.Version, &v.Content, &v.CreatedBy, &v.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// --- marketplace ---

func (s *DB) AddFavorite(ctx context.Context, userID, skillID string) (*store.SkillFavorite, error) {
	_, err := s.exec(ctx, `INSERT INTO skill_favorites(id, user_id, skill_id, created_at) VALUES(?, ?, ?, ?) ON CONFLICT (user_id, skill_id) DO NOTHING`,
		uuid.NewString(), userID, skillID, now())
	if err != nil {
		return nil, fmt.Errorf("add favorite: %w", err)
	}
	var f store.SkillFavorite
	err = s.queryRow(ctx, `SELECT id, user_id, skill_id, created_at FROM skill_favorites WHERE user_id = ? AND skill_id = ?`, userID, skillID).
		Scan(&f.ID, &f.UserID, &f.SkillID, &f.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *DB) RemoveFavorite(ctx context.Context, userID, skillID string) error {
	_, err := s.exec(ctx, `DELETE FROM skill_favorites WHERE user_id = ? AND skill_id = ?`, userID, skillID)
	return err
}

func (s *DB) ListFavorites(ctx context.Context, userID string) ([]store.SkillFavorite, error) {
	rows, err := s.query(ctx, `SELECT id, user_id, skill_id, created_at FROM skill_favorites WHERE user_id = ? ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.SkillFavorite
	for rows.Next() {
		var f store.SkillFavorite
		if err := rows.Scan(&f.ID, &f.UserID, &f.SkillID, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *DB) UpsertRating(ctx context.Context, userID, skillID string, rating int) (*store.SkillRating, error) {
	ts := now()
	_, err := s.exec(ctx, `INSERT INTO skill_ratings(id, user_id, skill_id, rating, created_at, updated_at) VALUES(?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id, skill_id) DO UPDATE SET rating = excluded.rating, updated_at = excluded.updated_at`,
		uuid.NewString(), userID, skillID, rating, ts, ts)
	if err != nil {
		return nil, fmt.Errorf("upsert rating: %w", err)
	}
	var r store.SkillRating
	err = s.queryRow(ctx, `SELECT id, user_id, skill_id, rating, created_at, updated_at FROM skill_ratings WHERE user_id = ? AND skill_id = ?`, userID, skillID).
		Scan(&r.ID, &r.UserID, &r.SkillID, &r.Rating, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *DB) RatingSummary(ctx context.Context, skillID string) (store.RatingSummary, error) {
	var sum, count int64
	err := s.queryRow(ctx, `SELECT COALESCE(SUM(rating), 0), COUNT(*) FROM skill_ratings WHERE skill_id = ?`, skillID).Scan(&sum, &count)
	if err != nil {
		return store.RatingSummary{}, err
	}
	summary := store.RatingSummary{Count: int(count)}
	if count > 0 {
		summary.Average = float64(sum) / float64(count)
	}
	return summary, nil
}

func (s *DB) AddComment(ctx context.Context, userID, skillID, content string) (*store.SkillComment, error) {
	c := &store.SkillComment{
		ID:        uuid.NewString(),
		UserID:    userID,
		SkillID:   skillID,
		Content:   content,
		CreatedAt: now(),
	}
	_, err := s.exec(ctx, `INSERT INTO skill_comments(id, user_id, skill_id, content, created_at) VALUES(?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.SkillID, c.Content, c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("add comment: %w", err)
	}
	return c, nil
}

func (s *DB) ListComments(ctx context.Context, skillID string) ([]store.SkillComment, error) {
	rows, err := s.query(ctx, `SELECT id, user_id, skill_id, content, created_at FROM skill_comments WHERE skill_id = ? ORDER BY created_at DESC, id`, skillID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.SkillComment
	for rows.Next() {
		var c store.SkillComment
		if err := rows.Scan(&c.ID, &c.UserID, &c.SkillID, &c.Content, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- chat ---

func (s *DB) CreateChatSession(ctx context.Context, userID, title string) (*store.ChatSession, error) {
	c := &store.ChatSession{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now(),
		UpdatedAt: now(),
	}
	_, err := s.exec(ctx, `INSERT INTO chat_sessions(id, user_id, title, created_at, updated_at) VALUES(?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Title, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create chat session: %w", err)
	}
	return c, nil
}

func (s *DB) GetChatSession(ctx context.Context, id string) (*store.ChatSession, error) {
	var c store.ChatSession
	err := s.queryRow(ctx, `SELECT id, user_id, title, created_at, updated_at FROM chat_sessions WHERE id = ?`, id).
		Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *DB) ListChatSessions(ctx context.Context, userID string) ([]store.ChatSession, error) {
	rows, err := s.query(ctx, `SELECT id, user_id, title, created_at, updated_at FROM chat_sessions WHERE user_id = ? ORDER BY updated_at DESC, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.ChatSession
	for rows.Next() {
		var c store.ChatSession
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *DB) CreateMessage(ctx context.Context, sessionID string, role store.ChatRole, content, skillID string) (*store.ChatMessage, error) {
	m := &store.ChatMessage{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		SkillID:   skillID,
		CreatedAt: now(),
	}
	_, err := s.exec(ctx, `INSERT INTO chat_messages(id, session_id, role, content, skill_id, created_at) VALUES(?, ?, ?, ?, ?, ?)`,
		m.ID, m.SessionID, m.Role, m.Content, m.SkillID, m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	_, _ = s.exec(ctx, `UPDATE chat_sessions SET updated_at = ? WHERE id = ?`, m.CreatedAt, sessionID)
	return m, nil
}

func (s *DB) GetMessage(ctx context.Context, id string) (*store.ChatMessage, error) {
	var m store.ChatMessage
	err := s.queryRow(ctx, `SELECT id, session_id, role, content, skill_id, created_at FROM chat_messages WHERE id = ?`, id).
		Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.SkillID, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *DB) ListMessages(ctx context.Context, sessionID string, limit, offset int) ([]store.ChatMessage, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.query(ctx, `SELECT id, session_id, role, content, skill_id, created_at FROM chat_messages WHERE session_id = ? ORDER BY created_at ASC, id LIMIT ? OFFSET ?`,
		sessionID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.ChatMessage
	for rows.Next() {
		var m store.ChatMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.SkillID, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListRecentMessages keeps the tail of the conversation: the newest limit
// rows, returned oldest first.
func (s *DB) ListRecentMessages(ctx context.Context, sessionID string, limit int) ([]store.ChatMessage, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.query(ctx, `SELECT id, session_id, role, content, skill_id, created_at FROM chat_messages WHERE session_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.ChatMessage
	for rows.Next() {
		var m store.ChatMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.SkillID, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *DB) UpdateMessageContent(ctx context.Context, id, content string) error {
	_, err := s.exec(ctx, `UPDATE chat_messages SET content = ? WHERE id = ?`, content, id)
	if err != nil {
		return fmt.Errorf("update message content: %w", err)
	}
	return nil
}

// --- suggestions ---

func (s *DB) CreateSuggestion(ctx context.Context, sessionID, skillID, messageID string) (*store.SkillSuggestion, error) {
	sg := &store.SkillSuggestion{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		SkillID:   skillID,
		MessageID: messageID,
		Status:    store.SuggestionPending,
		CreatedAt: now(),
		UpdatedAt: now(),
	}
	_, err := s.exec(ctx, `INSERT INTO skill_suggestions(id, session_id, skill_id, message_id, status, created_at, updated_at) VALUES(?, ?, ?, ?, ?, ?, ?)`,
		sg.ID, sg.SessionID, sg.SkillID, sg.MessageID, sg.Status, sg.CreatedAt, sg.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create suggestion: %w", err)
	}
	return sg, nil
}

func (s *DB) GetSuggestion(ctx context.Context, id string) (*store.SkillSuggestion, error) {
	var sg store.SkillSuggestion
	err := s.queryRow(ctx, `SELECT id, session_id, skill_id, message_id, status, created_at, updated_at FROM skill_suggestions WHERE id = ?`, id).
		Scan(&sg.ID, &sg.SessionID, &sg.SkillID, &sg.MessageID, &sg.Status, &sg.CreatedAt, &sg.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sg, nil
}

func (s *DB) ListSuggestions(ctx context.Context, sessionID string) ([]store.SkillSuggestion, error) {
	rows, err := s.query(ctx, `SELECT id, session_id, skill_id, message_id, status, created_at, updated_at FROM skill_suggestions WHERE session_id = ? ORDER BY created_at ASC, id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.SkillSuggestion
	for rows.Next() {
		var sg store.SkillSuggestion
		if err := rows.Scan(&sg.ID, &sg.SessionID, &sg.SkillID, &sg.MessageID, &sg.Status, &sg.CreatedAt, &sg.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, sg)
	}
	return out, rows.Err()
}

func (s *DB) UpdateSuggestionStatus(ctx context.Context, id string, status store.SuggestionStatus) (*store.SkillSuggestion, error) {
	_, err := s.exec(ctx, `UPDATE skill_suggestions SET status = ?, updated_at = ? WHERE id = ?`, status, now(), id)
	if err != nil {
		return nil, fmt.Errorf("update suggestion: %w", err)
	}
	return s.GetSuggestion(ctx, id)
}

func (s *DB) HasRejectedSuggestion(ctx context.Context, sessionID string) (bool, error) {
	var exists bool
	err := s.queryRow(ctx, `SELECT EXISTS(SELECT 1 FROM skill_suggestions WHERE session_id = ? AND status = ?)`, sessionID, store.SuggestionRejected).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// --- memories ---

func (s *DB) UpsertMemory(ctx context.Context, userID, key, value, scope string) (*store.MemoryItem, error) {
	ts := now()
	_, err := s.exec(ctx, `INSERT INTO memories(id, user_id, key, value, scope, created_at, updated_at) VALUES(?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id, key, scope) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		uuid.NewString(), userID, key, value, scope, ts, ts)
	if err != nil {
		return nil, fmt.Errorf("upsert memory: %w", err)
	}
	var m store.MemoryItem
	err = s.queryRow(ctx, `SELECT id, user_id, key, value, scope, created_at, updated_at FROM memories WHERE user_id = ? AND key = ? AND scope = ?`, userID, key, scope).
		Scan(&m.ID, &m.UserID, &m.Key, &m.Value, &m.Scope, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *DB) GetMemory(ctx context.Context, id string) (*store.MemoryItem, error) {
	var m store.MemoryItem
	err := s.queryRow(ctx, `SELECT id, user_id, key, value, scope, created_at, updated_at FROM memories WHERE id = ?`, id).
		Scan(&m.ID, &m.UserID, &m.Key, &m.Value, &m.Scope, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *DB) ListMemories(ctx context.Context, userID, scope string) ([]store.MemoryItem, error) {
	query := `SELECT id, user_id, key, value, scope, created_at, updated_at FROM memories WHERE user_id = ?`
	args := []any{userID}
	if scope != "" {
		query += ` AND scope = ?`
		args = append(args, scope)
	}
	query += ` ORDER BY created_at ASC, id`
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.MemoryItem
	for rows.Next() {
		var m store.MemoryItem
		if err := rows.Scan(&m.ID, &m.UserID, &m.Key, &m.Value, &m.Scope, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *DB) UpdateMemory(ctx context.Context, id, value, scope string) (*store.MemoryItem, error) {
	_, err := s.exec(ctx, `UPDATE memories SET value = ?, scope = ?, updated_at = ? WHERE id = ?`, value, scope, now(), id)
	if err != nil {
		return nil, fmt.Errorf("update memory: %w", err)
	}
	return s.GetMemory(ctx, id)
}

// --- notifications ---

func (s *DB) CreateNotification(ctx context.Context, userID, typ, content string) (*store.Notification, error) {
	n := &store.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      typ,
		Content:   content,
		CreatedAt: now(),
	}
	_, err := s.exec(ctx, `INSERT INTO notifications(id, user_id, type, content, is_read, created_at) VALUES(?, ?, ?, ?, FALSE, ?)`,
		n.ID, n.UserID, n.Type, n.Content, n.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	return n, nil
}

func (s *DB) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]store.Notification, error) {
	query := `SELECT id, user_id, type, content, is_read, created_at FROM notifications WHERE user_id = ?`
	if unreadOnly {
		query += ` AND is_read = FALSE`
	}
	query += ` ORDER BY created_at DESC, id`
	rows, err := s.query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.Notification
	for rows.Next() {
		var n store.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Content, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *DB) GetNotification(ctx context.Context, id string) (*store.Notification, error) {
	var n store.Notification
	err := s.queryRow(ctx, `SELECT id, user_id, type, content, is_read, created_at FROM notifications WHERE id = ?`, id).
		Scan(&n.ID, &n.UserID, &n.Type, &n.Content, &n.Read, &n.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *DB) SetNotificationRead(ctx context.Context, id string, read bool) (*store.Notification, error) {
	_, err := s.exec(ctx, `UPDATE notifications SET is_read = ? WHERE id = ?`, read, id)
	if err != nil {
		return nil, fmt.Errorf("update notification: %w", err)
	}
	return s.GetNotification(ctx, id)
}

// --- reports ---

func (s *DB) CreateReport(ctx context.Context, userID, title, content string) (*store.Report, error) {
	r := &store.Report{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Content:   content,
		Status:    store.ReportOpen,
		CreatedAt: now(),
		UpdatedAt: now(),
	}
	_, err := s.exec(ctx, `INSERT INTO reports(id, user_id, title, content, status, created_at, updated_at) VALUES(?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.Title, r.Content, r.Status, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}
	return r, nil
}

func (s *DB) ListReports(ctx context.Context, userID string) ([]store.Report, error) {
	rows, err := s.query(ctx, `SELECT id, user_id, title, content, status, created_at, updated_at FROM reports WHERE user_id = ? ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.Report
	for rows.Next() {
		var r store.Report
		if err := rows.Scan(&r.ID, &r.UserID, &r.Title, &r.Content, &r.Status, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *DB) GetReport(ctx context.Context, id string) (*store.Report, error) {
	var r store.Report
	err := s.queryRow(ctx, `SELECT id, user_id, title, content, status, created_at, updated_at FROM reports WHERE id = ?`, id).
		Scan(&r.ID, &r.UserID, &r.Title, &r.Content, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *DB) UpdateReportStatus(ctx context.Context, id string, status store.ReportStatus) (*store.Report, error) {
	_, err := s.exec(ctx, `UPDATE reports SET status = ?, updated_at = ? WHERE id = ?`, status, now(), id)
	if err != nil {
		return nil, fmt.Errorf("update report: %w", err)
	}
	return s.GetReport(ctx, id)
}

var _ store.Store = (*DB)(nil)
