package store

import (
	"context"
	"errors"
	"time"
)

// Role represents a user's capability level.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Visibility controls who can discover a skill.
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityPrivate  Visibility = "private"
	VisibilityUnlisted Visibility = "unlisted"
)

// ChatRole is the author role of a chat message.
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
	ChatRoleSystem    ChatRole = "system"
)

// SuggestionStatus tracks the lifecycle of a skill suggestion.
type SuggestionStatus string

const (
	SuggestionPending  SuggestionStatus = "pending"
	SuggestionAccepted SuggestionStatus = "accepted"
	SuggestionRejected SuggestionStatus = "rejected"
)

// ReportStatus tracks the lifecycle of a user report.
type ReportStatus string

const (
	ReportOpen      ReportStatus = "open"
	ReportResolved  ReportStatus = "resolved"
	ReportDismissed ReportStatus = "dismissed"
)

// ErrEmailTaken is returned when registering an email that already exists.
var ErrEmailTaken = errors.New("store: email already registered")

// User is an account managed by the service.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	DisplayName  string    `json:"display_name,omitempty"`
	Role         Role      `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RefreshToken is a long-lived credential; only its hash is persisted.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// Skill is a published chatbot skill. Content lives in SkillVersion rows.
type Skill struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	OwnerID     string     `json:"owner_id,omitempty"`
	Tags        []string   `json:"tags"`
	Visibility  Visibility `json:"visibility"`
	Deleted     bool       `json:"deleted"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// SkillVersion is one immutable numbered revision of a skill's content.
type SkillVersion struct {
	ID        string    `json:"id"`
	SkillID   string    `json:"skill_id"`
	Version   int       `json:"version"`
	Content   string    `json:"content"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SkillFavorite marks a skill as favorited by a user.
type SkillFavorite struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	SkillID   string    `json:"skill_id"`
	CreatedAt time.Time `json:"created_at"`
}

// SkillRating is a single user's 1-5 rating of a skill.
type SkillRating struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	SkillID   string    `json:"skill_id"`
	Rating    int       `json:"rating"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RatingSummary aggregates ratings for one skill.
type RatingSummary struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

// SkillComment is a user comment on a skill's marketplace page.
type SkillComment struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	SkillID   string    `json:"skill_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatSession groups the messages of one conversation.
type ChatSession struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatMessage is one message within a session.
type ChatMessage struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      ChatRole  `json:"role"`
	Content   string    `json:"content"`
	SkillID   string    `json:"skill_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SkillSuggestion proposes a skill to the user within a chat session.
type SkillSuggestion struct {
	ID        string           `json:"id"`
	SessionID string           `json:"session_id"`
	SkillID   string           `json:"skill_id"`
	MessageID string           `json:"message_id,omitempty"`
	Status    SuggestionStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// MemoryItem is a per-user key/value fact with an optional scope.
type MemoryItem struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Scope     string    `json:"scope,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Notification is a per-user inbox entry.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// Report is a user-filed issue report.
type Report struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id"`
	Title     string       `json:"title"`
	Content   string       `json:"content"`
	Status    ReportStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// SkillFilter narrows ListSkills results.
type SkillFilter struct {
	Query      string
	Visibility Visibility
	OwnerID    string
	Limit      int
	Offset     int
}

// Store persists the marketplace domain across SQLite/Postgres backends.
// Lookup methods return (nil, nil) when the row does not exist.
type Store interface {
	// Users and credentials
	CreateUser(ctx context.Context, email, passwordHash, displayName string) (*User, error)
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	CreateRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (*RefreshToken, error)
	GetRefreshToken(ctx context.Context, tokenHash string) (*RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, id string) error

	// Skills and versions
	CreateSkill(ctx context.Context, s Skill) (*Skill, error)
	GetSkill(ctx context.Context, id string) (*Skill, error)
	ListSkills(ctx context.Context, f SkillFilter) ([]Skill, error)
	UpdateSkill(ctx context.Context, s *Skill) error
	CreateSkillVersion(ctx context.Context, skillID, content, createdBy string) (*SkillVersion, error)
	InsertSkillVersion(ctx context.Context, skillID string, version int, content, createdBy string) (*SkillVersion, error)
	GetSkillVersion(ctx context.Context, skillID string, version int) (*SkillVersion, error)
	ListSkillVersions(ctx context.Context, skillID string) ([]SkillVersion, error)

	// Marketplace interactions
	AddFavorite(ctx context.Context, userID, skillID string) (*SkillFavorite, error)
	RemoveFavorite(ctx context.Context, userID, skillID string) error
	ListFavorites(ctx context.Context, userID string) ([]SkillFavorite, error)
	UpsertRating(ctx context.Context, userID, skillID string, rating int) (*SkillRating, error)
	RatingSummary(ctx context.Context, skillID string) (RatingSummary, error)
	AddComment(ctx context.Context, userID, skillID, content string) (*SkillComment, error)
	ListComments(ctx context.Context, skillID string) ([]SkillComment, error)

	// Chat sessions and messages
	CreateChatSession(ctx context.Context, userID, title string) (*ChatSession, error)
	GetChatSession(ctx context.Context, id string) (*ChatSession, error)
	ListChatSessions(ctx context.Context, userID string) ([]ChatSession, error)
	CreateMessage(ctx context.Context, sessionID string, role ChatRole, content, skillID string) (*ChatMessage, error)
	GetMessage(ctx context.Context, id string) (*ChatMessage, error)
	ListMessages(ctx context.Context, sessionID string, limit, offset int) ([]ChatMessage, error)
	// ListRecentMessages returns the newest limit messages of the session in
	// chronological order.
	ListRecentMessages(ctx context.Context, sessionID string, limit int) ([]ChatMessage, error)
	UpdateMessageContent(ctx context.Context, id, content string) error

	// Skill suggestions
	CreateSuggestion(ctx context.Context, sessionID, skillID, messageID string) (*SkillSuggestion, error)
	GetSuggestion(ctx context.Context, id string) (*SkillSuggestion, error)
	ListSuggestions(ctx context.Context, sessionID string) ([]SkillSuggestion, error)
	UpdateSuggestionStatus(ctx context.Context, id string, status SuggestionStatus) (*SkillSuggestion, error)
	HasRejectedSuggestion(ctx context.Context, sessionID string) (bool, error)

	// Memories
	UpsertMemory(ctx context.Context, userID, key, value, scope string) (*MemoryItem, error)
	GetMemory(ctx context.Context, id string) (*MemoryItem, error)
	ListMemories(ctx context.Context, userID, scope string) ([]MemoryItem, error)
	UpdateMemory(ctx context.Context, id, value, scope string) (*MemoryItem, error)

	// Notifications
	CreateNotification(ctx context.Context, userID, typ, content string) (*Notification, error)
	ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]Notification, error)
	GetNotification(ctx context.Context, id string) (*Notification, error)
	SetNotificationRead(ctx context.Context, id string, read bool) (*Notification, error)

	// Reports
	CreateReport(ctx context.Context, userID, title, content string) (*Report, error)
	ListReports(ctx context.Context, userID string) ([]Report, error)
	GetReport(ctx context.Context, id string) (*Report, error)
	UpdateReportStatus(ctx context.Context, id string, status ReportStatus) (*Report, error)

	Close() error
}
