package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned when registering an email already in use
var ErrDuplicateEmail = errors.New("email already registered")

// Repository provides data access for users and conversations
type Repository struct {
	db *DB
}

// NewRepository creates a repository over the connection pool
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// CreateUser inserts a new user; the caller supplies the password hash
func (r *Repository) CreateUser(ctx context.Context, email, passwordHash, displayName string) (*User, error) {
	existing, err := r.GetUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicateEmail
	}

	user := &User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: passwordHash,
		DisplayName:  displayName,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	_, err = r.db.Pool.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, display_name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Email, user.PasswordHash, user.DisplayName, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting user: %w", err)
	}
	return user, nil
}

// GetUserByEmail looks a user up by email
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return r.scanUser(r.db.Pool.QueryRow(ctx,
		`SELECT id, email, password_hash, display_name, created_at, updated_at
		 FROM users WHERE email = $1`, email))
}

// GetUserByID looks a user up by ID
func (r *Repository) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.scanUser(r.db.Pool.QueryRow(ctx,
		`SELECT id, email, password_hash, display_name, created_at, updated_at
		 FROM users WHERE id = $1`, id))
}

func (r *Repository) scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	return &u, nil
}

// AppendMessage appends one entry to a user's conversation log
func (r *Repository) AppendMessage(ctx context.Context, userID uuid.UUID, role, content string) (*ConversationMessage, error) {
	msg := &ConversationMessage{
		ID:        uuid.New(),
		UserID:    userID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO conversation_messages (id, user_id, role, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, msg.UserID, msg.Role, msg.Content, msg.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting conversation message: %w", err)
	}
	return msg, nil
}

// RecentMessages returns the user's latest messages in chronological order
func (r *Repository) RecentMessages(ctx context.Context, userID uuid.UUID, limit int) ([]ConversationMessage, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, user_id, role, content, created_at
		 FROM (
			SELECT id, user_id, role, content, created_at
			FROM conversation_messages WHERE user_id = $1
			ORDER BY created_at DESC LIMIT $2
		 ) recent ORDER BY created_at ASC`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying conversation messages: %w", err)
	}
	defer rows.Close()

	var messages []ConversationMessage
	for rows.Next() {
		var m ConversationMessage
		if err := rows.Scan(&m.ID, &m.UserID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning conversation message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
