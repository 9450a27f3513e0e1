package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"hearth/internal/core"
)

// timeLayout keeps a fixed-width fraction so stored timestamps sort
// lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// IsUniqueViolation reports whether err is a UNIQUE constraint failure.
func IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// withTx runs fn inside a transaction, rolling back on error.
func (r *SQLiteRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// --- users ---

func (r *SQLiteRepository) CreateUser(ctx context.Context, u *core.User) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	u.IsActive = true

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, full_name, hashed_password, avatar_url, is_active, current_points, created_at)
		 VALUES (?, ?, ?, ?, ?, 1, ?, ?)`,
		u.ID, u.Email, u.FullName, u.HashedPassword, u.AvatarURL, u.CurrentPoints, fmtTime(u.CreatedAt),
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return core.ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) scanUser(row *sql.Row) (*core.User, error) {
	var u core.User
	var createdAt string
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.HashedPassword, &u.AvatarURL, &u.IsActive, &u.CurrentPoints, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.CreatedAt = parseTime(createdAt)
	return &u, nil
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (*core.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id, email, full_name, hashed_password, avatar_url, is_active, current_points, created_at
		 FROM users WHERE id = ?`, id))
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id, email, full_name, hashed_password, avatar_url, is_active, current_points, created_at
		 FROM users WHERE email = ?`, email))
}

// AwardPoints credits amount to the user's balance as a single in-place
// increment and returns the new balance. The balance is never read and
// written back from Go, so concurrent awards cannot lose updates.
func (r *SQLiteRepository) AwardPoints(ctx context.Context, userID string, amount int) (int, error) {
	var newBalance int
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE users SET current_points = current_points + ? WHERE id = ?`, amount, userID)
		if err != nil {
			return fmt.Errorf("award points: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return core.ErrUserNotFound
		}
		return tx.QueryRowContext(ctx,
			`SELECT current_points FROM users WHERE id = ?`, userID).Scan(&newBalance)
	})
	if err != nil {
		return 0, err
	}

	slog.InfoContext(ctx, "Points awarded",
		"user_id", userID,
		"amount", amount,
		"new_balance", newBalance)
	return newBalance, nil
}

// --- groups ---

func (r *SQLiteRepository) CreateGroup(ctx context.Context, g *core.Group, creatorID string) error {
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}

	return r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO groups (id, name, invite_code, created_at) VALUES (?, ?, ?, ?)`,
			g.ID, g.Name, g.InviteCode, fmtTime(g.CreatedAt))
		if err != nil {
			return err // caller inspects for invite-code collisions
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO group_members (id, group_id, user_id, role, joined_at) VALUES (?, ?, ?, ?, ?)`,
			uuid.New().String(), g.ID, creatorID, core.RoleAdmin, fmtTime(time.Now().UTC()))
		if err != nil {
			return fmt.Errorf("insert admin membership: %w", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) GetGroupByInviteCode(ctx context.Context, code string) (*core.Group, error) {
	var g core.Group
	var createdAt string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, invite_code, created_at FROM groups WHERE invite_code = ?`, code).
		Scan(&g.ID, &g.Name, &g.InviteCode, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get group by invite code: %w", err)
	}
	g.CreatedAt = parseTime(createdAt)
	return &g, nil
}

func (r *SQLiteRepository) AddMember(ctx context.Context, m *core.GroupMember) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now().UTC()
	}
	if m.Role == "" {
		m.Role = core.RoleMember
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO group_members (id, group_id, user_id, role, joined_at) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.GroupID, m.UserID, m.Role, fmtTime(m.JoinedAt))
	if err != nil {
		if IsUniqueViolation(err) {
			return nil // already a member, joining again is a no-op
		}
		return fmt.Errorf("insert membership: %w", err)
	}
	return nil
}

// MembershipFor returns the user's membership. Current usage keeps a user
// in at most one group; the earliest membership wins if there are more.
func (r *SQLiteRepository) MembershipFor(ctx context.Context, userID string) (*core.GroupMember, error) {
	var m core.GroupMember
	var joinedAt string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, group_id, user_id, role, joined_at FROM group_members
		 WHERE user_id = ? ORDER BY joined_at, rowid LIMIT 1`, userID).
		Scan(&m.ID, &m.GroupID, &m.UserID, &m.Role, &joinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotInGroup
	}
	if err != nil {
		return nil, fmt.Errorf("get membership: %w", err)
	}
	m.JoinedAt = parseTime(joinedAt)
	return &m, nil
}

// MembershipIn returns the user's membership in a specific group, or
// ErrNotAuthorized if none exists.
func (r *SQLiteRepository) MembershipIn(ctx context.Context, userID, groupID string) (*core.GroupMember, error) {
	var m core.GroupMember
	var joinedAt string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, group_id, user_id, role, joined_at FROM group_members
		 WHERE user_id = ? AND group_id = ?`, userID, groupID).
		Scan(&m.ID, &m.GroupID, &m.UserID, &m.Role, &joinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotAuthorized
	}
	if err != nil {
		return nil, fmt.Errorf("get membership: %w", err)
	}
	m.JoinedAt = parseTime(joinedAt)
	return &m, nil
}

func (r *SQLiteRepository) ListGroupsForUser(ctx context.Context, userID string) ([]core.Group, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT g.id, g.name, g.invite_code, g.created_at
		 FROM groups g JOIN group_members m ON m.group_id = g.id
		 WHERE m.user_id = ? ORDER BY m.joined_at, m.rowid`, userID)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var groups []core.Group
	for rows.Next() {
		var g core.Group
		var createdAt string
		if err := rows.Scan(&g.ID, &g.Name, &g.InviteCode, &createdAt); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		g.CreatedAt = parseTime(createdAt)
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// MemberIDs returns the ids of current members ordered by join time.
func (r *SQLiteRepository) MemberIDs(ctx context.Context, groupID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id FROM group_members WHERE group_id = ? ORDER BY joined_at, rowid`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list member ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MemberInfo is a membership row joined with the user's profile.
type MemberInfo struct {
	UserID    string    `json:"user_id"`
	FullName  string    `json:"full_name"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	Role      core.Role `json:"role"`
	Points    int       `json:"points"`
}

func (r *SQLiteRepository) listMembers(ctx context.Context, groupID, orderBy string) ([]MemberInfo, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT u.id, u.full_name, u.avatar_url, m.role, u.current_points
		 FROM group_members m JOIN users u ON u.id = m.user_id
		 WHERE m.group_id = ? ORDER BY `+orderBy, groupID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []MemberInfo
	for rows.Next() {
		var mi MemberInfo
		if err := rows.Scan(&mi.UserID, &mi.FullName, &mi.AvatarURL, &mi.Role, &mi.Points); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, mi)
	}
	return members, rows.Err()
}

func (r *SQLiteRepository) ListMembers(ctx context.Context, groupID string) ([]MemberInfo, error) {
	return r.listMembers(ctx, groupID, "m.joined_at, m.rowid")
}

func (r *SQLiteRepository) Leaderboard(ctx context.Context, groupID string) ([]MemberInfo, error) {
	return r.listMembers(ctx, groupID, "u.current_points DESC, m.joined_at, m.rowid")
}

// UserNames resolves display names for the given ids. Missing ids are
// absent from the result.
func (r *SQLiteRepository) UserNames(ctx context.Context, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	placeholders := strings.Repeat("?,", len(ids)-1) + "?"
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, full_name FROM users WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("resolve user names: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan user name: %w", err)
		}
		names[id] = name
	}
	return names, rows.Err()
}
