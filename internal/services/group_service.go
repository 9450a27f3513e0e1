package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"hearth/internal/core"
	"hearth/internal/storage"
)

const (
	inviteCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	inviteCodeLength   = 6
	inviteCodeRetries  = 5
)

// GroupService manages households and their membership.
type GroupService struct {
	storage  *storage.SQLiteRepository
	expenses *ExpenseService
}

// NewGroupService creates a group service. The expense service is used
// to invalidate cached balances when membership changes; it may be nil.
func NewGroupService(storage *storage.SQLiteRepository, expenses *ExpenseService) *GroupService {
	return &GroupService{
		storage:  storage,
		expenses: expenses,
	}
}

// CreateGroup creates a household with the creator as admin. Invite
// code collisions are retried with a fresh code.
func (s *GroupService) CreateGroup(ctx context.Context, creatorID, name string) (*core.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: group name is required", core.ErrValidation)
	}

	var lastErr error
	for attempt := 0; attempt < inviteCodeRetries; attempt++ {
		code, err := generateInviteCode()
		if err != nil {
			return nil, err
		}

		g := &core.Group{Name: name, InviteCode: code}
		if err := s.storage.CreateGroup(ctx, g, creatorID); err != nil {
			if storage.IsUniqueViolation(err) {
				lastErr = err
				continue
			}
			return nil, err
		}

		slog.InfoContext(ctx, "Group created", "group_id", g.ID, "creator_id", creatorID)
		return g, nil
	}
	return nil, fmt.Errorf("generate unique invite code: %w", lastErr)
}

// JoinGroup adds a user to the group behind an invite code. Joining a
// group the user is already in succeeds without change.
func (s *GroupService) JoinGroup(ctx context.Context, userID, inviteCode string) (*core.Group, error) {
	code := strings.ToUpper(strings.TrimSpace(inviteCode))
	if code == "" {
		return nil, fmt.Errorf("%w: invite code is required", core.ErrValidation)
	}

	g, err := s.storage.GetGroupByInviteCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if err := s.storage.AddMember(ctx, &core.GroupMember{GroupID: g.ID, UserID: userID}); err != nil {
		return nil, err
	}

	// The per-person share changed, cached balances are stale.
	if s.expenses != nil {
		s.expenses.InvalidateBalances(g.ID)
	}

	slog.InfoContext(ctx, "User joined group", "group_id", g.ID, "user_id", userID)
	return g, nil
}

// ListGroups returns the groups a user belongs to.
func (s *GroupService) ListGroups(ctx context.Context, userID string) ([]core.Group, error) {
	return s.storage.ListGroupsForUser(ctx, userID)
}

// Members lists the members of a group the caller belongs to.
func (s *GroupService) Members(ctx context.Context, callerID, groupID string) ([]storage.MemberInfo, error) {
	if _, err := s.storage.MembershipIn(ctx, callerID, groupID); err != nil {
		return nil, err
	}
	return s.storage.ListMembers(ctx, groupID)
}

// Leaderboard lists members ordered by point balance, highest first.
func (s *GroupService) Leaderboard(ctx context.Context, callerID, groupID string) ([]storage.MemberInfo, error) {
	if _, err := s.storage.MembershipIn(ctx, callerID, groupID); err != nil {
		return nil, err
	}
	return s.storage.Leaderboard(ctx, groupID)
}

func generateInviteCode() (string, error) {
	code := make([]byte, inviteCodeLength)
	max := big.NewInt(int64(len(inviteCodeAlphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate invite code: %w", err)
		}
		code[i] = inviteCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}
