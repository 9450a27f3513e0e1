package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"hearth/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "hearth.db"))
	if err != nil {
		t.Fatalf("create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedUser(t *testing.T, repo *SQLiteRepository, email string, points int) *core.User {
	t.Helper()
	u := &core.User{Email: email, FullName: "User " + email, HashedPassword: "x", CurrentPoints: points}
	if err := repo.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("seed user %s: %v", email, err)
	}
	return u
}

func seedGroup(t *testing.T, repo *SQLiteRepository, code string, creator *core.User) *core.Group {
	t.Helper()
	g := &core.Group{Name: "Household", InviteCode: code}
	if err := repo.CreateGroup(context.Background(), g, creator.ID); err != nil {
		t.Fatalf("seed group: %v", err)
	}
	return g
}

func balance(t *testing.T, repo *SQLiteRepository, userID string) int {
	t.Helper()
	u, err := repo.GetUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	return u.CurrentPoints
}

func TestAwardPoints(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := seedUser(t, repo, "a@example.com", 5)

	got, err := repo.AwardPoints(ctx, u.ID, 10)
	if err != nil {
		t.Fatalf("AwardPoints: %v", err)
	}
	if got != 15 {
		t.Errorf("new balance = %d, want 15", got)
	}

	if _, err := repo.AwardPoints(ctx, "missing", 10); !errors.Is(err, core.ErrUserNotFound) {
		t.Errorf("award to missing user = %v, want ErrUserNotFound", err)
	}
}

func TestClaimReward(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := seedUser(t, repo, "claimer@example.com", 30)
	g := seedGroup(t, repo, "ABC123", u)

	reward := &core.Reward{Title: "Movie night", Cost: 30, GroupID: g.ID, IsRecurring: true}
	if err := repo.CreateReward(ctx, reward); err != nil {
		t.Fatalf("create reward: %v", err)
	}

	t.Run("unknown reward", func(t *testing.T) {
		if _, err := repo.ClaimReward(ctx, u.ID, "missing"); !errors.Is(err, core.ErrRewardNotFound) {
			t.Errorf("err = %v, want ErrRewardNotFound", err)
		}
	})

	t.Run("debits and creates pending redemption", func(t *testing.T) {
		red, err := repo.ClaimReward(ctx, u.ID, reward.ID)
		if err != nil {
			t.Fatalf("ClaimReward: %v", err)
		}
		if red.Status != core.RedemptionPending {
			t.Errorf("status = %s, want pending", red.Status)
		}
		if red.GroupID != g.ID {
			t.Errorf("group = %s, want the reward's group", red.GroupID)
		}
		if got := balance(t, repo, u.ID); got != 0 {
			t.Errorf("balance = %d, want 0 (cost equals balance)", got)
		}
	})

	t.Run("insufficient balance leaves no redemption", func(t *testing.T) {
		_, err := repo.ClaimReward(ctx, u.ID, reward.ID)
		if !errors.Is(err, core.ErrInsufficientBalance) {
			t.Fatalf("err = %v, want ErrInsufficientBalance", err)
		}
		if got := balance(t, repo, u.ID); got != 0 {
			t.Errorf("balance = %d, want 0 untouched after failed claim", got)
		}
		pending, err := repo.ListPendingRedemptions(ctx, g.ID)
		if err != nil {
			t.Fatalf("list pending: %v", err)
		}
		if len(pending) != 1 {
			t.Errorf("pending redemptions = %d, want only the successful claim", len(pending))
		}
	})

	t.Run("zero cost is a degenerate no-op debit", func(t *testing.T) {
		free := &core.Reward{Title: "Freebie", Cost: 0, GroupID: g.ID}
		if err := repo.CreateReward(ctx, free); err != nil {
			t.Fatalf("create reward: %v", err)
		}
		if _, err := repo.ClaimReward(ctx, u.ID, free.ID); err != nil {
			t.Fatalf("claim free reward: %v", err)
		}
		if got := balance(t, repo, u.ID); got != 0 {
			t.Errorf("balance = %d, want 0", got)
		}
	})
}

func TestResolveRedemption(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := seedUser(t, repo, "r@example.com", 30)
	g := seedGroup(t, repo, "XYZ789", u)

	reward := &core.Reward{Title: "Sleep in", Cost: 30, GroupID: g.ID}
	if err := repo.CreateReward(ctx, reward); err != nil {
		t.Fatalf("create reward: %v", err)
	}

	claim := func(t *testing.T) *core.Redemption {
		t.Helper()
		if _, err := repo.AwardPoints(ctx, u.ID, 30-balance(t, repo, u.ID)); err != nil {
			t.Fatalf("top up: %v", err)
		}
		red, err := repo.ClaimReward(ctx, u.ID, reward.ID)
		if err != nil {
			t.Fatalf("claim: %v", err)
		}
		return red
	}

	t.Run("reject refunds exactly once", func(t *testing.T) {
		red := claim(t)
		if got := balance(t, repo, u.ID); got != 0 {
			t.Fatalf("balance after claim = %d, want 0", got)
		}

		resolved, refunded, err := repo.ResolveRedemption(ctx, red.ID, core.RedemptionRejected)
		if err != nil {
			t.Fatalf("reject: %v", err)
		}
		if resolved.Status != core.RedemptionRejected {
			t.Errorf("status = %s, want rejected", resolved.Status)
		}
		if !refunded {
			t.Error("refunded = false, want true on the first reject")
		}
		if got := balance(t, repo, u.ID); got != 30 {
			t.Errorf("balance after reject = %d, want 30 refunded", got)
		}

		// Second rejection is a no-op, not a second refund.
		again, refunded, err := repo.ResolveRedemption(ctx, red.ID, core.RedemptionRejected)
		if err != nil {
			t.Fatalf("repeat reject: %v", err)
		}
		if again.Status != core.RedemptionRejected {
			t.Errorf("status = %s, want rejected", again.Status)
		}
		if refunded {
			t.Error("refunded = true on repeat reject, want false")
		}
		if got := balance(t, repo, u.ID); got != 30 {
			t.Errorf("balance after double reject = %d, want 30 (refund once)", got)
		}
	})

	t.Run("approve keeps the debit", func(t *testing.T) {
		red := claim(t)
		_, refunded, err := repo.ResolveRedemption(ctx, red.ID, core.RedemptionApproved)
		if err != nil {
			t.Fatalf("approve: %v", err)
		}
		if refunded {
			t.Error("refunded = true on approve, want false")
		}
		if got := balance(t, repo, u.ID); got != 0 {
			t.Errorf("balance after approve = %d, want 0 (debited at claim)", got)
		}

		// Flipping a terminal state is not permitted.
		if _, _, err := repo.ResolveRedemption(ctx, red.ID, core.RedemptionRejected); !errors.Is(err, core.ErrInvalidTransition) {
			t.Errorf("approve then reject = %v, want ErrInvalidTransition", err)
		}
		if got := balance(t, repo, u.ID); got != 0 {
			t.Errorf("balance = %d, want 0 after refused transition", got)
		}
	})

	t.Run("pending decision is rejected", func(t *testing.T) {
		red := claim(t)
		if _, _, err := repo.ResolveRedemption(ctx, red.ID, core.RedemptionPending); !errors.Is(err, core.ErrInvalidTransition) {
			t.Errorf("resolve to pending = %v, want ErrInvalidTransition", err)
		}
	})

	t.Run("unknown redemption", func(t *testing.T) {
		if _, _, err := repo.ResolveRedemption(ctx, "missing", core.RedemptionApproved); !errors.Is(err, core.ErrRedemptionNotFound) {
			t.Errorf("err = %v, want ErrRedemptionNotFound", err)
		}
	})
}

func TestUpdateTaskStatus(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := seedUser(t, repo, "doer@example.com", 0)
	g := seedGroup(t, repo, "TASK01", u)

	t.Run("completion awards the actor once", func(t *testing.T) {
		task := &core.Task{Title: "Dishes", CreatedByID: u.ID, GroupID: g.ID, Points: 10}
		if err := repo.CreateTask(ctx, task); err != nil {
			t.Fatalf("create task: %v", err)
		}

		updated, awarded, err := repo.UpdateTaskStatus(ctx, task.ID, core.TaskCompleted, u.ID)
		if err != nil {
			t.Fatalf("complete: %v", err)
		}
		if updated.Status != core.TaskCompleted || awarded != 10 {
			t.Errorf("status=%s awarded=%d, want completed/10", updated.Status, awarded)
		}
		if got := balance(t, repo, u.ID); got != 10 {
			t.Errorf("balance = %d, want 10", got)
		}

		// Replaying the completed status must not re-award.
		_, awarded, err = repo.UpdateTaskStatus(ctx, task.ID, core.TaskCompleted, u.ID)
		if err != nil {
			t.Fatalf("replay: %v", err)
		}
		if awarded != 0 {
			t.Errorf("replay awarded %d, want 0", awarded)
		}
		if got := balance(t, repo, u.ID); got != 10 {
			t.Errorf("balance after replay = %d, want 10 (no double award)", got)
		}
	})

	t.Run("in_progress moves without award", func(t *testing.T) {
		task := &core.Task{Title: "Laundry", CreatedByID: u.ID, GroupID: g.ID, Points: 5}
		if err := repo.CreateTask(ctx, task); err != nil {
			t.Fatalf("create task: %v", err)
		}
		updated, awarded, err := repo.UpdateTaskStatus(ctx, task.ID, core.TaskInProgress, u.ID)
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if updated.Status != core.TaskInProgress || awarded != 0 {
			t.Errorf("status=%s awarded=%d, want in_progress/0", updated.Status, awarded)
		}
	})

	t.Run("pending approval defers the award", func(t *testing.T) {
		task := &core.Task{Title: "Deep clean", CreatedByID: u.ID, GroupID: g.ID, Points: 20, AssignedToID: u.ID}
		if err := repo.CreateTask(ctx, task); err != nil {
			t.Fatalf("create task: %v", err)
		}
		if _, err := repo.SubmitProof(ctx, task.ID, "http://proofs/1.jpg"); err != nil {
			t.Fatalf("submit proof: %v", err)
		}

		before := balance(t, repo, u.ID)
		_, awarded, err := repo.UpdateTaskStatus(ctx, task.ID, core.TaskCompleted, u.ID)
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if awarded != 0 || balance(t, repo, u.ID) != before {
			t.Error("completion with pending proof must not award points")
		}
	})

	t.Run("recurring completion schedules the next occurrence", func(t *testing.T) {
		due := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
		task := &core.Task{
			Title: "Water plants", CreatedByID: u.ID, GroupID: g.ID,
			Points: 2, Recurrence: core.RecurrenceWeekly, DueDate: due,
		}
		if err := repo.CreateTask(ctx, task); err != nil {
			t.Fatalf("create task: %v", err)
		}
		if _, _, err := repo.UpdateTaskStatus(ctx, task.ID, core.TaskCompleted, u.ID); err != nil {
			t.Fatalf("complete: %v", err)
		}

		tasks, err := repo.ListTasks(ctx, g.ID, 0, 100)
		if err != nil {
			t.Fatalf("list tasks: %v", err)
		}
		var next *core.Task
		for i := range tasks {
			if tasks[i].Title == "Water plants" && tasks[i].Status == core.TaskPending {
				next = &tasks[i]
			}
		}
		if next == nil {
			t.Fatal("no follow-up occurrence scheduled")
		}
		if want := due.AddDate(0, 0, 7); !next.DueDate.Equal(want) {
			t.Errorf("next due = %v, want %v", next.DueDate, want)
		}
	})

	t.Run("unknown task", func(t *testing.T) {
		if _, _, err := repo.UpdateTaskStatus(ctx, "missing", core.TaskCompleted, u.ID); !errors.Is(err, core.ErrTaskNotFound) {
			t.Errorf("err = %v, want ErrTaskNotFound", err)
		}
	})
}

func TestResolveProof(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	assignee := seedUser(t, repo, "kid@example.com", 0)
	approver := seedUser(t, repo, "parent@example.com", 0)
	g := seedGroup(t, repo, "PRF001", approver)

	newPendingProof := func(t *testing.T) *core.Task {
		t.Helper()
		task := &core.Task{Title: "Mow lawn", CreatedByID: approver.ID, GroupID: g.ID, Points: 15, AssignedToID: assignee.ID}
		if err := repo.CreateTask(ctx, task); err != nil {
			t.Fatalf("create task: %v", err)
		}
		if _, err := repo.SubmitProof(ctx, task.ID, "http://proofs/lawn.jpg"); err != nil {
			t.Fatalf("submit proof: %v", err)
		}
		return task
	}

	t.Run("approval awards the assignee once", func(t *testing.T) {
		task := newPendingProof(t)
		resolved, awarded, err := repo.ResolveProof(ctx, task.ID, approver.ID, true)
		if err != nil {
			t.Fatalf("approve: %v", err)
		}
		if resolved.NeedsApproval != core.ApprovalApproved || resolved.ApprovedByID != approver.ID {
			t.Errorf("approval = %s by %s, want approved by approver", resolved.NeedsApproval, resolved.ApprovedByID)
		}
		if awarded != 15 || balance(t, repo, assignee.ID) != 15 {
			t.Errorf("awarded=%d balance=%d, want 15/15", awarded, balance(t, repo, assignee.ID))
		}

		if _, _, err := repo.ResolveProof(ctx, task.ID, approver.ID, true); !errors.Is(err, core.ErrInvalidTransition) {
			t.Errorf("second approval = %v, want ErrInvalidTransition", err)
		}
		if got := balance(t, repo, assignee.ID); got != 15 {
			t.Errorf("balance = %d, want 15 (no double award)", got)
		}
	})

	t.Run("rejection awards nothing and reopens the task", func(t *testing.T) {
		task := newPendingProof(t)
		before := balance(t, repo, assignee.ID)
		resolved, awarded, err := repo.ResolveProof(ctx, task.ID, approver.ID, false)
		if err != nil {
			t.Fatalf("reject: %v", err)
		}
		if resolved.NeedsApproval != core.ApprovalRejected || awarded != 0 {
			t.Errorf("approval=%s awarded=%d, want rejected/0", resolved.NeedsApproval, awarded)
		}
		if resolved.Status != core.TaskPending {
			t.Errorf("status = %s, want pending so the assignee can retry", resolved.Status)
		}
		if resolved.ApprovedByID != approver.ID {
			t.Errorf("approved_by = %s, want the rejecting approver", resolved.ApprovedByID)
		}
		if got := balance(t, repo, assignee.ID); got != before {
			t.Errorf("balance changed on rejection: %d -> %d", before, got)
		}
	})

	t.Run("approval keeps the task completed", func(t *testing.T) {
		task := newPendingProof(t)
		resolved, _, err := repo.ResolveProof(ctx, task.ID, approver.ID, true)
		if err != nil {
			t.Fatalf("approve: %v", err)
		}
		if resolved.Status != core.TaskCompleted {
			t.Errorf("status = %s, want completed", resolved.Status)
		}
	})

	t.Run("task without pending proof", func(t *testing.T) {
		task := &core.Task{Title: "No proof", CreatedByID: approver.ID, GroupID: g.ID, Points: 5}
		if err := repo.CreateTask(ctx, task); err != nil {
			t.Fatalf("create task: %v", err)
		}
		if _, _, err := repo.ResolveProof(ctx, task.ID, approver.ID, true); !errors.Is(err, core.ErrInvalidTransition) {
			t.Errorf("err = %v, want ErrInvalidTransition", err)
		}
	})
}

func TestExpensesStore(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := seedUser(t, repo, "payer@example.com", 0)
	g := seedGroup(t, repo, "EXP001", u)

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	for i, amount := range []float64{12.5, 30, 7.99} {
		e := &core.Expense{
			Description: "Item", Amount: amount, Category: "Grocery",
			PaidByID: u.ID, GroupID: g.ID, CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := repo.CreateExpense(ctx, e); err != nil {
			t.Fatalf("create expense: %v", err)
		}
	}

	t.Run("list newest first", func(t *testing.T) {
		got, err := repo.ListExpenses(ctx, g.ID, 0, 10)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(got) != 3 || got[0].Amount != 7.99 {
			t.Errorf("got %d expenses, first amount %v; want 3 with 7.99 first", len(got), got[0].Amount)
		}
	})

	t.Run("snapshot keeps insertion order", func(t *testing.T) {
		got, err := repo.AllExpenses(ctx, g.ID)
		if err != nil {
			t.Fatalf("all: %v", err)
		}
		if len(got) != 3 || got[0].Amount != 12.5 {
			t.Errorf("snapshot order wrong: %+v", got)
		}
	})

	t.Run("settle drains the exact snapshot", func(t *testing.T) {
		drained, err := repo.DrainGroupExpenses(ctx, g.ID)
		if err != nil {
			t.Fatalf("settle: %v", err)
		}
		if len(drained) != 3 || drained[0].Amount != 12.5 {
			t.Errorf("drained %d expenses, first amount %v; want the 3 recorded ones oldest first", len(drained), drained[0].Amount)
		}
		got, err := repo.AllExpenses(ctx, g.ID)
		if err != nil {
			t.Fatalf("all: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("%d expenses remain after settlement", len(got))
		}

		// Draining an already empty group reports nothing cleared.
		again, err := repo.DrainGroupExpenses(ctx, g.ID)
		if err != nil {
			t.Fatalf("repeat settle: %v", err)
		}
		if len(again) != 0 {
			t.Errorf("repeat drain returned %d expenses, want 0", len(again))
		}
	})
}

func TestLatestSubscriptions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := seedUser(t, repo, "sub@example.com", 0)
	g := seedGroup(t, repo, "SUB001", u)

	older := &core.Expense{
		Description: "Netflix", Amount: 12.99, Category: "Subscriptions",
		IsSubscription: true, BillingDay: 15, PaidByID: u.ID, GroupID: g.ID,
		CreatedAt: time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC),
	}
	newer := &core.Expense{
		Description: "Netflix", Amount: 12.99, Category: "Subscriptions",
		IsSubscription: true, BillingDay: 15, PaidByID: u.ID, GroupID: g.ID,
		CreatedAt: time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC),
	}
	oneOff := &core.Expense{
		Description: "Pizza", Amount: 25, Category: "Food",
		PaidByID: u.ID, GroupID: g.ID,
	}
	for _, e := range []*core.Expense{older, newer, oneOff} {
		if err := repo.CreateExpense(ctx, e); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	subs, err := repo.LatestSubscriptions(ctx)
	if err != nil {
		t.Fatalf("latest subscriptions: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("got %d subscriptions, want 1 (latest posting only)", len(subs))
	}
	if !subs[0].CreatedAt.Equal(newer.CreatedAt) {
		t.Errorf("latest posting = %v, want %v", subs[0].CreatedAt, newer.CreatedAt)
	}
}

func TestGroups(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	admin := seedUser(t, repo, "admin@example.com", 40)
	other := seedUser(t, repo, "member@example.com", 90)
	g := seedGroup(t, repo, "HOME01", admin)

	t.Run("creator becomes admin", func(t *testing.T) {
		m, err := repo.MembershipFor(ctx, admin.ID)
		if err != nil {
			t.Fatalf("membership: %v", err)
		}
		if m.GroupID != g.ID || m.Role != core.RoleAdmin {
			t.Errorf("membership = %+v, want admin of %s", m, g.ID)
		}
	})

	t.Run("no membership", func(t *testing.T) {
		if _, err := repo.MembershipFor(ctx, other.ID); !errors.Is(err, core.ErrNotInGroup) {
			t.Errorf("err = %v, want ErrNotInGroup", err)
		}
		if _, err := repo.MembershipIn(ctx, other.ID, g.ID); !errors.Is(err, core.ErrNotAuthorized) {
			t.Errorf("err = %v, want ErrNotAuthorized", err)
		}
	})

	t.Run("join is idempotent", func(t *testing.T) {
		m := &core.GroupMember{GroupID: g.ID, UserID: other.ID}
		if err := repo.AddMember(ctx, m); err != nil {
			t.Fatalf("join: %v", err)
		}
		if err := repo.AddMember(ctx, &core.GroupMember{GroupID: g.ID, UserID: other.ID}); err != nil {
			t.Fatalf("repeat join: %v", err)
		}
		ids, err := repo.MemberIDs(ctx, g.ID)
		if err != nil {
			t.Fatalf("member ids: %v", err)
		}
		if len(ids) != 2 {
			t.Errorf("member count = %d, want 2", len(ids))
		}
	})

	t.Run("invite code collision", func(t *testing.T) {
		dup := &core.Group{Name: "Other", InviteCode: "HOME01"}
		err := repo.CreateGroup(ctx, dup, other.ID)
		if err == nil || !IsUniqueViolation(err) {
			t.Errorf("duplicate invite code = %v, want unique violation", err)
		}
	})

	t.Run("invite lookup", func(t *testing.T) {
		found, err := repo.GetGroupByInviteCode(ctx, "HOME01")
		if err != nil || found.ID != g.ID {
			t.Errorf("lookup = %+v, %v; want group", found, err)
		}
		if _, err := repo.GetGroupByInviteCode(ctx, "NOPE99"); !errors.Is(err, core.ErrGroupNotFound) {
			t.Errorf("bad code err = %v, want ErrGroupNotFound", err)
		}
	})

	t.Run("leaderboard orders by points", func(t *testing.T) {
		board, err := repo.Leaderboard(ctx, g.ID)
		if err != nil {
			t.Fatalf("leaderboard: %v", err)
		}
		if len(board) != 2 || board[0].UserID != other.ID {
			t.Errorf("leaderboard = %+v, want member with 90 points first", board)
		}
	})
}
