package services

import (
	"context"
	"errors"
	"testing"

	"hearth/internal/core"
	"hearth/internal/metrics"
)

func TestTaskLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewTaskService(repo, nil, metrics.New())
	ctx := context.Background()

	member := seedUser(t, repo, "member@example.com", 0)
	seedGroup(t, repo, "TSK001", member)
	outsider := seedUser(t, repo, "outsider@example.com", 0)

	task, err := svc.CreateTask(ctx, member.ID, core.Task{Title: "Take out trash", Points: 5})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.Status != core.TaskPending {
		t.Errorf("status = %s, want pending", task.Status)
	}

	t.Run("outsider cannot move the task", func(t *testing.T) {
		if _, err := svc.UpdateStatus(ctx, outsider.ID, task.ID, "completed"); !errors.Is(err, core.ErrNotAuthorized) {
			t.Errorf("err = %v, want ErrNotAuthorized", err)
		}
	})

	t.Run("unknown status is rejected", func(t *testing.T) {
		if _, err := svc.UpdateStatus(ctx, member.ID, task.ID, "done"); !errors.Is(err, core.ErrValidation) {
			t.Errorf("err = %v, want ErrValidation", err)
		}
	})

	t.Run("completion pays out once", func(t *testing.T) {
		updated, err := svc.UpdateStatus(ctx, member.ID, task.ID, "completed")
		if err != nil {
			t.Fatalf("UpdateStatus: %v", err)
		}
		if updated.Status != core.TaskCompleted {
			t.Errorf("status = %s, want completed", updated.Status)
		}

		u, err := repo.GetUser(ctx, member.ID)
		if err != nil {
			t.Fatalf("get user: %v", err)
		}
		if u.CurrentPoints != 5 {
			t.Fatalf("balance = %d, want 5", u.CurrentPoints)
		}

		if _, err := svc.UpdateStatus(ctx, member.ID, task.ID, "completed"); err != nil {
			t.Fatalf("replay: %v", err)
		}
		u, _ = repo.GetUser(ctx, member.ID)
		if u.CurrentPoints != 5 {
			t.Errorf("balance after replay = %d, want 5", u.CurrentPoints)
		}
	})
}

func TestTaskValidation(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewTaskService(repo, nil, metrics.New())
	ctx := context.Background()

	member := seedUser(t, repo, "member@example.com", 0)
	seedGroup(t, repo, "VAL001", member)
	outsider := seedUser(t, repo, "out@example.com", 0)

	t.Run("empty title", func(t *testing.T) {
		if _, err := svc.CreateTask(ctx, member.ID, core.Task{Points: 5}); !errors.Is(err, core.ErrValidation) {
			t.Errorf("err = %v, want ErrValidation", err)
		}
	})

	t.Run("negative points", func(t *testing.T) {
		if _, err := svc.CreateTask(ctx, member.ID, core.Task{Title: "Bad", Points: -1}); !errors.Is(err, core.ErrValidation) {
			t.Errorf("err = %v, want ErrValidation", err)
		}
	})

	t.Run("assignee outside the group", func(t *testing.T) {
		_, err := svc.CreateTask(ctx, member.ID, core.Task{Title: "Dust", AssignedToID: outsider.ID})
		if !errors.Is(err, core.ErrValidation) {
			t.Errorf("err = %v, want ErrValidation", err)
		}
	})
}

func TestProofFlow(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewTaskService(repo, nil, metrics.New())
	ctx := context.Background()

	kid := seedUser(t, repo, "kid@example.com", 0)
	parent := seedUser(t, repo, "parent@example.com", 0)
	seedGroup(t, repo, "PRF001", parent, kid)

	task, err := svc.CreateTask(ctx, parent.ID, core.Task{
		Title: "Clean room", Points: 20, AssignedToID: kid.ID,
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	t.Run("proof needs a photo", func(t *testing.T) {
		if _, err := svc.SubmitProof(ctx, kid.ID, task.ID, "  "); !errors.Is(err, core.ErrValidation) {
			t.Errorf("err = %v, want ErrValidation", err)
		}
	})

	submitted, err := svc.SubmitProof(ctx, kid.ID, task.ID, "http://photos/room.jpg")
	if err != nil {
		t.Fatalf("SubmitProof: %v", err)
	}
	if submitted.NeedsApproval != core.ApprovalPending || submitted.Status != core.TaskCompleted {
		t.Errorf("after proof = %s/%s, want pending approval on a completed task",
			submitted.NeedsApproval, submitted.Status)
	}

	u, _ := repo.GetUser(ctx, kid.ID)
	if u.CurrentPoints != 0 {
		t.Fatalf("points moved before approval: %d", u.CurrentPoints)
	}

	resolved, err := svc.ResolveProof(ctx, parent.ID, task.ID, true)
	if err != nil {
		t.Fatalf("ResolveProof: %v", err)
	}
	if resolved.NeedsApproval != core.ApprovalApproved {
		t.Errorf("approval = %s, want approved", resolved.NeedsApproval)
	}

	u, _ = repo.GetUser(ctx, kid.ID)
	if u.CurrentPoints != 20 {
		t.Errorf("balance = %d, want 20 after approval", u.CurrentPoints)
	}

	if _, err := svc.ResolveProof(ctx, parent.ID, task.ID, true); !errors.Is(err, core.ErrInvalidTransition) {
		t.Errorf("double approve err = %v, want ErrInvalidTransition", err)
	}
}
