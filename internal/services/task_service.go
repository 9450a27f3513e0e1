package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"hearth/internal/amqp"
	"hearth/internal/core"
	"hearth/internal/metrics"
	"hearth/internal/storage"
)

// TaskService manages chores and the points they pay out.
type TaskService struct {
	storage    *storage.SQLiteRepository
	amqpClient *amqp.Client
	metrics    *metrics.Metrics
}

func NewTaskService(storage *storage.SQLiteRepository, amqpClient *amqp.Client, m *metrics.Metrics) *TaskService {
	return &TaskService{
		storage:    storage,
		amqpClient: amqpClient,
		metrics:    m,
	}
}

// CreateTask adds a task to the caller's group.
func (s *TaskService) CreateTask(ctx context.Context, callerID string, task core.Task) (*core.Task, error) {
	membership, err := s.storage.MembershipFor(ctx, callerID)
	if err != nil {
		return nil, err
	}
	task.GroupID = membership.GroupID
	task.CreatedByID = callerID
	if task.Status == "" {
		task.Status = core.TaskPending
	}
	if task.Priority == "" {
		task.Priority = core.PriorityMedium
	}
	if task.Points < 0 {
		return nil, fmt.Errorf("%w: points must not be negative", core.ErrValidation)
	}
	if err := task.Validate(); err != nil {
		return nil, err
	}
	if task.AssignedToID != "" {
		if _, err := s.storage.MembershipIn(ctx, task.AssignedToID, task.GroupID); err != nil {
			return nil, fmt.Errorf("%w: assignee is not in the group", core.ErrValidation)
		}
	}
	if err := s.storage.CreateTask(ctx, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// ListTasks returns a page of the group's tasks.
func (s *TaskService) ListTasks(ctx context.Context, callerID, groupID string, offset, limit int) ([]core.Task, error) {
	if _, err := s.storage.MembershipIn(ctx, callerID, groupID); err != nil {
		return nil, err
	}
	return s.storage.ListTasks(ctx, groupID, offset, limit)
}

// UpdateStatus moves a task through its lifecycle. Completing a task
// that needs no approval credits the actor immediately; repeating the
// completed status never credits twice.
func (s *TaskService) UpdateStatus(ctx context.Context, callerID, taskID, status string) (*core.Task, error) {
	newStatus, err := core.ParseTaskStatus(strings.TrimSpace(status))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrValidation, err)
	}

	task, err := s.storage.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if _, err := s.storage.MembershipIn(ctx, callerID, task.GroupID); err != nil {
		return nil, err
	}

	updated, awarded, err := s.storage.UpdateTaskStatus(ctx, taskID, newStatus, callerID)
	if err != nil {
		return nil, err
	}

	if awarded > 0 {
		if s.metrics != nil {
			s.metrics.PointsAwarded.Add(float64(awarded))
		}
		event := amqp.NewEvent(amqp.EventPointsAwarded, updated.GroupID)
		event.UserID = callerID
		event.EntityID = updated.ID
		event.Points = awarded
		s.publish(ctx, event)
	}
	if updated.Status == core.TaskCompleted && task.Status != core.TaskCompleted {
		event := amqp.NewEvent(amqp.EventTaskCompleted, updated.GroupID)
		event.UserID = callerID
		event.EntityID = updated.ID
		s.publish(ctx, event)
	}

	return updated, nil
}

// SubmitProof attaches a completion photo and queues the task for
// approval. No points move until a reviewer decides.
func (s *TaskService) SubmitProof(ctx context.Context, callerID, taskID, photoURL string) (*core.Task, error) {
	if strings.TrimSpace(photoURL) == "" {
		return nil, fmt.Errorf("%w: proof photo URL is required", core.ErrValidation)
	}

	task, err := s.storage.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if _, err := s.storage.MembershipIn(ctx, callerID, task.GroupID); err != nil {
		return nil, err
	}

	return s.storage.SubmitProof(ctx, taskID, photoURL)
}

// ResolveProof approves or rejects a submitted proof. Approval credits
// the assignee.
func (s *TaskService) ResolveProof(ctx context.Context, callerID, taskID string, approve bool) (*core.Task, error) {
	task, err := s.storage.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if _, err := s.storage.MembershipIn(ctx, callerID, task.GroupID); err != nil {
		return nil, err
	}

	updated, awarded, err := s.storage.ResolveProof(ctx, taskID, callerID, approve)
	if err != nil {
		return nil, err
	}

	if awarded > 0 {
		if s.metrics != nil {
			s.metrics.PointsAwarded.Add(float64(awarded))
		}
		event := amqp.NewEvent(amqp.EventPointsAwarded, updated.GroupID)
		event.UserID = updated.AssignedToID
		event.EntityID = updated.ID
		event.Points = awarded
		s.publish(ctx, event)
	}

	slog.InfoContext(ctx, "Proof resolved",
		"task_id", taskID,
		"approved", approve,
		"resolved_by", callerID)

	return updated, nil
}

// DeleteTask removes a task from the caller's group.
func (s *TaskService) DeleteTask(ctx context.Context, callerID, taskID string) error {
	task, err := s.storage.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if _, err := s.storage.MembershipIn(ctx, callerID, task.GroupID); err != nil {
		return err
	}
	return s.storage.DeleteTask(ctx, taskID)
}

func (s *TaskService) publish(ctx context.Context, event *amqp.Event) {
	if s.amqpClient == nil {
		return
	}
	if err := s.amqpClient.PublishEvent(ctx, event); err != nil {
		slog.ErrorContext(ctx, "Failed to publish event",
			"type", event.Type,
			"group_id", event.GroupID,
			"error", err)
	}
}
