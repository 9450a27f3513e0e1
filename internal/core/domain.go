package core

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
)

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
)

const (
	ApprovalNone     ApprovalState = "no"
	ApprovalPending  ApprovalState = "pending"
	ApprovalApproved ApprovalState = "approved"
	ApprovalRejected ApprovalState = "rejected"
)

const (
	RedemptionPending  RedemptionStatus = "pending"
	RedemptionApproved RedemptionStatus = "approved"
	RedemptionRejected RedemptionStatus = "rejected"
)

const (
	RecurrenceNone    Recurrence = ""
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
)

const (
	CriteriaTasksCompleted CriteriaType = "tasks_completed"
	CriteriaPointsEarned   CriteriaType = "points_earned"
)

type (
	Role             string
	TaskStatus       string
	TaskPriority     string
	ApprovalState    string
	RedemptionStatus string
	Recurrence       string
	CriteriaType     string

	User struct {
		ID             string    `json:"id"`
		Email          string    `json:"email"`
		FullName       string    `json:"full_name"`
		HashedPassword string    `json:"-"`
		AvatarURL      string    `json:"avatar_url,omitempty"`
		IsActive       bool      `json:"is_active"`
		CurrentPoints  int       `json:"current_points"`
		CreatedAt      time.Time `json:"created_at"`
	}

	Group struct {
		ID         string    `json:"id"`
		Name       string    `json:"name"`
		InviteCode string    `json:"invite_code"`
		CreatedAt  time.Time `json:"created_at"`
	}

	GroupMember struct {
		ID       string    `json:"id"`
		GroupID  string    `json:"group_id"`
		UserID   string    `json:"user_id"`
		Role     Role      `json:"role"`
		JoinedAt time.Time `json:"joined_at"`
	}

	Expense struct {
		ID             string    `json:"id"`
		Description    string    `json:"description"`
		Amount         float64   `json:"amount"`
		Category       string    `json:"category"`
		IsSubscription bool      `json:"is_subscription"`
		BillingDay     int       `json:"billing_day,omitempty"` // day of month, 0 when not a subscription
		PaidByID       string    `json:"paid_by_id"`
		GroupID        string    `json:"group_id"`
		CreatedAt      time.Time `json:"created_at"`
	}

	Reward struct {
		ID          string    `json:"id"`
		Title       string    `json:"title"`
		Description string    `json:"description,omitempty"`
		Cost        int       `json:"cost"`
		GroupID     string    `json:"group_id"`
		IsRecurring bool      `json:"is_recurring"`
		CreatedAt   time.Time `json:"created_at"`
	}

	Redemption struct {
		ID        string           `json:"id"`
		UserID    string           `json:"user_id"`
		RewardID  string           `json:"reward_id"`
		GroupID   string           `json:"group_id"`
		Status    RedemptionStatus `json:"status"`
		CreatedAt time.Time        `json:"created_at"`
	}

	Task struct {
		ID            string        `json:"id"`
		Title         string        `json:"title"`
		Description   string        `json:"description,omitempty"`
		AssignedToID  string        `json:"assigned_to_id,omitempty"`
		CreatedByID   string        `json:"created_by_id"`
		GroupID       string        `json:"group_id"`
		Priority      TaskPriority  `json:"priority"`
		Status        TaskStatus    `json:"status"`
		Points        int           `json:"points"`
		CreatedAt     time.Time     `json:"created_at"`
		DueDate       time.Time     `json:"due_date,omitzero"`
		Recurrence    Recurrence    `json:"recurrence,omitempty"`
		ProofPhotoURL string        `json:"proof_photo_url,omitempty"`
		NeedsApproval ApprovalState `json:"needs_approval"`
		ApprovedByID  string        `json:"approved_by_id,omitempty"`
	}

	// Achievement is a fixed catalog entry; the criteria decide when a
	// user earns it.
	Achievement struct {
		ID            string       `json:"id"`
		Name          string       `json:"name"`
		Description   string       `json:"description"`
		Icon          string       `json:"icon"`
		CriteriaType  CriteriaType `json:"criteria_type"`
		CriteriaValue int          `json:"criteria_value"`
	}

	// UserAchievement records when a user earned an achievement. At
	// most one row exists per (user, achievement) pair.
	UserAchievement struct {
		ID            string    `json:"id"`
		UserID        string    `json:"user_id"`
		AchievementID string    `json:"achievement_id"`
		EarnedAt      time.Time `json:"earned_at"`
	}
)

// Operational errors surfaced to callers. The HTTP layer maps these to
// status codes; none of them is retried automatically.
var (
	ErrNotInGroup          = errors.New("user is not in a group")
	ErrInsufficientBalance = errors.New("insufficient point balance")
	ErrRewardNotFound      = errors.New("reward not found")
	ErrExpenseNotFound     = errors.New("expense not found")
	ErrRedemptionNotFound  = errors.New("redemption not found")
	ErrTaskNotFound        = errors.New("task not found")
	ErrGroupNotFound       = errors.New("group not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrInvalidTransition   = errors.New("invalid state transition")
	ErrNotAuthorized       = errors.New("not authorized")
	ErrEmailTaken          = errors.New("email already registered")
)

// Validation errors. ErrValidation is the common ancestor used for
// request-level rejections; the named ones wrap it.
var (
	ErrValidation        = errors.New("validation failed")
	ErrInvalidAmount     = fmt.Errorf("%w: invalid amount", ErrValidation)
	ErrEmptyDescription  = fmt.Errorf("%w: empty description", ErrValidation)
	ErrEmptyCategory     = fmt.Errorf("%w: empty category", ErrValidation)
	ErrEmptyTitle        = fmt.Errorf("%w: empty title", ErrValidation)
	ErrInvalidBillingDay = fmt.Errorf("%w: billing day must be between 1 and 31", ErrValidation)
)

func ParseTaskStatus(s string) (TaskStatus, error) {
	switch TaskStatus(s) {
	case TaskPending, TaskInProgress, TaskCompleted:
		return TaskStatus(s), nil
	}
	return "", errors.New("unknown task status: " + s)
}

func ParseTaskPriority(s string) (TaskPriority, error) {
	switch TaskPriority(s) {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return TaskPriority(s), nil
	}
	return "", errors.New("unknown task priority: " + s)
}

func ParseApprovalState(s string) (ApprovalState, error) {
	switch ApprovalState(s) {
	case ApprovalNone, ApprovalPending, ApprovalApproved, ApprovalRejected:
		return ApprovalState(s), nil
	}
	return "", errors.New("unknown approval state: " + s)
}

func ParseRedemptionStatus(s string) (RedemptionStatus, error) {
	switch RedemptionStatus(s) {
	case RedemptionPending, RedemptionApproved, RedemptionRejected:
		return RedemptionStatus(s), nil
	}
	return "", errors.New("unknown redemption status: " + s)
}

// Terminal reports whether no further transition is permitted.
func (s RedemptionStatus) Terminal() bool {
	return s == RedemptionApproved || s == RedemptionRejected
}

func ParseCriteriaType(s string) (CriteriaType, error) {
	switch CriteriaType(s) {
	case CriteriaTasksCompleted, CriteriaPointsEarned:
		return CriteriaType(s), nil
	}
	return "", errors.New("unknown criteria type: " + s)
}

// Met reports whether a user's progress satisfies the achievement's
// criteria. completedTasks counts the tasks the user finished;
// currentPoints is the user's live balance.
func (a Achievement) Met(completedTasks, currentPoints int) bool {
	switch a.CriteriaType {
	case CriteriaTasksCompleted:
		return completedTasks >= a.CriteriaValue
	case CriteriaPointsEarned:
		return currentPoints >= a.CriteriaValue
	}
	return false
}

func ParseRecurrence(s string) (Recurrence, error) {
	switch Recurrence(s) {
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return Recurrence(s), nil
	}
	return "", errors.New("unknown recurrence: " + s)
}

// NextDue returns the due date of the following occurrence. Monthly
// recurrence uses a fixed 30-day interval.
func (r Recurrence) NextDue(from time.Time) time.Time {
	switch r {
	case RecurrenceDaily:
		return from.AddDate(0, 0, 1)
	case RecurrenceWeekly:
		return from.AddDate(0, 0, 7)
	case RecurrenceMonthly:
		return from.AddDate(0, 0, 30)
	}
	return time.Time{}
}

func (e Expense) Validate() error {
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(e.Description) > 200 {
		return fmt.Errorf("%w: description too long (max 200 characters)", ErrValidation)
	}
	if e.Amount <= 0 || math.IsInf(e.Amount, 0) || math.IsNaN(e.Amount) {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	if e.IsSubscription && (e.BillingDay < 1 || e.BillingDay > 31) {
		return ErrInvalidBillingDay
	}
	return nil
}

// Validate checks the catalog fields. A zero or negative cost is accepted:
// claiming such a reward is a degenerate no-op on the ledger.
func (r Reward) Validate() error {
	if len(strings.TrimSpace(r.Title)) == 0 {
		return ErrEmptyTitle
	}
	if len(r.Title) > 200 {
		return fmt.Errorf("%w: title too long (max 200 characters)", ErrValidation)
	}
	return nil
}

func (t Task) Validate() error {
	if len(strings.TrimSpace(t.Title)) == 0 {
		return ErrEmptyTitle
	}
	if len(t.Title) > 200 {
		return fmt.Errorf("%w: title too long (max 200 characters)", ErrValidation)
	}
	if _, err := ParseTaskStatus(string(t.Status)); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if _, err := ParseTaskPriority(string(t.Priority)); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if _, err := ParseRecurrence(string(t.Recurrence)); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}
