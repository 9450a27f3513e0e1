package http

import (
	"context"
	"net/http"
	"time"

	"hearth/internal/auth"
	"hearth/internal/hub"
	"hearth/internal/metrics"
	"hearth/internal/middleware/trace"
	"hearth/internal/services"
)

// Deps bundles everything the HTTP surface needs.
type Deps struct {
	Auth         *services.AuthService
	Groups       *services.GroupService
	Tasks        *services.TaskService
	Expenses     *services.ExpenseService
	Rewards      *services.RewardService
	Achievements *services.AchievementService
	Tokens       *auth.JWTManager
	Metrics      *metrics.Metrics
	Hub          *hub.Hub
}

type Server struct {
	http.Server

	auth         *services.AuthService
	groups       *services.GroupService
	tasks        *services.TaskService
	expenses     *services.ExpenseService
	rewards      *services.RewardService
	achievements *services.AchievementService
	tokens       *auth.JWTManager
	hub          *hub.Hub
}

func NewServer(addr string, deps Deps) *Server {
	s := &Server{
		Server: http.Server{
			Addr:         addr,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		auth:         deps.Auth,
		groups:       deps.Groups,
		tasks:        deps.Tasks,
		expenses:     deps.Expenses,
		rewards:      deps.Rewards,
		achievements: deps.Achievements,
		tokens:       deps.Tokens,
		hub:          deps.Hub,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", handleHealth)
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics.Handler())
	}

	mux.HandleFunc("POST /api/v1/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/v1/auth/login", s.handleLogin)

	mux.HandleFunc("POST /api/v1/groups", s.requireAuth(s.handleCreateGroup))
	mux.HandleFunc("GET /api/v1/groups", s.requireAuth(s.handleListGroups))
	mux.HandleFunc("POST /api/v1/groups/join", s.requireAuth(s.handleJoinGroup))
	mux.HandleFunc("GET /api/v1/groups/{id}/members", s.requireAuth(s.handleMembers))
	mux.HandleFunc("GET /api/v1/groups/{id}/leaderboard", s.requireAuth(s.handleLeaderboard))
	mux.HandleFunc("GET /api/v1/groups/{id}/events", s.requireAuth(s.handleEvents))

	mux.HandleFunc("POST /api/v1/tasks", s.requireAuth(s.handleCreateTask))
	mux.HandleFunc("GET /api/v1/groups/{id}/tasks", s.requireAuth(s.handleListTasks))
	mux.HandleFunc("PATCH /api/v1/tasks/{id}/status", s.requireAuth(s.handleTaskStatus))
	mux.HandleFunc("POST /api/v1/tasks/{id}/proof", s.requireAuth(s.handleSubmitProof))
	mux.HandleFunc("POST /api/v1/tasks/{id}/approval", s.requireAuth(s.handleResolveProof))
	mux.HandleFunc("DELETE /api/v1/tasks/{id}", s.requireAuth(s.handleDeleteTask))

	mux.HandleFunc("POST /api/v1/expenses", s.requireAuth(s.handleRecordExpense))
	mux.HandleFunc("GET /api/v1/groups/{id}/expenses", s.requireAuth(s.handleListExpenses))
	mux.HandleFunc("GET /api/v1/groups/{id}/balances", s.requireAuth(s.handleBalances))
	mux.HandleFunc("POST /api/v1/groups/{id}/settle", s.requireAuth(s.handleSettle))

	mux.HandleFunc("POST /api/v1/rewards", s.requireAuth(s.handleCreateReward))
	mux.HandleFunc("GET /api/v1/groups/{id}/rewards", s.requireAuth(s.handleListRewards))
	mux.HandleFunc("POST /api/v1/rewards/{id}/claim", s.requireAuth(s.handleClaimReward))
	mux.HandleFunc("GET /api/v1/groups/{id}/redemptions/pending", s.requireAuth(s.handlePendingRedemptions))
	mux.HandleFunc("PATCH /api/v1/redemptions/{id}", s.requireAuth(s.handleResolveRedemption))

	mux.HandleFunc("GET /api/v1/achievements", s.requireAuth(s.handleListAchievements))
	mux.HandleFunc("POST /api/v1/achievements/check", s.requireAuth(s.handleCheckAchievements))

	traced := trace.NewMiddleware(deps.Metrics)
	s.Handler = traced.Middleware(mux)

	return s
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.Server.Shutdown(ctx)
}
