package http

import (
	"fmt"
	"net/http"
	"time"

	"hearth/internal/core"
)

type createTaskRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	AssignedToID string `json:"assigned_to_id"`
	Priority     string `json:"priority"`
	Points       int    `json:"points"`
	DueDate      string `json:"due_date"`
	Recurrence   string `json:"recurrence"`
}

type taskStatusRequest struct {
	Status string `json:"status"`
}

type proofRequest struct {
	PhotoURL string `json:"photo_url"`
}

type approvalRequest struct {
	Approve bool `json:"approve"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	task := core.Task{
		Title:        req.Title,
		Description:  req.Description,
		AssignedToID: req.AssignedToID,
		Points:       req.Points,
	}
	if req.Priority != "" {
		priority, err := core.ParseTaskPriority(req.Priority)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: %v", core.ErrValidation, err))
			return
		}
		task.Priority = priority
	}
	if req.Recurrence != "" {
		recurrence, err := core.ParseRecurrence(req.Recurrence)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: %v", core.ErrValidation, err))
			return
		}
		task.Recurrence = recurrence
	}
	if req.DueDate != "" {
		due, err := time.Parse("2006-01-02", req.DueDate)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: due date must be YYYY-MM-DD", core.ErrValidation))
			return
		}
		task.DueDate = due
	}

	created, err := s.tasks.CreateTask(r.Context(), callerID(r.Context()), task)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	offset, limit := parsePage(r)
	tasks, err := s.tasks.ListTasks(r.Context(), callerID(r.Context()), r.PathValue("id"), offset, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	var req taskStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	task, err := s.tasks.UpdateStatus(r.Context(), callerID(r.Context()), r.PathValue("id"), req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleSubmitProof(w http.ResponseWriter, r *http.Request) {
	var req proofRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	task, err := s.tasks.SubmitProof(r.Context(), callerID(r.Context()), r.PathValue("id"), req.PhotoURL)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleResolveProof(w http.ResponseWriter, r *http.Request) {
	var req approvalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	task, err := s.tasks.ResolveProof(r.Context(), callerID(r.Context()), r.PathValue("id"), req.Approve)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.tasks.DeleteTask(r.Context(), callerID(r.Context()), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
