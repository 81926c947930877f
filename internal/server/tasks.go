package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"todobot/internal/models"
	"todobot/internal/storage"
)

type createTaskRequest struct {
	Title  *string `json:"title"`
	UserID *int64  `json:"user_id"`
}

type updateTaskRequest struct {
	Title  *string `json:"title"`
	Done   *bool   `json:"done"`
	DoneBy *string `json:"done_by"`
}

// handleListTasks lists the tasks of one user, or all tasks without a filter.
func (s *Server) handleListTasks(c *gin.Context) {
	userID, filtered, ok := parseUserFilter(c)
	if !ok {
		return
	}

	var (
		tasks []models.Task
		err   error
	)
	if filtered {
		tasks, err = s.store.ListTasks(c.Request.Context(), userID)
	} else {
		tasks, err = s.store.ListAllTasks(c.Request.Context())
	}
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, tasks)
}

// handleCreateTask inserts a new task for a user.
func (s *Server) handleCreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	if req.UserID == nil {
		respondBadRequest(c, errors.New("user_id is required"))
		return
	}
	if req.Title == nil {
		respondBadRequest(c, errors.New("title is required"))
		return
	}
	title, err := models.ValidateTitle(*req.Title)
	if err != nil {
		respondBadRequest(c, err)
		return
	}

	task, err := s.store.CreateTask(c.Request.Context(), title, *req.UserID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, task)
}

// handleGetTask returns a single task.
func (s *Server) handleGetTask(c *gin.Context) {
	task, ok := s.lookupTask(c)
	if !ok {
		return
	}
	respondSuccess(c, http.StatusOK, task)
}

// handleUpdateTask renames a task and/or changes its done flag.
func (s *Server) handleUpdateTask(c *gin.Context) {
	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	upd := models.TaskUpdate{Done: req.Done}
	if req.Title != nil {
		title, err := models.ValidateTitle(*req.Title)
		if err != nil {
			respondBadRequest(c, err)
			return
		}
		upd.Title = &title
	}
	if req.DoneBy != nil {
		upd.DoneBy = *req.DoneBy
	}

	current, ok := s.lookupTask(c)
	if !ok {
		return
	}

	task, err := s.store.UpdateTask(c.Request.Context(), current.ID, upd)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, task)
}

// handleDeleteTask removes a task completely.
func (s *Server) handleDeleteTask(c *gin.Context) {
	current, ok := s.lookupTask(c)
	if !ok {
		return
	}
	if _, err := s.store.DeleteTask(c.Request.Context(), current.ID); err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusNoContent, nil)
}

// handleMarkDone marks a task done, recording the optional done_by query value.
func (s *Server) handleMarkDone(c *gin.Context) {
	s.setDone(c, true, c.Query("done_by"))
}

// handleMarkUndone reopens a task.
func (s *Server) handleMarkUndone(c *gin.Context) {
	s.setDone(c, false, "")
}

func (s *Server) setDone(c *gin.Context, done bool, actor string) {
	current, ok := s.lookupTask(c)
	if !ok {
		return
	}
	task, err := s.store.SetDone(c.Request.Context(), current.ID, done, actor)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, task)
}

// lookupTask loads the task named by the :id parameter. When the request
// carries a user_id query parameter, a task owned by someone else is
// reported as missing.
func (s *Server) lookupTask(c *gin.Context) (models.Task, bool) {
	id, ok := parseID(c, "id")
	if !ok {
		return models.Task{}, false
	}
	owner, checkOwner, ok := parseUserFilter(c)
	if !ok {
		return models.Task{}, false
	}

	task, err := s.store.GetTask(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return models.Task{}, false
	}
	if checkOwner && task.UserID != owner {
		s.respondError(c, storage.ErrNotFound)
		return models.Task{}, false
	}
	return task, true
}
