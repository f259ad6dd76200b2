package api

import (
	"errors"
	"net/url"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/lokal/pkg/facts"
	"github.com/papercomputeco/lokal/pkg/memory"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ListResponse is the body of GET /v1/facts.
type ListResponse struct {
	Facts []facts.Fact `json:"facts"`
	Count int          `json:"count"`
}

// AddFactRequest is the body of POST /v1/facts.
type AddFactRequest struct {
	Content  string `json:"content"`
	Category string `json:"category,omitempty"`
}

// RecordTurnRequest is the body of POST /v1/turns.
type RecordTurnRequest struct {
	ID        string `json:"id,omitempty"`
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

// RecordTurnResponse is returned once a turn is queued.
type RecordTurnResponse struct {
	TurnID string `json:"turn_id"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleListFacts returns stored facts newest first.
func (s *Server) handleListFacts(c *fiber.Ctx) error {
	limit, err := limitParam(c, 0)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}

	opts := facts.ListOptions{Limit: limit}
	if raw := c.Query("category"); raw != "" {
		opts.Category = facts.ParseCategory(raw)
		if opts.Category == "" {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "unknown category: " + raw})
		}
	}

	list, err := s.store.List(c.Context(), opts)
	if err != nil {
		return s.fail(c, "listing facts", err)
	}
	if list == nil {
		list = []facts.Fact{}
	}

	return c.JSON(ListResponse{Facts: list, Count: len(list)})
}

func (s *Server) handleCountFacts(c *fiber.Ctx) error {
	n, err := s.store.Count(c.Context())
	if err != nil {
		return s.fail(c, "counting facts", err)
	}
	return c.JSON(map[string]int{"count": n})
}

func (s *Server) handleGetFact(c *fiber.Ctx) error {
	f, err := s.store.Get(c.Context(), pathParam(c, "id"))
	if err != nil {
		return s.fail(c, "getting fact", err)
	}
	return c.JSON(f)
}

// handleAddFact stores a fact directly, bypassing extraction and its policy.
func (s *Server) handleAddFact(c *fiber.Ctx) error {
	var req AddFactRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	f, err := s.store.Insert(c.Context(), req.Content, facts.ParseCategory(req.Category))
	if err != nil {
		return s.fail(c, "adding fact", err)
	}

	s.logger.Info("fact added", "fact_id", f.ID, "content", f.Content)
	return c.Status(fiber.StatusCreated).JSON(f)
}

// handleForgetFact removes the fact an id or text reference resolves to.
func (s *Server) handleForgetFact(c *fiber.Ctx) error {
	f, err := s.store.Remove(c.Context(), pathParam(c, "ref"))
	if err != nil {
		return s.fail(c, "forgetting fact", err)
	}

	s.logger.Info("fact forgotten", "fact_id", f.ID, "content", f.Content)
	return c.JSON(f)
}

// handleEraseFacts removes every fact. With a manager the erase waits for an
// in-flight extraction batch to commit.
func (s *Server) handleEraseFacts(c *fiber.Ctx) error {
	var err error
	if s.manager != nil {
		err = s.manager.EraseAll(c.Context())
	} else {
		err = s.store.Clear(c.Context())
	}
	if err != nil {
		return s.fail(c, "erasing facts", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// handleRecordTurn queues a finished turn for background extraction.
func (s *Server) handleRecordTurn(c *fiber.Ctx) error {
	if s.manager == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: memory.ErrNotConfigured.Error()})
	}

	var req RecordTurnRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	t := memory.Turn{ID: req.ID, User: req.User, Assistant: req.Assistant}
	id, ok := s.manager.Enqueue(t)
	if !ok {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: "memory queue is full"})
	}

	return c.Status(fiber.StatusAccepted).JSON(RecordTurnResponse{TurnID: id})
}

// pathParam returns the unescaped route parameter, so text references may
// contain spaces.
func pathParam(c *fiber.Ctx, key string) string {
	raw := c.Params(key)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

// fail maps store errors onto HTTP status codes.
func (s *Server) fail(c *fiber.Ctx, action string, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, facts.ErrValidation):
		status = fiber.StatusBadRequest
	case errors.Is(err, facts.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, facts.ErrUnavailable):
		status = fiber.StatusServiceUnavailable
	}

	if status >= fiber.StatusInternalServerError {
		s.logger.Error(action+" failed", "error", err)
	}
	return c.Status(status).JSON(ErrorResponse{Error: err.Error()})
}
