package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/lokal/pkg/facts"
)

// SearchResponse is the body of GET /v1/facts/search.
type SearchResponse struct {
	Query string       `json:"query"`
	Facts []facts.Fact `json:"facts"`
	Count int          `json:"count"`
}

// handleSearchFacts handles GET /v1/facts/search requests.
// Query parameters:
//   - query (required): the text to find relevant facts for
//   - limit (optional, default 10): maximum number of facts to return
//   - pin (optional, default true): include pinned identity facts
func (s *Server) handleSearchFacts(c *fiber.Ctx) error {
	query := c.Query("query")
	if query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error: "query parameter is required",
		})
	}

	limit, err := limitParam(c, facts.DefaultSearchLimit)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}

	var list []facts.Fact
	if c.QueryBool("pin", true) {
		list, err = s.retriever.RelevantFacts(c.Context(), query, limit)
	} else {
		list, err = s.store.Search(c.Context(), query, limit)
	}
	if err != nil {
		return s.fail(c, "searching facts", err)
	}
	if list == nil {
		list = []facts.Fact{}
	}

	return c.JSON(SearchResponse{Query: query, Facts: list, Count: len(list)})
}

type paramError string

func (e paramError) Error() string { return string(e) }

// limitParam reads the optional limit query parameter.
func limitParam(c *fiber.Ctx, fallback int) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, paramError("limit must be a positive integer")
	}
	return n, nil
}
