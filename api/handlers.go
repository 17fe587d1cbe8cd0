package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/presence/pkg/activity"
	"github.com/papercomputeco/presence/pkg/storage"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// DraftsResponse lists drafts.
type DraftsResponse struct {
	Count  int                     `json:"count"`
	Drafts []activity.ContentDraft `json:"drafts"`
}

// TemplatesResponse lists the versions of one template kind.
type TemplatesResponse struct {
	Kind     activity.TemplateKind      `json:"kind"`
	Active   int                        `json:"active"`
	Versions []activity.TemplateVersion `json:"versions"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleListDrafts returns drafts filtered by ?state=, ?type= and ?limit=,
// newest first. The result never exceeds the configured MaxDrafts.
func (s *Server) handleListDrafts(c *fiber.Ctx) error {
	filter := storage.DraftFilter{Newest: true}

	state, err := activity.ParseDraftState(c.Query("state"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}
	filter.State = state

	if t := c.Query("type"); t != "" {
		ct, err := activity.ParseContentType(t)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
		}
		filter.Type = ct
	}

	filter.Limit = s.config.maxDrafts()
	if l := c.Query("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil || limit < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "limit must be a non-negative integer"})
		}
		if limit > 0 {
			filter.Limit = min(limit, filter.Limit)
		}
	}

	drafts, err := s.store.ListDrafts(c.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list drafts", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to list drafts"})
	}
	if drafts == nil {
		drafts = []activity.ContentDraft{}
	}

	return c.JSON(DraftsResponse{Count: len(drafts), Drafts: drafts})
}

// handleGetDraft returns a single draft by id.
func (s *Server) handleGetDraft(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "id must be an integer"})
	}

	d, err := s.store.GetDraft(c.Context(), id)
	if err != nil {
		if storage.IsNotFound(err) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "draft not found"})
		}
		s.logger.Error("failed to get draft", "id", id, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to get draft"})
	}

	return c.JSON(d)
}

// handleListTemplates returns every version of a template kind. The kind
// may be a content type ("post"), a full kind ("generate:post") or
// "rubric".
func (s *Server) handleListTemplates(c *fiber.Ctx) error {
	kind := activity.ParseTemplateKind(c.Params("kind"))

	versions, err := s.store.ListTemplates(c.Context(), kind)
	if err != nil {
		s.logger.Error("failed to list templates", "kind", kind, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to list templates"})
	}
	if len(versions) == 0 {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "no templates for kind " + string(kind)})
	}

	return c.JSON(TemplatesResponse{
		Kind:     kind,
		Active:   versions[len(versions)-1].Version,
		Versions: versions,
	})
}
