package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/presence/pkg/agenttrace"
	"github.com/papercomputeco/presence/pkg/utils"
)

// handleCommitTrace handles GET /commits/:sha/trace, rendering the active
// correlation links of a commit as an Agent Trace record.
func (s *Server) handleCommitTrace(c *fiber.Ctx) error {
	sha := c.Params("sha")

	links, err := s.store.LinksForCommit(c.Context(), sha, false)
	if err != nil {
		s.logger.Error("failed to load links", "sha", sha, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to load links"})
	}
	if len(links) == 0 {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "no prompts linked to commit " + sha})
	}

	return c.JSON(agenttrace.FromLinks(sha, links, utils.Version))
}
