package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/presence/pkg/activity"
	"github.com/papercomputeco/presence/pkg/storage"
)

var (
	pendingDraftsToolName    = "pending_drafts"
	pendingDraftsDescription = "List drafts that passed the quality gate but have not been published yet, oldest first. These are what the next retry pass will try to publish."

	getDraftToolName    = "get_draft"
	getDraftDescription = "Get one draft by id, including its body, quality score per dimension, the judge's rationale and where it was published."

	relatedPostsToolName    = "related_posts"
	relatedPostsDescription = "Find previously published posts related to a topic using semantic search."
)

// PendingDraftsInput represents the input arguments for the pending_drafts tool.
type PendingDraftsInput struct {
	Type  string `json:"type,omitempty" jsonschema:"only return drafts of this content type: post, thread or article"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of drafts to return (default: all)"`
}

// DraftSummary is a draft as shown to an assistant.
type DraftSummary struct {
	ID              int64              `json:"id"`
	Key             string             `json:"key"`
	Type            string             `json:"type"`
	State           string             `json:"state"`
	Score           float64            `json:"score"`
	Dimensions      map[string]float64 `json:"dimensions,omitempty"`
	Rationale       string             `json:"rationale,omitempty"`
	Body            string             `json:"body"`
	CommitSHAs      []string           `json:"commit_shas"`
	PublishAttempts int                `json:"publish_attempts"`
	Location        string             `json:"location,omitempty"`
	CreatedAt       string             `json:"created_at"`
}

// PendingDraftsOutput represents the output of the pending_drafts tool.
type PendingDraftsOutput struct {
	Drafts []DraftSummary `json:"drafts"`
	Count  int            `json:"count"`
}

// GetDraftInput represents the input arguments for the get_draft tool.
type GetDraftInput struct {
	ID int64 `json:"id" jsonschema:"the draft id"`
}

// RelatedPostsInput represents the input arguments for the related_posts tool.
type RelatedPostsInput struct {
	Query string `json:"query" jsonschema:"the topic to search published posts for"`
}

// RelatedPostsOutput represents the output of the related_posts tool.
type RelatedPostsOutput struct {
	Query string   `json:"query"`
	Posts []string `json:"posts"`
	Count int      `json:"count"`
}

func (s *Server) handlePendingDrafts(ctx context.Context, _ *mcp.CallToolRequest, input PendingDraftsInput) (*mcp.CallToolResult, PendingDraftsOutput, error) {
	s.config.Logger.Debug("MCP pending drafts request", "type", input.Type, "limit", input.Limit)

	filter := storage.DraftFilter{State: activity.StatePending, Limit: input.Limit}
	if input.Type != "" {
		ct, err := activity.ParseContentType(input.Type)
		if err != nil {
			return errorResult(err.Error()), PendingDraftsOutput{}, nil
		}
		filter.Type = ct
	}

	drafts, err := s.config.Store.ListDrafts(ctx, filter)
	if err != nil {
		s.config.Logger.Error("failed to list pending drafts", "error", err)
		return errorResult(fmt.Sprintf("Failed to list drafts: %v", err)), PendingDraftsOutput{}, nil
	}

	out := PendingDraftsOutput{Drafts: make([]DraftSummary, 0, len(drafts))}
	for _, d := range drafts {
		out.Drafts = append(out.Drafts, summarize(d))
	}
	out.Count = len(out.Drafts)

	return jsonResult(out), out, nil
}

func (s *Server) handleGetDraft(ctx context.Context, _ *mcp.CallToolRequest, input GetDraftInput) (*mcp.CallToolResult, DraftSummary, error) {
	d, err := s.config.Store.GetDraft(ctx, input.ID)
	if err != nil {
		if storage.IsNotFound(err) {
			return errorResult(fmt.Sprintf("No draft with id %d", input.ID)), DraftSummary{}, nil
		}
		s.config.Logger.Error("failed to get draft", "id", input.ID, "error", err)
		return errorResult(fmt.Sprintf("Failed to get draft: %v", err)), DraftSummary{}, nil
	}

	out := summarize(d)
	return jsonResult(out), out, nil
}

func (s *Server) handleRelatedPosts(ctx context.Context, _ *mcp.CallToolRequest, input RelatedPostsInput) (*mcp.CallToolResult, RelatedPostsOutput, error) {
	posts, err := s.config.Recall.Recall(ctx, input.Query)
	if err != nil {
		s.config.Logger.Error("failed to recall related posts", "error", err)
		return errorResult(fmt.Sprintf("Failed to search published posts: %v", err)), RelatedPostsOutput{}, nil
	}
	if posts == nil {
		posts = []string{}
	}

	out := RelatedPostsOutput{Query: input.Query, Posts: posts, Count: len(posts)}
	return jsonResult(out), out, nil
}

func summarize(d activity.ContentDraft) DraftSummary {
	return DraftSummary{
		ID:              d.ID,
		Key:             d.Key,
		Type:            string(d.Type),
		State:           string(d.State()),
		Score:           d.Score,
		Dimensions:      d.Dimensions,
		Rationale:       d.Rationale,
		Body:            d.Body,
		CommitSHAs:      d.CommitSHAs,
		PublishAttempts: d.PublishAttempts,
		Location:        d.PublishedLocation,
		CreatedAt:       d.CreatedAt.Format(time.RFC3339),
	}
}

// jsonResult serializes structured output into a TextContent block as well,
// for clients that do not read structured content.
func jsonResult(v any) *mcp.CallToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to serialize results: %v", err))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(b)},
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
	}
}
