package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/iconforge/iconforge/pkg/icons"
	"github.com/iconforge/iconforge/pkg/models"
	"github.com/iconforge/iconforge/pkg/style"
)

const maxHistoryLimit = 200

type generateArgs struct {
	Topic   string `json:"topic"`
	StyleID int    `json:"style_id"`
	Colors  string `json:"colors"`
}

type historyArgs struct {
	Limit int `json:"limit"`
}

type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

var toolHandlers = map[string]toolHandler{
	"iconforge_generate":    handleGenerate,
	"iconforge_styles":      handleStyles,
	"iconforge_cache_stats": handleCacheStats,
	"iconforge_history":     handleHistory,
}

var allTools = []ToolDefinition{
	{
		Name:        "iconforge_generate",
		Description: "Generate four themed icons for a topic in one of the built-in styles. Returns each item, its image prompt and the image URL.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"topic", "style_id"},
			"properties": map[string]any{
				"topic": map[string]any{
					"type":        "string",
					"description": "Theme to expand into four items, e.g. \"Fruit\"",
				},
				"style_id": map[string]any{
					"type":        "integer",
					"description": "Style id (see iconforge_styles)",
					"minimum":     1,
				},
				"colors": map[string]any{
					"type":        "string",
					"description": "Optional brand color hint, e.g. \"#FF5733\"",
				},
			},
		},
	},
	{
		Name:        "iconforge_styles",
		Description: "List the built-in icon styles and their prompt templates.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "iconforge_cache_stats",
		Description: "Show prompt expansion cache statistics (entries, hits, misses, hit rate).",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "iconforge_history",
		Description: "Show recent generation requests and per-style outcome totals.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"limit": map[string]any{
					"type":        "integer",
					"description": "Number of recent requests to list (default 20)",
				},
			},
		},
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
	}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
		IsError: true,
	}
}

func handleGenerate(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.deps.Generator == nil {
		return errorResult("Icon generation is not configured.")
	}
	var args generateArgs
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return errorResult("Invalid arguments: " + err.Error())
		}
	}
	if strings.TrimSpace(args.Topic) == "" || args.StyleID == 0 {
		return errorResult("topic and style_id are required")
	}

	resp, err := s.deps.Generator.Generate(ctx, models.GenerationRequest{
		Topic:   args.Topic,
		StyleID: args.StyleID,
		Colors:  args.Colors,
	})
	if err != nil {
		msg := fmt.Sprintf("Generation failed (%s): %s", icons.KindOf(err), err)
		if icons.IsRateLimited(err) {
			msg += "\nThe upstream service is rate limiting requests; retry later."
		}
		return errorResult(msg)
	}
	return textResult(formatGeneration(resp))
}

func handleStyles(_ context.Context, _ *Server, _ json.RawMessage) ToolCallResult {
	return textResult(formatStyles(style.All()))
}

func handleCacheStats(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.deps.Cache == nil {
		return textResult("Cache is not configured.")
	}
	stats, err := s.deps.Cache.Stats(ctx)
	if err != nil {
		return errorResult("Error fetching cache stats: " + err.Error())
	}
	return textResult(formatCacheStats(stats))
}

func handleHistory(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.deps.History == nil {
		return textResult("History is not configured.")
	}
	var args historyArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	args.Limit = min(args.Limit, maxHistoryLimit)

	recs, err := s.deps.History.Recent(ctx, args.Limit)
	if err != nil {
		return errorResult("Error fetching history: " + err.Error())
	}
	summaries, err := s.deps.History.Summary(ctx)
	if err != nil {
		return errorResult("Error fetching history summary: " + err.Error())
	}
	return textResult(formatSummary(summaries) + "\n" + formatRecords(recs))
}
