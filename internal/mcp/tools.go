package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/dshills/faqgate/internal/indexer"
	"github.com/dshills/faqgate/internal/pipeline"
	"github.com/dshills/faqgate/internal/status"
	"github.com/dshills/faqgate/internal/storage"
	"github.com/dshills/faqgate/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams  = -32602 // Invalid method parameters
	ErrorCodeInternalError  = -32603 // Internal JSON-RPC error
	ErrorCodeSyncInProgress = -32002 // Another sync is already running
	ErrorCodeNotIndexed     = -32003 // No snapshot has been published yet
	ErrorCodeEmptyQuery     = -32004 // Query parameter is empty
	ErrorCodeNotFound       = -32005 // Entry or thread does not exist
)

// Search limits
const (
	defaultSearchLimit = 5
	maxSearchLimit     = 50

	defaultStatsHours = 24
	maxRecent         = 50
)

// handleAskFAQ handles the ask_faq tool invocation
func (s *Server) handleAskFAQ(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	question := strings.TrimSpace(getStringDefault(args, "question", ""))
	if question == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "question parameter is required and cannot be empty", map[string]interface{}{
			"param":  "question",
			"reason": "missing or empty",
		})
	}

	res, err := s.deps.Pipeline.Handle(ctx, pipeline.Request{
		Question:  question,
		Type:      storage.InteractionAsk,
		UserID:    getStringDefault(args, "user_id", ""),
		ChannelID: getStringDefault(args, "channel_id", ""),
		ThreadTS:  getStringDefault(args, "thread_ts", ""),
	})
	if err != nil {
		return nil, toolError("failed to answer question", err)
	}

	response := map[string]interface{}{
		"answered":    res.Answered,
		"outcome":     res.Outcome,
		"mode":        res.Mode,
		"generation":  res.Generation,
		"cache_hit":   res.CacheHit,
		"duration_ms": res.Duration.Milliseconds(),
		"sources":     formatSources(res),
	}
	if res.Answered {
		response["answer"] = res.Answer
	} else {
		response["reason"] = res.Reason
	}
	if res.Confidence != nil {
		response["confidence"] = res.Confidence
	}
	if len(res.StatusUpdates) > 0 {
		response["status_updates"] = res.StatusUpdates
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchFAQ handles the search_faq tool invocation
func (s *Server) handleSearchFAQ(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query := strings.TrimSpace(getStringDefault(args, "query", ""))
	if query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", defaultSearchLimit)
	if limit < 1 || limit > maxSearchLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("limit must be between 1 and %d", maxSearchLimit), map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	snap := s.deps.Store.Current()
	if snap.Size() == 0 {
		return nil, newMCPError(ErrorCodeNotIndexed, "FAQ not indexed yet", map[string]interface{}{
			"source": s.deps.Syncer.Source(),
			"hint":   "run sync_faq first",
		})
	}

	startTime := time.Now()
	suggestions, err := s.deps.Suggestions.Search(ctx, query, limit)
	if err != nil {
		return nil, toolError("search failed", err)
	}

	results := make([]map[string]interface{}, len(suggestions))
	for i, sg := range suggestions {
		results[i] = map[string]interface{}{
			"rank":       i + 1,
			"chunk_id":   sg.ChunkID,
			"heading":    sg.Heading,
			"similarity": sg.Similarity,
			"preview":    sg.Preview,
			"url":        sg.URL,
		}
	}

	s.logStorage(ctx, &storage.Interaction{
		Type:     storage.InteractionSearch,
		Question: query,
		Answered: len(suggestions) > 0,
		Mode:     "semantic",
		ChunkIDs: suggestionIDs(suggestions),
	})

	response := map[string]interface{}{
		"query":       query,
		"results":     results,
		"total":       len(results),
		"generation":  snap.Generation,
		"duration_ms": time.Since(startTime).Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSyncFAQ handles the sync_faq tool invocation
func (s *Server) handleSyncFAQ(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	force := getBoolDefault(args, "force", false)

	stats, err := s.deps.Syncer.Sync(ctx, force)
	if errors.Is(err, indexer.ErrSyncInProgress) {
		return nil, newMCPError(ErrorCodeSyncInProgress, "sync already in progress", nil)
	}
	if err != nil {
		return nil, toolError("sync failed", err)
	}

	return mcp.NewToolResultText(formatJSON(formatStats(stats))), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap := s.deps.Store.Current()

	response := map[string]interface{}{
		"indexed": snap.Size() > 0,
		"syncing": s.deps.Syncer.Syncing(),
		"source":  s.deps.Syncer.Source(),
		"mode":    s.deps.Mode,
		"index": map[string]interface{}{
			"generation":  snap.Generation,
			"source_hash": snap.SourceHash,
			"chunks":      snap.Size(),
			"dimension":   snap.Dense.Dimension(),
		},
	}
	if !snap.BuiltAt.IsZero() {
		response["index"].(map[string]interface{})["built_at"] = snap.BuiltAt.Format(time.RFC3339)
	}
	if last := s.deps.Syncer.LastStats(); last != nil {
		response["last_sync"] = formatStats(last)
	}
	if s.deps.Status != nil {
		response["status_updates_cached"] = s.deps.Status.Size()
	}

	if s.deps.Storage != nil {
		st, err := s.deps.Storage.GetStatus(ctx)
		if err != nil {
			return nil, newMCPError(ErrorCodeInternalError, "failed to get storage status", map[string]interface{}{
				"error": err.Error(),
			})
		}
		storageInfo := map[string]interface{}{
			"schema_version":   st.SchemaVersion,
			"sqlite_version":   st.SQLiteVersion,
			"build_mode":       st.BuildMode,
			"snapshots":        st.Snapshots,
			"interactions":     st.Interactions,
			"database_size_mb": fmt.Sprintf("%.2f", st.DatabaseSizeMB),
			"database_healthy": st.DatabaseHealthy,
		}
		if !st.LatestBuiltAt.IsZero() {
			storageInfo["latest_built_at"] = st.LatestBuiltAt.Format(time.RFC3339)
		}
		response["storage"] = storageInfo
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleAddStatusUpdate handles the add_status_update tool invocation
func (s *Server) handleAddStatusUpdate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	for _, param := range []string{"channel_id", "message_ts", "text"} {
		if strings.TrimSpace(getStringDefault(args, param, "")) == "" {
			return nil, newMCPError(ErrorCodeInvalidParams, param+" parameter is required", map[string]interface{}{
				"param":  param,
				"reason": "missing or empty",
			})
		}
	}

	update, ok := status.FromMessage(
		getStringDefault(args, "channel_id", ""),
		getStringDefault(args, "message_ts", ""),
		getStringDefault(args, "text", ""),
		getStringDefault(args, "link", ""),
		time.Time{},
	)
	if !ok {
		response := map[string]interface{}{
			"cached": false,
			"reason": "message mentions no incident keyword",
		}
		return mcp.NewToolResultText(formatJSON(response)), nil
	}

	s.deps.Status.Add(update)
	response := map[string]interface{}{
		"cached":   true,
		"keywords": update.Keywords,
		"size":     s.deps.Status.Size(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleListStatusUpdates handles the list_status_updates tool invocation
func (s *Server) handleListStatusUpdates(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	keywords, err := getStringSlice(args, "keywords")
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, err.Error(), map[string]interface{}{"param": "keywords"})
	}

	updates := s.deps.Status.Recent(keywords)
	response := map[string]interface{}{
		"updates": updates,
		"total":   len(updates),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetFAQEntry handles the get_faq_entry tool invocation
func (s *Server) handleGetFAQEntry(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	id := strings.TrimSpace(getStringDefault(args, "chunk_id", ""))
	if id == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "chunk_id parameter is required", map[string]interface{}{
			"param":  "chunk_id",
			"reason": "missing or empty",
		})
	}

	snap := s.deps.Store.Current()
	chunk, found := snap.ChunkByID(id)
	if !found {
		return nil, newMCPError(ErrorCodeNotFound, "no FAQ entry with that id", map[string]interface{}{
			"chunk_id":   id,
			"generation": snap.Generation,
		})
	}

	response := map[string]interface{}{
		"chunk_id":   chunk.ID,
		"heading":    chunk.Heading,
		"content":    chunk.Content,
		"url":        chunk.SourceURL,
		"generation": snap.Generation,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleRecordFeedback handles the record_feedback tool invocation
func (s *Server) handleRecordFeedback(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	threadTS := strings.TrimSpace(getStringDefault(args, "thread_ts", ""))
	if threadTS == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "thread_ts parameter is required", map[string]interface{}{
			"param":  "thread_ts",
			"reason": "missing or empty",
		})
	}
	clicked := getBoolDefault(args, "clicked", false)
	reaction := strings.Trim(strings.TrimSpace(getStringDefault(args, "reaction", "")), ":")
	if !clicked && reaction == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "either clicked or reaction must be given", nil)
	}

	err := s.deps.Storage.UpdateEngagement(ctx, threadTS, clicked, reaction)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, newMCPError(ErrorCodeNotFound, "no interaction recorded for thread", map[string]interface{}{
			"thread_ts": threadTS,
		})
	}
	if err != nil {
		return nil, toolError("failed to record feedback", err)
	}

	response := map[string]interface{}{
		"recorded":  true,
		"thread_ts": threadTS,
		"clicked":   clicked,
	}
	if reaction != "" {
		response["reaction"] = reaction
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStats handles the get_stats tool invocation
func (s *Server) handleGetStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	hours := getIntDefault(args, "since_hours", defaultStatsHours)
	recent := getIntDefault(args, "recent", 0)
	if hours < 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "since_hours cannot be negative", map[string]interface{}{
			"param": "since_hours",
			"value": hours,
		})
	}
	if recent < 0 || recent > maxRecent {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("recent must be between 0 and %d", maxRecent), map[string]interface{}{
			"param": "recent",
			"value": recent,
		})
	}

	var since time.Time
	if hours > 0 {
		since = time.Now().Add(-time.Duration(hours) * time.Hour)
	}
	stats, err := s.deps.Storage.InteractionStats(ctx, since)
	if err != nil {
		return nil, toolError("failed to aggregate interactions", err)
	}

	response := map[string]interface{}{
		"since_hours":          hours,
		"total":                stats.Total,
		"answered":             stats.Answered,
		"answer_rate":          stats.AnswerRate,
		"avg_confidence":       stats.AvgConfidence,
		"status_updates_shown": stats.StatusUpdatesShown,
		"by_type":              stats.ByType,
		"by_outcome":           stats.ByOutcome,
	}

	if recent > 0 {
		records, err := s.deps.Storage.ListInteractions(ctx, storage.InteractionFilter{Since: since, Limit: recent})
		if err != nil {
			return nil, toolError("failed to list interactions", err)
		}
		items := make([]map[string]interface{}, len(records))
		for i, rec := range records {
			items[i] = map[string]interface{}{
				"timestamp": rec.Timestamp.Format(time.RFC3339),
				"type":      rec.Type,
				"question":  rec.Question,
				"outcome":   rec.Outcome,
				"mode":      rec.Mode,
				"chunk_ids": rec.ChunkIDs,
			}
		}
		response["recent"] = items
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

func (s *Server) logStorage(ctx context.Context, rec *storage.Interaction) {
	if s.deps.Storage == nil {
		return
	}
	if err := s.deps.Storage.LogInteraction(ctx, rec); err != nil {
		s.logger.Warn("failed to log interaction", zap.Error(err))
	}
}

// toolError maps an application error onto an MCP error code.
func toolError(message string, err error) error {
	code := ErrorCodeInternalError
	if errors.Is(err, types.ErrValidation) {
		code = ErrorCodeInvalidParams
	}
	return newMCPError(code, message, map[string]interface{}{
		"error": err.Error(),
	})
}

func formatSources(res *pipeline.AnswerResult) []map[string]interface{} {
	sources := make([]map[string]interface{}, len(res.Results))
	for i, r := range res.Results {
		sources[i] = map[string]interface{}{
			"rank":     i + 1,
			"chunk_id": r.Chunk.ID,
			"heading":  r.Chunk.Heading,
			"score":    r.Score,
			"url":      r.Chunk.SourceURL,
		}
	}
	return sources
}

func formatStats(stats *indexer.Statistics) map[string]interface{} {
	out := map[string]interface{}{
		"generation":  stats.Generation,
		"source_hash": stats.SourceHash,
		"chunks":      stats.Chunks,
		"batches":     stats.Batches,
		"skipped":     stats.Skipped,
		"persisted":   stats.Persisted,
		"pruned":      stats.Pruned,
		"duration_ms": stats.Duration.Milliseconds(),
	}
	if stats.Reason != "" {
		out["reason"] = stats.Reason
	}
	return out
}

func suggestionIDs(suggestions []pipeline.Suggestion) []string {
	ids := make([]string, len(suggestions))
	for i, sg := range suggestions {
		ids[i] = sg.ChunkID
	}
	return ids
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts an optional array of strings.
func getStringSlice(args map[string]interface{}, key string) ([]string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%s must be an array of strings", key)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		str, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s must be an array of strings", key)
		}
		out = append(out, str)
	}
	return out, nil
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
