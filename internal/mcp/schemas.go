package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// askFAQTool returns the tool definition for ask_faq
func askFAQTool() mcp.Tool {
	return mcp.Tool{
		Name:        "ask_faq",
		Description: "Answer a question from the FAQ, declining when the retrieved evidence is weak or ambiguous",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"question": map[string]interface{}{
					"type":        "string",
					"description": "The user's question in natural language",
				},
				"user_id": map[string]interface{}{
					"type":        "string",
					"description": "Optional asking user, recorded in the interaction log",
				},
				"channel_id": map[string]interface{}{
					"type":        "string",
					"description": "Optional channel the question came from",
				},
				"thread_ts": map[string]interface{}{
					"type":        "string",
					"description": "Optional thread timestamp used to attach later engagement",
				},
			},
			Required: []string{"question"},
		},
	}
}

// searchFAQTool returns the tool definition for search_faq
func searchFAQTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_faq",
		Description: "List FAQ entries related to a query without generating an answer",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or keywords)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of entries to return (1-50)",
					"default":     5,
					"minimum":     1,
					"maximum":     50,
				},
			},
			Required: []string{"query"},
		},
	}
}

// syncFAQTool returns the tool definition for sync_faq
func syncFAQTool() mcp.Tool {
	return mcp.Tool{
		Name:        "sync_faq",
		Description: "Rebuild the FAQ index from its markdown source",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"force": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, rebuild even when the source is unchanged",
					"default":     false,
				},
			},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report index, retrieval mode, sync and storage status",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// addStatusUpdateTool returns the tool definition for add_status_update
func addStatusUpdateTool() mcp.Tool {
	return mcp.Tool{
		Name:        "add_status_update",
		Description: "Record an incident or status announcement so related answers can mention it",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"channel_id": map[string]interface{}{
					"type":        "string",
					"description": "Channel the announcement was posted in",
				},
				"message_ts": map[string]interface{}{
					"type":        "string",
					"description": "Message timestamp, unique within the channel",
				},
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Announcement text",
				},
				"link": map[string]interface{}{
					"type":        "string",
					"description": "Permalink to the full message",
				},
			},
			Required: []string{"channel_id", "message_ts", "text"},
		},
	}
}

// getFAQEntryTool returns the tool definition for get_faq_entry
func getFAQEntryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_faq_entry",
		Description: "Fetch the full text of one FAQ entry by the chunk_id returned from ask_faq or search_faq",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"chunk_id": map[string]interface{}{
					"type":        "string",
					"description": "Entry id such as line_12",
				},
			},
			Required: []string{"chunk_id"},
		},
	}
}

// recordFeedbackTool returns the tool definition for record_feedback
func recordFeedbackTool() mcp.Tool {
	return mcp.Tool{
		Name:        "record_feedback",
		Description: "Attach a button click or reaction to the latest answer in a thread",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"thread_ts": map[string]interface{}{
					"type":        "string",
					"description": "Thread timestamp given to ask_faq",
				},
				"clicked": map[string]interface{}{
					"type":        "boolean",
					"description": "The user pressed the answer's feedback button",
					"default":     false,
				},
				"reaction": map[string]interface{}{
					"type":        "string",
					"description": "Emoji reaction name, e.g. thumbsup",
				},
			},
			Required: []string{"thread_ts"},
		},
	}
}

// getStatsTool returns the tool definition for get_stats
func getStatsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_stats",
		Description: "Summarise the interaction log: answer rate, outcomes and recent questions",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"since_hours": map[string]interface{}{
					"type":        "integer",
					"description": "Window to aggregate, in hours (0 for all time)",
					"default":     24,
					"minimum":     0,
				},
				"recent": map[string]interface{}{
					"type":        "integer",
					"description": "Number of most recent interactions to include (0-50)",
					"default":     0,
					"minimum":     0,
					"maximum":     50,
				},
			},
		},
	}
}

// listStatusUpdatesTool returns the tool definition for list_status_updates
func listStatusUpdatesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_status_updates",
		Description: "List cached incident announcements, oldest first, optionally filtered by keyword",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"keywords": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Only updates that matched one of these incident keywords, e.g. outage",
				},
			},
		},
	}
}
