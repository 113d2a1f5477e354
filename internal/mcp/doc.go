// Package mcp implements the Model Context Protocol (MCP) server for faqgate.
//
// The server exposes the FAQ engine to MCP clients over stdio:
//   - ask_faq: Answer a question, or decline with a reason
//   - search_faq: List related FAQ entries without generating an answer
//   - sync_faq: Rebuild the index from the markdown source
//   - get_status: Report index, sync and storage state
//   - get_faq_entry: Return the full text of one entry by chunk_id
//   - add_status_update, list_status_updates: Cache and list incident
//     announcements (when status correlation is enabled)
//   - record_feedback, get_stats: Engagement and interaction log summary
//     (when storage is configured)
//
// # Tool: ask_faq
//
//	Request:
//	{
//	  "name": "ask_faq",
//	  "arguments": {"question": "how do I deploy to staging?"}
//	}
//
//	Response:
//	{
//	  "answered": true,
//	  "outcome": "answered",
//	  "mode": "hybrid",
//	  "answer": "Run kubectl apply ...",
//	  "confidence": {"should_answer": true, "reason": "both thresholds met", ...},
//	  "sources": [{"rank": 1, "chunk_id": "line_3", "heading": "Deploy", ...}]
//	}
//
// A declined question is not an error: answered is false and reason says
// why ("No relevant FAQ content found", a confidence gate reason, or a
// generation failure).
//
// # Error Handling
//
// Handlers return *MCPError values which the framework encodes as JSON-RPC
// errors:
//   - -32602: Invalid params
//   - -32603: Internal error (embedding provider, storage)
//   - -32002: Sync already in progress
//   - -32003: FAQ not indexed yet
//   - -32004: Empty question or query
//   - -32005: Unknown chunk_id or thread_ts
//
// # Logging
//
// stdout is reserved for the protocol; all logs go to stderr.
package mcp
