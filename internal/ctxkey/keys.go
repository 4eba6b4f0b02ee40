// Package ctxkey centralizes the gin.Context keys the pipeline shares,
// mirroring the teacher's common/ctxkey package so every component reads
// and writes the same string instead of redeclaring local constants.
package ctxkey

const (
	CorrelationID  = "correlation_id"
	ConversationID = "conversation_id"
	Dialect        = "dialect"
	RequestBody    = "request_body"
	ReasoningHint  = "reasoning_hint_override"
	ClientKey      = "client_key"
)
