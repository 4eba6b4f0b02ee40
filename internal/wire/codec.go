// Package wire implements the wire codec (C1): decoding request bodies
// for each dialect and encoding responses as either a single JSON
// document or an event stream, per spec §4.1.
package wire

import (
	"encoding/json"
	"io"

	"github.com/Laisky/errors/v2"

	"github.com/laiskydev/respgate/internal/apperr"
)

// MaxBodyBytes is the hard cap from spec §4.1 (10 MiB).
const MaxBodyBytes = 10 * 1024 * 1024

// ReadBody reads up to MaxBodyBytes+1 from r and fails with
// apperr.KindPayloadTooLarge if the body exceeds the cap.
func ReadBody(r io.Reader) ([]byte, error) {
	limited := io.LimitReader(r, MaxBodyBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, apperr.New(apperr.KindValidation, "read request body", err)
	}
	if len(body) > MaxBodyBytes {
		return nil, &apperr.Error{Kind: apperr.KindPayloadTooLarge, Message: "request body exceeds 10 MiB"}
	}
	return body, nil
}

// DecodeClaudeRequest unmarshals body as a ClaudeRequest.
func DecodeClaudeRequest(body []byte) (*ClaudeRequest, error) {
	var req ClaudeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, apperr.New(apperr.KindValidation, "decode claude request", err)
	}
	return &req, nil
}

// DecodeOpenAIRequest unmarshals body as an OpenAIRequest.
func DecodeOpenAIRequest(body []byte) (*OpenAIRequest, error) {
	var req OpenAIRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, apperr.New(apperr.KindValidation, "decode openai request", err)
	}
	return &req, nil
}

// DecodeMessageContent normalizes a message's RawContent, which may be
// either a plain JSON string or an array of typed content blocks, into a
// (text, blocks) pair. At most one of the two returns is populated; both
// are empty when raw is empty.
func DecodeMessageContent(raw json.RawMessage) (text string, blocks []ClaudeContentBlock, err error) {
	if len(raw) == 0 {
		return "", nil, nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, nil, nil
	}

	var asBlocks []ClaudeContentBlock
	if err := json.Unmarshal(raw, &asBlocks); err != nil {
		return "", nil, errors.Wrap(err, "decode message content")
	}
	return "", asBlocks, nil
}

// EncodeJSON writes v as a single JSON document. Callers are expected to
// have already set the response status code and Content-Type header.
func EncodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(v); err != nil {
		return apperr.New(apperr.KindTransformation, "encode json response", err)
	}
	return nil
}
