package common

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseJSON cleans and unmarshals an oracle reply into a type T.
// It handles common LLM quirks like code fences or prose around the payload.
// Objects and arrays are both accepted; whichever opens first wins.
func ParseJSON[T any](response string) (T, error) {
	var zero T
	jsonStr := stripFence(response)

	start := strings.IndexAny(jsonStr, "{[")
	if start == -1 {
		return zero, fmt.Errorf("no JSON value found in response (missing '{' or '[')")
	}
	closer := byte('}')
	if jsonStr[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(jsonStr, closer)
	if end < start {
		return zero, fmt.Errorf("unterminated JSON value in response")
	}
	jsonStr = jsonStr[start : end+1]

	var result T
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return zero, fmt.Errorf("failed to unmarshal JSON: %w\nData: %s", err, jsonStr)
	}

	return result, nil
}

// stripFence returns the body of the first ``` fenced block, if any.
func stripFence(s string) string {
	open := strings.Index(s, "```")
	if open == -1 {
		return s
	}
	body := s[open+3:]
	if nl := strings.IndexByte(body, '\n'); nl != -1 {
		body = body[nl+1:]
	}
	if end := strings.Index(body, "```"); end != -1 {
		body = body[:end]
	}
	return body
}
