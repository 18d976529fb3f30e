// Package jsonx extracts a JSON object from free-form model output.
//
// The pipeline tries, in order: the whole trimmed response, the body of a
// fenced code block, and the first brace-balanced object in the text.
package jsonx

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

var (
	ErrEmptyResponse = errors.New("empty response")
	ErrMissingJSON   = errors.New("no JSON object found in response")
)

// Extract returns the candidate JSON object text found in raw.
func Extract(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrEmptyResponse
	}

	if strings.HasPrefix(trimmed, "{") && json.Valid([]byte(trimmed)) {
		return trimmed, nil
	}

	if body, ok := fencedBlock(trimmed); ok {
		if json.Valid([]byte(body)) {
			return body, nil
		}
		if payload, ok := findJSONObject(body); ok {
			return payload, nil
		}
	}

	if payload, ok := findJSONObject(trimmed); ok {
		return payload, nil
	}
	return "", ErrMissingJSON
}

// Decode extracts the JSON object in raw and unmarshals it into v.
func Decode(raw string, v any) error {
	payload, err := Extract(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(payload), v)
}

// Object extracts the JSON object in raw as a generic map. Numbers are kept
// as json.Number so callers can tell integers from floats.
func Object(raw string) (map[string]any, error) {
	payload, err := Extract(raw)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(payload)))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, ErrMissingJSON
	}
	return out, nil
}

// DecodeOr decodes raw into a T, returning def and false when nothing usable
// is found.
func DecodeOr[T any](raw string, def T) (T, bool) {
	var v T
	if err := Decode(raw, &v); err != nil {
		return def, false
	}
	return v, true
}

// fencedBlock returns the body of the first ``` block, preferring a json-tagged one.
func fencedBlock(s string) (string, bool) {
	open := strings.Index(s, "```json")
	skip := len("```json")
	if open == -1 {
		open = strings.Index(s, "```")
		skip = 3
	}
	if open == -1 {
		return "", false
	}
	rest := s[open+skip:]
	// drop an info string such as "JSON" on the opening line
	if nl := strings.Index(rest, "\n"); nl != -1 && !strings.Contains(rest[:nl], "{") {
		rest = rest[nl+1:]
	}
	end := strings.Index(rest, "```")
	if end == -1 {
		return strings.TrimSpace(rest), true
	}
	return strings.TrimSpace(rest[:end]), true
}

func findJSONObject(input string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(input); i++ {
		ch := input[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			if depth > 0 {
				inString = !inString
			}
			continue
		}
		if inString {
			continue
		}
		if ch == '{' {
			if depth == 0 {
				start = i
			}
			depth++
			continue
		}
		if ch == '}' {
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				candidate := input[start : i+1]
				if json.Valid([]byte(candidate)) {
					return candidate, true
				}
				start = -1
			}
		}
	}
	return "", false
}
