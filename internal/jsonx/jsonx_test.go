package jsonx

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
		err  error
	}{
		{"direct", `{"score": 7}`, `{"score": 7}`, nil},
		{"padded", "  \n{\"score\": 7}\n", `{"score": 7}`, nil},
		{"json fence", "Here you go:\n```json\n{\"score\": 8}\n```\nthanks", `{"score": 8}`, nil},
		{"bare fence", "```\n{\"query\": \"a\"}\n```", `{"query": "a"}`, nil},
		{"unterminated fence", "```json\n{\"query\": \"a\"}", `{"query": "a"}`, nil},
		{"prose around", `The answer is {"score": 6, "reasoning": "ok {really}"} as requested.`, `{"score": 6, "reasoning": "ok {really}"}`, nil},
		{"nested", `x {"a": {"b": 1}} y`, `{"a": {"b": 1}}`, nil},
		{"skips invalid first", `{not json} then {"ok": true}`, `{"ok": true}`, nil},
		{"empty", "   ", "", ErrEmptyResponse},
		{"no object", "I cannot answer that.", "", ErrMissingJSON},
		{"unbalanced", `{"score": 7`, "", ErrMissingJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(tt.raw)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, got)
		})
	}
}

func TestObjectKeepsNumbers(t *testing.T) {
	obj, err := Object("```json\n{\"score\": 7, \"ratio\": 7.5}\n```")
	require.NoError(t, err)

	score, ok := obj["score"].(json.Number)
	require.True(t, ok)
	n, err := score.Int64()
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)

	ratio := obj["ratio"].(json.Number)
	_, err = ratio.Int64()
	assert.Error(t, err)
}

func TestDecodeOr(t *testing.T) {
	type plan struct {
		Query string `json:"query"`
	}
	got, ok := DecodeOr(`Sure! {"query": "Jane Doe Acme"}`, plan{Query: "fallback"})
	assert.True(t, ok)
	assert.Equal(t, "Jane Doe Acme", got.Query)

	got, ok = DecodeOr("no json here", plan{Query: "fallback"})
	assert.False(t, ok)
	assert.Equal(t, "fallback", got.Query)
}
