package dedup

import (
	"encoding/json"
	"math"
	"strings"
	"unicode/utf8"
)

// commonWords never count as exact matches.
var commonWords = map[string]struct{}{
	"from": {}, "with": {}, "about": {}, "startup": {}, "company": {}, "person": {},
	"the": {}, "and": {}, "or": {}, "at": {}, "in": {}, "to": {}, "for": {}, "of": {},
	"on": {}, "by": {}, "founder": {}, "co-founder": {}, "ceo": {}, "cto": {},
	"data": {}, "tech": {}, "ai": {}, "lead": {}, "head": {}, "director": {}, "manager": {},
}

// Relevance measures lexical overlap between query and text. relevance is the
// fraction of query terms found in text; exact counts the distinctive terms
// (longer than four characters and not common) that were found.
func Relevance(query, text string) (relevance float64, exact int) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return 0, 0
	}
	text = strings.ToLower(text)

	matching := 0
	for _, term := range terms {
		if !strings.Contains(text, term) {
			continue
		}
		matching++
		if _, common := commonWords[term]; utf8.RuneCountInString(term) > 4 && !common {
			exact++
		}
	}
	return float64(matching) / float64(len(terms)), exact
}

// IsContentRelevant is the lexical gate every stored match must pass.
func IsContentRelevant(relevance float64, exact int) bool {
	return relevance >= 0.6 || (exact >= 2 && relevance >= 0.4)
}

// EffectiveThreshold relaxes threshold when lexical evidence corroborates a
// candidate. The result never exceeds threshold.
func EffectiveThreshold(threshold float64, relevant bool, exact int, keywordBoost bool) float64 {
	if !keywordBoost {
		return threshold
	}
	eff := threshold
	switch {
	case relevant && exact >= 2:
		eff = 0.02
	case relevant && exact >= 1:
		eff = math.Max(0.1, threshold-0.4)
	case exact >= 3:
		eff = math.Max(0.2, threshold-0.3)
	}
	return math.Min(eff, threshold)
}

// Entry is one search result with provider field names resolved.
type Entry struct {
	Title   string
	URL     string
	Snippet string
}

// NormalizeRaw flattens a provider payload into entries. Strings are parsed
// as JSON; maps contribute their "organic" (else "results") list; lists are
// taken as-is. Non-object list elements become empty entries so positions
// are preserved. Anything else yields nothing.
func NormalizeRaw(raw any) []Entry {
	switch v := raw.(type) {
	case string:
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err != nil {
			return nil
		}
		if _, isString := decoded.(string); isString {
			return nil
		}
		return NormalizeRaw(decoded)
	case map[string]any:
		list, _ := v["organic"].([]any)
		if len(list) == 0 {
			list, _ = v["results"].([]any)
		}
		return entries(list, []string{"link", "url", "href"}, []string{"description", "snippet"})
	case []any:
		return entries(v, []string{"url", "link", "href"}, []string{"snippet", "description"})
	case []map[string]any:
		list := make([]any, len(v))
		for i, m := range v {
			list[i] = m
		}
		return entries(list, []string{"url", "link", "href"}, []string{"snippet", "description"})
	default:
		return nil
	}
}

func entries(list []any, urlKeys, snippetKeys []string) []Entry {
	out := make([]Entry, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			out = append(out, Entry{})
			continue
		}
		out = append(out, Entry{
			Title:   firstString(m, "title"),
			URL:     firstString(m, urlKeys...),
			Snippet: firstString(m, snippetKeys...),
		})
	}
	return out
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
