package evidence

import "testing"

func TestCountWithPayload(t *testing.T) {
	records := []Record{
		{Source: SourceWebSearch, Query: "a", Payload: []Item{{Title: "x"}}},
		{Source: SourceWebSearch, Query: "b", Error: "search failed"},
		{Source: SourceKnowledgeStore, Query: "c", Payload: []Item{{Title: "y"}}, FoundExisting: true},
	}
	if got := CountWithPayload(records); got != 2 {
		t.Fatalf("CountWithPayload = %d, want 2", got)
	}
	kept := WithPayload(records)
	if len(kept) != 2 || kept[0].Query != "a" || kept[1].Query != "c" {
		t.Fatalf("WithPayload = %+v", kept)
	}
	if CountWithPayload(nil) != 0 {
		t.Fatal("nil records should count zero")
	}
}
