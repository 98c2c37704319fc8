package rag

import (
	"context"
	"fmt"
	"testing"
)

func expanderFixture() *fakeStore {
	store := newFakeStore()
	for i := 0; i < 5; i++ {
		store.add("t1", ChunkMetadata{
			ID: fmt.Sprintf("a%d", i), DocumentID: "docA", ChunkIndex: i,
		}, fmt.Sprintf("docA part %d", i))
	}
	for i := 0; i < 3; i++ {
		store.add("t1", ChunkMetadata{
			ID: fmt.Sprintf("b%d", i), DocumentID: "docB", ChunkIndex: i,
		}, fmt.Sprintf("docB part %d", i))
	}
	return store
}

func ids(chunks []ChunkContent) []string {
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, c.ID)
	}
	return out
}

func TestExpandAddsNeighbors(t *testing.T) {
	e := NewContextExpander(expanderFixture(), 10, 500)
	chunks, err := e.Expand(context.Background(), "t1", []string{"a2"})
	if err != nil {
		t.Fatal(err)
	}
	got := ids(chunks)
	want := []string{"a1", "a2", "a3"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestExpandBoundaryChunksHaveOneNeighbor(t *testing.T) {
	e := NewContextExpander(expanderFixture(), 10, 500)
	chunks, err := e.Expand(context.Background(), "t1", []string{"a0"})
	if err != nil {
		t.Fatal(err)
	}
	got := ids(chunks)
	if len(got) != 2 || got[0] != "a0" || got[1] != "a1" {
		t.Fatalf("first chunk must gain only a following neighbor, got %v", got)
	}

	chunks, err = e.Expand(context.Background(), "t1", []string{"a4"})
	if err != nil {
		t.Fatal(err)
	}
	got = ids(chunks)
	if len(got) != 2 || got[0] != "a3" || got[1] != "a4" {
		t.Fatalf("last chunk must gain only a preceding neighbor, got %v", got)
	}
}

func TestExpandDedupesOverlappingSelections(t *testing.T) {
	e := NewContextExpander(expanderFixture(), 10, 500)
	// a1 and a2 are each other's neighbors; nothing may appear twice.
	chunks, err := e.Expand(context.Background(), "t1", []string{"a1", "a2"})
	if err != nil {
		t.Fatal(err)
	}
	seen := make(map[string]int)
	for _, c := range chunks {
		seen[c.ID]++
	}
	for id, n := range seen {
		if n > 1 {
			t.Fatalf("chunk %s appeared %d times", id, n)
		}
	}
	got := ids(chunks)
	want := []string{"a0", "a1", "a2", "a3"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestExpandSortsAcrossDocuments(t *testing.T) {
	e := NewContextExpander(expanderFixture(), 10, 500)
	chunks, err := e.Expand(context.Background(), "t1", []string{"b1", "a2"})
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(chunks); i++ {
		if chunks[i].ChunkIndex < chunks[i-1].ChunkIndex {
			t.Fatalf("chunks not in ascending index order: %v", ids(chunks))
		}
	}
}

func TestExpandCapsSelection(t *testing.T) {
	e := NewContextExpander(expanderFixture(), 2, 500)
	chunks, err := e.Expand(context.Background(), "t1", []string{"a0", "a2", "a4", "b0"})
	if err != nil {
		t.Fatal(err)
	}
	// Only a0 and a2 survive the cap; a4 and b0 never reach the store.
	for _, c := range chunks {
		if c.ID == "b0" || c.ID == "a4" {
			t.Fatalf("capped selection leaked chunk %s", c.ID)
		}
	}
}

func TestExpandSkipsVanishedIDs(t *testing.T) {
	e := NewContextExpander(expanderFixture(), 10, 500)
	chunks, err := e.Expand(context.Background(), "t1", []string{"a2", "gone"})
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) == 0 {
		t.Fatalf("present chunks must survive a vanished sibling")
	}
	for _, c := range chunks {
		if c.ID == "gone" {
			t.Fatalf("vanished id materialized")
		}
	}
}

func TestExpandStoreFailureIsTyped(t *testing.T) {
	store := expanderFixture()
	store.failFetch = true
	e := NewContextExpander(store, 10, 500)
	_, err := e.Expand(context.Background(), "t1", []string{"a2"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsStoreUnavailable(err) {
		t.Fatalf("expected store-unavailable error, got %v", err)
	}
}
