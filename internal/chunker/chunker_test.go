package chunker

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/starford/mimir/internal/apperr"
	"github.com/starford/mimir/internal/classify"
	"github.com/starford/mimir/internal/parser"
)

func makeItems(t *testing.T, n int) []parser.Item {
	t.Helper()
	items := make([]parser.Item, n)
	for i := range items {
		items[i] = parser.Item{Seq: i, Text: fmt.Sprintf("line %d", i)}
	}
	return items
}

func TestSplit_ClosesAtItemCount(t *testing.T) {
	items := makeItems(t, 12)

	chunks, err := Split("doc-1", items, nil, Options{Size: 5})
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}

	wantRanges := [][2]int{{0, 4}, {5, 9}, {10, 11}}
	for i, c := range chunks {
		if c.StartSeq != wantRanges[i][0] || c.EndSeq != wantRanges[i][1] {
			t.Errorf("chunk %d: range [%d,%d], want [%d,%d]", i, c.StartSeq, c.EndSeq, wantRanges[i][0], wantRanges[i][1])
		}
		if want := fmt.Sprintf("doc-1:%d", i); c.ID != want {
			t.Errorf("chunk %d: ID %q, want %q", i, c.ID, want)
		}
		if c.DocumentID != "doc-1" {
			t.Errorf("chunk %d: DocumentID %q, want %q", i, c.DocumentID, "doc-1")
		}
	}
}

func TestSplit_ClosesAtTokenCeiling(t *testing.T) {
	// Each item weighs 500 estimated tokens, so a third item would cross
	// the 1200-token ceiling long before the 10-item count does.
	items := make([]parser.Item, 5)
	for i := range items {
		items[i] = parser.Item{Seq: i, Text: strings.Repeat("x", 2000)}
	}

	chunks, err := Split("doc-1", items, nil, Options{Size: 10})
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	wantRanges := [][2]int{{0, 1}, {2, 3}, {4, 4}}
	for i, c := range chunks {
		if c.StartSeq != wantRanges[i][0] || c.EndSeq != wantRanges[i][1] {
			t.Errorf("chunk %d: range [%d,%d], want [%d,%d]", i, c.StartSeq, c.EndSeq, wantRanges[i][0], wantRanges[i][1])
		}
		if c.Tokens > TokenCeiling {
			t.Errorf("chunk %d: %d tokens over ceiling %d", i, c.Tokens, TokenCeiling)
		}
	}
}

func TestSplit_OversizeItemStaysWhole(t *testing.T) {
	items := []parser.Item{{Seq: 0, Text: strings.Repeat("x", 4*TokenCeiling+400)}}

	chunks, err := Split("doc-1", items, nil, Options{Size: 5})
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0].Tokens <= TokenCeiling {
		t.Errorf("Tokens = %d, want over ceiling %d for an unsplittable item", chunks[0].Tokens, TokenCeiling)
	}
}

func TestSplit_LosslessReassembly(t *testing.T) {
	items := makeItems(t, 23)
	full := make([]string, len(items))
	for i, it := range items {
		full[i] = it.Text
	}
	want := strings.Join(full, "\n")

	for _, size := range []int{1, 3, 5, 23, 100} {
		chunks, err := Split("doc-1", items, nil, Options{Size: size})
		if err != nil {
			t.Fatalf("Split(size=%d): %v", size, err)
		}
		prev := -1
		texts := make([]string, 0, len(chunks))
		for _, c := range chunks {
			if c.StartSeq != prev+1 {
				t.Errorf("size %d: chunk starts at %d, want %d", size, c.StartSeq, prev+1)
			}
			prev = c.EndSeq
			texts = append(texts, c.Text)
		}
		if prev != items[len(items)-1].Seq {
			t.Errorf("size %d: last seq %d, want %d", size, prev, items[len(items)-1].Seq)
		}
		if got := strings.Join(texts, "\n"); got != want {
			t.Errorf("size %d: reassembled text differs from source", size)
		}
	}
}

func TestSplit_Deterministic(t *testing.T) {
	items := makeItems(t, 17)
	first, err := Split("doc-1", items, nil, Options{Size: 4})
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	second, err := Split("doc-1", items, nil, Options{Size: 4})
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("two runs over identical input produced different chunks")
	}
}

func TestSplit_MajorityTopic(t *testing.T) {
	items := []parser.Item{
		{Seq: 0, Text: "budget"},
		{Seq: 1, Text: "budget"},
		{Seq: 2, Text: "roadmap"},
	}
	cls := classify.Func(func(text string, topics []string) string {
		return text
	})

	chunks, err := Split("doc-1", items, []string{"budget", "roadmap"}, Options{Size: 5, Classifier: cls})
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0].Topic != "budget" {
		t.Errorf("Topic = %q, want %q", chunks[0].Topic, "budget")
	}
}

func TestSplit_TopicTieResolvesByOrder(t *testing.T) {
	items := []parser.Item{
		{Seq: 0, Text: "roadmap"},
		{Seq: 1, Text: "budget"},
	}
	cls := classify.Func(func(text string, topics []string) string {
		return text
	})

	chunks, err := Split("doc-1", items, []string{"budget", "roadmap"}, Options{Size: 5, Classifier: cls})
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if chunks[0].Topic != "budget" {
		t.Errorf("Topic = %q, want tie broken toward %q", chunks[0].Topic, "budget")
	}
}

func TestSplit_NilClassifierLeavesUnclassified(t *testing.T) {
	chunks, err := Split("doc-1", makeItems(t, 2), []string{"budget"}, Options{Size: 5})
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if chunks[0].Topic != classify.Unclassified {
		t.Errorf("Topic = %q, want %q", chunks[0].Topic, classify.Unclassified)
	}
}

func TestSplit_SpeakerPrefixPreserved(t *testing.T) {
	items := []parser.Item{
		{Seq: 0, Text: "Hello there.", Speaker: "Alice"},
		{Seq: 1, Text: "Plain narration."},
	}

	chunks, err := Split("doc-1", items, nil, Options{Size: 5})
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	want := "Alice: Hello there.\nPlain narration."
	if chunks[0].Text != want {
		t.Errorf("Text = %q, want %q", chunks[0].Text, want)
	}
}

func TestSplit_EmptyInput(t *testing.T) {
	chunks, err := Split("doc-1", nil, nil, Options{Size: 5})
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("got %d chunks, want 0", len(chunks))
	}
}

func TestSplit_InvalidSize(t *testing.T) {
	for _, size := range []int{0, -3} {
		_, err := Split("doc-1", makeItems(t, 2), nil, Options{Size: size})
		if !errors.Is(err, apperr.ErrInvalidConfig) {
			t.Errorf("Split(size=%d): err = %v, want ErrInvalidConfig", size, err)
		}
	}
}
