package wordbank

import (
	"sync"
	"testing"

	"subvertnews/internal/core"
)

func TestGet_LoadsAllWordTypes(t *testing.T) {
	bank, err := Get()
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	for _, wt := range []core.WordType{core.WordTypeAdjective, core.WordTypeNoun, core.WordTypeVerb, core.WordTypeAbsurd} {
		if len(bank[wt]) == 0 {
			t.Fatalf("word bank has no words for type %q", wt)
		}
	}
}

func TestGet_ConcurrentColdStartCollapses(t *testing.T) {
	var wg sync.WaitGroup
	results := make([]core.WordBank, 20)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			bank, err := Get()
			if err != nil {
				t.Errorf("Get error: %v", err)
				return
			}
			results[i] = bank
		}(i)
	}
	wg.Wait()
	for i := 1; i < len(results); i++ {
		if len(results[i]) != len(results[0]) {
			t.Fatalf("inconsistent word bank across concurrent loads")
		}
	}
}

func TestRandomWords_ReturnsRequestedCount(t *testing.T) {
	words, err := RandomWords(8)
	if err != nil {
		t.Fatalf("RandomWords error: %v", err)
	}
	if len(words) != 8 {
		t.Fatalf("got %d words, want 8", len(words))
	}
	seen := map[string]bool{}
	for _, w := range words {
		if seen[w] {
			t.Fatalf("RandomWords returned duplicate %q", w)
		}
		seen[w] = true
	}
}

func TestRandomWords_CapsAtBankSize(t *testing.T) {
	words, err := RandomWords(100000)
	if err != nil {
		t.Fatalf("RandomWords error: %v", err)
	}
	bank, _ := Get()
	total := 0
	for _, ws := range bank {
		total += len(ws)
	}
	if len(words) != total {
		t.Fatalf("got %d words, want %d (entire bank)", len(words), total)
	}
}

func TestPaperName_ProducesTwoWordTitle(t *testing.T) {
	name, err := PaperName()
	if err != nil {
		t.Fatalf("PaperName error: %v", err)
	}
	if name == "" {
		t.Fatalf("PaperName returned empty string")
	}
	bank, _ := Get()
	found := false
	for _, adj := range bank[core.WordTypeAdjective] {
		for _, noun := range bank[core.WordTypeNoun] {
			if name == "The "+adj+" "+noun {
				found = true
			}
		}
	}
	if !found {
		t.Fatalf("PaperName = %q, want \"The <adjective> <noun>\" from the word bank", name)
	}
}
