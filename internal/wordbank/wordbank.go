// Package wordbank holds the process-wide WordBank cache: a read-mostly
// WordType -> set<Word> mapping used as random inspiration during
// generation and for paper-name assembly. It is lazily loaded once per
// warm process and never invalidated, per the shared-resource lifecycle
// the Model Gateway's LLM clients also follow.
package wordbank

import (
	"embed"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"

	"golang.org/x/sync/singleflight"

	"subvertnews/internal/core"
)

//go:embed words.json
var embedded embed.FS

var (
	group singleflight.Group

	mu    sync.RWMutex
	cache core.WordBank
)

// Get returns the process-wide WordBank, loading it on first call.
// Concurrent cold-start callers collapse into a single load via
// singleflight; every caller after that reads the cached map under a
// read lock.
func Get() (core.WordBank, error) {
	mu.RLock()
	if cache != nil {
		defer mu.RUnlock()
		return cache, nil
	}
	mu.RUnlock()

	v, err, _ := group.Do("load", func() (interface{}, error) {
		mu.RLock()
		if cache != nil {
			mu.RUnlock()
			return cache, nil
		}
		mu.RUnlock()

		raw, err := embedded.ReadFile("words.json")
		if err != nil {
			return nil, fmt.Errorf("%w: read embedded word bank: %v", core.ErrFatal, err)
		}
		var bank core.WordBank
		if err := json.Unmarshal(raw, &bank); err != nil {
			return nil, fmt.Errorf("%w: parse embedded word bank: %v", core.ErrFatal, err)
		}

		mu.Lock()
		cache = bank
		mu.Unlock()
		return bank, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(core.WordBank), nil
}

// RandomWords returns n random words drawn uniformly from across every
// WordType, used by Stage 1 brainstorming as inspiration words.
func RandomWords(n int) ([]string, error) {
	bank, err := Get()
	if err != nil {
		return nil, err
	}
	var all []string
	for _, words := range bank {
		all = append(all, words...)
	}
	return sampleWithoutReplacement(all, n), nil
}

// RandomOfType returns n random words from a single WordType, e.g. for
// assembling a two-word paper name from Adjective then Noun.
func RandomOfType(t core.WordType, n int) ([]string, error) {
	bank, err := Get()
	if err != nil {
		return nil, err
	}
	return sampleWithoutReplacement(bank[t], n), nil
}

func sampleWithoutReplacement(words []string, n int) []string {
	if n >= len(words) {
		out := append([]string{}, words...)
		rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
		return out
	}
	idx := rand.Perm(len(words))[:n]
	out := make([]string, n)
	for i, j := range idx {
		out[i] = words[j]
	}
	return out
}

// PaperName assembles "The <Adjective> <Noun>" from two random WordBank
// words, the Reader Selector's paper-name generation.
func PaperName() (string, error) {
	adjectives, err := RandomOfType(core.WordTypeAdjective, 1)
	if err != nil {
		return "", err
	}
	nouns, err := RandomOfType(core.WordTypeNoun, 1)
	if err != nil {
		return "", err
	}
	if len(adjectives) == 0 || len(nouns) == 0 {
		return "The Daily Bulletin", nil
	}
	return fmt.Sprintf("The %s %s", adjectives[0], nouns[0]), nil
}
