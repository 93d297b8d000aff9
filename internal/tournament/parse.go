package tournament

import (
	"math/rand"
	"strings"
)

// labelsFor returns the judge labels A, B, C, ... for n candidates, in
// insertion order, matching the group's presentation order.
func labelsFor(n int) []string {
	labels := make([]string, n)
	for i := 0; i < n; i++ {
		labels[i] = string(rune('A' + i))
	}
	return labels
}

// parseOrder extracts a best-to-worst letter ordering from a judge's free
// text response. It finds the line made of comma-separated single letters
// where at least half of the expected labels are present, treating
// anything before it as preamble and anything after as optional
// explanation. Letters the judge never mentioned are appended in random
// order at the tail. ok is false when no such line exists, signaling the
// caller to treat the group as shuffled.
func parseOrder(response string, labels []string) (order []string, ok bool) {
	want := make(map[string]bool, len(labels))
	for _, l := range labels {
		want[strings.ToUpper(l)] = true
	}

	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		candidate := extractLetters(line, want)
		if len(candidate) >= (len(labels)+1)/2 {
			return withMissingAppended(candidate, labels), true
		}
	}
	return nil, false
}

// extractLetters pulls out letter tokens from line that belong to want,
// in the order they appear, skipping duplicates.
func extractLetters(line string, want map[string]bool) []string {
	var out []string
	seen := map[string]bool{}
	for _, tok := range strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ' ' || r == '.' || r == ')' || r == '('
	}) {
		tok = strings.ToUpper(strings.TrimSpace(tok))
		if len(tok) == 1 && want[tok] && !seen[tok] {
			out = append(out, tok)
			seen[tok] = true
		}
	}
	return out
}

func withMissingAppended(found []string, labels []string) []string {
	present := map[string]bool{}
	for _, f := range found {
		present[f] = true
	}
	var missing []string
	for _, l := range labels {
		u := strings.ToUpper(l)
		if !present[u] {
			missing = append(missing, u)
		}
	}
	rand.Shuffle(len(missing), func(i, j int) { missing[i], missing[j] = missing[j], missing[i] })
	return append(append([]string{}, found...), missing...)
}

// shuffledOrder returns labels in random order, used when a judge response
// is unparseable.
func shuffledOrder(labels []string) []string {
	out := append([]string{}, labels...)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
