package tournament

import (
	"fmt"
	"strings"

	"subvertnews/internal/core"
)

const judgeSystemPrompt = `You are judging satirical newspaper headlines for a tournament. Rank the
candidates from funniest to least funny.

Value craft as much as humor:
- Clever alliteration or assonance
- Puns that actually work phonetically
- Unexpected wordplay or double meanings
- Rhythm and flow when read aloud
- How well the joke plays off the original news story

Respond with a single line listing every letter, comma-separated, best
first (example: "C, A, B"). You may add a short explanation on the
following line, but the ranking line must come first.`

// groupPrompt builds the user prompt for ranking one group of headlines,
// labeling each with its letter in presentation order.
func groupPrompt(group []core.Headline, labels []string, verbose bool) string {
	var b strings.Builder
	b.WriteString("Rank these satirical headlines from funniest to least funny:\n\n")
	for i, h := range group {
		fmt.Fprintf(&b, "%s. %q\n   Original: %q\n   Angle: %s — %s\n\n",
			labels[i], h.Headline, h.OriginalHeadline, h.Angle, h.AngleSetup)
	}
	if verbose {
		b.WriteString("Explain your reasoning briefly after the ranking line.\n")
	} else {
		b.WriteString("Reply with only the ranking line.\n")
	}
	return b.String()
}

// polishPrompt asks the judge model to punch up a survivor headline.
func polishPrompt(h core.Headline) string {
	return fmt.Sprintf(`Punch up this satirical headline to be funnier while keeping it
grounded in the same comedic angle. Reply with only the improved
headline text, nothing else.

Current headline: %q
Original news headline: %q
Comedic angle: %s — %s`, h.Headline, h.OriginalHeadline, h.Angle, h.AngleSetup)
}
