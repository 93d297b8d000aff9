package subvert

import (
	"fmt"
	"strings"

	"subvertnews/internal/core"
)

const brainstormSystemPrompt = `You write satirical newspaper headlines in the style of The Onion. Given a
real news story and a handful of inspiration words, propose up to 5 distinct
comedic angles for subverting it.

Judge an angle by: surprise, how cleanly it plays off the real story, and
whether it gives a headline writer something concrete to work with (a pun,
an absurd extrapolation, a tonal mismatch).

Respond with a JSON array, each element shaped exactly as:
{"angle_name": "...", "setup": "...", "keywords": ["...", "..."]}

Return only the JSON array, no surrounding prose.`

func brainstormPrompt(title, description string, words []string) string {
	return fmt.Sprintf(`Real headline: %q
Description: %q
Inspiration words: %s

Propose up to 5 comedic angles as a JSON array.`, title, description, strings.Join(words, ", "))
}

const generateSystemPrompt = `You write satirical newspaper headlines in the style of The Onion, given one
comedic angle already chosen for a real story. Produce 3 to 4 polished
headline candidates that commit fully to the angle.

Respond with a JSON array of strings, each a complete headline. Return only
the JSON array, no surrounding prose.`

func generatePrompt(title string, angle core.AngleSpec) string {
	return fmt.Sprintf(`Real headline: %q
Angle: %s
Setup: %s
Keywords: %s

Write 3 to 4 headlines committing to this angle.`,
		title, angle.AngleName, angle.Setup, strings.Join(angle.Keywords, ", "))
}

// fallbackAngles is the hard-coded 3-angle default used when brainstorming
// fails to parse or returns an empty set.
func fallbackAngles() []core.AngleSpec {
	return []core.AngleSpec{
		{AngleName: "wordplay", Setup: "Find a pun or double meaning in the story's key terms.", Keywords: []string{"pun", "wordplay"}},
		{AngleName: "rhyme", Setup: "Rework the headline so key words rhyme or alliterate.", Keywords: []string{"rhyme", "alliteration"}},
		{AngleName: "absurd", Setup: "Extrapolate the story to an absurd, escalated conclusion.", Keywords: []string{"absurd", "escalation"}},
	}
}
