package agents

import (
	"fmt"
	"strings"

	"github.com/ternarybob/mitto/internal/interfaces"
)

const codeSystemPrompt = `You generate minimal, side-effect-free code snippets.

Return JSON strictly matching this schema:
{"language": "<programming language>", "code": "<the code>", "explanation": "<short optional explanation>"}

Constraints:
- Single programming language (fill "language").
- Keep "explanation" short and optional.
- Do not include comments that simulate execution results.
- Respond with the JSON object only, no surrounding prose.`

const contentSystemPrompt = `You are a precise researcher. Use ONLY the provided sources to answer.
Cite at least two sources in the output list; do not invent URLs.

Return JSON strictly matching this schema:
{"answer": "<the answer text>", "sources": [{"title": "<source title>", "url": "<source url>"}]}

Respond with the JSON object only, no surrounding prose.`

func buildCodeMessages(task string) []interfaces.Message {
	return []interfaces.Message{
		{Role: "system", Content: codeSystemPrompt},
		{Role: "user", Content: "Task:\n" + task},
	}
}

func buildContentMessages(task string, sources []interfaces.FetchedSource) []interfaces.Message {
	var block strings.Builder
	for _, s := range sources {
		block.WriteString(fmt.Sprintf("- %s — %s\n", s.Title, s.URL))
	}

	user := fmt.Sprintf("User Task:\n%s\n\nSources (title — url):\n%s", task, block.String())

	return []interfaces.Message{
		{Role: "system", Content: contentSystemPrompt},
		{Role: "user", Content: user},
	}
}
