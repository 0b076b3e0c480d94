// Package router classifies a task into an agent kind with a pure,
// referentially transparent scoring function over declarative pattern
// tables. The vocabulary is tuned to the Turkish/English request corpus.
package router

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ternarybob/mitto/internal/models"
)

// langTokens matches programming language names and abbreviations
const langTokens = `(python|javascript|typescript|js|ts|java|go|golang|rust|c\+\+|c#|ruby|php)`

// Go's \b only knows ASCII word characters and never fires next to
// Turkish letters, so word edges are spelled out with Unicode
// letter/digit classes instead.
const (
	wordStart = `(?:^|[^\p{L}\p{N}_])`
	wordEnd   = `(?:[^\p{L}\p{N}_]|$)`
	wordGap   = `[^\p{L}\p{N}_]`
)

// word bounds a vocabulary pattern on both sides
func word(p string) string {
	return wordStart + `(?:` + p + `)` + wordEnd
}

// codePatterns are weak code signals, +1 each
var codePatterns = compileAll(
	word(`kod( yaz|la)?`),
	word(`code`),
	word(`implement(et|ation)?`),
	word(`function|class|method|api|endpoint`),
	word(`test(ler|)`)+`|`+word(`unit test`)+`|`+word(`pytest`)+`|`+word(`assert`),
	"```",
	wordStart+`import\s+[\p{L}\p{N}_]+`,
	word(langTokens), // language token alone is a weak signal
)

// contentPatterns are weak content signals, +1 each
var contentPatterns = compileAll(
	word(`blog`),
	word(`makale`),
	word(`yazı`),
	word(`içerik`),
	word(`nedir`),
	word(`açıkla`),
	word(`özet(le|)`),
	word(`rehber`),
	word(`karşılaştır`),
	word(`kaynak(ça)?`),
	word(`referans(lar)?`),
	word(`link ver`),
	word(`ar(a|â)ştır(ma)?`),
	word(`incele`),
)

// hardCode are strong code signals; any hit adds +2 once
var hardCode = compileAll(
	word(`kod yaz`),
	word(`unit test`),
	word(`pytest`),
	word(`fonksiyon yaz`),
	"```",
	word(`function`),
	word(`class`),
)

// hardContent are strong content signals; any hit adds +2 once
var hardContent = compileAll(
	word(`blog yaz`),
	word(`makale yaz`),
	word(`kaynak(ça)? ver`),
)

// exampleNouns pair with a language token for the co-occurrence boost
const exampleNouns = `(örnek|orneği|ornegi|örneği|kod|kodu|snippet|demo|fonksiyon|function)`

// coOccur matches a language token together with an example/snippet/
// function noun in either order, +2. The two words share at least one
// separator; the optional .* segment must end on one so the second
// word keeps a left edge.
var coOccur = regexp.MustCompile(
	wordStart + langTokens + wordGap + `(?:.*` + wordGap + `)?` + exampleNouns + wordEnd +
		`|` + wordStart + exampleNouns + wordGap + `(?:.*` + wordGap + `)?` + langTokens + wordEnd,
)

func compileAll(patterns ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile(p)
	}
	return compiled
}

// Decision is the routing outcome
type Decision struct {
	Agent  models.AgentKind
	Reason string
}

// score counts weak signal hits and applies the hard and co-occurrence
// boosts against the lowercased task
func score(task string) (code, content int) {
	t := strings.ToLower(task)

	for _, p := range codePatterns {
		if p.MatchString(t) {
			code++
		}
	}
	for _, p := range contentPatterns {
		if p.MatchString(t) {
			content++
		}
	}

	if anyMatch(hardCode, t) {
		code += 2
	}
	if anyMatch(hardContent, t) {
		content += 2
	}
	if coOccur.MatchString(t) {
		code += 2 // "js + example", "python + code" etc.
	}

	return code, content
}

func anyMatch(patterns []*regexp.Regexp, t string) bool {
	for _, p := range patterns {
		if p.MatchString(t) {
			return true
		}
	}
	return false
}

// Decide classifies the task. Ties resolve toward content, which is also
// the fallback for tasks with no signals at all.
func Decide(task string) Decision {
	code, content := score(task)
	breakdown := fmt.Sprintf("{code: %d, content: %d}", code, content)

	if code >= 2 && code > content {
		return Decision{
			Agent:  models.AgentKindCode,
			Reason: "rules: code_signals=" + breakdown,
		}
	}
	if content >= 1 && content >= code {
		return Decision{
			Agent:  models.AgentKindContent,
			Reason: "rules: content_signals=" + breakdown,
		}
	}
	return Decision{
		Agent:  models.AgentKindContent,
		Reason: "fallback_content: signals=" + breakdown,
	}
}
