package memory

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/papercomputeco/lokal/pkg/facts"
)

const systemPrompt = `You are a high-precision memory management module.

ENTITY STANDARDIZATION:
- The "entity" field is the SUBJECT of the fact.
- When the user refers to themselves (I, me, my, mine), use "User".
- Never use the object as the entity (wrong: {"entity": "Pizza", "fact": "User likes it"}).

RULES:
1. GOLDEN RULE: record only enduring facts that will still be true in one month or more.
2. Do not record immediate tasks, short-term plans or intents ("User needs to write an email").
3. Do not record transient physical or emotional states ("User is tired").
4. Do not record the conversation itself: requests, questions, summaries or assistant status.
5. Asking about a topic does not make interest in it a permanent attribute.
6. Ignore search results and assistant operations (searching, scraping, memory updates).
7. Record what was explicitly stated, never inferences.
8. Assume every fact is transient unless it is a stable attribute.

DEDUPLICATION:
1. Check CURRENT MEMORY first. Use "update" or "remove" only for explicit corrections.
2. Add distinct details instead of overwriting.

FORMAT:
Return a JSON object {"operations": [...]} where each operation has "op" (add, update or remove),
"entity", "fact" and "id". "id" is the integer from [ID: n] in CURRENT MEMORY for update and
remove, and null for add. Return {"operations": []} when there is nothing to remember.`

// memoryBlock renders current facts with the one-based handles the model uses
// to reference them.
func memoryBlock(current []facts.Fact) string {
	if len(current) == 0 {
		return "(empty)"
	}

	var b strings.Builder
	for i, f := range current {
		b.WriteString("[ID: ")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString("] ")
		b.WriteString(f.Content)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func userPrompt(current []facts.Fact, t Turn) string {
	var b strings.Builder
	b.WriteString("### CURRENT MEMORY:\n")
	b.WriteString(memoryBlock(current))
	b.WriteString("\n\n### CONTEXT (assistant's previous response):\n")
	b.WriteString(strings.TrimSpace(t.Assistant))
	b.WriteString("\n\n### NEW USER INPUT:\n")
	b.WriteString(strings.TrimSpace(t.User))
	b.WriteString("\n\nTask: extract permanent facts from the user's input and return the operations object.")
	return b.String()
}

var fillerWords = map[string]struct{}{
	"thanks": {}, "thank": {}, "you": {}, "ok": {}, "okay": {}, "cool": {},
	"nice": {}, "hello": {}, "hi": {}, "hey": {}, "bye": {}, "yes": {},
	"no": {}, "yep": {}, "nope": {}, "much": {},
}

// filler reports whether user input is a greeting or acknowledgement too
// short to carry a fact ("ok", "thanks!", "thank you").
func filler(input string) bool {
	words := strings.FieldsFunc(strings.ToLower(input), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return true
	}
	if len(words) >= 3 {
		return false
	}
	for _, w := range words {
		if _, ok := fillerWords[w]; !ok {
			return false
		}
	}
	return true
}
