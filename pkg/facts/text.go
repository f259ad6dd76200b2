package facts

import (
	"strings"
	"unicode"
)

// minTermLength is the shortest token kept as a search term.
const minTermLength = 3

// stopWords are dropped from both indexed content and queries.
var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "you": {}, "that": {}, "was": {}, "for": {},
	"are": {}, "with": {}, "his": {}, "her": {}, "they": {}, "this": {},
	"have": {}, "has": {}, "had": {}, "from": {}, "but": {}, "not": {},
	"what": {}, "who": {}, "how": {}, "does": {}, "did": {}, "can": {},
	"about": {}, "your": {}, "its": {}, "there": {}, "their": {},
}

// selfWords are first-person words in queries. Facts are phrased in the third
// person ("user's name is ..."), so these expand to the "user" term.
var selfWords = map[string]struct{}{
	"i": {}, "me": {}, "my": {}, "mine": {}, "myself": {}, "am": {},
}

const userTerm = "user"

// Normalize trims content and collapses internal whitespace runs to a single
// space.
func Normalize(content string) string {
	return strings.Join(strings.Fields(content), " ")
}

// Key returns the dedupe key for content: normalized, lower-cased and with
// trailing sentence punctuation removed. Two live facts never share a key.
func Key(content string) string {
	k := strings.ToLower(Normalize(content))
	return strings.TrimRight(k, ".!;")
}

// Terms tokenizes text into distinct search terms in first-seen order.
func Terms(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(words))
	terms := make([]string, 0, len(words))
	add := func(t string) {
		if _, ok := seen[t]; ok {
			return
		}
		seen[t] = struct{}{}
		terms = append(terms, t)
	}

	for _, w := range words {
		if _, ok := selfWords[w]; ok {
			add(userTerm)
			continue
		}
		if len([]rune(w)) < minTermLength {
			continue
		}
		if _, ok := stopWords[w]; ok {
			continue
		}
		add(w)
	}

	return terms
}

// Similarity is the Jaccard index of the term sets of a and b. Identical
// dedupe keys always score 1.
func Similarity(a, b string) float64 {
	if Key(a) == Key(b) {
		return 1
	}

	ta, tb := Terms(a), Terms(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	set := make(map[string]struct{}, len(ta))
	for _, t := range ta {
		set[t] = struct{}{}
	}

	inter := 0
	for _, t := range tb {
		if _, ok := set[t]; ok {
			inter++
		}
	}

	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

var categoryHints = []struct {
	category Category
	words    []string
}{
	{CategoryRelationship, []string{
		"wife", "husband", "partner", "girlfriend", "boyfriend", "mother", "father",
		"mom", "dad", "sister", "brother", "son", "daughter", "child", "children",
		"kids", "friend", "married", "dog", "cat", "pet", "cousin", "aunt", "uncle",
		"grandmother", "grandfather", "colleague", "boss",
	}},
	{CategoryPreference, []string{
		"like", "likes", "love", "loves", "prefer", "prefers", "favorite",
		"favourite", "enjoy", "enjoys", "hate", "hates", "dislike", "dislikes",
		"allergic", "vegetarian", "vegan", "fan",
	}},
	{CategoryIdentity, []string{
		"name", "named", "called", "age", "old", "born", "birthday", "lives",
		"live", "located", "works", "job", "occupation", "profession", "engineer",
		"student", "nationality", "speaks", "pronouns",
	}},
}

// Classify assigns a category from keyword hints in content.
func Classify(content string) Category {
	words := strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !unicode.IsLetter(r)
	})

	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}

	for _, hint := range categoryHints {
		for _, w := range hint.words {
			if _, ok := set[w]; ok {
				return hint.category
			}
		}
	}

	return CategoryOther
}
