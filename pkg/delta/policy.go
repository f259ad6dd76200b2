package delta

import (
	"regexp"
	"strings"

	"github.com/papercomputeco/lokal/pkg/facts"
)

// Rejection reasons reported by DefaultPolicy.
const (
	ReasonTooShort   = "too short"
	ReasonIntent     = "present-tense want or plan"
	ReasonMeta       = "describes the conversation"
	ReasonMood       = "transient mood or physical state"
	ReasonAction     = "ongoing action"
	ReasonTimeBound  = "time-bound"
	ReasonInference  = "inferred rather than stated"
	ReasonAssistant  = "assistant operation"

	minContentLength = 3
)

// Rule rejects content when Match reports true.
type Rule struct {
	Reason string
	Match  func(lower string) bool
}

// Policy decides whether content is an enduring fact worth remembering: a
// stable attribute that will still be true in a month, not a passing state.
type Policy struct {
	rules []Rule
}

// NewPolicy builds a policy from rules evaluated in order.
func NewPolicy(rules ...Rule) *Policy {
	return &Policy{rules: rules}
}

// Check returns the reason content is rejected, or "" when it is accepted.
func (p *Policy) Check(content string) string {
	content = facts.Normalize(content)
	if len(content) < minContentLength {
		return ReasonTooShort
	}

	lower := strings.ToLower(content)
	for _, r := range p.rules {
		if r.Match(lower) {
			return r.Reason
		}
	}
	return ""
}

// Accepts reports whether content passes every rule.
func (p *Policy) Accepts(content string) bool {
	return p.Check(content) == ""
}

var (
	intentPattern = regexp.MustCompile(`\b(wants?|needs?|plans?|intends?|hopes?|would like|is going|are going|am going|is about|is trying|tries) to\b`)

	metaWords = wordSet(
		"requested", "inquired", "asked", "asks", "presented", "tasked", "queried",
		"answered", "responded", "told", "said", "says", "mentioned", "stated",
		"explained", "summarized",
	)

	moodPattern = regexp.MustCompile(`\b(?:am|is|are|was|were|feel|feels|felt|feeling|got|gets|getting|seems)\s+(?:(?:so|very|really|quite|a bit|kind of|pretty|too|extremely)\s+)?(tired|hungry|thirsty|sleepy|exhausted|sick|ill|cold|hot|sweaty|energetic|weak|dizzy|faint|happy|sad|angry|frustrated|annoyed|bored|excited|anxious|nervous|stressed|worried|scared|afraid|terrified|lonely|miserable|guilty|ashamed|jealous|envious|bitter|cheerful|content|relaxed|calm|peaceful|proud|hopeful|enthusiastic|eager|amused|delighted|ecstatic|satisfied|confused|puzzled|surprised|shocked|overwhelmed|focused|distracted|productive|lazy|unmotivated|cranky|grumpy|moody|busy|upset|sore)\b`)

	actionPattern = regexp.MustCompile(`\b(?:am|is|are|was|were)\s+(\w+ing)\b`)

	// Gerund-shaped nouns that do not describe an ongoing action.
	ingNouns = wordSet(
		"thing", "nothing", "something", "anything", "everything", "king", "ring",
		"string", "spring", "evening", "morning", "during", "wedding", "building",
		"ceiling", "sibling", "darling", "pudding", "viking",
	)

	timePattern = regexp.MustCompile(`\b(today|tonight|tomorrow|yesterday|right now|currently|at the moment|at present|these days|this (?:week|weekend|morning|afternoon|evening|month)|next (?:week|weekend|month)|last night|later today|soon|weather|forecast|what time)\b`)

	inferencePattern = regexp.MustCompile(`\b(seems?|seemingly|appears? to|apparently|probably|possibly|maybe|might|likely|presumably|sounds like|i think|i guess|must be)\b`)

	assistantPattern = regexp.MustCompile(`\b(search results?|search_context|web search|scraping|memory update)\b`)
)

// DefaultPolicy is the enduring-facts-only policy: transient states, wants,
// conversation meta, inferences and assistant activity are all rejected.
func DefaultPolicy() *Policy {
	return NewPolicy(
		Rule{Reason: ReasonIntent, Match: intentPattern.MatchString},
		Rule{Reason: ReasonMeta, Match: func(s string) bool { return containsWord(s, metaWords) }},
		Rule{Reason: ReasonMood, Match: moodPattern.MatchString},
		Rule{Reason: ReasonAction, Match: ongoingAction},
		Rule{Reason: ReasonTimeBound, Match: timePattern.MatchString},
		Rule{Reason: ReasonInference, Match: inferencePattern.MatchString},
		Rule{Reason: ReasonAssistant, Match: assistantPattern.MatchString},
	)
}

func ongoingAction(s string) bool {
	for _, m := range actionPattern.FindAllStringSubmatch(s, -1) {
		if _, noun := ingNouns[m[1]]; !noun {
			return true
		}
	}
	return false
}

func wordSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

var wordPattern = regexp.MustCompile(`\w+`)

func containsWord(s string, set map[string]struct{}) bool {
	for _, w := range wordPattern.FindAllString(s, -1) {
		if _, ok := set[w]; ok {
			return true
		}
	}
	return false
}
