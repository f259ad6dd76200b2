package delta

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/papercomputeco/lokal/pkg/facts"
	"github.com/papercomputeco/lokal/pkg/logger"
)

// Parser converts extraction responses into operations.
type Parser struct {
	policy *Policy
	logger *slog.Logger
}

// Option configures a Parser.
type Option func(*Parser)

// WithPolicy replaces DefaultPolicy.
func WithPolicy(p *Policy) Option {
	return func(parser *Parser) {
		if p != nil {
			parser.policy = p
		}
	}
}

// WithLogger sets the logger used to report rejected operations at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(parser *Parser) {
		if l != nil {
			parser.logger = l
		}
	}
}

// NewParser creates a parser with DefaultPolicy.
func NewParser(opts ...Option) *Parser {
	p := &Parser{
		policy: DefaultPolicy(),
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse returns the accepted operations of text in emission order. It never
// fails: unrecognized or rejected entries are skipped.
func (p *Parser) Parse(text string) []Operation {
	return p.ParseResult(text).Operations
}

// ParseResult is Parse with the rejected operations and their reasons.
func (p *Parser) ParseResult(text string) Result {
	res := Result{Operations: []Operation{}}

	candidates, ok := parseJSON(text)
	if !ok {
		candidates = parseLines(text)
	}

	for _, op := range candidates {
		if reason := p.validate(op); reason != "" {
			p.logger.Debug("memory operation rejected",
				"kind", string(op.Kind),
				"target", op.Target,
				"content", op.Content,
				"reason", reason,
			)
			res.Rejected = append(res.Rejected, Rejection{Operation: op, Reason: reason})
			continue
		}
		res.Operations = append(res.Operations, op)
	}

	return res
}

func (p *Parser) validate(op Operation) string {
	switch op.Kind {
	case KindAdd:
		return p.policy.Check(op.Content)
	case KindUpdate:
		if op.Target == "" && op.Ordinal == 0 {
			return "missing update target"
		}
		return p.policy.Check(op.Content)
	case KindRemove:
		if op.Target == "" && op.Ordinal == 0 {
			return "missing remove target"
		}
		return ""
	default:
		return "unknown kind"
	}
}

var (
	linePattern = regexp.MustCompile(
		`(?i)^\s*(?:[-*•+>]\s*|\d+[.)]\s*)?(?:\*\*|__)?\s*(ADD|REMOVE|DELETE|UPDATE)\s*(?:\[([a-z]+)\])?\s*(?:\*\*|__)?\s*:\s*(?:\*\*|__)?\s*(.*)$`,
	)

	ordinalPattern = regexp.MustCompile(`(?i)[\[(]\s*id\s*[:#]?\s*(\d+)\s*[\])]`)

	arrows = []string{"->", "=>", "→"}
)

// ParseLine parses one tagged line. It reports false for lines that carry no
// recognizable operation. The returned operation is not policy-checked.
func ParseLine(line string) (Operation, bool) {
	m := linePattern.FindStringSubmatch(line)
	if m == nil {
		return Operation{}, false
	}

	kind := Kind(strings.ToUpper(m[1]))
	if kind == "DELETE" {
		kind = KindRemove
	}
	category := facts.ParseCategory(m[2])
	body, rationale := splitRationale(m[3])

	op := Operation{Kind: kind, Category: category, Rationale: rationale}
	if placeholder(body) {
		return Operation{}, false
	}

	switch kind {
	case KindAdd:
		op.Content = cleanText(body)
		if op.Content == "" {
			return Operation{}, false
		}
	case KindRemove:
		op.Target, op.Ordinal = cleanRef(body)
		if op.Target == "" && op.Ordinal == 0 {
			return Operation{}, false
		}
	case KindUpdate:
		old, replacement, found := splitArrow(body)
		if !found {
			// Without an explicit old value the new content doubles as the
			// reference, so a close existing fact is replaced.
			replacement = body
			old = body
		}
		op.Target, op.Ordinal = cleanRef(old)
		op.Content = cleanText(replacement)
		if op.Content == "" {
			return Operation{}, false
		}
	}

	return op, true
}

var placeholders = map[string]struct{}{
	"none": {}, "nothing": {}, "n/a": {}, "na": {}, "null": {}, "-": {},
	"no changes": {}, "no new facts": {}, "no facts": {}, "nothing to add": {},
	"nothing to remember": {}, "nothing new": {},
}

// placeholder reports whether body is filler such as "ADD: none".
func placeholder(body string) bool {
	_, ok := placeholders[strings.TrimRight(strings.ToLower(cleanText(body)), ".!")]
	return ok
}

func parseLines(text string) []Operation {
	var ops []Operation
	for _, line := range strings.Split(text, "\n") {
		if op, ok := ParseLine(line); ok {
			ops = append(ops, op)
		}
	}
	return ops
}

func splitArrow(body string) (string, string, bool) {
	for _, a := range arrows {
		if i := strings.Index(body, a); i >= 0 {
			return body[:i], body[i+len(a):], true
		}
	}
	return "", "", false
}

// splitRationale separates a trailing "# why" or "(reason: why)" annotation.
func splitRationale(body string) (string, string) {
	lower := strings.ToLower(body)
	if i := strings.Index(lower, "(reason:"); i >= 0 {
		return body[:i], strings.TrimSuffix(strings.TrimSpace(body[i+len("(reason:"):]), ")")
	}
	if i := strings.Index(body, " # "); i >= 0 {
		return body[:i], strings.TrimSpace(body[i+3:])
	}
	return body, ""
}

// cleanRef strips an "[ID: n]" handle from a reference and returns it
// separately.
func cleanRef(ref string) (string, int) {
	ordinal := 0
	if m := ordinalPattern.FindStringSubmatch(ref); m != nil {
		ordinal, _ = strconv.Atoi(m[1])
		ref = ordinalPattern.ReplaceAllString(ref, " ")
	}
	return cleanText(ref), ordinal
}

func cleanText(s string) string {
	s = ordinalPattern.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "*_`\"'“”‘’")
	return facts.Normalize(s)
}

// envelope is the structured extraction format:
//
//	{"operations": [{"op": "add", "entity": "User", "fact": "...", "id": null}]}
type envelope struct {
	Operations *[]jsonOperation `json:"operations"`
}

type jsonOperation struct {
	Op       string          `json:"op"`
	Entity   string          `json:"entity"`
	Fact     string          `json:"fact"`
	Content  string          `json:"content"`
	Target   string          `json:"target"`
	Old      string          `json:"old"`
	ID       json.RawMessage `json:"id"`
	Category string          `json:"category"`
	Reason   string          `json:"reason"`
}

// parseJSON reports false when text holds no operations envelope, so that
// the caller can fall back to line parsing.
func parseJSON(text string) ([]Operation, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, false
	}

	env, err := decodeEnvelope(text[start : end+1])
	if err != nil || env.Operations == nil {
		return nil, false
	}

	ops := make([]Operation, 0, len(*env.Operations))
	for _, raw := range *env.Operations {
		if op, ok := raw.operation(); ok {
			ops = append(ops, op)
		}
	}
	return ops, true
}

func decodeEnvelope(candidate string) (envelope, error) {
	var env envelope
	err := json.Unmarshal([]byte(candidate), &env)

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		repaired, repairErr := jsonrepair.JSONRepair(candidate)
		if repairErr != nil {
			return envelope{}, fmt.Errorf("repairing extraction JSON: %w", repairErr)
		}
		env = envelope{}
		err = json.Unmarshal([]byte(repaired), &env)
	}
	return env, err
}

func (j jsonOperation) operation() (Operation, bool) {
	kind := Kind(strings.ToUpper(strings.TrimSpace(j.Op)))
	if kind == "DELETE" {
		kind = KindRemove
	}

	content := j.Fact
	if content == "" {
		content = j.Content
	}
	content = withSubject(j.Entity, cleanText(content))

	target := j.Target
	if target == "" {
		target = j.Old
	}
	target, ordinal := cleanRef(target)
	if ordinal == 0 {
		ordinal = rawOrdinal(j.ID)
	}

	op := Operation{
		Kind:      kind,
		Category:  facts.ParseCategory(j.Category),
		Rationale: j.Reason,
	}

	switch kind {
	case KindAdd:
		op.Content = content
		return op, content != ""
	case KindRemove:
		op.Target, op.Ordinal = target, ordinal
		if op.Target == "" {
			op.Target = content
		}
		return op, op.Target != "" || op.Ordinal > 0
	case KindUpdate:
		op.Target, op.Ordinal, op.Content = target, ordinal, content
		if op.Target == "" && op.Ordinal == 0 {
			op.Target = content
		}
		return op, content != ""
	default:
		return Operation{}, false
	}
}

// withSubject prefixes content with entity when the model split the subject
// into its own field ({"entity": "User", "fact": "likes tea"}).
func withSubject(entity, content string) string {
	entity = facts.Normalize(entity)
	if entity == "" || content == "" {
		return content
	}
	if strings.HasPrefix(strings.ToLower(content), strings.ToLower(entity)) {
		return content
	}
	return entity + " " + content
}

func rawOrdinal(raw json.RawMessage) int {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
