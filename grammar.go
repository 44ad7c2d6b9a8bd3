package marginalia

import (
	"fmt"
	"regexp"
	"strings"
)

// GrammarError reports a meta line that fails the token grammar. It always
// carries the offending token so callers can surface an exact location.
type GrammarError struct {
	Token  string
	Reason string
}

func (e *GrammarError) Error() string {
	if e.Token == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %q", e.Reason, e.Token)
}

var (
	metaRe        = regexp.MustCompile(`^\s*#\s*meta:(.*)$`)
	anchorTokenRe = regexp.MustCompile(`^@[A-Za-z0-9_-]+$`)
	metaKeyRe     = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// reservedKeys is the fixed reserved key set of the meta grammar. "modules"
// is a legacy alias for "systems" and is folded into it at parse time.
var reservedKeys = map[string]string{
	"systems":     "systems",
	"modules":     "systems",
	"roles":       "roles",
	"threads":     "threads",
	"callers":     "callers",
	"flags":       "flags",
	"assign_type": "assign_type",
}

// parsedMeta is the structured form of one meta line.
type parsedMeta struct {
	anchor   string // anchor name without '@', empty if none
	id       string // explicit id without '#', empty if none
	reserved map[string][]string
	custom   map[string][]string
}

// isMetaLine reports whether line is a `#` comment whose content begins with
// the literal token `meta:` (case-sensitive).
func isMetaLine(line string) bool {
	return metaRe.MatchString(line)
}

// parseMetaLine tokenizes a confirmed meta line. Tokens are
// whitespace-separated: `@name` is an anchor, `#id` is an explicit id, and
// everything else must be `key=values`. Within one line a repeated key
// replaces its previous value list (last-within-line wins); cross-line
// merging is the accumulator's job.
func parseMetaLine(line string) (*parsedMeta, error) {
	m := metaRe.FindStringSubmatch(line)
	if m == nil {
		panic("marginalia: parseMetaLine called on a non-meta line")
	}

	p := &parsedMeta{
		reserved: make(map[string][]string),
		custom:   make(map[string][]string),
	}

	for _, tok := range strings.Fields(m[1]) {
		switch {
		case strings.HasPrefix(tok, "@"):
			if !anchorTokenRe.MatchString(tok) {
				return nil, &GrammarError{Token: tok, Reason: "bad anchor token"}
			}
			p.anchor = tok[1:]

		case strings.HasPrefix(tok, "#"):
			if len(tok) == 1 {
				return nil, &GrammarError{Token: tok, Reason: "empty id token"}
			}
			p.id = tok[1:]

		default:
			key, vals, err := parseKeyValues(tok)
			if err != nil {
				return nil, err
			}
			if canon, ok := reservedKeys[key]; ok {
				p.reserved[canon] = vals
			} else {
				p.custom[key] = vals
			}
		}
	}
	return p, nil
}

// parseKeyValues splits a `key=v1,v2` token. The key must match
// [A-Za-z0-9_-]+ and the token must contain exactly one '='. An empty right
// side yields an empty value list; otherwise every comma-separated value must
// be non-empty.
func parseKeyValues(tok string) (string, []string, error) {
	if strings.Count(tok, "=") != 1 {
		return "", nil, &GrammarError{Token: tok, Reason: "entry must contain exactly one '='"}
	}
	key, rhs, _ := strings.Cut(tok, "=")
	if !metaKeyRe.MatchString(key) {
		return "", nil, &GrammarError{Token: tok, Reason: "bad key"}
	}
	if rhs == "" {
		return key, []string{}, nil
	}
	vals := strings.Split(rhs, ",")
	for _, v := range vals {
		if v == "" {
			return "", nil, &GrammarError{Token: tok, Reason: "empty value"}
		}
	}
	return key, vals, nil
}
