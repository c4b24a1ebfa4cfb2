package rename

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// Error codes carried by *RuleError.
const (
	CodeInvalidRule   = "INVALID_RULE"
	CodeAmbiguousRule = "AMBIGUOUS_RULE"
)

var (
	// ErrInvalidRule matches rules that cannot be parsed.
	ErrInvalidRule = errors.New("invalid rename rule")
	// ErrAmbiguousRule matches rule sets whose result would depend on the
	// order the rules are applied in, or could not be inverted.
	ErrAmbiguousRule = errors.New("ambiguous rename rule")
)

// RuleError describes a rejected rule or rule set.
type RuleError struct {
	Code    string
	Message string
	Rules   []Rule
}

func (e *RuleError) Error() string {
	return e.Message
}

// Is lets errors.Is match the sentinel for the error code.
func (e *RuleError) Is(target error) bool {
	switch target {
	case ErrInvalidRule:
		return e.Code == CodeInvalidRule
	case ErrAmbiguousRule:
		return e.Code == CodeAmbiguousRule
	}
	return false
}

// Rule maps an old namespace prefix to a new one, both in dotted form.
type Rule struct {
	Old string
	New string
}

func (r Rule) String() string {
	return r.Old + "=" + r.New
}

// OldPath is the directory form of Old.
func (r Rule) OldPath() string {
	return strings.ReplaceAll(r.Old, ".", "/")
}

// NewPath is the directory form of New.
func (r Rule) NewPath() string {
	return strings.ReplaceAll(r.New, ".", "/")
}

// Rules is an ordered rule set.
type Rules []Rule

// ParseRule parses "old=new".
func ParseRule(value string) (Rule, error) {
	oldNS, newNS, ok := strings.Cut(value, "=")
	if !ok {
		return Rule{}, invalidRule(fmt.Sprintf("rule %q must have the form old=new", value))
	}
	rule := Rule{Old: strings.TrimSpace(oldNS), New: strings.TrimSpace(newNS)}
	if err := checkNamespace(rule.Old); err != nil {
		return Rule{}, invalidRule(fmt.Sprintf("rule %q: old prefix %v", value, err))
	}
	if err := checkNamespace(rule.New); err != nil {
		return Rule{}, invalidRule(fmt.Sprintf("rule %q: new prefix %v", value, err))
	}
	return rule, nil
}

// ParseRules parses every value; a value may hold several comma-separated
// rules. The parsed set is validated.
func ParseRules(values []string) (Rules, error) {
	var rules Rules
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			rule, err := ParseRule(part)
			if err != nil {
				return nil, err
			}
			rules = append(rules, rule)
		}
	}
	if len(rules) == 0 {
		return nil, invalidRule("no rename rules given")
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return rules, nil
}

func checkNamespace(ns string) error {
	if ns == "" {
		return errors.New("is empty")
	}
	if strings.ContainsAny(ns, "/\\ \t") {
		return fmt.Errorf("%q must be a dotted name", ns)
	}
	for _, segment := range strings.Split(ns, ".") {
		if segment == "" {
			return fmt.Errorf("%q has an empty segment", ns)
		}
	}
	return nil
}

// Validate rejects rule sets whose outcome would depend on rule order or
// could not be undone by Invert. No prefix may contain another prefix on the
// same side, and no prefix may contain another rule's prefix on the opposite
// side.
func (rs Rules) Validate() error {
	for _, r := range rs {
		if err := checkNamespace(r.Old); err != nil {
			return invalidRule(fmt.Sprintf("rule %s: old prefix %v", r, err))
		}
		if err := checkNamespace(r.New); err != nil {
			return invalidRule(fmt.Sprintf("rule %s: new prefix %v", r, err))
		}
	}
	for i := range rs {
		for j := range rs {
			if i == j {
				continue
			}
			a, b := rs[i], rs[j]
			if i < j && overlaps(a.Old, b.Old) {
				return ambiguous(fmt.Sprintf("old prefixes of %s and %s overlap", a, b), a, b)
			}
			if i < j && overlaps(a.New, b.New) {
				return ambiguous(fmt.Sprintf("new prefixes of %s and %s overlap", a, b), a, b)
			}
			if strings.Contains(a.New, b.Old) {
				return ambiguous(fmt.Sprintf("replacement of %s would be rewritten by %s", a, b), a, b)
			}
			if strings.Contains(a.Old, b.New) {
				return ambiguous(fmt.Sprintf("inverting %s would rewrite the replacement of %s", b, a), a, b)
			}
		}
	}
	return nil
}

func overlaps(a, b string) bool {
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// Invert swaps old and new in every rule.
func (rs Rules) Invert() Rules {
	inverted := make(Rules, len(rs))
	for i, r := range rs {
		inverted[i] = Rule{Old: r.New, New: r.Old}
	}
	return inverted
}

// RewritePath moves a slash-separated path from an old prefix directory to
// the new one. Only whole directory segments match; paths outside every rule
// are returned unchanged.
func (rs Rules) RewritePath(rel string) string {
	for _, r := range rs {
		oldDir := r.OldPath()
		if rel == oldDir {
			rel = r.NewPath()
			continue
		}
		if rest, ok := strings.CutPrefix(rel, oldDir+"/"); ok {
			rel = r.NewPath() + "/" + rest
		}
	}
	return rel
}

// RewriteContent replaces every occurrence of each old dotted prefix with its
// new one, rule by rule.
func (rs Rules) RewriteContent(content []byte) []byte {
	for _, r := range rs {
		content = bytes.ReplaceAll(content, []byte(r.Old), []byte(r.New))
	}
	return content
}

func (rs Rules) String() string {
	parts := make([]string, len(rs))
	for i, r := range rs {
		parts[i] = r.String()
	}
	return strings.Join(parts, ",")
}

func invalidRule(message string) *RuleError {
	return &RuleError{Code: CodeInvalidRule, Message: message}
}

func ambiguous(message string, rules ...Rule) *RuleError {
	return &RuleError{Code: CodeAmbiguousRule, Message: message, Rules: rules}
}
