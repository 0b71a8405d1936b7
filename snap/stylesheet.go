package snap

import "strings"

// Rule is one entry of a stylesheet: either a PlainRule or a ConditionalRule.
type Rule interface {
	isRule()
}

// PlainRule carries literal rule text.
type PlainRule struct {
	Text string
}

// ConditionalRule guards nested rules with a predicate such as a media query.
// A nil Active is treated as always true.
type ConditionalRule struct {
	Condition string
	Active    func() bool
	Rules     []Rule
}

func (PlainRule) isRule()       {}
func (ConditionalRule) isRule() {}

// Stylesheet is an ordered rule list. Href is the sheet's own URL for linked
// sheets and empty for inline ones.
type Stylesheet struct {
	Href  string
	Rules []Rule
}

// Flattened is the effective style text of a set of sheets together with every
// resource it references, both in document order.
type Flattened struct {
	Text string
	Refs []string
}

// Flatten concatenates the text of all currently active rules. Conditional rules
// whose predicate is false are dropped together with their resources.
func Flatten(sheets []Stylesheet) Flattened {
	var b strings.Builder
	var refs []string
	for _, sh := range sheets {
		refs = flattenRules(sh.Rules, &b, refs)
	}
	return Flattened{Text: b.String(), Refs: refs}
}

func flattenRules(rules []Rule, b *strings.Builder, refs []string) []string {
	for _, r := range rules {
		switch rule := r.(type) {
		case PlainRule:
			b.WriteString(rule.Text)
			b.WriteByte('\n')
			refs = append(refs, ExtractCSSRefs(rule.Text)...)
		case ConditionalRule:
			if rule.Active != nil && !rule.Active() {
				continue
			}
			refs = flattenRules(rule.Rules, b, refs)
		}
	}
	return refs
}

// RebaseRules makes relative url() references in rules absolute against href.
// Linked sheets resolve their resources relative to themselves, not to the
// document that links them.
func RebaseRules(rules []Rule, href string) []Rule {
	if href == "" || len(rules) == 0 {
		return rules
	}
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		switch rule := r.(type) {
		case PlainRule:
			out = append(out, PlainRule{Text: rebaseText(rule.Text, href)})
		case ConditionalRule:
			rule.Rules = RebaseRules(rule.Rules, href)
			out = append(out, rule)
		default:
			out = append(out, r)
		}
	}
	return out
}

func rebaseText(css, href string) string {
	refs := uniqueRefs(ExtractCSSRefs(css))
	if len(refs) == 0 {
		return css
	}
	repl := make([]InlineResource, 0, len(refs))
	for _, ref := range refs {
		if passthroughRef(ref) {
			continue
		}
		if abs := resolveAbsURL(href, ref); abs != "" && abs != ref {
			repl = append(repl, InlineResource{URL: ref, Encoded: abs})
		}
	}
	return SubstituteCSS(css, repl)
}
