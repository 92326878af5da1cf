// Package treebank reverses Penn Treebank style tokenization, turning a token
// sequence back into ordinary prose.
package treebank

import (
	"regexp"
	"strings"
)

type rule struct {
	pattern *regexp.Regexp
	repl    string
}

func compile(pairs ...string) []rule {
	rules := make([]rule, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		rules = append(rules, rule{regexp.MustCompile(pairs[i]), pairs[i+1]})
	}
	return rules
}

func apply(text string, rules []rule) string {
	for _, r := range rules {
		text = r.pattern.ReplaceAllString(text, r.repl)
	}
	return text
}

var (
	// Forms the tokenizer splits in two: "cannot" becomes "can not".
	splitForms = compile(
		`(?i) ('t)\s(is)\b`, "${1}${2}",
		`(?i) ('t)\s(was)\b`, "${1}${2}",
		`(?i)\b(can)\s(not)\b`, "${1}${2}",
		`(?i)\b(d)\s('ye)\b`, "${1}${2}",
		`(?i)\b(gim)\s(me)\b`, "${1}${2}",
		`(?i)\b(gon)\s(na)\b`, "${1}${2}",
		`(?i)\b(got)\s(ta)\b`, "${1}${2}",
		`(?i)\b(lem)\s(me)\b`, "${1}${2}",
		`(?i)\b(more)\s('n)\b`, "${1}${2}",
		`(?i)\b(wan)\s(na)(\s)`, "${1}${2}${3}",
	)

	endingQuotes = compile(
		`([^' ])\s('ll|'LL|'re|'RE|'ve|'VE|n't|N'T) `, "${1}${2} ",
		`([^' ])\s('[sS]|'[mM]|'[dD]|') `, "${1}${2} ",
		`(\S)\s('')`, "${1}${2}",
		`('')\s([.,:)\]>};%])`, "${1}${2}",
		`''`, `"`,
	)

	parensBrackets = compile(
		`([\[({<])\s`, "${1}",
		`\s([\])}>])`, "${1}",
		`([\])}>])\s([:;,.])`, "${1}${2}",
	)

	punctuation = compile(
		`([^'])\s'\s`, "${1}' ",
		`\s([?!])`, "${1}",
		`([^.])\s(\.)([\])}>"']*)\s*$`, "${1}${2}${3}",
		`([#$])\s`, "${1}",
		`\s([;%])`, "${1}",
		`\s\.\.\.\s`, "...",
		`\s([&*])\s`, " ${1} ",
		`\s([,:])\s`, "${1} ",
		`\s([,:])$`, "${1}",
	)

	startingQuotes = compile(
		`([ (\[{<])\s`+"``", "${1}``",
		"(``)\\s", "${1}",
		"``", `"`,
	)
)

// Detokenize joins tokens with spaces and then undoes the treebank
// conventions: contractions and split forms are rejoined, closing
// punctuation and brackets lose their leading space, opening brackets lose
// their trailing one, and `` / '' quotes become plain double quotes.
//
// Only a period at the very end of the text is attached to the preceding
// word; periods inside the text keep their leading space.
func Detokenize(tokens []string) string {
	if len(tokens) == 0 {
		return ""
	}

	// Pad so that the word-boundary rules also match at the edges.
	text := " " + strings.Join(tokens, " ") + " "
	text = apply(text, splitForms)
	text = apply(text, endingQuotes)
	text = strings.TrimSpace(text)
	text = apply(text, parensBrackets)
	text = apply(text, punctuation)
	text = apply(text, startingQuotes)
	return strings.TrimSpace(text)
}
