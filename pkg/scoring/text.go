package scoring

import (
	"math"
	"regexp"

	"github.com/snow-ghost/llmbench/core"
)

// ForbiddenPenalty is subtracted from the score for every forbidden hit.
const ForbiddenPenalty = 0.5

type pattern struct {
	source string
	re     *regexp.Regexp // nil when the source does not compile
}

// TextMatcher is a compiled set of TextRules, safe for concurrent use.
type TextMatcher struct {
	rules     core.TextRules
	required  []pattern
	forbidden []pattern
}

// CompileText compiles rules once so a run can score every iteration
// against the same patterns. Patterns are matched in multiline mode.
// A pattern that fails to compile never matches.
func CompileText(rules core.TextRules) *TextMatcher {
	return &TextMatcher{
		rules:     rules,
		required:  compileAll(rules.Required, rules.IgnoreCase),
		forbidden: compileAll(rules.Forbidden, rules.IgnoreCase),
	}
}

func compileAll(sources []string, ignoreCase bool) []pattern {
	flags := "(?m)"
	if ignoreCase {
		flags = "(?mi)"
	}
	out := make([]pattern, len(sources))
	for i, src := range sources {
		re, err := regexp.Compile(flags + src)
		if err != nil {
			re = nil
		}
		out[i] = pattern{source: src, re: re}
	}
	return out
}

// Score grades raw against the compiled rules.
func (m *TextMatcher) Score(raw string) core.TextOutcome {
	out := core.TextOutcome{
		MatchedRequired:  []string{},
		MissingRequired:  []string{},
		MatchedForbidden: []string{},
	}
	for _, p := range m.required {
		if p.re != nil && p.re.MatchString(raw) {
			out.MatchedRequired = append(out.MatchedRequired, p.source)
		} else {
			out.MissingRequired = append(out.MissingRequired, p.source)
		}
	}
	for _, p := range m.forbidden {
		if p.re != nil && p.re.MatchString(raw) {
			out.MatchedForbidden = append(out.MatchedForbidden, p.source)
		}
	}

	base := 1.0
	if len(m.required) > 0 {
		base = float64(len(out.MatchedRequired)) / float64(len(m.required))
	}
	out.Score = math.Max(0, base-ForbiddenPenalty*float64(len(out.MatchedForbidden)))
	out.Passed = out.Score >= m.rules.PassThreshold
	return out
}

// ScoreText grades raw against rules. It is a pure function of its inputs.
func ScoreText(raw string, rules core.TextRules) core.TextOutcome {
	return CompileText(rules).Score(raw)
}
