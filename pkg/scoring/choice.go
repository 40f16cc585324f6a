package scoring

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/snow-ghost/llmbench/core"
)

// ChoiceParser extracts decision tokens {1}..{N} from responses.
type ChoiceParser struct {
	n  int
	re *regexp.Regexp
}

// NewChoiceParser returns a parser for n options. n is clamped to the
// supported option range.
func NewChoiceParser(n int) *ChoiceParser {
	n = max(core.MinOptions, min(n, core.MaxOptions))
	return &ChoiceParser{
		n:  n,
		re: regexp.MustCompile(fmt.Sprintf(`\{([1-%d])\}`, n)),
	}
}

// Parse takes the first valid token. More than one distinct token marks
// the outcome ambiguous; a repeated identical token does not.
func (p *ChoiceParser) Parse(raw string) core.ChoiceOutcome {
	matches := p.re.FindAllStringSubmatchIndex(raw, -1)
	if len(matches) == 0 {
		return core.ChoiceOutcome{Explanation: strings.TrimSpace(raw)}
	}

	first := matches[0]
	token := raw[first[0]:first[1]]
	id, _ := strconv.Atoi(raw[first[2]:first[3]])

	ambiguous := false
	for _, m := range matches[1:] {
		if raw[m[0]:m[1]] != token {
			ambiguous = true
			break
		}
	}

	return core.ChoiceOutcome{
		DecisionToken: &token,
		OptionID:      &id,
		Explanation:   strings.TrimSpace(raw[first[1]:]),
		Ambiguous:     ambiguous,
	}
}

// ParseChoice extracts the decision of raw for a scenario with n options.
func ParseChoice(raw string, n int) core.ChoiceOutcome {
	return NewChoiceParser(n).Parse(raw)
}
