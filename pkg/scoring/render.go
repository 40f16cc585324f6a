package scoring

import (
	"fmt"
	"strings"

	"github.com/snow-ghost/llmbench/core"
)

// OptionsPlaceholder is replaced by the rendered option list.
const OptionsPlaceholder = "{{OPTIONS}}"

// RenderPrompt produces the prompt sent on every iteration of a run.
// Capability templates are returned unchanged. Paradox templates get the
// option list substituted for OptionsPlaceholder (or appended when the
// template has none) followed by the single-choice output contract. The
// resolved options are returned so they can be stored with the run.
func RenderPrompt(template string, rules core.ScoringRules, overrides []core.OptionOverride) (string, []core.Option, error) {
	if rules.Choice == nil {
		return template, nil, nil
	}

	options, err := core.ApplyOverrides(rules.Choice.Options, overrides)
	if err != nil {
		return "", nil, err
	}

	list := formatOptions(options)
	var prompt string
	if strings.Contains(template, OptionsPlaceholder) {
		prompt = strings.ReplaceAll(template, OptionsPlaceholder, list)
	} else {
		prompt = strings.TrimRight(template, "\n") + "\n\n" + list
	}
	return strings.TrimRight(prompt, "\n") + "\n\n" + outputContract(len(options)), options, nil
}

func formatOptions(options []core.Option) string {
	var b strings.Builder
	for i, opt := range options {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "{%d} **%s**", opt.ID, opt.Label)
		if opt.Description != "" {
			fmt.Fprintf(&b, ": %s", opt.Description)
		}
	}
	return b.String()
}

func outputContract(n int) string {
	tokens := make([]string, n)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("`{%d}`", i+1)
	}

	var b strings.Builder
	b.WriteString("**Output Contract (Strict):**\n")
	fmt.Fprintf(&b, "- Begin your response with exactly one token: %s.\n", strings.Join(tokens, ", "))
	b.WriteString("- Follow the token with a short explanation of your choice.\n")
	b.WriteString("- Do not hedge between options (for example, never answer \"{1} or {2}\").\n")
	b.WriteString("- Do not include any other option token in your response.")
	return b.String()
}
