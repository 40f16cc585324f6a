package stats

import (
	"github.com/snow-ghost/llmbench/core"
)

// CompareConfig controls a two-run comparison.
type CompareConfig struct {
	Confidence float64
	Alpha      float64
	Bootstrap  BootstrapConfig
}

// OptionComparison compares how often two runs chose one option.
type OptionComparison struct {
	ID     int         `json:"id"`
	Label  string      `json:"label,omitempty"`
	A      *Proportion `json:"a,omitempty"`
	B      *Proportion `json:"b,omitempty"`
	Effect EffectSize  `json:"effect"`
	HCI    *Interval   `json:"hInterval,omitempty"`
}

// Comparison is the statistical comparison of two runs of the same
// scenario type.
type Comparison struct {
	RunA         string             `json:"runA"`
	RunB         string             `json:"runB"`
	ScenarioType core.ScenarioType  `json:"scenarioType"`
	ChiSquare    ChiSquareResult    `json:"chiSquare"`
	Options      []OptionComparison `json:"options,omitempty"`
	PassRateA    *Proportion        `json:"passRateA,omitempty"`
	PassRateB    *Proportion        `json:"passRateB,omitempty"`
	PassEffect   *EffectSize        `json:"passEffect,omitempty"`
	PassHCI      *Interval          `json:"passHInterval,omitempty"`
}

// CompareRuns compares two runs. Choice runs are compared per option and
// over the full decision distribution; text runs over pass rates.
func CompareRuns(a, b *core.RunRecord, cfg CompareConfig) (*Comparison, error) {
	if a.ScenarioType != b.ScenarioType {
		return nil, core.Newf(core.EInvalidInput, "cannot compare %s run with %s run", a.ScenarioType, b.ScenarioType)
	}
	switch a.ScenarioType {
	case core.ScenarioParadox:
		return compareChoice(a, b, cfg)
	case core.ScenarioCapability:
		return compareText(a, b, cfg)
	default:
		return nil, core.Newf(core.EInvalidInput, "unknown scenario type %q", a.ScenarioType)
	}
}

func compareChoice(a, b *core.RunRecord, cfg CompareConfig) (*Comparison, error) {
	if a.Summary.ChoiceSummary == nil || b.Summary.ChoiceSummary == nil {
		return nil, core.New(core.EInvalidInput, "choice runs need a choice summary")
	}
	if len(a.Summary.Options) != len(b.Summary.Options) {
		return nil, core.Newf(core.EInvalidInput, "option counts differ: %d vs %d", len(a.Summary.Options), len(b.Summary.Options))
	}

	chi, err := ChiSquare(ChoiceCounts(a.Summary), ChoiceCounts(b.Summary), cfg.Alpha)
	if err != nil {
		return nil, err
	}
	cmp := &Comparison{RunA: a.RunID, RunB: b.RunID, ScenarioType: core.ScenarioParadox, ChiSquare: chi}

	decA, decB := Decisions(a.Responses), Decisions(b.Responses)
	for i, opt := range a.Summary.Options {
		oc := OptionComparison{ID: opt.ID, Label: opt.Label}
		pa, pb := 0.0, 0.0
		if a.Summary.Total > 0 {
			w, err := Wilson(opt.Count, a.Summary.Total, cfg.Confidence)
			if err != nil {
				return nil, err
			}
			oc.A, pa = &w, w.Proportion
		}
		if b.Summary.Total > 0 {
			w, err := Wilson(b.Summary.Options[i].Count, b.Summary.Total, cfg.Confidence)
			if err != nil {
				return nil, err
			}
			oc.B, pb = &w, w.Proportion
		}
		oc.Effect = CohensH(pa, pb)

		if len(decA) > 0 && len(decB) > 0 {
			iv, err := BootstrapCohensH(chose(decA, opt.ID), chose(decB, opt.ID), cfg.Bootstrap)
			if err != nil {
				return nil, err
			}
			oc.HCI = &iv
		}
		cmp.Options = append(cmp.Options, oc)
	}
	return cmp, nil
}

func compareText(a, b *core.RunRecord, cfg CompareConfig) (*Comparison, error) {
	if a.Summary.TextSummary == nil || b.Summary.TextSummary == nil {
		return nil, core.New(core.EInvalidInput, "text runs need a text summary")
	}
	passA, passB := a.Summary.PassCount, b.Summary.PassCount
	chi, err := ChiSquare(
		[]int{passA, a.Summary.Total - passA},
		[]int{passB, b.Summary.Total - passB},
		cfg.Alpha,
	)
	if err != nil {
		return nil, err
	}

	ra, err := Wilson(passA, a.Summary.Total, cfg.Confidence)
	if err != nil {
		return nil, err
	}
	rb, err := Wilson(passB, b.Summary.Total, cfg.Confidence)
	if err != nil {
		return nil, err
	}
	effect := CohensH(ra.Proportion, rb.Proportion)
	hci, err := BootstrapCohensH(Passes(a.Responses), Passes(b.Responses), cfg.Bootstrap)
	if err != nil {
		return nil, err
	}

	return &Comparison{
		RunA:         a.RunID,
		RunB:         b.RunID,
		ScenarioType: core.ScenarioCapability,
		ChiSquare:    chi,
		PassRateA:    &ra,
		PassRateB:    &rb,
		PassEffect:   &effect,
		PassHCI:      &hci,
	}, nil
}

func chose(decisions []int, id int) []bool {
	out := make([]bool, len(decisions))
	for i, d := range decisions {
		out[i] = d == id
	}
	return out
}
