package analysis

import "fmt"

// Criteria is the optional pass/fail performance check: a minimum
// trial count, minimum d', per-class minimum
// proportion correct, and a minimum number of passing days/groups.
type Criteria struct {
	MinTrials      *int
	MinDprime      *float64
	MinPropCorrect map[string]float64 // column name -> minimum (e.g. "S+", "Total Corr")
	MinPassingDays *int
	UseNR          bool
}

// CriteriaResult is the outcome of CheckCriteria: whether the overall
// check passed, and the reasoning trace behind it.
type CriteriaResult struct {
	Passed      bool
	PassingDays int
	TotalDays   int
	Reasons     []string
}

// CheckCriteria evaluates c against each group independently, then
// requires at least MinPassingDays (default: all groups) to pass.
func CheckCriteria(groups []*Group, c Criteria) CriteriaResult {
	result := CriteriaResult{TotalDays: len(groups)}
	for i, g := range groups {
		ok, reason := groupPasses(g, c)
		if ok {
			result.PassingDays++
		} else {
			result.Reasons = append(result.Reasons, fmt.Sprintf("group %d: %s", i, reason))
		}
	}
	minDays := result.TotalDays
	if c.MinPassingDays != nil {
		minDays = *c.MinPassingDays
	}
	result.Passed = result.PassingDays >= minDays
	return result
}

func groupPasses(g *Group, c Criteria) (bool, string) {
	trials := g.Counts.Trials
	if c.MinTrials != nil && trials < *c.MinTrials {
		return false, fmt.Sprintf("trial count %d below minimum %d", trials, *c.MinTrials)
	}

	if c.MinDprime != nil {
		dp := g.Metrics.Dprime
		if c.UseNR {
			dp = g.Metrics.DprimeNR
		}
		if dp < *c.MinDprime {
			return false, fmt.Sprintf("d' %.3f below minimum %.3f", dp, *c.MinDprime)
		}
	}

	for col, min := range c.MinPropCorrect {
		val := propCorrectColumn(g, col, c.UseNR)
		if val == nil {
			return false, fmt.Sprintf("proportion correct column %q has no data", col)
		}
		if *val < min {
			return false, fmt.Sprintf("%s proportion correct %.5f below minimum %.5f", col, *val, min)
		}
	}

	return true, ""
}

func propCorrectColumn(g *Group, col string, useNR bool) *float64 {
	switch col {
	case "S+":
		if useNR {
			return g.Metrics.SPlusCorrNR
		}
		return g.Metrics.SPlusCorr
	case "S-":
		if useNR {
			return g.Metrics.SMinusCorrNR
		}
		return g.Metrics.SMinusCorr
	case "Total Corr":
		if useNR {
			return g.Metrics.TotalCorrNR
		}
		return g.Metrics.TotalCorr
	case "Probe S+":
		if useNR {
			return g.Metrics.ProbePlusCorrNR
		}
		return g.Metrics.ProbePlusCorr
	case "Probe S-":
		if useNR {
			return g.Metrics.ProbeMinusCorrNR
		}
		return g.Metrics.ProbeMinusCorr
	case "Probe Total Corr":
		if useNR {
			return g.Metrics.ProbeTotalCorrNR
		}
		return g.Metrics.ProbeTotalCorr
	default:
		return nil
	}
}
