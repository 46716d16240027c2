package trial

import (
	"fmt"

	"github.com/multiverse-labs/operant/internal/analysis/sdt"
)

// runningMetrics computes the running d'/bias fields of the summaryDAT
// snapshot from the counts accumulated so far in sum. Unlike
// the analyzer's grouped d'/bias, these are over the whole
// session to date, the same "per (chamber, subject) running total" the
// summaryDAT file is meant to expose to the GUI between analyzer runs.
func runningMetrics(sum Summary) (dp, dpNR, bias, biasNR float64, biasDesc, biasDescNR string) {
	withoutNR := sdt.ConfusionMatrix{
		Hit:  float64(sum.CorrectResponses),
		Miss: float64(sum.Misses),
		FA:   float64(sum.FalseAlarms),
		CR:   float64(sum.CorrectRejections),
	}
	withNR := sdt.ConfusionMatrix{
		Hit:  float64(sum.CorrectResponses),
		Miss: float64(sum.Misses + sum.SPlusNR),
		FA:   float64(sum.FalseAlarms),
		CR:   float64(sum.CorrectRejections + sum.SMinusNR),
	}
	dp = round3(sdt.Dprime(withoutNR))
	dpNR = round3(sdt.Dprime(withNR))
	bias = round3(sdt.Bias(withoutNR))
	biasNR = round3(sdt.Bias(withNR))
	biasDesc = biasDescription(bias)
	biasDescNR = biasDescription(biasNR)
	return
}

func round3(f float64) float64 {
	return float64(int64(f*1000+sign(f)*0.5)) / 1000
}

func sign(f float64) float64 {
	if f < 0 {
		return -1
	}
	return 1
}

// biasDescription labels a beta value for the summary snapshot: above
// 1 is conservative (withholding response, favoring S-), below 1 is
// liberal (responding freely, favoring S+), near 1 is unbiased.
func biasDescription(b float64) string {
	switch {
	case b > 1.05:
		return "conservative (biased toward S-)"
	case b < 0.95:
		return "liberal (biased toward S+)"
	default:
		return fmt.Sprintf("unbiased (%.3f)", b)
	}
}
