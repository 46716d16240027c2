package analysis

import (
	"fmt"
	"math"
	"sort"

	"github.com/multiverse-labs/operant/internal/analysis/sdt"
	"github.com/multiverse-labs/operant/internal/trial"
)

// GroupKeyField names one column a grouping can key on.
type GroupKeyField string

const (
	FieldDate     GroupKeyField = "Date"
	FieldHour     GroupKeyField = "Hour"
	FieldBlock    GroupKeyField = "Block"
	FieldStimulus GroupKeyField = "Stimulus"
)

// Counts accumulates the per-trial indicator columns (Hit, Miss,
// Miss_NR, FA, CR, CR_NR, Trials, plus the probe analogues).
type Counts struct {
	Hit, Miss, MissNR, FA, CR, CRNR             int
	ProbeHit, ProbeMiss, ProbeMissNR            int
	ProbeFA, ProbeCR, ProbeCRNR                 int
	Trials, ProbeTrials                         int
}

func (c *Counts) add(class trial.Classification) {
	switch class {
	case trial.ResponseHit:
		c.Hit++
		c.Trials++
	case trial.ResponseMiss:
		c.Miss++
		c.Trials++
	case trial.ResponseMissNR:
		c.MissNR++
		c.Trials++
	case trial.ResponseFA:
		c.FA++
		c.Trials++
	case trial.ResponseCR:
		c.CR++
		c.Trials++
	case trial.ResponseCRNR:
		c.CRNR++
		c.Trials++
	case trial.ProbeHit:
		c.ProbeHit++
		c.ProbeTrials++
	case trial.ProbeMiss:
		c.ProbeMiss++
		c.ProbeTrials++
	case trial.ProbeMissNR:
		c.ProbeMissNR++
		c.ProbeTrials++
	case trial.ProbeFA:
		c.ProbeFA++
		c.ProbeTrials++
	case trial.ProbeCR:
		c.ProbeCR++
		c.ProbeTrials++
	case trial.ProbeCRNR:
		c.ProbeCRNR++
		c.ProbeTrials++
	}
}

// Group is one aggregated output row: its key values plus accumulated
// counts and derived signal-detection metrics.
type Group struct {
	Key     map[GroupKeyField]string
	Counts  Counts
	Metrics Metrics
}

// Metrics is the derived per-group signal-detection and
// proportion-correct output.
type Metrics struct {
	Dprime      float64
	DprimeNR    float64
	Bias        *float64 // nil ("n/a") when Counts.Trials < 10
	SPlusCorr   *float64
	SPlusCorrNR *float64
	SMinusCorr  *float64
	SMinusCorrNR *float64
	TotalCorr   *float64
	TotalCorrNR *float64
	ProbePlusCorr    *float64
	ProbePlusCorrNR  *float64
	ProbeMinusCorr   *float64
	ProbeMinusCorrNR *float64
	ProbeTotalCorr   *float64
	ProbeTotalCorrNR *float64
}

// GroupBy aggregates rows by the given ordered key fields, preserving
// each group's first-seen insertion order.
func GroupBy(rows []Row, fields []GroupKeyField) []*Group {
	index := map[string]*Group{}
	var order []string
	for _, r := range rows {
		key := keyFor(r, fields)
		k := keyString(key, fields)
		g, ok := index[k]
		if !ok {
			g = &Group{Key: key}
			index[k] = g
			order = append(order, k)
		}
		g.Counts.add(r.Classification)
	}
	groups := make([]*Group, 0, len(order))
	for _, k := range order {
		g := index[k]
		g.Metrics = computeMetrics(g.Counts)
		groups = append(groups, g)
	}
	return groups
}

func keyFor(r Row, fields []GroupKeyField) map[GroupKeyField]string {
	key := make(map[GroupKeyField]string, len(fields))
	for _, f := range fields {
		switch f {
		case FieldDate:
			key[f] = r.Time.Format("2006-01-02")
		case FieldHour:
			key[f] = fmt.Sprintf("%02d", r.Time.Hour())
		case FieldBlock:
			key[f] = r.Block
		case FieldStimulus:
			key[f] = r.Stimulus
		}
	}
	return key
}

func keyString(key map[GroupKeyField]string, fields []GroupKeyField) string {
	s := ""
	for _, f := range fields {
		s += string(f) + "=" + key[f] + "|"
	}
	return s
}

// computeMetrics derives d'/bias/proportion-correct for one group's
// accumulated counts.
func computeMetrics(c Counts) Metrics {
	withoutNR := sdt.ConfusionMatrix{Hit: float64(c.Hit), Miss: float64(c.Miss), FA: float64(c.FA), CR: float64(c.CR)}
	withNR := sdt.ConfusionMatrix{
		Hit:  float64(c.Hit),
		Miss: float64(c.Miss + c.MissNR),
		FA:   float64(c.FA),
		CR:   float64(c.CR + c.CRNR),
	}
	m := Metrics{
		Dprime:   round3(sdt.Dprime(withoutNR)),
		DprimeNR: round3(sdt.Dprime(withNR)),
	}
	// beta reportability: n/a whenever total trials < 10.
	if c.Trials >= 10 {
		b := round3(sdt.Bias(withoutNR))
		m.Bias = &b
	}

	m.SPlusCorr = ratio5(float64(c.Hit), float64(c.Hit+c.Miss))
	m.SPlusCorrNR = ratio5(float64(c.Hit), float64(c.Hit+c.Miss+c.MissNR))
	m.SMinusCorr = ratio5(float64(c.CR), float64(c.CR+c.FA))
	m.SMinusCorrNR = ratio5(float64(c.CR+c.CRNR), float64(c.FA+c.CR+c.CRNR))
	m.TotalCorr = ratio5(float64(c.Hit+c.CR), float64(c.Hit+c.CR+c.Miss+c.FA))
	m.TotalCorrNR = ratio5(float64(c.Hit+c.CR+c.CRNR), float64(c.Trials))

	m.ProbePlusCorr = ratio5(float64(c.ProbeHit), float64(c.ProbeHit+c.ProbeMiss))
	m.ProbePlusCorrNR = ratio5(float64(c.ProbeHit), float64(c.ProbeHit+c.ProbeMiss+c.ProbeMissNR))
	m.ProbeMinusCorr = ratio5(float64(c.ProbeCR), float64(c.ProbeCR+c.ProbeFA))
	m.ProbeMinusCorrNR = ratio5(float64(c.ProbeCR+c.ProbeCRNR), float64(c.ProbeFA+c.ProbeCR+c.ProbeCRNR))
	m.ProbeTotalCorr = ratio5(float64(c.ProbeHit+c.ProbeCR), float64(c.ProbeHit+c.ProbeCR+c.ProbeMiss+c.ProbeFA))
	m.ProbeTotalCorrNR = ratio5(float64(c.ProbeHit+c.ProbeCR+c.ProbeCRNR), float64(c.ProbeTrials))

	return m
}

// ratio5 rounds num/denom to 5 decimals, returning nil for a zero
// denominator.
func ratio5(num, denom float64) *float64 {
	if denom == 0 {
		return nil
	}
	v := math.Round(num/denom*1e5) / 1e5
	return &v
}

func round3(f float64) float64 {
	return math.Round(f*1e3) / 1e3
}

// SortedKeys returns groups sorted by their key fields in lexical order,
// useful for deterministic report rendering.
func SortedKeys(groups []*Group, fields []GroupKeyField) []*Group {
	out := append([]*Group(nil), groups...)
	sort.Slice(out, func(i, j int) bool {
		for _, f := range fields {
			if out[i].Key[f] != out[j].Key[f] {
				return out[i].Key[f] < out[j].Key[f]
			}
		}
		return false
	})
	return out
}
