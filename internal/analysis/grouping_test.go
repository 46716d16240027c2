package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multiverse-labs/operant/internal/trial"
)

func row(class trial.StimulusClass, resp trial.Response, block string, t time.Time) Row {
	return Row{
		Block:          block,
		Time:           t,
		Class:          class,
		Response:       resp,
		Classification: trial.Classify(class, resp),
	}
}

func TestGroupByPreservesInsertionOrder(t *testing.T) {
	day1 := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)
	rows := []Row{
		row(trial.ClassSPlus, trial.ResponseSPlus, "b", day2),
		row(trial.ClassSPlus, trial.ResponseSPlus, "a", day1),
		row(trial.ClassSMinus, trial.ResponseSMinus, "b", day2),
	}
	groups := GroupBy(rows, []GroupKeyField{FieldBlock})
	require.Len(t, groups, 2)
	assert.Equal(t, "b", groups[0].Key[FieldBlock])
	assert.Equal(t, "a", groups[1].Key[FieldBlock])
}

func TestGroupMetricsBiasNAUnderTen(t *testing.T) {
	var rows []Row
	now := time.Now()
	for i := 0; i < 5; i++ {
		rows = append(rows, row(trial.ClassSPlus, trial.ResponseSPlus, "x", now))
	}
	groups := GroupBy(rows, []GroupKeyField{FieldBlock})
	require.Len(t, groups, 1)
	assert.Nil(t, groups[0].Metrics.Bias)
}

func TestGroupMetricsBiasReportableAtTen(t *testing.T) {
	var rows []Row
	now := time.Now()
	for i := 0; i < 5; i++ {
		rows = append(rows, row(trial.ClassSPlus, trial.ResponseSPlus, "x", now))
		rows = append(rows, row(trial.ClassSMinus, trial.ResponseSMinus, "x", now))
	}
	groups := GroupBy(rows, []GroupKeyField{FieldBlock})
	require.Len(t, groups, 1)
	require.NotNil(t, groups[0].Metrics.Bias)
}

func TestRatio5ZeroDenominatorIsNil(t *testing.T) {
	assert.Nil(t, ratio5(0, 0))
	v := ratio5(1, 2)
	require.NotNil(t, v)
	assert.InDelta(t, 0.5, *v, 1e-9)
}

func TestCheckCriteriaMinTrials(t *testing.T) {
	var rows []Row
	now := time.Now()
	for i := 0; i < 3; i++ {
		rows = append(rows, row(trial.ClassSPlus, trial.ResponseSPlus, "x", now))
	}
	groups := GroupBy(rows, []GroupKeyField{FieldBlock})
	min := 10
	result := CheckCriteria(groups, Criteria{MinTrials: &min})
	assert.False(t, result.Passed)
	assert.Len(t, result.Reasons, 1)
}
