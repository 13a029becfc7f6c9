package service

import (
	"testing"

	"digit_bot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMartingaleDoublesOnLossAndResetsOnWin(t *testing.T) {
	m := NewMartingale(1, 2, 0)

	var got []float64
	for _, won := range []bool{false, false, false, true} {
		got = append(got, m.Current())
		m.Next(won)
	}
	got = append(got, m.Current())

	assert.Equal(t, []float64{1, 2, 4, 8, 1}, got)
}

func TestMartingaleRoundsToCents(t *testing.T) {
	m := NewMartingale(0.35, 2.1, 0)

	step := m.Next(false)
	assert.False(t, step.Capped)
	assert.True(t, step.Rounded)
	assert.Equal(t, 0.74, step.Stake) // 0.735 -> 0.74
	assert.Equal(t, "0.735", step.Raw.String())

	step = m.Next(false)
	assert.Equal(t, 1.55, step.Stake) // 1.554
	assert.True(t, step.Rounded)

	step = m.Next(true)
	assert.Equal(t, 0.35, step.Stake)
	assert.False(t, step.Rounded)
}

func TestMartingaleExactStepIsNotRounded(t *testing.T) {
	m := NewMartingale(1, 2, 0)
	step := m.Next(false)
	assert.Equal(t, 2.0, step.Stake)
	assert.False(t, step.Rounded)
}

func TestMartingaleCapsAtMaxStake(t *testing.T) {
	m := NewMartingale(1, 3, 5)

	step := m.Next(false)
	assert.Equal(t, 3.0, step.Stake)
	assert.False(t, step.Capped)

	step = m.Next(false)
	assert.Equal(t, 5.0, step.Stake)
	assert.True(t, step.Capped)

	step = m.Next(true)
	assert.Equal(t, 1.0, step.Stake)
	assert.False(t, step.Capped)
}

func TestTriggerModes(t *testing.T) {
	tests := []struct {
		name   string
		mode   models.TriggerMode
		ct     models.ContractType
		pred   int
		fires  []int
		silent []int
	}{
		{"every tick", models.TriggerEveryTick, models.ContractDigitEven, 0, []int{0, 5, 9}, nil},
		{"auto even", models.TriggerAuto, models.ContractDigitEven, 0, []int{0, 2, 8}, []int{1, 7}},
		{"auto odd", models.TriggerAuto, models.ContractDigitOdd, 0, []int{1, 9}, []int{0, 4}},
		{"auto match", models.TriggerAuto, models.ContractDigitMatch, 7, []int{7}, []int{6, 8}},
		{"auto differ", models.TriggerAuto, models.ContractDigitDiff, 7, []int{0, 6}, []int{7}},
		{"over", models.TriggerOver, models.ContractDigitOver, 4, []int{5, 9}, []int{4, 0}},
		{"under", models.TriggerUnder, models.ContractDigitUnder, 4, []int{0, 3}, []int{4, 9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := models.DefaultStrategySettings()
			s.TriggerMode = tt.mode
			s.ContractType = tt.ct
			s.Prediction = tt.pred

			trig, err := NewTrigger(s)
			require.NoError(t, err)
			for _, d := range tt.fires {
				assert.True(t, trig(d), "digit %d should fire", d)
			}
			for _, d := range tt.silent {
				assert.False(t, trig(d), "digit %d should not fire", d)
			}
		})
	}
}

func TestTriggerUnknownMode(t *testing.T) {
	s := models.DefaultStrategySettings()
	s.TriggerMode = "sometimes"
	_, err := NewTrigger(s)
	assert.Error(t, err)
}
