package services

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"metabolitics-api/models"
)

// spyScaler merkt sich die Eingaben und gibt sie unverändert zurück.
type spyScaler struct {
	samples [][]models.MeasurementSet
	labels  [][]string
}

func (s *spyScaler) FitTransform(samples []models.MeasurementSet, labels []string) ([]models.MeasurementSet, error) {
	s.samples = append(s.samples, samples)
	s.labels = append(s.labels, labels)
	return samples, nil
}

func TestFoldChangeScaler(t *testing.T) {
	out, err := FoldChangeScaler{}.FitTransform(
		[]models.MeasurementSet{{"C1": 50, "C2": 8, "only_case": 1}, {"C1": 100, "C2": 2}},
		[]string{"Disease", HealthyLabel},
	)
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.InDelta(t, -1.0, out[0]["C1"], 1e-12)
	assert.InDelta(t, 2.0, out[0]["C2"], 1e-12)
	assert.NotContains(t, out[0], "only_case")
	assert.InDelta(t, 0.0, out[1]["C1"], 1e-12)

	_, err = FoldChangeScaler{}.FitTransform([]models.MeasurementSet{{"a": 1}}, []string{"x"})
	assert.Error(t, err, "no healthy reference")
	_, err = FoldChangeScaler{}.FitTransform([]models.MeasurementSet{{"a": 1}}, nil)
	assert.Error(t, err)
}

func TestFoldChangeScalerDropsNonFinite(t *testing.T) {
	out, err := FoldChangeScaler{}.FitTransform(
		[]models.MeasurementSet{{"neg": -4}, {"neg": 2}},
		[]string{"x", HealthyLabel},
	)
	require.NoError(t, err)
	assert.Empty(t, out[0])
}

func controlSubmission() *CleanSubmission {
	return &CleanSubmission{
		Group: "Control",
		Cases: map[string]Case{
			"ctrl":    {Label: "control label avg", Metabolites: models.MeasurementSet{"C1": 100}},
			"patient": {Label: "Disease", Metabolites: models.MeasurementSet{"C1": 50}},
		},
	}
}

func TestNormalizeAgainstControlBaseline(t *testing.T) {
	n := NewFoldChangeNormalizer(nil, zaptest.NewLogger(t))
	clean := controlSubmission()

	baseline := n.FindBaseline(clean)
	require.NotNil(t, baseline)
	assert.Equal(t, "ctrl", baseline.Name)

	got, err := n.Normalize("patient", clean.Cases["patient"], baseline)
	require.NoError(t, err)
	assert.True(t, got.Scaled)
	assert.InDelta(t, math.Log2(0.5), got.Metabolites["C1"], 1e-12)
	assert.Nil(t, got.Genes)

	self, err := n.Normalize("ctrl", clean.Cases["ctrl"], baseline)
	require.NoError(t, err)
	assert.False(t, self.Scaled)
	assert.Equal(t, models.MeasurementSet{"C1": 100}, self.Metabolites)
}

func TestNormalizeWithoutBaselinePassesRawValues(t *testing.T) {
	n := NewFoldChangeNormalizer(nil, zaptest.NewLogger(t))
	clean := controlSubmission()
	delete(clean.Cases, "ctrl")

	baseline := n.FindBaseline(clean)
	assert.Nil(t, baseline)

	got, err := n.Normalize("patient", clean.Cases["patient"], baseline)
	require.NoError(t, err)
	assert.False(t, got.Scaled)
	assert.Equal(t, models.MeasurementSet{"C1": 50}, got.Metabolites)
}

func TestNormalizeSubstitutesZeros(t *testing.T) {
	spy := &spyScaler{}
	n := NewFoldChangeNormalizer(spy, zaptest.NewLogger(t))
	baseline := &Baseline{Name: "ctrl", Case: Case{
		Metabolites: models.MeasurementSet{"C1": 0, "C2": 3},
		Genes:       models.MeasurementSet{"TP53": 0},
	}}
	target := Case{
		Label:       "Disease",
		Metabolites: models.MeasurementSet{"C1": 5, "C2": 0},
		Genes:       models.MeasurementSet{"TP53": 0},
	}

	got, err := n.Normalize("p", target, baseline)
	require.NoError(t, err)
	require.Len(t, spy.samples, 2, "metabolites and genes are scaled independently")

	for _, call := range spy.samples {
		for _, set := range call {
			for k, v := range set {
				assert.NotZero(t, v, k)
			}
		}
	}
	for _, labels := range spy.labels {
		assert.Equal(t, []string{"Disease", HealthyLabel}, labels)
	}
	assert.Equal(t, models.SmallestPositive, got.Metabolites["C2"], "slot 0 is the target")
	assert.Equal(t, 0.0, target.Metabolites["C2"], "input is not modified")
	assert.Equal(t, 0.0, baseline.Case.Metabolites["C1"])
}

func TestNormalizeGenesNeedBothSides(t *testing.T) {
	spy := &spyScaler{}
	n := NewFoldChangeNormalizer(spy, zaptest.NewLogger(t))
	baseline := &Baseline{Name: "ctrl", Case: Case{Metabolites: models.MeasurementSet{"C1": 1}}}

	got, err := n.Normalize("p", Case{Metabolites: models.MeasurementSet{"C1": 2}, Genes: models.MeasurementSet{"TP53": 1}}, baseline)
	require.NoError(t, err)
	assert.Nil(t, got.Genes)
	assert.Len(t, spy.samples, 1)
}

func TestFindBaselineLastMatchWinsAndUsesTranscriptomes(t *testing.T) {
	n := NewFoldChangeNormalizer(nil, zaptest.NewLogger(t))
	clean := &CleanSubmission{
		Group:          "CONTROL",
		Transcriptomes: models.MeasurementSet{"TP53": 2},
		Cases: map[string]Case{
			"a_ctrl": {Label: "control label avg", Metabolites: models.MeasurementSet{"C1": 1}},
			"b_ctrl": {Label: "control label avg", Metabolites: models.MeasurementSet{"C1": 2}},
			"c_ctrl": {Label: "control label avg"},
			"p":      {Label: "Control label avg", Metabolites: models.MeasurementSet{"C1": 3}},
		},
	}

	b := n.FindBaseline(clean)
	require.NotNil(t, b)
	assert.Equal(t, "b_ctrl", b.Name)
	assert.Equal(t, models.MeasurementSet{"TP53": 2}, b.Case.Genes)
	assert.Nil(t, clean.Cases["b_ctrl"].Genes, "submission stays untouched")
}
