package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithoutZeros(t *testing.T) {
	in := MeasurementSet{"a": 0, "b": 2.5, "c": -1}
	out := in.WithoutZeros()

	assert.Equal(t, 0.0, in["a"], "input must stay untouched")
	assert.Equal(t, SmallestPositive, out["a"])
	assert.Equal(t, 2.5, out["b"])
	assert.Equal(t, -1.0, out["c"])
	for k, v := range out {
		assert.NotZero(t, v, k)
	}
}

func TestMeasurementSetJSONRoundTrip(t *testing.T) {
	raw, err := MeasurementSet{"glc": 1.5}.JSON()
	require.NoError(t, err)

	back, err := DecodeMeasurementSet(raw)
	require.NoError(t, err)
	assert.Equal(t, MeasurementSet{"glc": 1.5}, back)

	var empty MeasurementSet
	raw, err = empty.JSON()
	require.NoError(t, err)
	assert.Nil(t, raw)

	back, err = DecodeMeasurementSet(nil)
	require.NoError(t, err)
	assert.Nil(t, back)
}

func TestBaselineLabel(t *testing.T) {
	assert.Equal(t, "control label avg", BaselineLabel("Control"))
	assert.Equal(t, "kontrolle äü label avg", BaselineLabel("Kontrolle ÄÜ"))
	assert.True(t, IsBaselineLabel("healthy label avg"))
	assert.False(t, IsBaselineLabel("Disease"))
}

func TestAnalysisAuthenticated(t *testing.T) {
	owner := &User{ID: 7}
	other := &User{ID: 8}

	private := Analysis{Type: VisibilityPrivate, OwnerUserID: 7}
	assert.True(t, private.Authenticated(owner))
	assert.False(t, private.Authenticated(other))
	assert.False(t, private.Authenticated(nil))

	public := Analysis{Type: VisibilityPublic, OwnerUserID: 7}
	assert.True(t, public.Authenticated(nil))
}

func TestDiseaseDisplayKey(t *testing.T) {
	assert.Equal(t, "Asthma (J45)", Disease{Name: "Asthma", Synonym: "J45"}.DisplayKey())
}

func TestMethod(t *testing.T) {
	assert.True(t, MethodPE.Valid())
	assert.False(t, Method(0).Valid())
	assert.Equal(t, "direct-pathway-mapping", MethodDPM.Slug())
	assert.Equal(t, "Metabolitics", MethodFVA.Name())
}
