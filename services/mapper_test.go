package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"metabolitics-api/models"
)

func TestLoadVocabulary(t *testing.T) {
	dir := t.TempDir()
	synonyms := filepath.Join(dir, "synonyms.json")
	require.NoError(t, os.WriteFile(synonyms, []byte(`{"Glucose":"glc__D_c"}`), 0o644))

	t.Run("object keyed by id", func(t *testing.T) {
		compounds := filepath.Join(dir, "recon_obj.json")
		require.NoError(t, os.WriteFile(compounds, []byte(`{"metabolites":{"glc__D_c":{"name":"D-Glucose"},"lac__L_c":{}}}`), 0o644))

		v, err := LoadVocabulary(synonyms, compounds)
		require.NoError(t, err)
		c, ok := v.Canonical("Glucose")
		assert.True(t, ok)
		assert.Equal(t, "glc__D_c", c)
		assert.True(t, v.IsCompound("lac__L_c"))
	})

	t.Run("list of objects", func(t *testing.T) {
		compounds := filepath.Join(dir, "recon_list.json")
		require.NoError(t, os.WriteFile(compounds, []byte(`{"metabolites":[{"id":"glc__D_c"},{"id":""}]}`), 0o644))

		v, err := LoadVocabulary(synonyms, compounds)
		require.NoError(t, err)
		s, c := v.Size()
		assert.Equal(t, 1, s)
		assert.Equal(t, 1, c)
	})

	t.Run("missing section", func(t *testing.T) {
		compounds := filepath.Join(dir, "broken.json")
		require.NoError(t, os.WriteFile(compounds, []byte(`{"reactions":[]}`), 0o644))
		_, err := LoadVocabulary(synonyms, compounds)
		assert.Error(t, err)
	})
}

func TestCleanMapsThroughBothTables(t *testing.T) {
	m := NewIdentifierMapper(testVocabulary(), zaptest.NewLogger(t))

	clean := m.Clean(&Submission{
		Group:     "Control",
		StudyName: "mapping",
		Disease:   3,
		Email:     "a@example.org",
		Analysis: map[string]RawCase{
			"p1": {Label: "Disease", Metabolites: map[string]any{
				"HMDB0000122": "  1.5 ",
				"C00031":      2.0,  // Synonym und Compound: zwei Schlüssel
				"C1":          "",   // leerer Wert
				"unknown":     7.0,  // nicht gemappt
				"HMDB0000190": true, // kein Zahlenwert
			}},
			"empty": {Label: "Disease", Metabolites: map[string]any{"unknown": 1.0}},
		},
		Transcriptomes: map[string]any{"TP53": "4"},
	})

	require.Len(t, clean.Cases, 1)
	p1 := clean.Cases["p1"]
	assert.Equal(t, "Disease", p1.Label)
	assert.Equal(t, 2.0, p1.Metabolites["C00031"])
	// IDs werden sortiert verarbeitet, HMDB0000122 schreibt glc__D_c zuletzt.
	assert.Equal(t, 1.5, p1.Metabolites["glc__D_c"])
	assert.NotContains(t, p1.Metabolites, "C1")
	assert.NotContains(t, p1.Metabolites, "unknown")
	assert.NotContains(t, p1.Metabolites, "lac__L_c")
	assert.Len(t, p1.Metabolites, 2)

	assert.True(t, clean.HasTranscriptomes)
	assert.Equal(t, models.MeasurementSet{"TP53": 4}, clean.Transcriptomes)
	assert.Equal(t, "a@example.org", clean.Email)
	assert.Equal(t, uint(3), clean.Disease)
}

func TestCleanHonorsIsMappedOverride(t *testing.T) {
	m := NewIdentifierMapper(testVocabulary(), zaptest.NewLogger(t))

	clean := m.Clean(&Submission{
		IsMapped: map[string]MappedFlag{"custom_1": {IsMapped: true}, "glc__D_c": {IsMapped: false}},
		Analysis: map[string]RawCase{
			"c": {Label: "x", Metabolites: map[string]any{"custom_1": "3", "glc__D_c": 1.0}},
		},
	})

	require.Contains(t, clean.Cases, "c")
	assert.Equal(t, models.MeasurementSet{"custom_1": 3}, clean.Cases["c"].Metabolites)
}

func TestCleanDropsAllEmptyCases(t *testing.T) {
	m := NewIdentifierMapper(testVocabulary(), zaptest.NewLogger(t))
	clean := m.Clean(&Submission{Analysis: map[string]RawCase{
		"a": {Label: "x", Metabolites: map[string]any{}},
		"b": {Label: "y"},
	}})
	assert.Empty(t, clean.Cases)
	assert.Empty(t, clean.CaseNames())
}

func TestCleanIsIdempotent(t *testing.T) {
	m := NewIdentifierMapper(testVocabulary(), zaptest.NewLogger(t))
	first := m.Clean(&Submission{Group: "g", Analysis: map[string]RawCase{
		"a": {Label: "x", Metabolites: map[string]any{"HMDB0000122": 1.0, "lac__L_c": "2"}, Genes: map[string]any{"TP53": 1}},
	}})

	again := &Submission{Group: first.Group, Analysis: map[string]RawCase{}}
	for name, c := range first.Cases {
		again.Analysis[name] = RawCase{Label: c.Label, Metabolites: toAny(c.Metabolites), Genes: toAny(c.Genes)}
	}
	second := m.Clean(again)

	assert.Equal(t, first.Cases, second.Cases)
}

func toAny(m models.MeasurementSet) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func TestCoerceValue(t *testing.T) {
	tests := []struct {
		in   any
		want float64
		ok   bool
	}{
		{in: 1.5, want: 1.5, ok: true},
		{in: " 2 ", want: 2, ok: true},
		{in: 3, want: 3, ok: true},
		{in: "", ok: false},
		{in: "   ", ok: false},
		{in: "abc", ok: false},
		{in: nil, ok: false},
		{in: false, ok: false},
		{in: "NaN", ok: false},
	}
	for _, tt := range tests {
		got, ok := coerceValue(tt.in)
		assert.Equal(t, tt.ok, ok, "%v", tt.in)
		if tt.ok {
			assert.Equal(t, tt.want, got, "%v", tt.in)
		}
	}
}
