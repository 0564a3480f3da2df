package services

import (
	"math"
	"sort"
	"strings"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"metabolitics-api/models"
)

// IdentifierMapper übersetzt rohe Metabolit-IDs in kanonische IDs.
type IdentifierMapper struct {
	vocab  *Vocabulary
	logger *zap.Logger
}

// NewIdentifierMapper erstellt einen Mapper über einem geladenen Vokabular.
func NewIdentifierMapper(vocab *Vocabulary, logger *zap.Logger) *IdentifierMapper {
	return &IdentifierMapper{vocab: vocab, logger: logger}
}

// Clean bereinigt eine Einreichung. Fälle ohne gemappte Metabolite fehlen im Ergebnis.
func (m *IdentifierMapper) Clean(sub *Submission) *CleanSubmission {
	out := &CleanSubmission{
		Group:     sub.Group,
		StudyName: sub.StudyName,
		Public:    sub.Public,
		Disease:   sub.Disease,
		Email:     sub.Email,
		Cases:     make(map[string]Case, len(sub.Analysis)),
	}
	if sub.Transcriptomes != nil {
		out.HasTranscriptomes = true
		if genes, ok := sub.Transcriptomes.(map[string]any); ok {
			out.Transcriptomes = coerceSet(genes)
		}
	}

	dropped := 0
	for name, raw := range sub.Analysis {
		var metabolites models.MeasurementSet
		if sub.IsMapped != nil {
			metabolites = m.keepFlagged(raw.Metabolites, sub.IsMapped)
		} else {
			metabolites = m.lookup(raw.Metabolites)
		}
		if len(metabolites) == 0 {
			dropped++
			continue
		}
		out.Cases[name] = Case{
			Label:       raw.Label,
			Metabolites: metabolites,
			Genes:       coerceSet(raw.Genes),
		}
	}
	if dropped > 0 {
		m.logger.Info("Fälle ohne gemappte Metabolite verworfen",
			zap.String("study", sub.StudyName), zap.Int("dropped", dropped), zap.Int("kept", len(out.Cases)))
	}
	return out
}

func (m *IdentifierMapper) keepFlagged(raw map[string]any, flags map[string]MappedFlag) models.MeasurementSet {
	out := models.MeasurementSet{}
	for id, v := range raw {
		if !flags[id].IsMapped {
			continue
		}
		if f, ok := coerceValue(v); ok {
			out[id] = f
		}
	}
	return out
}

// lookup konsultiert beide Tabellen unabhängig. Ein Treffer in beiden ergibt zwei Schlüssel.
// Rohe IDs werden sortiert verarbeitet, damit kollidierende Synonyme deterministisch aufgelöst werden.
func (m *IdentifierMapper) lookup(raw map[string]any) models.MeasurementSet {
	ids := make([]string, 0, len(raw))
	for id := range raw {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := models.MeasurementSet{}
	for _, id := range ids {
		f, ok := coerceValue(raw[id])
		if !ok {
			continue
		}
		if canonical, hit := m.vocab.Canonical(id); hit {
			out[canonical] = f
		}
		if m.vocab.IsCompound(id) {
			out[id] = f
		}
	}
	return out
}

func coerceSet(raw map[string]any) models.MeasurementSet {
	if len(raw) == 0 {
		return nil
	}
	out := make(models.MeasurementSet, len(raw))
	for id, v := range raw {
		if f, ok := coerceValue(v); ok {
			out[id] = f
		}
	}
	return out
}

// coerceValue wandelt Zahlen und numerische Strings in float64. Leere Werte und bools werden abgelehnt.
func coerceValue(v any) (float64, bool) {
	switch x := v.(type) {
	case nil, bool:
		return 0, false
	case string:
		x = strings.TrimSpace(x)
		if x == "" {
			return 0, false
		}
		v = x
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
