package services

import (
	"encoding/json"
	"fmt"
	"os"
)

// Vocabulary hält die beiden kanonischen Mapping-Tabellen. Nach dem Laden unveränderlich.
type Vocabulary struct {
	synonyms  map[string]string
	compounds map[string]struct{}
}

// NewVocabulary baut ein Vokabular aus bereits geladenen Tabellen.
func NewVocabulary(synonyms map[string]string, compounds []string) *Vocabulary {
	v := &Vocabulary{
		synonyms:  make(map[string]string, len(synonyms)),
		compounds: make(map[string]struct{}, len(compounds)),
	}
	for raw, canonical := range synonyms {
		v.synonyms[raw] = canonical
	}
	for _, id := range compounds {
		v.compounds[id] = struct{}{}
	}
	return v
}

// LoadVocabulary liest Synonym-Tabelle ({rawId: canonicalId}) und Compound-Tabelle ({"metabolites": ...}).
func LoadVocabulary(synonymPath, compoundPath string) (*Vocabulary, error) {
	raw, err := os.ReadFile(synonymPath)
	if err != nil {
		return nil, fmt.Errorf("read synonym mapping: %w", err)
	}
	var synonyms map[string]string
	if err := json.Unmarshal(raw, &synonyms); err != nil {
		return nil, fmt.Errorf("parse synonym mapping %s: %w", synonymPath, err)
	}

	raw, err = os.ReadFile(compoundPath)
	if err != nil {
		return nil, fmt.Errorf("read compound mapping: %w", err)
	}
	compounds, err := parseCompoundIDs(raw)
	if err != nil {
		return nil, fmt.Errorf("parse compound mapping %s: %w", compoundPath, err)
	}
	return NewVocabulary(synonyms, compounds), nil
}

// parseCompoundIDs akzeptiert "metabolites" als Objekt (Schlüssel = ID) oder als Liste von Objekten mit "id".
func parseCompoundIDs(raw []byte) ([]string, error) {
	var doc struct {
		Metabolites json.RawMessage `json:"metabolites"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if len(doc.Metabolites) == 0 {
		return nil, fmt.Errorf("missing \"metabolites\" section")
	}

	var byID map[string]json.RawMessage
	if err := json.Unmarshal(doc.Metabolites, &byID); err == nil {
		ids := make([]string, 0, len(byID))
		for id := range byID {
			ids = append(ids, id)
		}
		return ids, nil
	}

	var list []struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(doc.Metabolites, &list); err != nil {
		return nil, fmt.Errorf("\"metabolites\" is neither an object nor a list: %w", err)
	}
	ids := make([]string, 0, len(list))
	for _, m := range list {
		if m.ID != "" {
			ids = append(ids, m.ID)
		}
	}
	return ids, nil
}

// Canonical gibt die kanonische ID eines Synonyms zurück.
func (v *Vocabulary) Canonical(raw string) (string, bool) {
	c, ok := v.synonyms[raw]
	return c, ok
}

// IsCompound meldet, ob id in der Compound-Tabelle steht.
func (v *Vocabulary) IsCompound(id string) bool {
	_, ok := v.compounds[id]
	return ok
}

// Size gibt die Anzahl der Synonyme und Compounds zurück.
func (v *Vocabulary) Size() (synonyms, compounds int) {
	return len(v.synonyms), len(v.compounds)
}
