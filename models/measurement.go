package models

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
)

// SmallestPositive ersetzt Nullwerte vor der Fold-Change-Skalierung (kleinster normaler float64).
const SmallestPositive = 0x1p-1022

// MeasurementSet bildet kanonische Identifikatoren auf Messwerte ab (Metabolit- oder Gen-Ebene).
type MeasurementSet map[string]float64

// Clone gibt eine unabhängige Kopie zurück.
func (m MeasurementSet) Clone() MeasurementSet {
	if m == nil {
		return nil
	}
	out := make(MeasurementSet, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// WithoutZeros gibt eine Kopie zurück, in der jeder Wert 0 durch SmallestPositive ersetzt ist.
func (m MeasurementSet) WithoutZeros() MeasurementSet {
	out := m.Clone()
	for k, v := range out {
		if v == 0 {
			out[k] = SmallestPositive
		}
	}
	return out
}

// JSON serialisiert das Set für eine datatypes.JSON-Spalte. Ein nil-Set ergibt NULL.
func (m MeasurementSet) JSON() (datatypes.JSON, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode measurement set: %w", err)
	}
	return datatypes.JSON(b), nil
}

// DecodeMeasurementSet liest eine JSON-Spalte zurück. NULL ergibt nil ohne Fehler.
func DecodeMeasurementSet(raw datatypes.JSON) (MeasurementSet, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var m MeasurementSet
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode measurement set: %w", err)
	}
	return m, nil
}
