package models

// Method identifiziert die Analysemethode einer Studie.
type Method uint

const (
	MethodFVA Method = 1 // Flux Variability Analysis
	MethodDPM Method = 2 // Direct Pathway Mapping
	MethodPE  Method = 3 // Pathway Enrichment
)

// Methods listet alle unterstützten Methoden.
var Methods = []Method{MethodFVA, MethodDPM, MethodPE}

// Valid meldet, ob m eine bekannte Methode ist.
func (m Method) Valid() bool {
	return m >= MethodFVA && m <= MethodPE
}

// Name gibt den Anzeigenamen zurück.
func (m Method) Name() string {
	switch m {
	case MethodFVA:
		return "Metabolitics"
	case MethodDPM:
		return "Direct Pathway Mapping"
	case MethodPE:
		return "Pathway Enrichment"
	}
	return "unknown"
}

// Slug ist der Pfadbestandteil der Methode in HTTP-Routen und Backend-Aufrufen.
func (m Method) Slug() string {
	switch m {
	case MethodFVA:
		return "fva"
	case MethodDPM:
		return "direct-pathway-mapping"
	case MethodPE:
		return "pathway-enrichment"
	}
	return ""
}

func (m Method) String() string { return m.Slug() }
