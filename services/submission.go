package services

import (
	"sort"

	"metabolitics-api/models"
)

// MappedFlag ist ein Eintrag der isMapped-Override-Tabelle.
type MappedFlag struct {
	IsMapped bool `json:"isMapped"`
}

// RawCase ist ein Fall so, wie er im Request ankommt.
type RawCase struct {
	Label       string         `json:"Label"`
	Metabolites map[string]any `json:"Metabolites"`
	Genes       map[string]any `json:"Genes,omitempty"`
}

// Submission ist der Request-Body einer Studien-Einreichung.
type Submission struct {
	Group          string                `json:"group"`
	StudyName      string                `json:"study_name" binding:"required"`
	Public         bool                  `json:"public"`
	Disease        uint                  `json:"disease" binding:"required"`
	IsMapped       map[string]MappedFlag `json:"isMapped,omitempty"`
	Email          string                `json:"email,omitempty"`
	Analysis       map[string]RawCase    `json:"analysis" binding:"required"`
	Transcriptomes any                   `json:"Transcriptomes,omitempty"`
}

// Case ist ein bereinigter Fall mit kanonischen IDs.
type Case struct {
	Label       string
	Metabolites models.MeasurementSet
	Genes       models.MeasurementSet
}

// CleanSubmission ist das Ergebnis des IdentifierMapper.
type CleanSubmission struct {
	Group             string
	StudyName         string
	Public            bool
	Disease           uint
	Email             string
	HasTranscriptomes bool
	Transcriptomes    models.MeasurementSet
	Cases             map[string]Case
}

// CaseNames gibt die Fallnamen sortiert zurück.
func (c *CleanSubmission) CaseNames() []string {
	names := make([]string, 0, len(c.Cases))
	for name := range c.Cases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
