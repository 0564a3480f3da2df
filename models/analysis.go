package models

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/datatypes"
)

const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"

	StatusPending = "pending"
	StatusDone    = "done"
	StatusFailed  = "failed"

	// LabelNotProvided markiert Fälle ohne Angabe eines Labels.
	LabelNotProvided = "not_provided"
	baselineSuffix   = " label avg"
)

var lower = cases.Lower(language.Und)

// BaselineLabel gibt das Label des Baseline-Falls einer Gruppe zurück ("<gruppe> label avg").
func BaselineLabel(group string) string {
	return lower.String(group) + baselineSuffix
}

// IsBaselineLabel erkennt gemittelte Kontrollfälle unabhängig von der Gruppe.
func IsBaselineLabel(label string) bool {
	return strings.HasSuffix(label, baselineSuffix)
}

// Analysis ist ein Analyse-Datensatz pro Fall. Ergebnisfelder bleiben NULL, bis das Backend schreibt.
type Analysis struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name  string `json:"name" gorm:"not null"`
	Label string `json:"label" gorm:"index"`
	Type  string `json:"type" gorm:"index;not null;default:'private'"` // public, private

	OwnerUserID uint   `json:"owner_user_id" gorm:"index"`
	OwnerEmail  string `json:"owner_email"`

	StudyID uint  `json:"study_id" gorm:"index;not null"`
	Study   Study `json:"-" gorm:"constraint:OnDelete:CASCADE"`

	MetabolomicsDatasetID    uint  `json:"metabolomics_dataset_id"`
	TranscriptomicsDatasetID *uint `json:"transcriptomics_dataset_id,omitempty"`

	ResultsPathway  datatypes.JSON `json:"results_pathway"`
	ResultsReaction datatypes.JSON `json:"results_reaction"`

	Status    string     `json:"status" gorm:"index;default:'pending'"`
	StartTime *time.Time `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
}

// Authenticated meldet, ob viewer die Analyse sehen darf: öffentlich oder im eigenen Besitz.
func (a Analysis) Authenticated(viewer *User) bool {
	if a.Type == VisibilityPublic {
		return true
	}
	return viewer != nil && viewer.ID == a.OwnerUserID
}

// Completed meldet, ob das Backend bereits Ergebnisse geschrieben hat.
func (a Analysis) Completed() bool {
	return a.EndTime != nil
}

// PathwayResults dekodiert den Pathway-Ergebnisvektor (nil solange ausstehend).
func (a Analysis) PathwayResults() (MeasurementSet, error) {
	return DecodeMeasurementSet(a.ResultsPathway)
}

// ReactionResults dekodiert den Reaktions-Ergebnisvektor (nil solange ausstehend).
func (a Analysis) ReactionResults() (MeasurementSet, error) {
	return DecodeMeasurementSet(a.ResultsReaction)
}

// TableName gibt explizit den Tabellennamen an.
func (Analysis) TableName() string {
	return "analyses"
}

// All listet alle Modelle für AutoMigrate.
func All() []any {
	return []any{&User{}, &Disease{}, &Study{}, &OmicsDataset{}, &Analysis{}}
}
