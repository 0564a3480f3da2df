package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	OmicsMetabolomics    = "metabolomics"
	OmicsTranscriptomics = "transcriptomics"
)

// OmicsDataset speichert ein Messwert-Set eines Falls. Gehört exklusiv zu einer Analysis.
type OmicsDataset struct {
	ID         uint           `json:"id" gorm:"primaryKey"`
	CreatedAt  time.Time      `json:"created_at"`
	OmicsType  string         `json:"omics_type" gorm:"index;not null"`
	Data       datatypes.JSON `json:"data"`
	Scaled     bool           `json:"scaled"` // relativ zum Baseline-Fall skaliert
	OwnerEmail string         `json:"owner_email" gorm:"index"`
	IsPublic   bool           `json:"is_public"`
	DiseaseID  uint           `json:"disease_id" gorm:"index"`
}

// Measurements dekodiert die gespeicherten Werte.
func (d OmicsDataset) Measurements() (MeasurementSet, error) {
	return DecodeMeasurementSet(d.Data)
}

// TableName gibt explizit den Tabellennamen an.
func (OmicsDataset) TableName() string {
	return "omics_datasets"
}
