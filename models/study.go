package models

import "time"

// Study fasst alle gemeinsam eingereichten Fälle zusammen (eine Krankheit, eine Methode).
type Study struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	CreatedAt   time.Time `json:"created_at"`
	Name        string    `json:"name" gorm:"not null"`
	MethodID    Method    `json:"method_id" gorm:"not null;index"`
	DiffusionID *uint     `json:"diffusion_id,omitempty"`
	Group       string    `json:"group" gorm:"column:group_name;index"`
	DiseaseID   uint      `json:"disease_id" gorm:"not null;index"`
	Disease     Disease   `json:"disease" gorm:"constraint:OnDelete:RESTRICT"`

	// Abschluss-Barriere für verzögerte öffentliche Studien
	NotifyEmail     string `json:"-"`
	PendingAnalyses int    `json:"-" gorm:"not null;default:0"`

	Analyses []Analysis `json:"analyses,omitempty" gorm:"foreignKey:StudyID"`
}

// BaselineLabel ist das Label des gemittelten Kontrollfalls dieser Studie.
func (s Study) BaselineLabel() string {
	return BaselineLabel(s.Group)
}

// TableName gibt explizit den Tabellennamen an.
func (Study) TableName() string {
	return "studies"
}

// DiffusionName gibt den Anzeigenamen der Gen-Integration zurück.
func (s Study) DiffusionName() string {
	if s.DiffusionID == nil {
		return "none"
	}
	return "transcriptome integration"
}
