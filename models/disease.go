package models

// Disease ist eine kanonische Krankheit. Aus Sicht der Analyse nur lesend genutzt.
type Disease struct {
	ID      uint   `json:"id" gorm:"primaryKey"`
	Name    string `json:"name" gorm:"not null;index"`
	Synonym string `json:"synonym"`
}

// DisplayKey ist der Gruppierungsschlüssel im Ähnlichkeitsranking.
func (d Disease) DisplayKey() string {
	return d.Name + " (" + d.Synonym + ")"
}

// TableName gibt explizit den Tabellennamen an.
func (Disease) TableName() string {
	return "diseases"
}
