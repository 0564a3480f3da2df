// Package testutil stellt gemeinsame Test-Infrastruktur bereit.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"metabolitics-api/models"
)

// NewTestDB öffnet eine frische In-Memory-SQLite-Datenbank mit migriertem Schema.
// Es gibt genau eine Verbindung; innerhalb von Transaktionen immer tx verwenden.
func NewTestDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

// SeedDisease legt eine Krankheit an.
func SeedDisease(t testing.TB, db *gorm.DB, name, synonym string) models.Disease {
	t.Helper()
	d := models.Disease{Name: name, Synonym: synonym}
	require.NoError(t, db.Create(&d).Error)
	return d
}

// SeedUser legt einen Benutzer mit API-Key an.
func SeedUser(t testing.TB, db *gorm.DB, email, apiKey string) models.User {
	t.Helper()
	u := models.User{Email: email, APIKey: apiKey}
	require.NoError(t, db.Create(&u).Error)
	return u
}

// CompletedAnalysis beschreibt eine fertige Analyse für SeedCompletedAnalysis.
type CompletedAnalysis struct {
	Method   models.Method
	Disease  models.Disease
	Group    string
	Label    string
	Public   bool
	Owner    *models.User
	Pathways models.MeasurementSet
	Reaction models.MeasurementSet
}

// SeedCompletedAnalysis legt Studie, Datensatz und Analyse mit Ergebnissen an.
// Ohne Pathways bleibt das Ergebnis NULL (ausstehend).
func SeedCompletedAnalysis(t testing.TB, db *gorm.DB, c CompletedAnalysis) models.Analysis {
	t.Helper()
	group := c.Group
	if group == "" {
		group = "Control"
	}
	study := models.Study{Name: "seeded", MethodID: c.Method, Group: group, DiseaseID: c.Disease.ID}
	require.NoError(t, db.Create(&study).Error)

	ds := models.OmicsDataset{OmicsType: models.OmicsMetabolomics, DiseaseID: c.Disease.ID, IsPublic: c.Public}
	require.NoError(t, db.Create(&ds).Error)

	a := models.Analysis{
		Name:                  "case",
		Label:                 c.Label,
		Type:                  models.VisibilityPrivate,
		StudyID:               study.ID,
		MetabolomicsDatasetID: ds.ID,
		Status:                models.StatusPending,
	}
	if c.Public {
		a.Type = models.VisibilityPublic
	}
	if c.Owner != nil {
		a.OwnerUserID = c.Owner.ID
		a.OwnerEmail = c.Owner.Email
	}
	if c.Pathways != nil {
		var err error
		a.ResultsPathway, err = c.Pathways.JSON()
		require.NoError(t, err)
		a.ResultsReaction, err = c.Reaction.JSON()
		require.NoError(t, err)
		a.Status = models.StatusDone
		end := time.Now()
		a.EndTime = &end
	}
	require.NoError(t, db.Create(&a).Error)
	return a
}
