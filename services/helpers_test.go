package services

import (
	"testing"
	"time"

	"box-mining-service/database"
	"box-mining-service/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	db        *gorm.DB
	clock     *ManualClock
	templates *TemplateStore
	boxes     *BoxService
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newTestEnv(t *testing.T, random RandomSource) *testEnv {
	t.Helper()
	db := openTestDB(t)
	clock := NewManualClock(testEpoch)
	templates := NewTemplateStore(db, clock, 5*time.Second, time.Minute)
	return &testEnv{
		db:        db,
		clock:     clock,
		templates: templates,
		boxes:     NewBoxService(db, templates, clock, random, 5*time.Second),
	}
}

func seedUser(t *testing.T, db *gorm.DB, username string, points int64) *models.User {
	t.Helper()
	user := &models.User{XUsername: username, GoblinPoints: decimal.NewFromInt(points)}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("seed user %s: %v", username, err)
	}
	return user
}

// seedTemplate inserts an active template with the given prizes and golden chance.
func seedTemplate(t *testing.T, db *gorm.DB, name string, normal, golden int64, chance float64) *models.BoxTemplate {
	t.Helper()
	tmpl := &models.BoxTemplate{
		Name:         name,
		ImageURL:     "boxes/" + name + ".png",
		NormalPrize:  decimal.NewFromInt(normal),
		GoldenPrize:  decimal.NewFromInt(golden),
		GoldenChance: chance,
		Active:       true,
		MissionURL:   "https://x.com/goblins/status/1",
		MissionDesc:  "Repost the launch tweet",
	}
	if err := db.Create(tmpl).Error; err != nil {
		t.Fatalf("seed template %s: %v", name, err)
	}
	return tmpl
}
