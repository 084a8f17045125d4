package database

import (
	"testing"
	"time"

	"box-mining-service/models"

	"github.com/shopspring/decimal"
)

func TestDetectDialect(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@localhost:5432/goblin":          DialectPostgres,
		"postgresql://localhost/goblin":                 DialectPostgres,
		"host=localhost user=u dbname=goblin":           DialectPostgres,
		"file:data/boxes.db?_pragma=busy_timeout(5000)": DialectSQLite,
		":memory:":                                      DialectSQLite,
		"boxes.db":                                      DialectSQLite,
	}
	for dsn, want := range cases {
		got, err := DetectDialect(dsn)
		if err != nil {
			t.Fatalf("DetectDialect(%q): %v", dsn, err)
		}
		if got != want {
			t.Fatalf("DetectDialect(%q) = %s, want %s", dsn, got, want)
		}
	}
	if _, err := DetectDialect("mysql://root@localhost/goblin"); err == nil {
		t.Fatal("expected an error for an unsupported scheme")
	}
}

func TestSQLitePath(t *testing.T) {
	if got := sqlitePath("file:data/boxes.db?cache=shared"); got != "data/boxes.db" {
		t.Fatalf("unexpected path %q", got)
	}
	if got := sqlitePath(":memory:"); got != "" {
		t.Fatalf("memory databases have no path, got %q", got)
	}
}

func TestOpenRejectsEmptyDSN(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}

func TestMigrateEnforcesOneOpenBoxPerUser(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	// running twice must be harmless
	if err := Migrate(db); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newBox := func() *models.UserBox {
		return &models.UserBox{
			UserID:      "user-1",
			TemplateID:  "template-1",
			StartTime:   now,
			ReadyAt:     now.Add(models.MiningCooldown),
			PrizeType:   models.PrizeTypeNormal,
			PrizeAmount: decimal.NewFromInt(10),
		}
	}

	first := newBox()
	if err := db.Create(first).Error; err != nil {
		t.Fatalf("create first box: %v", err)
	}
	if err := db.Create(newBox()).Error; err == nil {
		t.Fatal("expected the partial unique index to reject a second open box")
	}

	if err := db.Model(first).Updates(map[string]any{"opened": true, "opened_at": now}).Error; err != nil {
		t.Fatalf("open first box: %v", err)
	}
	if err := db.Create(newBox()).Error; err != nil {
		t.Fatalf("a new box after opening the first should be allowed: %v", err)
	}
}
