package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"box-mining-service/models"

	"github.com/shopspring/decimal"
)

func TestListActiveOrdersAndFilters(t *testing.T) {
	env := newTestEnv(t, FixedRandom(0))
	ctx := context.Background()
	seedTemplate(t, env.db, "zeta", 1, 2, 0)
	seedTemplate(t, env.db, "alpha", 1, 2, 0)
	retired := seedTemplate(t, env.db, "beta", 1, 2, 0)
	if err := env.db.Model(retired).Update("active", false).Error; err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	broken := &models.BoxTemplate{
		Name:         "broken",
		NormalPrize:  decimal.NewFromInt(5),
		GoldenPrize:  decimal.NewFromInt(1),
		GoldenChance: 0.5,
		Active:       true,
	}
	if err := env.db.Create(broken).Error; err != nil {
		t.Fatalf("seed broken template: %v", err)
	}

	list, err := env.templates.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(list) != 2 || list[0].Name != "alpha" || list[1].Name != "zeta" {
		t.Fatalf("expected [alpha zeta], got %+v", list)
	}

	// a single lookup of an invalid row fails closed
	if _, err := env.templates.Get(ctx, broken.ID); KindOf(err) != KindInternal {
		t.Fatalf("expected internal error for invalid template, got %v", err)
	}
}

func TestListActiveServesSnapshotUntilStale(t *testing.T) {
	env := newTestEnv(t, FixedRandom(0))
	ctx := context.Background()
	seedTemplate(t, env.db, "first", 1, 2, 0)

	if list, err := env.templates.ListActive(ctx); err != nil || len(list) != 1 {
		t.Fatalf("initial ListActive: %v %v", list, err)
	}
	seedTemplate(t, env.db, "second", 1, 2, 0)

	list, err := env.templates.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected cached snapshot of 1, got %d", len(list))
	}

	env.clock.Advance(2 * time.Minute)
	list, err = env.templates.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected refreshed snapshot of 2, got %d", len(list))
	}
}

func TestInvalidateForcesReload(t *testing.T) {
	env := newTestEnv(t, FixedRandom(0))
	ctx := context.Background()
	if list, err := env.templates.ListActive(ctx); err != nil || len(list) != 0 {
		t.Fatalf("expected empty catalog, got %v %v", list, err)
	}
	seedTemplate(t, env.db, "fresh", 1, 2, 0)
	env.templates.invalidate()

	list, err := env.templates.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 template after invalidate, got %d", len(list))
	}
}

func TestResolveAcceptsIDOrSlug(t *testing.T) {
	env := newTestEnv(t, FixedRandom(0))
	ctx := context.Background()
	tmpl := seedTemplate(t, env.db, "Golden Goose", 1, 2, 0)

	byID, err := env.templates.Resolve(ctx, tmpl.ID)
	if err != nil || byID.ID != tmpl.ID {
		t.Fatalf("resolve by id: %v %v", byID, err)
	}
	bySlug, err := env.templates.Resolve(ctx, "golden-goose")
	if err != nil || bySlug.ID != tmpl.ID {
		t.Fatalf("resolve by slug: %v %v", bySlug, err)
	}
	if _, err := env.templates.Resolve(ctx, ""); !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("expected ErrTemplateNotFound for empty ref, got %v", err)
	}
}

func TestCatalogSchedulerRefreshesImmediately(t *testing.T) {
	env := newTestEnv(t, FixedRandom(0))
	seedTemplate(t, env.db, "scheduled", 1, 2, 0)

	sched, err := env.templates.StartCatalogScheduler(time.Hour)
	if err != nil {
		t.Fatalf("StartCatalogScheduler: %v", err)
	}
	defer func() { _ = sched.Shutdown() }()

	deadline := time.Now().Add(2 * time.Second)
	for env.templates.snapshot.Load() == nil {
		if time.Now().After(deadline) {
			t.Fatal("scheduler never populated the snapshot")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := len(env.templates.snapshot.Load().templates); got != 1 {
		t.Fatalf("expected 1 template in snapshot, got %d", got)
	}
}

func TestResolveAcceptsNonCanonicalIDs(t *testing.T) {
	env := newTestEnv(t, FixedRandom(0))
	ctx := context.Background()
	seedUser(t, env.db, "alice", 0)
	tmpl := seedTemplate(t, env.db, "starter", 1, 2, 0)

	refs := []string{
		strings.ToUpper(tmpl.ID),
		"{" + tmpl.ID + "}",
		"urn:uuid:" + tmpl.ID,
		strings.ReplaceAll(tmpl.ID, "-", ""),
	}
	for _, ref := range refs {
		got, err := env.templates.Resolve(ctx, ref)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", ref, err)
		}
		if got.ID != tmpl.ID {
			t.Fatalf("Resolve(%q) returned %s", ref, got.ID)
		}
	}

	if _, err := env.boxes.Start(ctx, "alice", strings.ToUpper(tmpl.ID)); err != nil {
		t.Fatalf("Start with an uppercase id: %v", err)
	}
}
