package services

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"box-mining-service/logger"
	"box-mining-service/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// catalogSnapshot is an immutable copy of the active templates at loadedAt.
type catalogSnapshot struct {
	loadedAt  time.Time
	templates []models.BoxTemplate
}

// TemplateStore is the read-only box catalog.
type TemplateStore struct {
	DB       *gorm.DB
	Clock    Clock
	Timeout  time.Duration
	MaxAge   time.Duration
	snapshot atomic.Pointer[catalogSnapshot]
}

func NewTemplateStore(db *gorm.DB, clock Clock, timeout, maxAge time.Duration) *TemplateStore {
	if clock == nil {
		clock = SystemClock{}
	}
	return &TemplateStore{DB: db, Clock: clock, Timeout: timeout, MaxAge: maxAge}
}

// Get loads a template by id, active or not.
func (s *TemplateStore) Get(ctx context.Context, id string) (*models.BoxTemplate, error) {
	return s.first(ctx, "id = ?", id)
}

// GetBySlug loads a template by its slug.
func (s *TemplateStore) GetBySlug(ctx context.Context, slug string) (*models.BoxTemplate, error) {
	return s.first(ctx, "slug = ?", slug)
}

// Resolve accepts either a template id or a slug.
func (s *TemplateStore) Resolve(ctx context.Context, ref string) (*models.BoxTemplate, error) {
	// ids are stored in canonical lowercase hyphenated form
	if id, err := uuid.Parse(ref); err == nil {
		return s.Get(ctx, id.String())
	}
	return s.GetBySlug(ctx, ref)
}

func (s *TemplateStore) first(ctx context.Context, query string, arg string) (*models.BoxTemplate, error) {
	if arg == "" {
		return nil, ErrTemplateNotFound
	}
	ctx, cancel := withStoreTimeout(ctx, s.Timeout)
	defer cancel()

	var tmpl models.BoxTemplate
	if err := s.DB.WithContext(ctx).Where(query, arg).First(&tmpl).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTemplateNotFound
		}
		return nil, internalError("load box template", err)
	}
	if err := tmpl.Validate(); err != nil {
		return nil, internalError("validate box template", err)
	}
	return &tmpl, nil
}

// ListActive returns the active catalog in a stable (name, id) order.
// A fresh snapshot is served when one exists; otherwise the database is read and the snapshot replaced.
func (s *TemplateStore) ListActive(ctx context.Context) ([]models.BoxTemplate, error) {
	if snap := s.snapshot.Load(); snap != nil && s.fresh(snap) {
		return cloneTemplates(snap.templates), nil
	}
	if err := s.Refresh(ctx); err != nil {
		return nil, err
	}
	return cloneTemplates(s.snapshot.Load().templates), nil
}

// Refresh reloads the active catalog from the database.
func (s *TemplateStore) Refresh(ctx context.Context) error {
	ctx, cancel := withStoreTimeout(ctx, s.Timeout)
	defer cancel()

	var rows []models.BoxTemplate
	if err := s.DB.WithContext(ctx).
		Where("active = ?", true).
		Order("name ASC").Order("id ASC").
		Find(&rows).Error; err != nil {
		return internalError("list active box templates", err)
	}

	valid := rows[:0]
	for _, row := range rows {
		if err := row.Validate(); err != nil {
			logger.Error("skipping invalid box template", zap.String("template_id", row.ID), zap.Error(err))
			continue
		}
		valid = append(valid, row)
	}

	s.snapshot.Store(&catalogSnapshot{loadedAt: s.Clock.Now(), templates: valid})
	return nil
}

// invalidate drops the snapshot so the next ListActive reads the database.
func (s *TemplateStore) invalidate() {
	s.snapshot.Store(nil)
}

func (s *TemplateStore) fresh(snap *catalogSnapshot) bool {
	if s.MaxAge <= 0 {
		return false
	}
	return s.Clock.Now().Sub(snap.loadedAt) < s.MaxAge
}

func cloneTemplates(in []models.BoxTemplate) []models.BoxTemplate {
	out := make([]models.BoxTemplate, len(in))
	copy(out, in)
	return out
}

func withStoreTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
