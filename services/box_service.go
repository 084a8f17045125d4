// services/box_service.go
package services

import (
	"context"
	"errors"
	"time"

	"box-mining-service/logger"
	"box-mining-service/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AssetResolver turns a stored template image reference into a URL clients can load.
type AssetResolver interface {
	ResolveImageURL(ctx context.Context, ref string) string
}

type passthroughAssets struct{}

func (passthroughAssets) ResolveImageURL(_ context.Context, ref string) string { return ref }

// promoMultiplier applies to boxes whose promo was validated.
var promoMultiplier = decimal.NewFromInt(2)

// BoxService drives the box lifecycle: start → mature → mission → claim.
type BoxService struct {
	DB        *gorm.DB
	Templates *TemplateStore
	Boxes     *BoxLedger
	Accounts  *AccountLedger
	Users     *UserDirectory
	Assets    AssetResolver
	Clock     Clock
	Random    RandomSource
	Timeout   time.Duration
}

func NewBoxService(db *gorm.DB, templates *TemplateStore, clock Clock, random RandomSource, timeout time.Duration) *BoxService {
	if clock == nil {
		clock = SystemClock{}
	}
	if random == nil {
		random = DefaultRandom
	}
	return &BoxService{
		DB:        db,
		Templates: templates,
		Boxes:     NewBoxLedger(db),
		Accounts:  NewAccountLedger(db),
		Users:     NewUserDirectory(db, timeout),
		Assets:    passthroughAssets{},
		Clock:     clock,
		Random:    random,
		Timeout:   timeout,
	}
}

// BoxSnapshot is the caller-facing view of one box, with readiness computed at read time.
type BoxSnapshot struct {
	ID               string           `json:"id"`
	TemplateID       string           `json:"templateId"`
	StartTime        time.Time        `json:"startTime"`
	ReadyAt          time.Time        `json:"readyAt"`
	PrizeType        models.PrizeType `json:"prizeType"`
	PrizeAmount      decimal.Decimal  `json:"prizeAmount"`
	MissionCompleted bool             `json:"missionCompleted"`
	IsReady          bool             `json:"isReady"`
	Opened           bool             `json:"opened"`
}

// BoxStatus answers "do I have a box mining right now?".
type BoxStatus struct {
	HasBox bool         `json:"hasBox"`
	Box    *BoxSnapshot `json:"box,omitempty"`
}

// TemplateView is a template plus the viewer's box against it, if any.
type TemplateView struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Slug             string          `json:"slug"`
	ImageURL         string          `json:"imageUrl"`
	NormalPrize      decimal.Decimal `json:"normalPrize"`
	BoxType          models.BoxType  `json:"boxType"`
	MissionURL       string          `json:"missionUrl"`
	MissionDesc      string          `json:"missionDesc"`
	HasBox           bool            `json:"hasBox"`
	IsReady          bool            `json:"isReady"`
	Opened           bool            `json:"opened"`
	MissionCompleted bool            `json:"missionCompleted"`
	StartTime        *time.Time      `json:"startTime"`
	ReadyAt          *time.Time      `json:"readyAt"`
}

// ClaimResult is what a successful claim paid out.
type ClaimResult struct {
	PrizeAmount  decimal.Decimal  `json:"prizeAmount"`
	PrizeType    models.PrizeType `json:"prizeType"`
	NewBalance   decimal.Decimal  `json:"newBalance"`
	PromoApplied bool             `json:"promoApplied"`
}

func snapshotOf(box *models.UserBox, now time.Time) *BoxSnapshot {
	return &BoxSnapshot{
		ID:               box.ID,
		TemplateID:       box.TemplateID,
		StartTime:        box.StartTime,
		ReadyAt:          box.ReadyAt,
		PrizeType:        box.PrizeType,
		PrizeAmount:      box.PrizeAmount,
		MissionCompleted: box.MissionCompleted,
		IsReady:          box.IsReady(now),
		Opened:           box.Opened,
	}
}

// drawPrize makes the golden draw. r must be in [0,1).
func drawPrize(tmpl *models.BoxTemplate, r float64) (models.PrizeType, decimal.Decimal) {
	if r < tmpl.GoldenChance {
		return models.PrizeTypeGolden, tmpl.GoldenPrize
	}
	return models.PrizeTypeNormal, tmpl.NormalPrize
}

func (s *BoxService) user(ctx context.Context, username string) (*models.User, error) {
	user, err := s.Users.FindByUsername(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrNoActiveUser
	}
	return user, err
}

// Catalog lists active templates with image URLs resolved.
func (s *BoxService) Catalog(ctx context.Context) ([]models.BoxTemplate, error) {
	templates, err := s.Templates.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	for i := range templates {
		templates[i].ImageURL = s.Assets.ResolveImageURL(ctx, templates[i].ImageURL)
	}
	return templates, nil
}

// Start begins mining a box against templateRef. The golden draw happens here, once.
func (s *BoxService) Start(ctx context.Context, username, templateRef string) (*BoxSnapshot, error) {
	ctx, cancel := withStoreTimeout(ctx, s.Timeout)
	defer cancel()

	user, err := s.user(ctx, username)
	if err != nil {
		return nil, err
	}

	tmpl, err := s.Templates.Resolve(ctx, templateRef)
	if err != nil {
		if errors.Is(err, ErrTemplateNotFound) {
			return nil, ErrTemplateUnavailable
		}
		return nil, err
	}
	if !tmpl.Active {
		return nil, ErrTemplateUnavailable
	}

	now := s.Clock.Now()
	prizeType, prizeAmount := drawPrize(tmpl, s.Random.Float64())
	box := &models.UserBox{
		UserID:           user.ID,
		TemplateID:       tmpl.ID,
		StartTime:        now,
		ReadyAt:          now.Add(models.MiningCooldown),
		PrizeType:        prizeType,
		PrizeAmount:      prizeAmount,
		MissionCompleted: false,
		Opened:           false,
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		boxes := s.Boxes.WithTx(tx)
		open, err := boxes.FindOpen(ctx, user.ID)
		if err != nil {
			return err
		}
		if open != nil {
			return ErrDuplicateActiveInstance
		}
		return boxes.Create(ctx, box)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("box mining started",
		zap.String("user_id", user.ID),
		zap.String("template_id", tmpl.ID),
		zap.String("box_id", box.ID),
		zap.String("prize_type", string(prizeType)),
	)
	return snapshotOf(box, now), nil
}

// CompleteMission marks the mission done on a ready box. Calling it again is a no-op.
func (s *BoxService) CompleteMission(ctx context.Context, username, templateRef string) error {
	ctx, cancel := withStoreTimeout(ctx, s.Timeout)
	defer cancel()

	noBox := withMessage(ErrNoActiveInstance, "No active box to complete mission for.")

	user, err := s.user(ctx, username)
	if err != nil {
		return err
	}
	templateID, err := s.templateID(ctx, templateRef)
	if err != nil {
		if errors.Is(err, ErrTemplateNotFound) {
			return noBox
		}
		return err
	}

	box, err := s.Boxes.FindOpenForTemplate(ctx, user.ID, templateID)
	if err != nil {
		return err
	}
	if box == nil {
		return noBox
	}
	if !box.IsReady(s.Clock.Now()) {
		return ErrNotReadyYet
	}
	if box.MissionCompleted {
		return nil
	}

	n, err := s.Boxes.MarkMissionCompleted(ctx, box.ID)
	if err != nil {
		return err
	}
	if n == 0 {
		// opened by a concurrent claim between the read and the update
		return noBox
	}
	logger.Info("box mission completed", zap.String("user_id", user.ID), zap.String("box_id", box.ID))
	return nil
}

// Claim opens a ready box with a completed mission and credits the prize exactly once.
// Marking the box opened and crediting the account commit together or not at all.
func (s *BoxService) Claim(ctx context.Context, username, templateRef string) (*ClaimResult, error) {
	ctx, cancel := withStoreTimeout(ctx, s.Timeout)
	defer cancel()

	noBox := withMessage(ErrNoActiveInstance, "No active box to open.")

	user, err := s.user(ctx, username)
	if err != nil {
		return nil, err
	}
	templateID, err := s.templateID(ctx, templateRef)
	if err != nil {
		if errors.Is(err, ErrTemplateNotFound) {
			return nil, noBox
		}
		return nil, err
	}

	var result ClaimResult
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		boxes := s.Boxes.WithTx(tx)
		box, err := boxes.FindOpenForTemplate(ctx, user.ID, templateID)
		if err != nil {
			return err
		}
		if box == nil {
			return noBox
		}

		now := s.Clock.Now()
		if !box.IsReady(now) {
			return ErrNotReadyYet
		}
		if !box.MissionCompleted {
			return ErrMissionIncomplete
		}

		finalPrize := box.PrizeAmount
		if box.PromoValid {
			finalPrize = finalPrize.Mul(promoMultiplier)
		}

		n, err := boxes.MarkOpened(ctx, box.ID, now, finalPrize)
		if err != nil {
			return err
		}
		if n == 0 {
			return noBox
		}

		balance, err := s.Accounts.WithTx(tx).Credit(ctx, user.ID, finalPrize)
		if err != nil {
			return &BoxError{
				Kind:    ErrCreditFailure.Kind,
				Code:    ErrCreditFailure.Code,
				Message: ErrCreditFailure.Message,
				Err:     err,
			}
		}

		result = ClaimResult{
			PrizeAmount:  finalPrize,
			PrizeType:    box.PrizeType,
			NewBalance:   balance,
			PromoApplied: box.PromoValid,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("box claimed",
		zap.String("user_id", user.ID),
		zap.String("template_id", templateID),
		zap.String("prize", result.PrizeAmount.String()),
		zap.Bool("promo", result.PromoApplied),
	)
	return &result, nil
}

// StatusFor reports the caller's unopened box, if any. Unknown users simply have no box.
func (s *BoxService) StatusFor(ctx context.Context, username string) (*BoxStatus, error) {
	ctx, cancel := withStoreTimeout(ctx, s.Timeout)
	defer cancel()

	user, err := s.Users.FindByUsername(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		return &BoxStatus{HasBox: false}, nil
	}
	if err != nil {
		return nil, err
	}

	box, err := s.Boxes.FindOpen(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if box == nil {
		return &BoxStatus{HasBox: false}, nil
	}
	return &BoxStatus{HasBox: true, Box: snapshotOf(box, s.Clock.Now())}, nil
}

// TemplateView combines a template with the viewer's box. An empty username is an anonymous viewer.
func (s *BoxService) TemplateView(ctx context.Context, username, templateRef string) (*TemplateView, error) {
	ctx, cancel := withStoreTimeout(ctx, s.Timeout)
	defer cancel()

	tmpl, err := s.Templates.Resolve(ctx, templateRef)
	if err != nil {
		return nil, err
	}

	view := &TemplateView{
		ID:          tmpl.ID,
		Name:        tmpl.Name,
		Slug:        tmpl.Slug,
		ImageURL:    s.Assets.ResolveImageURL(ctx, tmpl.ImageURL),
		NormalPrize: tmpl.NormalPrize,
		BoxType:     tmpl.BoxType,
		MissionURL:  tmpl.MissionURL,
		MissionDesc: tmpl.MissionDesc,
	}
	if username == "" {
		return view, nil
	}

	user, err := s.Users.FindByUsername(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		return view, nil
	}
	if err != nil {
		return nil, err
	}

	box, err := s.Boxes.FindOpenForTemplate(ctx, user.ID, tmpl.ID)
	if err != nil {
		return nil, err
	}
	if box != nil {
		startTime, readyAt := box.StartTime, box.ReadyAt
		view.HasBox = true
		view.IsReady = box.IsReady(s.Clock.Now())
		view.Opened = box.Opened
		view.MissionCompleted = box.MissionCompleted
		view.StartTime = &startTime
		view.ReadyAt = &readyAt
	}
	return view, nil
}

// templateID resolves a ref to an id. Inactive templates still resolve so open boxes can finish.
func (s *BoxService) templateID(ctx context.Context, ref string) (string, error) {
	tmpl, err := s.Templates.Resolve(ctx, ref)
	if err != nil {
		return "", err
	}
	return tmpl.ID, nil
}

func withMessage(sentinel *BoxError, message string) *BoxError {
	return &BoxError{Kind: sentinel.Kind, Code: sentinel.Code, Message: message}
}
