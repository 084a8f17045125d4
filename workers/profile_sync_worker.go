// workers/profile_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"box-mining-service/logger"
	"box-mining-service/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProfilesEndpoint is the path on the profile service that lists changed profiles.
const ProfilesEndpoint = "/api/v1/public/profiles"

// RemoteProfile is one entry of the profile service response.
type RemoteProfile struct {
	Username          string    `json:"username"`
	ProfilePictureURL *string   `json:"profile_picture_url,omitempty"`
	FollowersCount    int64     `json:"followers_count"`
	ReferralCode      string    `json:"referral_code"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type profileChangesResponse struct {
	Users []RemoteProfile `json:"users"`
}

// SyncResult summarizes one batch. Failed profiles are fetched again on the next batch; skipped ones are not.
type SyncResult struct {
	Received int
	Upserted int
	Failed   int
	Skipped  int
}

// ProfileSyncWorker mirrors profile fields into the users table. It never touches balances.
type ProfileSyncWorker struct {
	db           *gorm.DB
	interval     time.Duration
	baseURL      string
	serviceToken string
	httpClient   *http.Client

	mu    sync.Mutex
	since time.Time
}

func NewProfileSyncWorker(db *gorm.DB, baseURL, serviceToken string, interval time.Duration) *ProfileSyncWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ProfileSyncWorker{
		db:           db,
		interval:     interval,
		baseURL:      baseURL,
		serviceToken: serviceToken,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (w *ProfileSyncWorker) Start(ctx context.Context) {
	logger.Info("🔁 starting profile sync worker", zap.String("base_url", w.baseURL), zap.Duration("interval", w.interval))
	go w.run(ctx)
}

func (w *ProfileSyncWorker) run(ctx context.Context) {
	// first pass backfills everything
	if _, err := w.SyncOnce(ctx); err != nil {
		logger.Warn("⚠️ initial profile sync failed", zap.Error(err))
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.SyncOnce(ctx); err != nil {
				logger.Warn("❌ profile sync batch failed", zap.Error(err))
			}
		case <-ctx.Done():
			logger.Info("⏹️ profile sync worker stopped")
			return
		}
	}
}

// SyncOnce fetches profiles changed since the last successful batch and upserts them.
func (w *ProfileSyncWorker) SyncOnce(ctx context.Context) (SyncResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	profiles, err := w.fetch(ctx, w.since)
	if err != nil {
		return SyncResult{}, err
	}

	result := SyncResult{Received: len(profiles)}
	latest := w.since
	var oldestFailed time.Time
	for _, p := range profiles {
		if strings.TrimSpace(p.Username) == "" {
			result.Skipped++
			logger.Warn("⚠️ skipping profile without username", zap.Time("updated_at", p.UpdatedAt))
			continue
		}
		if err := w.upsert(ctx, p); err != nil {
			result.Failed++
			if oldestFailed.IsZero() || p.UpdatedAt.Before(oldestFailed) {
				oldestFailed = p.UpdatedAt
			}
			logger.Warn("⚠️ profile upsert failed", zap.String("username", p.Username), zap.Error(err))
			continue
		}
		result.Upserted++
		if p.UpdatedAt.After(latest) {
			latest = p.UpdatedAt
		}
	}
	w.since = nextSince(w.since, latest, oldestFailed)
	latest = w.since

	if result.Received > 0 {
		logger.Info("✅ profiles synced",
			zap.Int("received", result.Received),
			zap.Int("upserted", result.Upserted),
			zap.Int("failed", result.Failed),
			zap.Int("skipped", result.Skipped),
			zap.Time("since", latest),
		)
	}
	return result, nil
}

// nextSince advances the cursor to the newest upserted profile, but never past a failed one.
// The query string has second precision, so the cap sits a second before the failure.
func nextSince(prev, latest, oldestFailed time.Time) time.Time {
	if oldestFailed.IsZero() {
		return latest
	}
	capped := oldestFailed.Add(-time.Second)
	if capped.Before(latest) {
		latest = capped
	}
	if latest.Before(prev) {
		return prev
	}
	return latest
}

func (w *ProfileSyncWorker) fetch(ctx context.Context, since time.Time) ([]RemoteProfile, error) {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid profile service url %q: %w", w.baseURL, err)
	}
	endpoint := base.JoinPath(ProfilesEndpoint)
	q := endpoint.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build profile request: %w", err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile request: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("profile service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded profileChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode profile response: %w", err)
	}
	return decoded.Users, nil
}

func (w *ProfileSyncWorker) upsert(ctx context.Context, p RemoteProfile) error {
	username := strings.TrimSpace(p.Username)
	user := models.User{
		XUsername:      username,
		FollowersCount: p.FollowersCount,
		ProfileImage:   p.ProfilePictureURL,
	}
	if code := strings.TrimSpace(p.ReferralCode); code != "" {
		user.ReferralCode = &code
	}
	return w.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "x_username"}},
		DoUpdates: clause.AssignmentColumns([]string{"followers_count", "profile_image", "referral_code", "updated_at"}),
	}).Create(&user).Error
}
