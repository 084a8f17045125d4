package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"box-mining-service/models"

	"github.com/gosimple/unidecode"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"gorm.io/gorm"
)

const (
	DefaultLeaderboardLimit = 20
	MaxLeaderboardLimit     = 100
)

// PublicUser is the subset of a user exposed on leaderboards.
type PublicUser struct {
	XUsername    string          `json:"xUsername"`
	GoblinPoints decimal.Decimal `json:"goblinPoints"`
	ProfileImage *string         `json:"profileImage,omitempty"`
	ReferralCode *string         `json:"referralCode,omitempty"`
}

type RankedUser struct {
	PublicUser
	Rank int `json:"rank"`
}

type LeaderboardPage struct {
	RankedUsers []RankedUser `json:"rankedUsers"`
	Page        int          `json:"page"`
	Total       int64        `json:"total"`
	TotalPages  int          `json:"totalPages"`
}

type UserRank struct {
	User PublicUser `json:"user"`
	Rank int64      `json:"rank"`
}

// LeaderboardService ranks users by points. Ties are broken by username.
type LeaderboardService struct {
	DB      *gorm.DB
	Users   *UserDirectory
	Timeout time.Duration
}

func NewLeaderboardService(db *gorm.DB, timeout time.Duration) *LeaderboardService {
	return &LeaderboardService{DB: db, Users: NewUserDirectory(db, timeout), Timeout: timeout}
}

// NormalizePaging clamps page to ≥1 and limit to [1,100]. A zero (unset) limit means 20.
func NormalizePaging(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit == 0 {
		limit = DefaultLeaderboardLimit
	}
	if limit < 1 {
		limit = 1
	}
	if limit > MaxLeaderboardLimit {
		limit = MaxLeaderboardLimit
	}
	return page, limit
}

// normalizeSearch folds case and transliterates to ASCII, since usernames are ASCII handles.
func normalizeSearch(search string) string {
	search = strings.TrimSpace(search)
	if search == "" {
		return ""
	}
	return cases.Fold().String(unidecode.Unidecode(search))
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// List returns one page of the leaderboard, optionally filtered by a username substring.
func (s *LeaderboardService) List(ctx context.Context, page, limit int, search string) (*LeaderboardPage, error) {
	page, limit = NormalizePaging(page, limit)
	ctx, cancel := withStoreTimeout(ctx, s.Timeout)
	defer cancel()

	query := s.DB.WithContext(ctx).Model(&models.User{})
	if term := normalizeSearch(search); term != "" {
		query = query.Where(`LOWER(x_username) LIKE ? ESCAPE '\'`, "%"+escapeLike(term)+"%")
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, internalError("count users", err)
	}

	var users []models.User
	if err := query.Session(&gorm.Session{}).
		Select("x_username", "goblin_points", "profile_image", "referral_code").
		Order("goblin_points DESC").Order("x_username ASC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&users).Error; err != nil {
		return nil, internalError("list users", err)
	}

	ranked := make([]RankedUser, 0, len(users))
	for i, u := range users {
		ranked = append(ranked, RankedUser{
			PublicUser: publicUser(&u),
			Rank:       (page-1)*limit + i + 1,
		})
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	if totalPages == 0 {
		totalPages = 1
	}
	return &LeaderboardPage{RankedUsers: ranked, Page: page, Total: total, TotalPages: totalPages}, nil
}

// Rank returns a user's profile and 1 + the number of users with strictly more points.
func (s *LeaderboardService) Rank(ctx context.Context, username string) (*UserRank, error) {
	user, err := s.Users.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withStoreTimeout(ctx, s.Timeout)
	defer cancel()

	var higher int64
	if err := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("goblin_points > ?", user.GoblinPoints).
		Count(&higher).Error; err != nil {
		return nil, internalError("rank user", err)
	}
	return &UserRank{User: publicUser(user), Rank: higher + 1}, nil
}

func publicUser(u *models.User) PublicUser {
	return PublicUser{
		XUsername:    u.XUsername,
		GoblinPoints: u.GoblinPoints,
		ProfileImage: u.ProfileImage,
		ReferralCode: u.ReferralCode,
	}
}

// IsNotFound is a small helper for handlers that map lookups to 404.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrTemplateNotFound)
}
