package services

import (
	"context"
	"fmt"
	"time"

	"studymesh/internal/core/domain"
	"studymesh/internal/core/ports"
	"studymesh/pkg/validation"

	"go.uber.org/zap"
)

// ProfileService handles the profile surface around the core: fetch and
// save, avatar/banner uploads through the object store, follow edges and
// the counts shown on profile pages.
type ProfileService struct {
	profiles   ports.ProfileRepository
	followers  ports.FollowerRepository
	posts      ports.PostRepository
	objects    ports.ObjectStore
	normalizer ports.IdentityNormalizer
	logger     *zap.SugaredLogger
}

func NewProfileService(
	profiles ports.ProfileRepository,
	followers ports.FollowerRepository,
	posts ports.PostRepository,
	objects ports.ObjectStore,
	normalizer ports.IdentityNormalizer,
	logger *zap.SugaredLogger,
) *ProfileService {
	return &ProfileService{
		profiles:   profiles,
		followers:  followers,
		posts:      posts,
		objects:    objects,
		normalizer: normalizer,
		logger:     logger,
	}
}

// ProfileView is a profile plus the counts its page shows.
type ProfileView struct {
	Profile       domain.Profile `json:"profile"`
	FollowerCount int            `json:"follower_count"`
	PostCount     int            `json:"post_count"`
}

func (s *ProfileService) Get(ctx context.Context, externalID string) (*ProfileView, error) {
	userID, err := s.normalizer.Normalize(ctx, externalID)
	if err != nil {
		return nil, err
	}

	profile, err := s.profiles.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	followerCount, err := s.followers.CountFollowers(ctx, userID)
	if err != nil {
		s.logger.Warnw("follower count failed", "user_id", userID, "error", err)
	}
	postCount, err := s.posts.CountByAuthor(ctx, userID)
	if err != nil {
		s.logger.Warnw("post count failed", "user_id", userID, "error", err)
	}

	return &ProfileView{
		Profile:       *profile,
		FollowerCount: followerCount,
		PostCount:     postCount,
	}, nil
}

func (s *ProfileService) Save(ctx context.Context, profile *domain.Profile) error {
	if err := validation.ValidateDisplayName(profile.DisplayName); err != nil {
		return err
	}
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now()
	}
	return s.profiles.Save(ctx, profile)
}

// UploadAvatar stores the image and records its public URL on the profile.
func (s *ProfileService) UploadAvatar(ctx context.Context, userID domain.Identity, data []byte, contentType string) (string, error) {
	url, err := s.objects.Upload(ctx, fmt.Sprintf("avatars/%s", userID), data, contentType)
	if err != nil {
		return "", fmt.Errorf("avatar upload failed: %w", err)
	}

	profile, err := s.profiles.GetByID(ctx, userID)
	if err == domain.ErrParticipantUnknown {
		profile = &domain.Profile{UserID: userID, CreatedAt: time.Now()}
	} else if err != nil {
		return "", err
	}
	profile.AvatarURL = url
	if err := s.profiles.Save(ctx, profile); err != nil {
		return "", err
	}
	return url, nil
}

// UploadBanner mirrors UploadAvatar for the profile banner.
func (s *ProfileService) UploadBanner(ctx context.Context, userID domain.Identity, data []byte, contentType string) (string, error) {
	url, err := s.objects.Upload(ctx, fmt.Sprintf("banners/%s", userID), data, contentType)
	if err != nil {
		return "", fmt.Errorf("banner upload failed: %w", err)
	}

	profile, err := s.profiles.GetByID(ctx, userID)
	if err == domain.ErrParticipantUnknown {
		profile = &domain.Profile{UserID: userID, CreatedAt: time.Now()}
	} else if err != nil {
		return "", err
	}
	profile.BannerURL = url
	if err := s.profiles.Save(ctx, profile); err != nil {
		return "", err
	}
	return url, nil
}

func (s *ProfileService) Follow(ctx context.Context, followerID, followeeID domain.Identity) error {
	if followerID == followeeID {
		return fmt.Errorf("cannot follow yourself")
	}
	return s.followers.Add(ctx, &domain.FollowerEdge{
		FollowerID: followerID,
		FolloweeID: followeeID,
		CreatedAt:  time.Now(),
	})
}

func (s *ProfileService) Unfollow(ctx context.Context, followerID, followeeID domain.Identity) error {
	return s.followers.Remove(ctx, followerID, followeeID)
}
