package reliability

import (
	"context"

	"studymesh/internal/core/domain"
	"studymesh/internal/core/ports"
	"studymesh/pkg/circuitbreaker"
	"studymesh/pkg/retry"

	"go.uber.org/zap"
)

// MembershipRepositoryWrapper guards record-store membership writes with
// retry and a circuit breaker. The join sequence depends on these calls, so
// transient store hiccups retry instead of failing the join outright.
type MembershipRepositoryWrapper struct {
	repo   ports.MembershipRepository
	logger *zap.SugaredLogger

	retryConfig    retry.Config
	circuitBreaker *circuitbreaker.CircuitBreaker
}

func NewMembershipRepositoryWrapper(
	repo ports.MembershipRepository,
	retryConfig retry.Config,
	cbConfig circuitbreaker.Config,
	logger *zap.SugaredLogger,
) *MembershipRepositoryWrapper {
	wrapper := &MembershipRepositoryWrapper{
		repo:           repo,
		logger:         logger,
		retryConfig:    retryConfig,
		circuitBreaker: circuitbreaker.New(cbConfig),
	}

	wrapper.circuitBreaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Infow("membership store circuit breaker state changed",
			"from", from.String(),
			"to", to.String(),
		)
	})

	return wrapper
}

func (w *MembershipRepositoryWrapper) Upsert(ctx context.Context, m *domain.Membership) error {
	return retry.Do(ctx, w.retryConfig, func() error {
		return w.circuitBreaker.Execute(ctx, func() error {
			return w.repo.Upsert(ctx, m)
		})
	})
}

func (w *MembershipRepositoryWrapper) FindActiveByRoom(ctx context.Context, roomID domain.RoomID) ([]*domain.Membership, error) {
	return retry.DoWithResult(ctx, w.retryConfig, func() ([]*domain.Membership, error) {
		var memberships []*domain.Membership
		err := w.circuitBreaker.Execute(ctx, func() error {
			var inner error
			memberships, inner = w.repo.FindActiveByRoom(ctx, roomID)
			return inner
		})
		return memberships, err
	})
}

func (w *MembershipRepositoryWrapper) CountActive(ctx context.Context, roomID domain.RoomID) (int, error) {
	return retry.DoWithResult(ctx, w.retryConfig, func() (int, error) {
		var count int
		err := w.circuitBreaker.Execute(ctx, func() error {
			var inner error
			count, inner = w.repo.CountActive(ctx, roomID)
			return inner
		})
		return count, err
	})
}

// ProfileRepositoryWrapper adds retry to profile reads. The roster
// enrichment path tolerates missing profiles, so lookups never retry on
// ErrParticipantUnknown.
type ProfileRepositoryWrapper struct {
	repo        ports.ProfileRepository
	retryConfig retry.Config
}

func NewProfileRepositoryWrapper(repo ports.ProfileRepository, retryConfig retry.Config) *ProfileRepositoryWrapper {
	retryConfig.NonRetryableErrors = append(retryConfig.NonRetryableErrors, domain.ErrParticipantUnknown)
	return &ProfileRepositoryWrapper{
		repo:        repo,
		retryConfig: retryConfig,
	}
}

func (w *ProfileRepositoryWrapper) GetByID(ctx context.Context, userID domain.Identity) (*domain.Profile, error) {
	return retry.DoWithResult(ctx, w.retryConfig, func() (*domain.Profile, error) {
		return w.repo.GetByID(ctx, userID)
	})
}

func (w *ProfileRepositoryWrapper) Save(ctx context.Context, profile *domain.Profile) error {
	return retry.Do(ctx, w.retryConfig, func() error {
		return w.repo.Save(ctx, profile)
	})
}
