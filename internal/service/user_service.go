package service

import (
	"context"
	"fmt"

	"github.com/rahoolsingh/THUMBNAIL-LELO/internal/models"
	"github.com/rahoolsingh/THUMBNAIL-LELO/internal/repository"
)

type UserService struct {
	freeQuotaDefault int
	users            *repository.UserRepository
	purchases        *repository.PurchaseRepository
	generations      *repository.GenerationRepository
}

// Profile is the authenticated user's view of their account.
type Profile struct {
	User        models.User
	Purchases   []models.Purchase
	Generations int
}

func NewUserService(freeQuotaDefault int, users *repository.UserRepository, purchases *repository.PurchaseRepository, generations *repository.GenerationRepository) *UserService {
	return &UserService{
		freeQuotaDefault: freeQuotaDefault,
		users:            users,
		purchases:        purchases,
		generations:      generations,
	}
}

// Profile lazily creates the user on first sight, matching the generation
// endpoint's behavior, and returns quotas plus purchase history.
func (s *UserService) Profile(ctx context.Context, subject string) (*Profile, error) {
	user, _, err := s.users.Ensure(ctx, subject, s.freeQuotaDefault)
	if err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	purchases, err := s.purchases.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	count, err := s.generations.CountForUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("count generations: %w", err)
	}
	return &Profile{User: *user, Purchases: purchases, Generations: count}, nil
}

// GrantQuota adjusts a user's quotas by the given deltas. Admin only.
func (s *UserService) GrantQuota(ctx context.Context, subject string, freeDelta, paidDelta int) (*models.User, error) {
	user, _, err := s.users.Ensure(ctx, subject, s.freeQuotaDefault)
	if err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	if freeDelta != 0 {
		if err := s.users.AddFreeQuota(ctx, user.ID, freeDelta); err != nil {
			return nil, err
		}
	}
	if paidDelta != 0 {
		if err := s.users.AddPaidQuota(ctx, user.ID, paidDelta); err != nil {
			return nil, err
		}
	}
	updated, err := s.users.FindBySubject(ctx, subject)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, fmt.Errorf("user vanished after quota grant")
	}
	return updated, nil
}
