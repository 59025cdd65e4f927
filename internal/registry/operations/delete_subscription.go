package operations

import (
	"context"
	"log/slog"

	"go.hookrelay.dev/internal/platform/common"
	"go.hookrelay.dev/internal/registry"
)

// DeliveryPurger removes delivery rows for a subscription. Implemented by
// the dispatch repository; declared here to keep the dependency one-way.
type DeliveryPurger interface {
	DeleteBySubscription(ctx context.Context, subscriptionID string) (int64, error)
}

// DeleteSubscriptionUseCase handles removing a subscription and its
// delivery history
type DeleteSubscriptionUseCase struct {
	repo   registry.Repository
	purger DeliveryPurger
}

// NewDeleteSubscriptionUseCase creates a new DeleteSubscriptionUseCase
func NewDeleteSubscriptionUseCase(repo registry.Repository, purger DeliveryPurger) *DeleteSubscriptionUseCase {
	return &DeleteSubscriptionUseCase{
		repo:   repo,
		purger: purger,
	}
}

// Execute deletes the subscription row and all of its deliveries
func (uc *DeleteSubscriptionUseCase) Execute(
	ctx context.Context,
	id string,
	principal *common.Principal,
) common.Result[string] {
	sub, ucErr := loadOwned(ctx, uc.repo, id, principal)
	if ucErr != nil {
		return common.Failure[string](ucErr)
	}

	purged, err := uc.purger.DeleteBySubscription(ctx, sub.ID)
	if err != nil {
		return common.Failure[string](
			common.InternalError(common.ErrCodeDBError, "Failed to delete subscription deliveries",
				map[string]any{"error": err.Error()}),
		)
	}

	if err := uc.repo.Delete(ctx, sub.ID); err != nil {
		return common.Failure[string](
			common.InternalError(common.ErrCodeDBError, "Failed to delete subscription",
				map[string]any{"error": err.Error()}),
		)
	}

	slog.Info("Subscription deleted",
		"subscriptionId", sub.ID,
		"purgedDeliveries", purged)

	return common.Success(sub.ID)
}
