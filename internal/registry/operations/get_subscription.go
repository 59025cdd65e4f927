package operations

import (
	"context"

	"go.hookrelay.dev/internal/platform/common"
	"go.hookrelay.dev/internal/registry"
)

// GetSubscriptionUseCase loads a single owned subscription
type GetSubscriptionUseCase struct {
	repo registry.Repository
}

// NewGetSubscriptionUseCase creates a new GetSubscriptionUseCase
func NewGetSubscriptionUseCase(repo registry.Repository) *GetSubscriptionUseCase {
	return &GetSubscriptionUseCase{repo: repo}
}

// Execute fetches the subscription, enforcing ownership
func (uc *GetSubscriptionUseCase) Execute(
	ctx context.Context,
	id string,
	principal *common.Principal,
) common.Result[*registry.Subscription] {
	sub, ucErr := loadOwned(ctx, uc.repo, id, principal)
	if ucErr != nil {
		return common.Failure[*registry.Subscription](ucErr)
	}
	return common.Success(sub)
}

// ListSubscriptionsUseCase pages through the caller's subscriptions
type ListSubscriptionsUseCase struct {
	repo registry.Repository
}

// NewListSubscriptionsUseCase creates a new ListSubscriptionsUseCase
func NewListSubscriptionsUseCase(repo registry.Repository) *ListSubscriptionsUseCase {
	return &ListSubscriptionsUseCase{repo: repo}
}

// SubscriptionPage is one page of list results
type SubscriptionPage struct {
	Items []*registry.Subscription `json:"items"`
	Total int64                    `json:"total"`
}

// Execute lists subscriptions; non-admin principals only see their own
func (uc *ListSubscriptionsUseCase) Execute(
	ctx context.Context,
	opts registry.ListOptions,
	principal *common.Principal,
) common.Result[SubscriptionPage] {
	if principal == nil {
		return common.Failure[SubscriptionPage](
			common.UnauthenticatedError("NO_PRINCIPAL", "Authentication is required", nil),
		)
	}

	if !principal.Admin {
		opts.OwnerID = principal.Subject
	}

	subs, total, err := uc.repo.List(ctx, opts)
	if err != nil {
		return common.Failure[SubscriptionPage](
			common.InternalError(common.ErrCodeDBError, "Failed to list subscriptions",
				map[string]any{"error": err.Error()}),
		)
	}

	if subs == nil {
		subs = []*registry.Subscription{}
	}
	return common.Success(SubscriptionPage{Items: subs, Total: total})
}
