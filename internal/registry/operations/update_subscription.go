package operations

import (
	"context"
	"errors"
	"log/slog"

	"go.hookrelay.dev/internal/platform/common"
	"go.hookrelay.dev/internal/registry"
	"go.hookrelay.dev/internal/security"
)

// UpdateSubscriptionCommand patches a subscription. Only non-nil fields are
// applied.
type UpdateSubscriptionCommand struct {
	ID string `json:"-"`

	Name        *string         `json:"name,omitempty"`
	Description *string         `json:"description,omitempty"`
	TargetURL   *string         `json:"targetUrl,omitempty"`
	Active      *bool           `json:"active,omitempty"`
	EventTypes  *[]string       `json:"eventTypes,omitempty"`
	Filter      *map[string]any `json:"filter,omitempty"`

	Auth *registry.AuthConfig `json:"auth,omitempty"`

	TimeoutSeconds     *int               `json:"timeoutSeconds,omitempty"`
	MaxAttempts        *int               `json:"maxAttempts,omitempty"`
	BackoffBaseSeconds *int               `json:"backoffBaseSeconds,omitempty"`
	BackoffMultiplier  *float64           `json:"backoffMultiplier,omitempty"`
	MaxBackoffSeconds  *int               `json:"maxBackoffSeconds,omitempty"`
	CustomHeaders      *map[string]string `json:"customHeaders,omitempty"`

	RateLimitPerHour *int `json:"rateLimitPerHour,omitempty"`
	RateLimitPerDay  *int `json:"rateLimitPerDay,omitempty"`
}

// UpdateSubscriptionUseCase handles patching an existing subscription
type UpdateSubscriptionUseCase struct {
	repo      registry.Repository
	validator *security.Validator
}

// NewUpdateSubscriptionUseCase creates a new UpdateSubscriptionUseCase
func NewUpdateSubscriptionUseCase(repo registry.Repository, validator *security.Validator) *UpdateSubscriptionUseCase {
	return &UpdateSubscriptionUseCase{
		repo:      repo,
		validator: validator,
	}
}

// Execute applies the patch after re-validating every changed field
func (uc *UpdateSubscriptionUseCase) Execute(
	ctx context.Context,
	cmd UpdateSubscriptionCommand,
	principal *common.Principal,
) common.Result[*registry.Subscription] {
	sub, ucErr := loadOwned(ctx, uc.repo, cmd.ID, principal)
	if ucErr != nil {
		return common.Failure[*registry.Subscription](ucErr)
	}

	if cmd.Name != nil {
		if *cmd.Name == "" {
			return common.Failure[*registry.Subscription](
				common.ValidationError("MISSING_NAME", "Subscription name must be non-empty", nil),
			)
		}
		sub.Name = *cmd.Name
	}
	if cmd.Description != nil {
		sub.Description = *cmd.Description
	}
	if cmd.TargetURL != nil {
		if result := uc.validator.ValidateTargetURL(*cmd.TargetURL); !result.Valid {
			return common.Failure[*registry.Subscription](
				common.ValidationError(common.ErrCodeUnsafeTarget, result.Reason, result.Details),
			)
		}
		sub.TargetURL = *cmd.TargetURL
	}
	if cmd.Active != nil {
		sub.Active = *cmd.Active
	}
	if cmd.EventTypes != nil {
		if len(*cmd.EventTypes) == 0 {
			return common.Failure[*registry.Subscription](
				common.ValidationError("MISSING_EVENT_TYPES", "At least one event type is required", nil),
			)
		}
		sub.EventTypes = *cmd.EventTypes
	}
	if cmd.Filter != nil {
		sub.Filter = *cmd.Filter
	}

	if cmd.Auth != nil {
		auth := *cmd.Auth
		if auth.Mode == "" {
			auth.Mode = registry.AuthModeNone
		}

		// Leaving hmac_sha256 clears the stored secret; entering it
		// generates a fresh one when none exists
		if auth.Mode != registry.AuthModeHMACSHA256 {
			auth.Secret = ""
		} else if auth.Secret == "" {
			if sub.Auth.Mode == registry.AuthModeHMACSHA256 && sub.Auth.Secret != "" {
				auth.Secret = sub.Auth.Secret
			} else {
				secret, err := security.GenerateSecret()
				if err != nil {
					return common.Failure[*registry.Subscription](
						common.InternalError("SECRET_GENERATION_FAILED", "Failed to generate signing secret",
							map[string]any{"error": err.Error()}),
					)
				}
				auth.Secret = secret
			}
		}

		if missing := auth.MissingFields(); len(missing) > 0 {
			return common.Failure[*registry.Subscription](
				common.ValidationError(common.ErrCodeAuthIncomplete,
					"Auth config is incomplete for the selected mode",
					map[string]any{"mode": string(auth.Mode), "missing": missing}),
			)
		}
		sub.Auth = auth
	}

	if cmd.TimeoutSeconds != nil {
		sub.Policy.TimeoutSeconds = *cmd.TimeoutSeconds
	}
	if cmd.MaxAttempts != nil {
		sub.Policy.MaxAttempts = *cmd.MaxAttempts
	}
	if cmd.BackoffBaseSeconds != nil {
		sub.Policy.BackoffBaseSeconds = *cmd.BackoffBaseSeconds
	}
	if cmd.BackoffMultiplier != nil {
		sub.Policy.BackoffMultiplier = *cmd.BackoffMultiplier
	}
	if cmd.MaxBackoffSeconds != nil {
		sub.Policy.MaxBackoffSeconds = *cmd.MaxBackoffSeconds
	}
	if cmd.CustomHeaders != nil {
		if result := uc.validator.ValidateHeaders(*cmd.CustomHeaders); !result.Valid {
			return common.Failure[*registry.Subscription](
				common.ValidationError(common.ErrCodeUnsafeHeader, result.Reason, result.Details),
			)
		}
		sub.Policy.CustomHeaders = *cmd.CustomHeaders
	}

	if cmd.RateLimitPerHour != nil {
		sub.RateLimitPerHour = *cmd.RateLimitPerHour
	}
	if cmd.RateLimitPerDay != nil {
		sub.RateLimitPerDay = *cmd.RateLimitPerDay
	}
	if cmd.RateLimitPerHour != nil || cmd.RateLimitPerDay != nil {
		if result := uc.validator.ValidateRateLimits(sub.RateLimitPerHour, sub.RateLimitPerDay); !result.Valid {
			return common.Failure[*registry.Subscription](
				common.ValidationError("INVALID_RATE_LIMITS", result.Reason, result.Details),
			)
		}
	}

	sub.ApplyPolicyDefaults()

	if err := uc.repo.Update(ctx, sub); err != nil {
		return common.Failure[*registry.Subscription](
			common.InternalError(common.ErrCodeDBError, "Failed to update subscription",
				map[string]any{"error": err.Error()}),
		)
	}

	slog.Info("Subscription updated", "subscriptionId", sub.ID)
	return common.Success(sub)
}

// loadOwned fetches a subscription and enforces ownership
func loadOwned(
	ctx context.Context,
	repo registry.Repository,
	id string,
	principal *common.Principal,
) (*registry.Subscription, *common.UseCaseError) {
	if principal == nil {
		return nil, common.UnauthenticatedError("NO_PRINCIPAL", "Authentication is required", nil)
	}
	if id == "" {
		return nil, common.ValidationError("MISSING_ID", "Subscription id is required", nil)
	}

	sub, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, common.NotFoundError(common.ErrCodeEntityNotFound, "Subscription not found",
				map[string]any{"id": id})
		}
		return nil, common.InternalError(common.ErrCodeDBError, "Failed to load subscription",
			map[string]any{"error": err.Error()})
	}

	if !principal.Owns(sub.OwnerID) {
		return nil, common.UnauthorizedError("NOT_OWNER", "Subscription belongs to another owner",
			map[string]any{"id": id})
	}
	return sub, nil
}
