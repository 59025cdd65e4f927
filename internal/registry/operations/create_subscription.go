// Package operations contains the subscription registry use cases. Each use
// case validates its command, applies business rules, and returns a
// common.Result so handlers can map failures to HTTP statuses.
package operations

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"go.hookrelay.dev/internal/platform/common"
	"go.hookrelay.dev/internal/registry"
	"go.hookrelay.dev/internal/security"
)

// CreateSubscriptionCommand contains the data needed to register a webhook
type CreateSubscriptionCommand struct {
	Name             string                  `json:"name"`
	Description      string                  `json:"description,omitempty"`
	TargetURL        string                  `json:"targetUrl"`
	EventTypes       []string                `json:"eventTypes"`
	Filter           map[string]any          `json:"filter,omitempty"`
	Auth             registry.AuthConfig     `json:"auth"`
	Policy           registry.DeliveryPolicy `json:"policy"`
	RateLimitPerHour int                     `json:"rateLimitPerHour,omitempty"`
	RateLimitPerDay  int                     `json:"rateLimitPerDay,omitempty"`
}

// CreateSubscriptionUseCase handles registering a new webhook subscription
type CreateSubscriptionUseCase struct {
	repo      registry.Repository
	validator *security.Validator
}

// NewCreateSubscriptionUseCase creates a new CreateSubscriptionUseCase
func NewCreateSubscriptionUseCase(repo registry.Repository, validator *security.Validator) *CreateSubscriptionUseCase {
	return &CreateSubscriptionUseCase{
		repo:      repo,
		validator: validator,
	}
}

// Execute registers a new subscription owned by the calling principal
func (uc *CreateSubscriptionUseCase) Execute(
	ctx context.Context,
	cmd CreateSubscriptionCommand,
	principal *common.Principal,
) common.Result[*registry.Subscription] {
	if principal == nil {
		return common.Failure[*registry.Subscription](
			common.UnauthenticatedError("NO_PRINCIPAL", "Authentication is required", nil),
		)
	}

	if cmd.Name == "" {
		return common.Failure[*registry.Subscription](
			common.ValidationError("MISSING_NAME", "Subscription name is required", nil),
		)
	}

	if len(cmd.EventTypes) == 0 {
		return common.Failure[*registry.Subscription](
			common.ValidationError("MISSING_EVENT_TYPES", "At least one event type is required", nil),
		)
	}
	for _, et := range cmd.EventTypes {
		if et == "" {
			return common.Failure[*registry.Subscription](
				common.ValidationError("EMPTY_EVENT_TYPE", "Event types must be non-empty", nil),
			)
		}
	}

	if result := uc.validator.ValidateTargetURL(cmd.TargetURL); !result.Valid {
		return common.Failure[*registry.Subscription](
			common.ValidationError(common.ErrCodeUnsafeTarget, result.Reason, result.Details),
		)
	}

	if result := uc.validator.ValidateHeaders(cmd.Policy.CustomHeaders); !result.Valid {
		return common.Failure[*registry.Subscription](
			common.ValidationError(common.ErrCodeUnsafeHeader, result.Reason, result.Details),
		)
	}

	auth := cmd.Auth
	if auth.Mode == "" {
		auth.Mode = registry.AuthModeNone
	}

	// hmac_sha256 implies a server-generated secret when none was supplied
	if auth.Mode == registry.AuthModeHMACSHA256 && auth.Secret == "" {
		secret, err := security.GenerateSecret()
		if err != nil {
			return common.Failure[*registry.Subscription](
				common.InternalError("SECRET_GENERATION_FAILED", "Failed to generate signing secret",
					map[string]any{"error": err.Error()}),
			)
		}
		auth.Secret = secret
	}

	if missing := auth.MissingFields(); len(missing) > 0 {
		return common.Failure[*registry.Subscription](
			common.ValidationError(common.ErrCodeAuthIncomplete,
				"Auth config is incomplete for the selected mode",
				map[string]any{"mode": string(auth.Mode), "missing": missing}),
		)
	}

	sub := &registry.Subscription{
		ID:               uuid.NewString(),
		OwnerID:          principal.Subject,
		Name:             cmd.Name,
		Description:      cmd.Description,
		TargetURL:        cmd.TargetURL,
		Active:           true,
		EventTypes:       cmd.EventTypes,
		Filter:           cmd.Filter,
		Auth:             auth,
		Policy:           cmd.Policy,
		RateLimitPerHour: cmd.RateLimitPerHour,
		RateLimitPerDay:  cmd.RateLimitPerDay,
	}
	sub.ApplyPolicyDefaults()

	if result := uc.validator.ValidateRateLimits(sub.RateLimitPerHour, sub.RateLimitPerDay); !result.Valid {
		return common.Failure[*registry.Subscription](
			common.ValidationError("INVALID_RATE_LIMITS", result.Reason, result.Details),
		)
	}

	if err := uc.repo.Insert(ctx, sub); err != nil {
		return common.Failure[*registry.Subscription](
			common.InternalError(common.ErrCodeDBError, "Failed to store subscription",
				map[string]any{"error": err.Error()}),
		)
	}

	slog.Info("Subscription registered",
		"subscriptionId", sub.ID,
		"owner", sub.OwnerID,
		"eventTypes", sub.EventTypes)

	return common.Success(sub)
}
