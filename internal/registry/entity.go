// Package registry manages webhook subscriptions: the registered destination
// URLs with their event filters, authentication config, and delivery policy.
package registry

import (
	"reflect"
	"time"
)

// AuthMode defines how outbound requests for a subscription authenticate
type AuthMode string

const (
	AuthModeNone        AuthMode = "none"
	AuthModeAPIKey      AuthMode = "api_key"
	AuthModeBearerToken AuthMode = "bearer_token"
	AuthModeHMACSHA256  AuthMode = "hmac_sha256"
	AuthModeOAuth2      AuthMode = "oauth2"
)

// AuthConfig is a tagged union keyed by Mode. Only the fields required by the
// active mode are populated; Validate enforces completeness per mode.
type AuthConfig struct {
	Mode AuthMode `bson:"mode" json:"mode"`

	// api_key
	APIKey string `bson:"apiKey,omitempty" json:"apiKey,omitempty"`

	// bearer_token
	BearerToken string `bson:"bearerToken,omitempty" json:"bearerToken,omitempty"`

	// hmac_sha256 - generated server-side, hex encoded
	Secret string `bson:"secret,omitempty" json:"secret,omitempty"`

	// oauth2
	ClientID     string `bson:"clientId,omitempty" json:"clientId,omitempty"`
	ClientSecret string `bson:"clientSecret,omitempty" json:"clientSecret,omitempty"`
	AccessToken  string `bson:"accessToken,omitempty" json:"accessToken,omitempty"`
}

// MissingFields returns the credential fields the active mode requires but
// which are empty. An unknown mode reports itself as invalid.
func (a AuthConfig) MissingFields() []string {
	switch a.Mode {
	case AuthModeNone, "":
		return nil
	case AuthModeAPIKey:
		if a.APIKey == "" {
			return []string{"apiKey"}
		}
	case AuthModeBearerToken:
		if a.BearerToken == "" {
			return []string{"bearerToken"}
		}
	case AuthModeHMACSHA256:
		if a.Secret == "" {
			return []string{"secret"}
		}
	case AuthModeOAuth2:
		var missing []string
		if a.ClientID == "" {
			missing = append(missing, "clientId")
		}
		if a.ClientSecret == "" {
			missing = append(missing, "clientSecret")
		}
		if a.AccessToken == "" {
			missing = append(missing, "accessToken")
		}
		return missing
	default:
		return []string{"mode"}
	}
	return nil
}

// DeliveryPolicy holds per-subscription retry and transport settings
type DeliveryPolicy struct {
	TimeoutSeconds     int               `bson:"timeoutSeconds" json:"timeoutSeconds"`
	MaxAttempts        int               `bson:"maxAttempts" json:"maxAttempts"`
	BackoffBaseSeconds int               `bson:"backoffBaseSeconds" json:"backoffBaseSeconds"`
	BackoffMultiplier  float64           `bson:"backoffMultiplier" json:"backoffMultiplier"`
	MaxBackoffSeconds  int               `bson:"maxBackoffSeconds" json:"maxBackoffSeconds"`
	CustomHeaders      map[string]string `bson:"customHeaders,omitempty" json:"customHeaders,omitempty"`
}

// Default values for DeliveryPolicy and rate limits
const (
	DefaultTimeoutSeconds     = 30
	DefaultMaxAttempts        = 5
	DefaultBackoffBaseSeconds = 60
	DefaultBackoffMultiplier  = 2.0
	DefaultMaxBackoffSeconds  = 3600
	DefaultRateLimitPerHour   = 100
	DefaultRateLimitPerDay    = 1000
)

// Subscription represents a registered webhook destination.
// Collection: webhooks
type Subscription struct {
	ID          string `bson:"_id" json:"id"`
	OwnerID     string `bson:"ownerId" json:"ownerId"`
	Name        string `bson:"name" json:"name"`
	Description string `bson:"description,omitempty" json:"description,omitempty"`

	TargetURL string `bson:"targetUrl" json:"targetUrl"`
	Active    bool   `bson:"active" json:"active"`

	// EventTypes the subscription wants; Filter optionally narrows further by
	// equality over event payload fields
	EventTypes []string       `bson:"eventTypes" json:"eventTypes"`
	Filter     map[string]any `bson:"filter,omitempty" json:"filter,omitempty"`

	Auth   AuthConfig     `bson:"auth" json:"auth"`
	Policy DeliveryPolicy `bson:"policy" json:"policy"`

	RateLimitPerHour int `bson:"rateLimitPerHour" json:"rateLimitPerHour"`
	RateLimitPerDay  int `bson:"rateLimitPerDay" json:"rateLimitPerDay"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// ApplyPolicyDefaults fills zero-valued policy and rate limit fields
func (s *Subscription) ApplyPolicyDefaults() {
	if s.Policy.TimeoutSeconds == 0 {
		s.Policy.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if s.Policy.MaxAttempts == 0 {
		s.Policy.MaxAttempts = DefaultMaxAttempts
	}
	if s.Policy.BackoffBaseSeconds == 0 {
		s.Policy.BackoffBaseSeconds = DefaultBackoffBaseSeconds
	}
	if s.Policy.BackoffMultiplier == 0 {
		s.Policy.BackoffMultiplier = DefaultBackoffMultiplier
	}
	if s.Policy.MaxBackoffSeconds == 0 {
		s.Policy.MaxBackoffSeconds = DefaultMaxBackoffSeconds
	}
	if s.RateLimitPerHour == 0 {
		s.RateLimitPerHour = DefaultRateLimitPerHour
	}
	if s.RateLimitPerDay == 0 {
		s.RateLimitPerDay = DefaultRateLimitPerDay
	}
}

// MatchesEventType checks if the subscription wants an event type
func (s *Subscription) MatchesEventType(eventType string) bool {
	for _, et := range s.EventTypes {
		if et == eventType {
			return true
		}
	}
	return false
}

// MatchesFilter checks the structured predicate against event payload
// fields. An empty filter matches everything; every filter field must be
// present and equal in the payload. Filter values may themselves be maps
// or slices from decoded JSON, so equality is structural.
func (s *Subscription) MatchesFilter(payload map[string]any) bool {
	if len(s.Filter) == 0 {
		return true
	}
	for key, want := range s.Filter {
		got, present := payload[key]
		if !present || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}
