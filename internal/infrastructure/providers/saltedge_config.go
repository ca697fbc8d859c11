package providers

import "errors"

// SaltEdgeConfig holds configuration for the Salt Edge AIS API integration
type SaltEdgeConfig struct {
	// AppID is the application identifier from the Salt Edge dashboard
	AppID string
	// Secret is the application secret paired with AppID
	Secret string
	// BaseURL is the base URL for the Salt Edge API
	BaseURL string
	// PageSize is how many transactions to request per page
	PageSize int
	// MaxRetries is how many times a failed page fetch is retried
	MaxRetries int
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
}

// SaltEdgeProductionURL is the production API endpoint
const SaltEdgeProductionURL = "https://www.saltedge.com/api/v6"

// Errors for Salt Edge configuration
var (
	ErrSaltEdgeConfigMissingAppID  = errors.New("saltedge: app ID is required")
	ErrSaltEdgeConfigMissingSecret = errors.New("saltedge: secret is required")
)

// NewSaltEdgeConfig creates a new Salt Edge configuration with defaults
func NewSaltEdgeConfig(appID, secret string) *SaltEdgeConfig {
	return &SaltEdgeConfig{
		AppID:          appID,
		Secret:         secret,
		BaseURL:        SaltEdgeProductionURL,
		PageSize:       100,
		MaxRetries:     3,
		TimeoutSeconds: 30,
	}
}

// Validate validates the Salt Edge configuration
func (c *SaltEdgeConfig) Validate() error {
	if c.AppID == "" {
		return ErrSaltEdgeConfigMissingAppID
	}
	if c.Secret == "" {
		return ErrSaltEdgeConfigMissingSecret
	}
	if c.BaseURL == "" {
		c.BaseURL = SaltEdgeProductionURL
	}
	if c.PageSize <= 0 {
		c.PageSize = 100
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 3
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	return nil
}
