package config

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

const (
	SandboxBaseURL    = "https://connect.squareupsandbox.com"
	ProductionBaseURL = "https://connect.squareup.com"
	DefaultAPIVersion = "2025-01-15"
)

// Environment keys for processor credentials.
const (
	EnvTestMode            = "SQUARE_TEST_MODE"
	EnvAccessToken         = "SQUARE_ACCESS_TOKEN"
	EnvSandboxAccessToken  = "SQUARE_SANDBOX_ACCESS_TOKEN"
	EnvLocationID          = "SQUARE_LOCATION_ID"
	EnvSandboxLocationID   = "SQUARE_SANDBOX_LOCATION_ID"
	EnvSignatureKey        = "SQUARE_WEBHOOK_SIGNATURE_KEY"
	EnvSandboxSignatureKey = "SQUARE_SANDBOX_WEBHOOK_SIGNATURE_KEY"
	EnvAPIBaseURL          = "SQUARE_API_BASE_URL"
	EnvAPIVersion          = "SQUARE_API_VERSION"
)

var processorKeys = []string{
	EnvTestMode, EnvAccessToken, EnvSandboxAccessToken, EnvLocationID, EnvSandboxLocationID,
	EnvSignatureKey, EnvSandboxSignatureKey, EnvAPIBaseURL, EnvAPIVersion,
}

// Credentials is an immutable snapshot of the credentials for the active mode.
type Credentials struct {
	TestMode            bool
	AccessToken         string
	LocationID          string
	WebhookSignatureKey string
	APIBaseURL          string
	APIVersion          string
}

// Processor holds live and sandbox credentials. Readers take a fresh snapshot
// per call so a mode switch or key rotation is picked up immediately.
type Processor struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewProcessor builds a Processor from an env-style key/value map.
func NewProcessor(values map[string]string) (*Processor, error) {
	p := &Processor{values: make(map[string]string)}
	if _, err := p.Apply(values); err != nil {
		return nil, err
	}
	return p, nil
}

// Apply merges processor keys present in values and reports which keys changed.
// Keys absent from values keep their current value.
func (p *Processor) Apply(values map[string]string) ([]string, error) {
	if v, ok := values[EnvTestMode]; ok && strings.TrimSpace(v) != "" {
		if _, err := strconv.ParseBool(strings.Trim(strings.TrimSpace(v), `'"`)); err != nil {
			return nil, fmt.Errorf("%s must be a boolean: %w", EnvTestMode, err)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var changed []string
	for _, key := range processorKeys {
		raw, ok := values[key]
		if !ok {
			continue
		}
		v := strings.Trim(strings.TrimSpace(raw), `'"`)
		if p.values[key] != v {
			p.values[key] = v
			changed = append(changed, key)
		}
	}
	return changed, nil
}

// SetTestMode switches between sandbox and production credentials.
func (p *Processor) SetTestMode(test bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[EnvTestMode] = strconv.FormatBool(test)
}

// Active returns the credentials for the currently selected mode.
func (p *Processor) Active() Credentials {
	p.mu.RLock()
	defer p.mu.RUnlock()

	test, _ := strconv.ParseBool(p.values[EnvTestMode])
	c := Credentials{
		TestMode:   test,
		APIVersion: p.values[EnvAPIVersion],
		APIBaseURL: strings.TrimRight(p.values[EnvAPIBaseURL], "/"),
	}
	if c.APIVersion == "" {
		c.APIVersion = DefaultAPIVersion
	}

	if test {
		c.AccessToken = p.values[EnvSandboxAccessToken]
		c.LocationID = p.values[EnvSandboxLocationID]
		if c.LocationID == "" {
			c.LocationID = p.values[EnvLocationID]
		}
		c.WebhookSignatureKey = p.values[EnvSandboxSignatureKey]
		if c.APIBaseURL == "" {
			c.APIBaseURL = SandboxBaseURL
		}
	} else {
		c.AccessToken = p.values[EnvAccessToken]
		c.LocationID = p.values[EnvLocationID]
		c.WebhookSignatureKey = p.values[EnvSignatureKey]
		if c.APIBaseURL == "" {
			c.APIBaseURL = ProductionBaseURL
		}
	}
	return c
}

// Mode returns "sandbox" or "production" for logging.
func (c Credentials) Mode() string {
	if c.TestMode {
		return "sandbox"
	}
	return "production"
}
