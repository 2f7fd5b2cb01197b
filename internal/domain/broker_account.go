package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Broker identifies a supported stock broker
type Broker string

// Supported brokers
const (
	BrokerZerodha  Broker = "ZERODHA"
	BrokerUpstox   Broker = "UPSTOX"
	BrokerAngelOne Broker = "ANGELONE"
	BrokerDhan     Broker = "DHAN"
	BrokerGroww    Broker = "GROWW"
	BrokerFyers    Broker = "FYERS"
)

// AllBrokers lists every broker tag the engine knows about
var AllBrokers = []Broker{
	BrokerZerodha,
	BrokerUpstox,
	BrokerAngelOne,
	BrokerDhan,
	BrokerGroww,
	BrokerFyers,
}

// ParseBroker converts a case-insensitive broker name to a Broker tag
func ParseBroker(name string) (Broker, error) {
	candidate := Broker(strings.ToUpper(strings.TrimSpace(name)))
	for _, b := range AllBrokers {
		if b == candidate {
			return b, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBroker, name)
}

// BrokerAccount is a user's connection to one broker
type BrokerAccount struct {
	ID                 uuid.UUID  `json:"id"`
	UserID             uuid.UUID  `json:"user_id"`
	Broker             Broker     `json:"broker"`
	HasCredentials     bool       `json:"has_credentials"`
	TokenCreatedAt     *time.Time `json:"token_created_at,omitempty"`
	TokenExpiresAt     *time.Time `json:"token_expires_at,omitempty"` // nil means the token does not expire
	IsActive           bool       `json:"is_active"`
	LastSuccessfulSync *time.Time `json:"last_successful_sync,omitempty"`
	LastUsedAt         *time.Time `json:"last_used_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// HasValidToken reports whether the access token is usable at the given instant
func (a *BrokerAccount) HasValidToken(now time.Time) bool {
	if !a.HasCredentials {
		return false
	}
	if a.TokenExpiresAt == nil {
		return true
	}
	return now.Before(*a.TokenExpiresAt)
}

// CheckSyncable returns a precise reason when the account cannot be synced, or "" when it can
func (a *BrokerAccount) CheckSyncable(now time.Time) string {
	switch {
	case !a.IsActive:
		return "account is not active"
	case !a.HasCredentials:
		return "broker credentials are missing"
	case a.TokenExpiresAt != nil && !now.Before(*a.TokenExpiresAt):
		return fmt.Sprintf("access token expired at %s", a.TokenExpiresAt.Format(time.RFC3339))
	}
	return ""
}

// IsStale reports whether the last successful sync is absent or older than threshold
func (a *BrokerAccount) IsStale(now time.Time, threshold time.Duration) bool {
	if a.LastSuccessfulSync == nil {
		return true
	}
	return now.Sub(*a.LastSuccessfulSync) > threshold
}

// ConnectionStatus values reported by GetBrokerStatus
const (
	ConnectionConnected          = "CONNECTED"
	ConnectionTokenExpired       = "TOKEN_EXPIRED"
	ConnectionCredentialsMissing = "CREDENTIALS_MISSING"
	ConnectionDisconnected       = "DISCONNECTED"
	ConnectionNotConnected       = "NOT_CONNECTED"
)

// ConnectionStatus classifies the account for display
func (a *BrokerAccount) ConnectionStatus(now time.Time) string {
	switch {
	case !a.IsActive:
		return ConnectionDisconnected
	case !a.HasCredentials:
		return ConnectionCredentialsMissing
	case !a.HasValidToken(now):
		return ConnectionTokenExpired
	}
	return ConnectionConnected
}
