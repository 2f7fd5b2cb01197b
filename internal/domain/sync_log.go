package domain

import (
	"time"

	"github.com/google/uuid"
)

// SyncStatus is the outcome of one sync attempt
type SyncStatus string

// SyncStatus constants
const (
	SyncSuccess        SyncStatus = "SUCCESS"
	SyncPartialFailure SyncStatus = "PARTIAL_FAILURE"
	SyncFailure        SyncStatus = "FAILURE"
)

// SyncLog is the append-only audit record of a sync attempt
type SyncLog struct {
	ID               uuid.UUID     `json:"id"`
	Timestamp        time.Time     `json:"timestamp"`
	UserID           uuid.UUID     `json:"user_id"`
	AccountID        uuid.UUID     `json:"account_id"`
	Broker           Broker        `json:"broker"`
	Status           SyncStatus    `json:"status"`
	Message          string        `json:"message"`
	Duration         time.Duration `json:"duration"`
	HoldingsChanged  int           `json:"holdings_changed"`
	PositionsChanged int           `json:"positions_changed"`
}
