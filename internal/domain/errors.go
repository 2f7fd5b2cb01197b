package domain

import "errors"

var (
	// ErrNotFound is returned by repositories when no row matches the natural key
	ErrNotFound = errors.New("not found")

	// ErrPriceUnavailable is returned when neither the quote source nor the cache can serve a price
	ErrPriceUnavailable = errors.New("no price data available")

	// ErrUnknownBroker is returned for broker names that are not supported
	ErrUnknownBroker = errors.New("unknown broker")

	// ErrActiveAccountExists is returned when a second active account is saved for the same user and broker
	ErrActiveAccountExists = errors.New("an active account already exists for this broker")

	// ErrSyncInProgress is reported when the per-account lock is held by another sync
	ErrSyncInProgress = errors.New("sync already in progress")
)
