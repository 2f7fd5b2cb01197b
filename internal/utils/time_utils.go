package utils

import (
	"time"
)

// MarketTimezone is the trading region of the supported exchanges
const MarketTimezone = "Asia/Kolkata"

var marketLoc = marketLocation(time.LoadLocation)

// marketLocation resolves the market zone; without tzdata IST is a fixed
// +05:30 zone, which is exact because IST has no DST
func marketLocation(load func(string) (*time.Location, error)) *time.Location {
	loc, err := load(MarketTimezone)
	if err != nil {
		return time.FixedZone("IST", 5*60*60+30*60)
	}
	return loc
}

// GetLocation returns the market *time.Location
func GetLocation() *time.Location {
	return marketLoc
}

// LoadLocation resolves name, falling back to the market location when name is
// empty or names the market zone
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || name == MarketTimezone {
		return marketLoc, nil
	}
	return time.LoadLocation(name)
}
