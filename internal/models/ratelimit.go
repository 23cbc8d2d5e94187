package models

import "time"

// RateLimitInfo reports the quota of a rate-limit key
type RateLimitInfo struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}
