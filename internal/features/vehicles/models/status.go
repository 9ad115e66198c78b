package models

import "time"

// Status is the monitor state snapshot exposed to the UI.
type Status struct {
	Running      bool       `json:"running"`
	ChecksCount  int        `json:"checks_count"`
	FoundTotal   int        `json:"found_total"`
	LastCheckAt  *time.Time `json:"last_check_at"`
	NextCheckAt  *time.Time `json:"next_check_at"`
	Blocked      bool       `json:"captcha_active"`
	BackoffUntil *time.Time `json:"captcha_backoff_until"`
}
