package models

import (
	"fmt"
	"time"
)

// Plan is a catalog row. Purchases denormalize the fields they need at
// purchase time (see PlanSnapshot), so editing a plan never rewrites history.
type Plan struct {
	ID            uint   `gorm:"column:id;primaryKey" json:"id"`
	Name          string `gorm:"column:name;type:varchar(128);not null;uniqueIndex:unique_plan_name" json:"name"`
	PriceCents    int64  `gorm:"column:price_cents;type:bigint;not null" json:"price_cents"`
	ProfileName   string `gorm:"column:profile_name;type:varchar(128);not null" json:"profile_name"`
	DurationHours int64  `gorm:"column:duration_hours;type:bigint;not null" json:"duration_hours"`
	RateLimitUp   string `gorm:"column:rate_limit_up;type:varchar(32)" json:"rate_limit_up"`
	RateLimitDown string `gorm:"column:rate_limit_down;type:varchar(32)" json:"rate_limit_down"`
	IsActive      bool   `gorm:"column:is_active;not null;default:true" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Plan) TableName() string {
	return "plan"
}

func (p *Plan) Duration() time.Duration {
	return time.Duration(p.DurationHours) * time.Hour
}

// RateLimit renders the controller "upload/download" rate-limit string.
func (p *Plan) RateLimit() string {
	if p.RateLimitUp == "" || p.RateLimitDown == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s", p.RateLimitUp, p.RateLimitDown)
}

// SessionTimeout renders the controller session-timeout string, e.g. "24h".
func (p *Plan) SessionTimeout() string {
	return fmt.Sprintf("%dh", p.DurationHours)
}

func (p *Plan) Snapshot() *PlanSnapshot {
	return &PlanSnapshot{Name: p.Name, Profile: p.ProfileName, DurationHours: p.DurationHours}
}
