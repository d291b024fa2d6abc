package models

import (
	"time"

	"gorm.io/datatypes"
)

type PurchaseStatus string

const (
	PurchaseStatusPending   PurchaseStatus = "PENDING"
	PurchaseStatusPaid      PurchaseStatus = "PAID"
	PurchaseStatusRejected  PurchaseStatus = "REJECTED"
	PurchaseStatusCancelled PurchaseStatus = "CANCELLED"
	PurchaseStatusRefunded  PurchaseStatus = "REFUNDED"
)

// Terminal reports whether no further transition may leave this status.
func (s PurchaseStatus) Terminal() bool {
	switch s {
	case PurchaseStatusPaid, PurchaseStatusRejected, PurchaseStatusCancelled, PurchaseStatusRefunded:
		return true
	}
	return false
}

// PlanSnapshot pins the catalog entry as it was at purchase time. Catalog
// rows may be edited or deleted later; the snapshot keeps old purchases
// evaluable.
type PlanSnapshot struct {
	Name          string `json:"name"`
	Profile       string `json:"profile"`
	DurationHours int64  `json:"duration_hours"`
}

func (s *PlanSnapshot) Duration() time.Duration {
	if s == nil {
		return 0
	}
	return time.Duration(s.DurationHours) * time.Hour
}

type PurchaseExtra struct {
	PlanSnapshot *PlanSnapshot `json:"plan_snapshot"`
}

// Purchase is the ledger record of one payment attempt. It is created in
// PENDING, leaves PENDING at most once, and is never deleted.
type Purchase struct {
	ID        string `gorm:"column:id;primary_key;type:uuid;index:idx_device_mac_id,priority:2,sort:desc" json:"id"`
	DeviceMAC string `gorm:"column:device_mac;type:varchar(64);not null;index:idx_device_mac_id,priority:1" json:"device_mac"`
	PlanName  string `gorm:"column:plan_name;type:varchar(128);not null" json:"plan_name"`
	// PriceCents is the price snapshot in integer cents (BRL).
	PriceCents int64 `gorm:"column:price_cents;type:bigint;not null" json:"price_cents"`
	// GatewayID is the gateway-assigned payment id; nil until the payment
	// intent exists, immutable and unique afterwards.
	GatewayID *string `gorm:"column:gateway_id;type:varchar(64);uniqueIndex:unique_gateway_id" json:"gateway_id"`
	// LoginURL is the controller login endpoint the device must be
	// redirected through after provisioning.
	LoginURL string         `gorm:"column:login_url;type:varchar(512);not null" json:"login_url"`
	Status   PurchaseStatus `gorm:"column:status;type:varchar(16);not null;index:idx_status_created_at,priority:1" json:"status"`
	// PaidAt is set exactly once, on the PENDING->PAID transition.
	PaidAt *time.Time `gorm:"column:paid_at;default:null" json:"paid_at"`

	Extra     datatypes.JSONType[*PurchaseExtra] `gorm:"column:extra;type:jsonb;default:'{}'" json:"extra"`
	CreatedAt time.Time                          `gorm:"index:idx_status_created_at,priority:2" json:"created_at"`
	UpdatedAt time.Time                          `json:"updated_at"`
}

func (Purchase) TableName() string {
	return "purchase"
}

func (p *Purchase) GetPlanSnapshot() *PlanSnapshot {
	if p == nil || p.Extra.Data() == nil {
		return nil
	}
	return p.Extra.Data().PlanSnapshot
}
