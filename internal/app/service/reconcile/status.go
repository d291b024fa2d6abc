package reconcile

import (
	"strings"

	"github.com/netvend/hotspot/internal/models"
)

// MapGatewayStatus maps the gateway's status vocabulary onto the purchase
// taxonomy. Anything unrecognized means "still pending" and triggers no
// transition.
func MapGatewayStatus(s string) models.PurchaseStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approved":
		return models.PurchaseStatusPaid
	case "rejected":
		return models.PurchaseStatusRejected
	case "cancelled":
		return models.PurchaseStatusCancelled
	case "refunded":
		return models.PurchaseStatusRefunded
	default:
		return models.PurchaseStatusPending
	}
}
