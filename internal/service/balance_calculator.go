package service

import (
	"sort"

	"github.com/noah-isme/entitlement-api/internal/models"
)

// ComputeBalance derives a balance from its inputs. Pure and
// deterministic: no clock, no storage.
//
// Total is the sum of grant quantities. Consumed is the negated sum of
// signed ledger changes, so refunds and credit adjustments reduce it.
// Held counts active holds only. Available never goes below what the
// inputs imply; enforcement of available >= 0 happens before writes,
// not here.
func ComputeBalance(studentID, serviceType string, grants []models.EntitlementGrant, ledgerNet int, activeHolds []models.ServiceHold) models.Balance {
	total := 0
	for _, grant := range grants {
		total += grant.Quantity
	}

	held := 0
	for _, hold := range activeHolds {
		if hold.Status == models.HoldStatusActive {
			held += hold.Quantity
		}
	}

	consumed := -ledgerNet

	return models.Balance{
		StudentID:         studentID,
		ServiceType:       serviceType,
		TotalQuantity:     total,
		ConsumedQuantity:  consumed,
		HeldQuantity:      held,
		AvailableQuantity: total - consumed - held,
	}
}

// AttributeConsumption picks the grant a new consumption is attributed
// to: walk grants in priority order, skipping quantity already consumed.
// Returns nil when every grant is exhausted. Informational only; the
// ledger itself is source-agnostic.
func AttributeConsumption(grants []models.EntitlementGrant, alreadyConsumed int) *models.EntitlementGrant {
	for _, grant := range SortGrantsByPriority(grants) {
		if alreadyConsumed < grant.Quantity {
			g := grant
			return &g
		}
		alreadyConsumed -= grant.Quantity
	}
	return nil
}

// SortGrantsByPriority orders grants for consumption attribution:
// product before addon before promotion before compensation, oldest
// first within a source. Attribution is informational; the aggregate
// balance is source-agnostic.
func SortGrantsByPriority(grants []models.EntitlementGrant) []models.EntitlementGrant {
	sorted := make([]models.EntitlementGrant, len(grants))
	copy(sorted, grants)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Source.Rank() != sorted[j].Source.Rank() {
			return sorted[i].Source.Rank() > sorted[j].Source.Rank()
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})
	return sorted
}
