package models

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/partnerledger-backend/pkg/enums"
)

func TestInvoiceRevenueSource(t *testing.T) {
	tenantID := uuid.New()
	listingID := uuid.New()

	inv := Invoice{TenantID: tenantID}
	kind, id := inv.RevenueSource()
	if kind != enums.RevenueSourceTenant || id != tenantID {
		t.Fatalf("expected tenant source, got %s %s", kind, id)
	}

	inv.ListingID = &listingID
	kind, id = inv.RevenueSource()
	if kind != enums.RevenueSourceListing || id != listingID {
		t.Fatalf("expected listing source, got %s %s", kind, id)
	}
}

func TestCommissionAssignmentActiveAt(t *testing.T) {
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	a := CommissionAssignment{EffectiveFrom: from}

	if a.ActiveAt(from.Add(-time.Second)) {
		t.Fatal("not active before effective_from")
	}
	if !a.ActiveAt(from) {
		t.Fatal("active at effective_from")
	}
	a.EffectiveTo = &to
	if a.ActiveAt(to) {
		t.Fatal("window end is exclusive")
	}
	if !a.ActiveAt(to.Add(-time.Second)) {
		t.Fatal("active just before effective_to")
	}
}

func TestEnsureIDKeepsExplicitValue(t *testing.T) {
	id := uuid.New()
	entry := LedgerEntry{ID: id}
	if err := entry.BeforeCreate(nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.ID != id {
		t.Fatal("explicit id overwritten")
	}

	var fresh LedgerEntry
	_ = fresh.BeforeCreate(nil)
	if fresh.ID == uuid.Nil {
		t.Fatal("expected generated id")
	}
}
