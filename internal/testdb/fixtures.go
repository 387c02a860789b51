package testdb

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/partnerledger-backend/pkg/db/models"
	"github.com/angelmondragon/partnerledger-backend/pkg/enums"
)

// SeedAffiliate inserts an account directly in the given status.
func SeedAffiliate(t testing.TB, conn *gorm.DB, kind enums.AffiliateKind, status enums.AffiliateStatus) models.Affiliate {
	t.Helper()
	account := models.Affiliate{
		Kind:         kind,
		OwnerID:      uuid.New(),
		DisplayName:  string(kind) + " account",
		ContactEmail: "ops@example.com",
		PayoutMethod: enums.PayoutMethodBankTransfer,
		Currency:     "USD",
		Status:       status,
	}
	if kind == enums.AffiliateKindReseller {
		ct := enums.CommissionTypePercent
		value := decimal.NewFromInt(20)
		account.CommissionType = &ct
		account.CommissionValue = &value
	}
	if err := conn.Create(&account).Error; err != nil {
		t.Fatalf("seed affiliate: %v", err)
	}
	return account
}

// SeedTenant inserts a tenant, optionally bound to a reseller.
func SeedTenant(t testing.TB, conn *gorm.DB, resellerID *uuid.UUID) models.Tenant {
	t.Helper()
	tenant := models.Tenant{Name: "tenant", ResellerID: resellerID}
	if err := conn.Create(&tenant).Error; err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
	return tenant
}

// SeedListing inserts an active listing owned by partnerID.
func SeedListing(t testing.TB, conn *gorm.DB, partnerID uuid.UUID) models.Listing {
	t.Helper()
	listing := models.Listing{PartnerID: partnerID, Name: "add-on", PriceCents: 5000, Currency: "USD", Active: true}
	if err := conn.Create(&listing).Error; err != nil {
		t.Fatalf("seed listing: %v", err)
	}
	return listing
}

// SeedAssignment binds a source to an affiliate from effectiveFrom onward.
func SeedAssignment(t testing.TB, conn *gorm.DB, affiliateID uuid.UUID, source enums.RevenueSourceType, sourceID uuid.UUID, kind enums.CommissionType, value decimal.Decimal, effectiveFrom time.Time) models.CommissionAssignment {
	t.Helper()
	assignment := models.CommissionAssignment{
		AffiliateID:     affiliateID,
		SourceType:      source,
		SourceID:        sourceID,
		CommissionType:  kind,
		CommissionValue: value,
		EffectiveFrom:   effectiveFrom.UTC(),
	}
	if err := conn.Create(&assignment).Error; err != nil {
		t.Fatalf("seed assignment: %v", err)
	}
	return assignment
}

// SeedPaidInvoice inserts a paid invoice mirror.
func SeedPaidInvoice(t testing.TB, conn *gorm.DB, tenantID uuid.UUID, listingID *uuid.UUID, amountCents int64, currency string, paidAt time.Time) models.Invoice {
	t.Helper()
	paid := paidAt.UTC()
	invoice := models.Invoice{
		ExternalID:  "in_" + uuid.NewString(),
		TenantID:    tenantID,
		ListingID:   listingID,
		AmountCents: amountCents,
		Currency:    currency,
		Status:      enums.InvoiceStatusPaid,
		PaidAt:      &paid,
	}
	if err := conn.Create(&invoice).Error; err != nil {
		t.Fatalf("seed invoice: %v", err)
	}
	return invoice
}

// SeedEntry appends a ledger row as-is.
func SeedEntry(t testing.TB, conn *gorm.DB, entry models.LedgerEntry) models.LedgerEntry {
	t.Helper()
	if entry.Currency == "" {
		entry.Currency = "USD"
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}
	if err := conn.Create(&entry).Error; err != nil {
		t.Fatalf("seed ledger entry: %v", err)
	}
	return entry
}

// CountRows returns the row count of table.
func CountRows(t testing.TB, conn *gorm.DB, table string) int64 {
	t.Helper()
	var count int64
	if err := conn.Table(table).Count(&count).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return count
}
