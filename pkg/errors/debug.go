package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ledgerGuards pairs each unique index with the ledger rule it enforces.
var ledgerGuards = []struct{ index, guard string }{
	{"ux_ledger_entries_earned_invoice", "idempotent_accrual"},
	{"ux_ledger_entries_payout", "one_payout_entry_per_payout"},
	{"ux_payouts_outstanding_affiliate", "single_outstanding_payout"},
	{"ux_payout_entries_unreleased_entry", "no_double_claim"},
	{"ux_commission_assignments_active_source", "single_active_assignment"},
	{"ux_affiliates_kind_owner", "one_account_per_owner"},
}

// PGDetail is the server-side detail of a Postgres error, from either driver.
type PGDetail struct {
	Code       string `json:"code"`
	Constraint string `json:"constraint,omitempty"`
	Table      string `json:"table,omitempty"`
	Column     string `json:"column,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Message    string `json:"message,omitempty"`
}

// ErrorDump is what gets logged for a failed request.
type ErrorDump struct {
	Message     string    `json:"message"`
	Code        Code      `json:"code,omitempty"`
	Chain       []string  `json:"chain,omitempty"`
	Postgres    *PGDetail `json:"postgres,omitempty"`
	LedgerGuard string    `json:"ledger_guard,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{Message: err.Error(), Postgres: postgresDetail(err)}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	constraint := ""
	if d.Postgres != nil {
		constraint = d.Postgres.Constraint
	}
	d.LedgerGuard = ledgerGuard(constraint, d.Message)
	return d
}

// Fields flattens the dump into structured log fields.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{
		"error_code":  d.Code,
		"error_chain": d.Chain,
	}
	if pg := d.Postgres; pg != nil {
		fields["pg_code"] = pg.Code
		fields["pg_table"] = pg.Table
		fields["pg_constraint"] = pg.Constraint
		fields["pg_detail"] = pg.Detail
	}
	if d.LedgerGuard != "" {
		fields["ledger_guard"] = d.LedgerGuard
	}
	return fields
}

func postgresDetail(err error) *PGDetail {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return &PGDetail{
			Code:       pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &PGDetail{
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}
	}
	return nil
}

// ledgerGuard matches the constraint name first, then falls back to an
// index name quoted in the message (gorm sometimes drops the typed error).
func ledgerGuard(constraint, message string) string {
	for _, g := range ledgerGuards {
		if g.index == constraint {
			return g.guard
		}
	}
	for _, g := range ledgerGuards {
		if strings.Contains(message, g.index) {
			return g.guard
		}
	}
	return ""
}
