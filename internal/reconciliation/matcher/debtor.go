package matcher

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recouply/internal/reconciliation/index"
)

const (
	DebtorByReference  = "reference_id"
	DebtorByExternalID = "external_customer_id"
	DebtorByCompany    = "company_name"
)

// DebtorInput carries the customer identifiers of an aging row.
type DebtorInput struct {
	AccountReference string
	ExternalID       string
	CompanyName      string
	CustomerName     string
}

type debtorStrategy struct {
	name    string
	resolve func(snap *index.Snapshot, in DebtorInput) (snowflake.ID, bool)
}

// debtorStrategies is looser than the payment policy; a miss creates a new
// debtor, which is reversible.
var debtorStrategies = []debtorStrategy{
	{name: DebtorByReference, resolve: func(snap *index.Snapshot, in DebtorInput) (snowflake.ID, bool) {
		return lookup(in.AccountReference, snap.DebtorByReference)
	}},
	{name: DebtorByExternalID, resolve: func(snap *index.Snapshot, in DebtorInput) (snowflake.ID, bool) {
		return lookup(in.ExternalID, snap.DebtorByExternalID)
	}},
	{name: DebtorByCompany, resolve: func(snap *index.Snapshot, in DebtorInput) (snowflake.ID, bool) {
		// customer_name stands in only for rows without a company column.
		if strings.TrimSpace(in.CompanyName) != "" {
			return lookup(in.CompanyName, snap.DebtorByCompany)
		}
		return lookup(in.CustomerName, snap.DebtorByCompany)
	}},
}

// MatchDebtor returns the first debtor hit and the method that found it.
func MatchDebtor(snap *index.Snapshot, in DebtorInput) (snowflake.ID, string, bool) {
	for _, strategy := range debtorStrategies {
		if id, ok := strategy.resolve(snap, in); ok {
			return id, strategy.name, true
		}
	}
	return 0, "", false
}

func lookup(key string, fn func(string) (snowflake.ID, bool)) (snowflake.ID, bool) {
	if strings.TrimSpace(key) == "" {
		return 0, false
	}
	return fn(key)
}
