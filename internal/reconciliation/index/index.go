// Package index builds immutable identifier lookup snapshots for one batch.
package index

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	debtordomain "github.com/smallbiznis/recouply/internal/debtor/domain"
	invoicedomain "github.com/smallbiznis/recouply/internal/invoice/domain"
)

// InvoiceEntry is the index view of an invoice.
type InvoiceEntry struct {
	InvoiceID   snowflake.ID
	DebtorID    snowflake.ID
	Outstanding int64
	Status      invoicedomain.InvoiceStatus
}

// Snapshot is read-only once built. WithDebtor returns a new snapshot and
// leaves the receiver untouched, so workers may share a snapshot freely.
type Snapshot struct {
	byReference  map[string]snowflake.ID
	byExternalID map[string]snowflake.ID
	byCompany    map[string]snowflake.ID
	invoices     map[string]InvoiceEntry
}

// Build indexes an account's debtors and invoices. When two debtors share an
// external id or company name the earliest one wins.
func Build(debtors []debtordomain.Debtor, invoices []invoicedomain.Invoice) *Snapshot {
	s := &Snapshot{
		byReference:  make(map[string]snowflake.ID, len(debtors)),
		byExternalID: make(map[string]snowflake.ID, len(debtors)),
		byCompany:    make(map[string]snowflake.ID, len(debtors)),
		invoices:     make(map[string]InvoiceEntry, len(invoices)),
	}
	for _, debtor := range debtors {
		s.addDebtor(debtor)
	}
	for _, inv := range invoices {
		key := invoicedomain.NormalizeInvoiceNumber(inv.InvoiceNumber)
		if key == "" {
			continue
		}
		s.invoices[key] = InvoiceEntry{
			InvoiceID:   inv.ID,
			DebtorID:    inv.DebtorID,
			Outstanding: inv.AmountOutstanding,
			Status:      inv.Status,
		}
	}
	return s
}

// WithDebtor returns a copy of the snapshot that also resolves debtor.
func (s *Snapshot) WithDebtor(debtor debtordomain.Debtor) *Snapshot {
	next := &Snapshot{
		byReference:  cloneIDs(s.byReference),
		byExternalID: cloneIDs(s.byExternalID),
		byCompany:    cloneIDs(s.byCompany),
		invoices:     s.invoices,
	}
	next.addDebtor(debtor)
	return next
}

func (s *Snapshot) addDebtor(debtor debtordomain.Debtor) {
	if key := NormalizeKey(debtor.ReferenceID); key != "" {
		s.byReference[key] = debtor.ID
	}
	if debtor.ExternalCustomerID != nil {
		if key := NormalizeKey(*debtor.ExternalCustomerID); key != "" {
			putFirst(s.byExternalID, key, debtor.ID)
		}
	}
	company := debtor.CompanyName
	if strings.TrimSpace(company) == "" {
		company = debtor.Name
	}
	if key := NormalizeCompany(company); key != "" {
		putFirst(s.byCompany, key, debtor.ID)
	}
}

func (s *Snapshot) DebtorByReference(ref string) (snowflake.ID, bool) {
	id, ok := s.byReference[NormalizeKey(ref)]
	return id, ok
}

func (s *Snapshot) DebtorByExternalID(externalID string) (snowflake.ID, bool) {
	id, ok := s.byExternalID[NormalizeKey(externalID)]
	return id, ok
}

func (s *Snapshot) DebtorByCompany(name string) (snowflake.ID, bool) {
	key := NormalizeCompany(name)
	if key == "" {
		return 0, false
	}
	id, ok := s.byCompany[key]
	return id, ok
}

func (s *Snapshot) Invoice(number string) (InvoiceEntry, bool) {
	entry, ok := s.invoices[invoicedomain.NormalizeInvoiceNumber(number)]
	return entry, ok
}

// NormalizeKey lower-cases and trims an identifier.
func NormalizeKey(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// NormalizeCompany collapses punctuation and spacing variants of a company
// name, so "ACME, Inc." and "acme inc" share a key.
func NormalizeCompany(name string) string {
	return slug.Make(strings.TrimSpace(name))
}

func putFirst(m map[string]snowflake.ID, key string, id snowflake.ID) {
	if _, exists := m[key]; !exists {
		m[key] = id
	}
}

func cloneIDs(src map[string]snowflake.ID) map[string]snowflake.ID {
	dst := make(map[string]snowflake.ID, len(src)+1)
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
