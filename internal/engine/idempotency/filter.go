// Package idempotency keeps a transaction id from granting its rewards twice.
//
// Filter runs before any stage of an update pass and strips the fields a
// previously seen transaction already granted. Commit records the resolved
// field set once the pass has finished, so a pass that fails midway never
// marks its transaction as applied.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"narrative-companion/internal/model"
)

// Filter reasons.
const (
	ReasonNoTransaction  = "no transaction id"
	ReasonFirstSight     = "first sight"
	ReasonAlreadyApplied = "already applied"
	ReasonAppliedLocally = "applied locally"
)

var (
	// ErrLedgerUnavailable is returned when the ledger cannot be consulted.
	ErrLedgerUnavailable = errors.New("transaction ledger unavailable")
)

// Ledger stores TransactionRecords. Record must union the applied fields
// with any record already stored under the same id.
type Ledger interface {
	Lookup(ctx context.Context, transactionID string) (model.TransactionRecord, bool, error)
	Record(ctx context.Context, rec model.TransactionRecord) error
	Prune(ctx context.Context, before time.Time) (int, error)
}

// Decision is the outcome of filtering one update.
type Decision struct {
	Update   model.Update
	Filtered bool
	Reason   string
	// Stripped lists the fields removed from the update.
	Stripped []string
	// Prior is the record found in the ledger, if any.
	Prior *model.TransactionRecord
}

// Filter consults a Ledger before a pass and records after it.
type Filter struct {
	ledger Ledger
	now    func() time.Time
}

// NewFilter creates a filter over ledger.
func NewFilter(ledger Ledger) *Filter {
	return &Filter{ledger: ledger, now: time.Now}
}

// Filter returns the update with already granted fields removed.
// Narrative and biography fields always pass through.
func (f *Filter) Filter(ctx context.Context, u model.Update) (Decision, error) {
	if u.TransactionID == "" {
		return Decision{Update: u, Reason: ReasonNoTransaction}, nil
	}

	var stripped []string
	reasons := []string{}

	if u.AlreadyAppliedLocally {
		for _, field := range model.LocallyAppliedFields {
			if containsField(u.Fields(), field) {
				stripped = append(stripped, field)
			}
		}
		if len(stripped) > 0 {
			reasons = append(reasons, ReasonAppliedLocally)
		}
	}

	prior, found, err := f.ledger.Lookup(ctx, u.TransactionID)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}

	var priorRef *model.TransactionRecord
	if found {
		priorRef = &prior
		var replayed []string
		for _, field := range u.Fields() {
			if prior.Has(field) && !containsField(stripped, field) {
				replayed = append(replayed, field)
			}
		}
		if len(replayed) > 0 {
			stripped = append(stripped, replayed...)
			reasons = append(reasons, ReasonAlreadyApplied+": "+strings.Join(replayed, ", "))
		}
	}

	if len(stripped) == 0 {
		reason := ReasonFirstSight
		if found {
			reason = ReasonAlreadyApplied + ": nothing to strip"
		}
		return Decision{Update: u, Reason: reason, Prior: priorRef}, nil
	}

	return Decision{
		Update:   u.Without(stripped...),
		Filtered: true,
		Reason:   strings.Join(reasons, "; "),
		Stripped: stripped,
		Prior:    priorRef,
	}, nil
}

// Commit records the fields granted by a finished pass. Locally applied
// fields are recorded too so that a later replay from another path
// skips them. Failed fields were not granted and stay out of the record
// unless an earlier pass already granted them. It returns nil without
// touching the ledger when the update carried no transaction id.
func (f *Filter) Commit(ctx context.Context, d Decision, original model.Update, failed ...string) (*model.TransactionRecord, error) {
	if original.TransactionID == "" {
		return nil, nil
	}

	var fields []string
	for _, field := range original.Fields() {
		if containsField(failed, field) && !containsField(d.Stripped, field) {
			continue
		}
		fields = append(fields, field)
	}
	if d.Prior != nil {
		fields = append(fields, d.Prior.AppliedFields...)
	}

	rec := model.TransactionRecord{
		TransactionID: original.TransactionID,
		AppliedFields: UnionFields(fields),
		Timestamp:     f.now(),
	}
	if err := f.ledger.Record(ctx, rec); err != nil {
		return &rec, fmt.Errorf("failed to record transaction %s: %w", rec.TransactionID, err)
	}
	return &rec, nil
}

// UnionFields returns the sorted, de-duplicated union of field names.
func UnionFields(sets ...[]string) []string {
	seen := make(map[string]struct{})
	for _, set := range sets {
		for _, f := range set {
			if f == "" {
				continue
			}
			seen[f] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func containsField(fields []string, field string) bool {
	for _, f := range fields {
		if f == field {
			return true
		}
	}
	return false
}
