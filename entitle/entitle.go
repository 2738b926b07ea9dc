// Package entitle answers whether a principal currently holds valid
// entitlement to a model, and of which kind. It composes address
// derivation, record decoding and the ledger read boundary into a single
// terminal evaluation; it holds no state and caches nothing, because the
// ledger is the sole source of truth for entitlement.
package entitle

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tensormart.io/market/ledger"
	"tensormart.io/market/record"
)

// Status is the terminal outcome of one entitlement evaluation.
type Status string

const (
	// StatusNoRecord: no access record exists for the (user, model) pair.
	StatusNoRecord Status = "no_record"
	// StatusRevoked: a record exists but was deactivated externally,
	// independent of expiry.
	StatusRevoked Status = "revoked"
	// StatusExpired: the record's expiry instant has passed.
	StatusExpired Status = "expired"
	// StatusValid: the record is active and unexpired.
	StatusValid Status = "valid"
)

// Result carries the evaluation outcome. Record is non-nil for every
// status except NoRecord; Address is always the derived access address,
// present even on NoRecord so callers can report where they looked.
type Result struct {
	Status  Status
	Record  *record.Access
	Address ledger.Address
}

// Valid is a convenience for the common admit/deny branch.
func (r Result) Valid() bool { return r.Status == StatusValid }

// UserEntry is one element of a user's access listing.
type UserEntry struct {
	Address ledger.Address
	Record  *record.Access
	Status  Status
}

// Evaluator evaluates entitlement against a single program deployment.
type Evaluator struct {
	program ledger.Address
	reader  ledger.Reader
	log     *zap.Logger

	// now is swappable for tests; defaults to time.Now.
	now func() time.Time
}

type Options struct {
	// Logger receives integrity warnings from listings. Nil means no-op.
	Logger *zap.Logger

	// Now overrides the clock used for expiry checks.
	Now func() time.Time
}

func New(program ledger.Address, reader ledger.Reader, opts Options) *Evaluator {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Evaluator{program: program, reader: reader, log: log, now: now}
}

// Check derives the access address for (user, model), fetches it, and
// evaluates the record against the current clock.
//
// Failure modes are kept distinct by contract:
//   - a missing record is StatusNoRecord, not an error;
//   - a record that fails to decode is returned as a *record.Error
//     (integrity failure, never treated as absence);
//   - an unreachable ledger is returned wrapped in ledger.ErrUnavailable,
//     never as a denial.
func (e *Evaluator) Check(ctx context.Context, user ledger.Principal, model ledger.Address) (Result, error) {
	d, err := ledger.DeriveAccess(e.program, user, model)
	if err != nil {
		return Result{}, fmt.Errorf("entitle: derive access address: %w", err)
	}

	blob, err := e.reader.GetByAddress(ctx, d.Address)
	if ledger.IsNotFound(err) {
		return Result{Status: StatusNoRecord, Address: d.Address}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("entitle: fetch %s: %w", d.Address, err)
	}

	rec, err := record.DecodeAccess(blob)
	if err != nil {
		return Result{}, fmt.Errorf("entitle: record at %s: %w", d.Address, err)
	}

	return Result{
		Status:  e.evaluate(rec),
		Record:  rec,
		Address: d.Address,
	}, nil
}

// evaluate applies the validity rule: active AND (non-expiring OR not yet
// expired). Both conditions are required; neither alone suffices.
func (e *Evaluator) evaluate(rec *record.Access) Status {
	if !rec.IsActive {
		return StatusRevoked
	}
	if rec.ExpiresAt != nil && e.now().Unix() >= *rec.ExpiresAt {
		return StatusExpired
	}
	return StatusValid
}

// HasDownloadRights reports whether a record's type permits download
// issuance. This is a policy layer above validity: callers must check
// Result.Valid first. An inference-only record is rejected here even when
// otherwise valid.
func HasDownloadRights(rec *record.Access) bool {
	if rec == nil {
		return false
	}
	return rec.AccessType == record.AccessDownload || rec.AccessType == record.AccessSubscription
}

// ListForUser enumerates every access record whose user field matches.
// Records that fail to decode are skipped with a logged integrity warning
// rather than aborting the listing; a partially corrupt ledger view should
// not hide the user's remaining records.
func (e *Evaluator) ListForUser(ctx context.Context, user ledger.Principal) ([]UserEntry, error) {
	disc := record.KindAccess.Discriminator()
	entries, err := e.reader.Scan(ctx, []ledger.MemcmpFilter{
		{Offset: 0, Bytes: disc[:]},
		{Offset: 8, Bytes: user[:]},
	})
	if err != nil {
		return nil, fmt.Errorf("entitle: list for %s: %w", user, err)
	}

	out := make([]UserEntry, 0, len(entries))
	for _, ent := range entries {
		rec, err := record.DecodeAccess(ent.Data)
		if err != nil {
			e.log.Warn("skipping undecodable access record",
				zap.String("address", ent.Address.String()),
				zap.String("user", user.String()),
				zap.Error(err))
			continue
		}
		out = append(out, UserEntry{
			Address: ent.Address,
			Record:  rec,
			Status:  e.evaluate(rec),
		})
	}
	return out, nil
}

// UsageForUser enumerates the user's usage records, newest last. Purely an
// audit-trail read; entitlement decisions never consult usage records.
func (e *Evaluator) UsageForUser(ctx context.Context, user ledger.Principal) ([]*record.Usage, error) {
	disc := record.KindUsage.Discriminator()
	entries, err := e.reader.Scan(ctx, []ledger.MemcmpFilter{
		{Offset: 0, Bytes: disc[:]},
		{Offset: 8, Bytes: user[:]},
	})
	if err != nil {
		return nil, fmt.Errorf("entitle: usage for %s: %w", user, err)
	}

	out := make([]*record.Usage, 0, len(entries))
	for _, ent := range entries {
		u, err := record.DecodeUsage(ent.Data)
		if err != nil {
			e.log.Warn("skipping undecodable usage record",
				zap.String("address", ent.Address.String()),
				zap.Error(err))
			continue
		}
		out = append(out, u)
	}
	return out, nil
}
