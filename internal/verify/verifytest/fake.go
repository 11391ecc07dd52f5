// Package verifytest provides an injectable verifier for tests.
package verifytest

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sells-group/provider-validator/internal/model"
)

// Fake is a scripted verifier. Respond, when set, takes precedence over
// Result and Err.
type Fake struct {
	FakeKind   model.VerifierKind
	FakeSource string
	Result     model.VerifierResult
	Err        error
	Delay      time.Duration
	Respond    func(ctx context.Context, rec model.SubmittedRecord) (model.VerifierResult, error)

	calls atomic.Int64
}

// Kind implements verify.Verifier.
func (f *Fake) Kind() model.VerifierKind { return f.FakeKind }

// Source implements verify.Verifier.
func (f *Fake) Source() string {
	if f.FakeSource == "" {
		return "fake-" + string(f.FakeKind)
	}
	return f.FakeSource
}

// Verify implements verify.Verifier. A Delay longer than the caller's
// deadline returns the context error.
func (f *Fake) Verify(ctx context.Context, rec model.SubmittedRecord) (model.VerifierResult, error) {
	f.calls.Add(1)
	if f.Delay > 0 {
		t := time.NewTimer(f.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return model.VerifierResult{}, ctx.Err()
		case <-t.C:
		}
	}
	if f.Respond != nil {
		return f.Respond(ctx, rec)
	}
	return f.Result, f.Err
}

// Calls returns how many times Verify ran.
func (f *Fake) Calls() int { return int(f.calls.Load()) }

var at = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// Identity returns a fake registry that always matches.
func Identity(m model.IdentityMatch) *Fake {
	return &Fake{FakeKind: model.KindIdentity, FakeSource: "fake-registry", Result: model.NewIdentityResult("fake-registry", at, m)}
}

// Exclusion returns a fake exclusion list.
func Exclusion(excluded bool) *Fake {
	c := model.ExclusionCheck{Excluded: excluded}
	if excluded {
		c.Details = &model.ExclusionDetails{ExclusionType: "1128a1"}
	}
	return &Fake{FakeKind: model.KindExclusion, FakeSource: "fake-exclusions", Result: model.NewExclusionResult("fake-exclusions", at, c)}
}

// License returns a fake license board.
func License(c model.LicenseCheck) *Fake {
	return &Fake{FakeKind: model.KindLicense, FakeSource: "fake-board", Result: model.NewLicenseResult("fake-board", at, c)}
}

// Geo returns a fake facility check.
func Geo(c model.GeoCheck) *Fake {
	return &Fake{FakeKind: model.KindGeo, FakeSource: "fake-geo", Result: model.NewGeoResult("fake-geo", at, c)}
}

// WebPresence returns a fake web presence check.
func WebPresence(c model.WebPresenceCheck) *Fake {
	return &Fake{FakeKind: model.KindWebPresence, FakeSource: "fake-web", Result: model.NewWebPresenceResult("fake-web", at, c)}
}

// Failing returns a fake of kind that always fails with err.
func Failing(kind model.VerifierKind, err error) *Fake {
	return &Fake{FakeKind: kind, Err: err}
}
