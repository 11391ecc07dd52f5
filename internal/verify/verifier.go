// Package verify runs the external checks for a provider record and collects
// their outcomes into one snapshot.
package verify

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/provider-validator/internal/model"
)

// ErrSkipped marks a verifier that had nothing to check for a record, for
// example a geo check without an address.
var ErrSkipped = eris.New("verify: not applicable")

// IdentityVerifier looks a provider up in the national registry.
type IdentityVerifier interface {
	Lookup(ctx context.Context, name, npi, state string) (model.IdentityMatch, error)
}

// ExclusionVerifier checks the federal exclusion list.
type ExclusionVerifier interface {
	Check(ctx context.Context, npi, name string) (model.ExclusionCheck, error)
}

// LicenseVerifier checks a state license board.
type LicenseVerifier interface {
	Check(ctx context.Context, state, license, name string) (model.LicenseCheck, error)
}

// GeoVerifier checks what sits at an address.
type GeoVerifier interface {
	Check(ctx context.Context, address string) (model.GeoCheck, error)
}

// WebPresenceVerifier measures a provider's public web footprint.
type WebPresenceVerifier interface {
	Check(ctx context.Context, name, npi string) (model.WebPresenceCheck, error)
}

// Verifier is the uniform shape the collector runs. The returned result's
// timing fields are filled in by the collector.
type Verifier interface {
	Kind() model.VerifierKind
	Source() string
	Verify(ctx context.Context, rec model.SubmittedRecord) (model.VerifierResult, error)
}

type adapter struct {
	kind   model.VerifierKind
	source string
	run    func(ctx context.Context, rec model.SubmittedRecord) (model.VerifierResult, error)
}

func (a adapter) Kind() model.VerifierKind { return a.kind }
func (a adapter) Source() string           { return a.source }

func (a adapter) Verify(ctx context.Context, rec model.SubmittedRecord) (model.VerifierResult, error) {
	return a.run(ctx, rec)
}

// Identity adapts a registry client.
func Identity(source string, v IdentityVerifier) Verifier {
	return adapter{kind: model.KindIdentity, source: source, run: func(ctx context.Context, rec model.SubmittedRecord) (model.VerifierResult, error) {
		if rec.NPI == "" && rec.FullName == "" {
			return model.VerifierResult{}, ErrSkipped
		}
		m, err := v.Lookup(ctx, rec.FullName, rec.NPI, rec.State)
		if err != nil {
			return model.VerifierResult{}, err
		}
		return model.NewIdentityResult(source, zeroTime, m), nil
	}}
}

// Exclusion adapts an exclusion list.
func Exclusion(source string, v ExclusionVerifier) Verifier {
	return adapter{kind: model.KindExclusion, source: source, run: func(ctx context.Context, rec model.SubmittedRecord) (model.VerifierResult, error) {
		c, err := v.Check(ctx, rec.NPI, rec.FullName)
		if err != nil {
			return model.VerifierResult{}, err
		}
		return model.NewExclusionResult(source, zeroTime, c), nil
	}}
}

// License adapts a license board lookup.
func License(source string, v LicenseVerifier) Verifier {
	return adapter{kind: model.KindLicense, source: source, run: func(ctx context.Context, rec model.SubmittedRecord) (model.VerifierResult, error) {
		if rec.LicenseNumber == "" || rec.State == "" {
			return model.VerifierResult{}, ErrSkipped
		}
		c, err := v.Check(ctx, rec.State, rec.LicenseNumber, rec.FullName)
		if err != nil {
			return model.VerifierResult{}, err
		}
		return model.NewLicenseResult(source, zeroTime, c), nil
	}}
}

// Geo adapts a facility location check.
func Geo(source string, v GeoVerifier) Verifier {
	return adapter{kind: model.KindGeo, source: source, run: func(ctx context.Context, rec model.SubmittedRecord) (model.VerifierResult, error) {
		line := rec.AddressLine()
		if line == "" {
			return model.VerifierResult{}, ErrSkipped
		}
		c, err := v.Check(ctx, line)
		if err != nil {
			return model.VerifierResult{}, err
		}
		return model.NewGeoResult(source, zeroTime, c), nil
	}}
}

// WebPresence adapts a web presence check.
func WebPresence(source string, v WebPresenceVerifier) Verifier {
	return adapter{kind: model.KindWebPresence, source: source, run: func(ctx context.Context, rec model.SubmittedRecord) (model.VerifierResult, error) {
		if rec.FullName == "" {
			return model.VerifierResult{}, ErrSkipped
		}
		c, err := v.Check(ctx, rec.FullName, rec.NPI)
		if err != nil {
			return model.VerifierResult{}, err
		}
		return model.NewWebPresenceResult(source, zeroTime, c), nil
	}}
}
