package pipeline

import (
	"fmt"
	"time"

	"github.com/sells-group/provider-validator/internal/address"
	"github.com/sells-group/provider-validator/internal/arbitrate"
	"github.com/sells-group/provider-validator/internal/freshness"
	"github.com/sells-group/provider-validator/internal/model"
	"github.com/sells-group/provider-validator/internal/normalize"
)

// QA flag codes.
const (
	FlagAddressMismatch   = "address_mismatch"
	FlagAddressUnreadable = "address_unparseable"
	FlagAddressMissing    = "address_missing"
	FlagExcluded          = "excluded"
	FlagLicenseExpired    = "license_expired"
	FlagLicenseDiscipline = "license_disciplinary"
	FlagLicenseManual     = "license_manual"
	FlagLicenseNotFound   = "license_not_found"
	FlagNameMismatch      = "name_mismatch"
	FlagSpecialtyMismatch = "specialty_mismatch"
	FlagMultipleMatches   = "multiple_registry_matches"
	FlagStaleData         = "stale_data"
	FlagMissingPhone      = "missing_phone"
)

// reconcileAddress compares the submitted address with the registry
// address, falling back to the geo-formatted address.
func reconcileAddress(rec model.SubmittedRecord, results model.Results, qa *model.QASignals) {
	submitted := rec.AddressLine()
	if rec.Street == "" {
		qa.Add(model.SeverityWarning, FlagAddressMissing, "no street address submitted")
		return
	}

	var authority, source string
	if r, ok := results.Get(model.KindIdentity); ok && r.Identity.ResultCount > 0 && r.Identity.Address != "" {
		authority, source = r.Identity.Address, r.Source
	} else if r, ok := results.Get(model.KindGeo); ok && r.Geo.FormattedAddress != "" {
		authority, source = r.Geo.FormattedAddress, r.Source
	}
	if authority == "" {
		return
	}

	v := address.Reconcile(submitted, authority)
	v.Authority = source
	qa.Address = &v

	switch v.Action {
	case model.AddressFlag:
		qa.Add(model.SeverityCritical, FlagAddressMismatch, v.Reason)
	case model.AddressManualReview:
		qa.Add(model.SeverityWarning, FlagAddressUnreadable, v.Reason)
	}
}

// assessFreshness scores the registry's last update when there is one and
// the submission's own confirmation date otherwise. The result is attached
// to the identity payload.
func assessFreshness(m *freshness.Model, rec model.SubmittedRecord, results model.Results, qa *model.QASignals, now time.Time) {
	var f model.Freshness
	idx := -1
	for i, r := range results {
		if r.Kind == model.KindIdentity && r.Success && r.Valid() {
			idx = i
			break
		}
	}

	if idx >= 0 && results[idx].Identity.LastConfirmed != nil {
		id := results[idx].Identity
		entity := id.EntityType
		if entity == "" {
			entity = rec.Entity()
		}
		f = m.Reliability(id.LastConfirmed, model.SourceNPIRegistry, entity, now)
	} else {
		f = m.Reliability(rec.LastConfirmed, rec.SourceType(), rec.Entity(), now)
	}

	if idx >= 0 {
		id := *results[idx].Identity
		id.Freshness = &f
		results[idx].Identity = &id
	}
	qa.Freshness = &f
	if f.Status == model.FreshnessStale {
		qa.Add(model.SeverityWarning, FlagStaleData, fmt.Sprintf("data is stale (reliability %.2f)", f.Score))
	}
}

// collectSignals turns verifier payloads into QA flags and fraud indicators.
// A specialty mismatch is only flagged when the arbitration policy will not
// correct it.
func collectSignals(rec model.SubmittedRecord, results model.Results, cfg Config, qa *model.QASignals) {
	if id := results.Identity(); id != nil && id.ResultCount > 0 {
		if id.ResultCount > 1 {
			qa.Add(model.SeverityWarning, FlagMultipleMatches, fmt.Sprintf("%d registry candidates matched", id.ResultCount))
		}
		if id.Name != "" && rec.FullName != "" {
			if sim := normalize.NameSimilarity(rec.FullName, id.Name); sim < cfg.NameSimilarityMin {
				qa.Add(model.SeverityWarning, FlagNameMismatch,
					fmt.Sprintf("submitted name %q differs from registry name %q (similarity %d)", rec.FullName, id.Name, sim))
			}
		}
		if primary := id.PrimarySpecialty(); !cfg.Arbitration.AutoCorrectSpecialty && primary != "" && rec.Specialty != "" && !arbitrate.SpecialtyMatches(rec.Specialty, primary) {
			qa.Add(model.SeverityWarning, FlagSpecialtyMismatch,
				fmt.Sprintf("submitted specialty %q differs from registry taxonomy %q", rec.Specialty, primary))
		}
	}

	if ex := results.Exclusion(); ex != nil && ex.Excluded {
		msg := "provider is on the federal exclusion list"
		if ex.Details != nil && ex.Details.ExclusionType != "" {
			msg = fmt.Sprintf("%s (%s)", msg, ex.Details.ExclusionType)
		}
		qa.Add(model.SeverityCritical, FlagExcluded, msg)
	}

	if lc := results.License(); lc != nil {
		switch lc.Status {
		case model.LicenseExpired:
			qa.Add(model.SeverityCritical, FlagLicenseExpired, "license is expired")
		case model.LicenseManualRequired:
			qa.Add(model.SeverityWarning, FlagLicenseManual, fmt.Sprintf("no automated license board for %s", lc.State))
		case model.LicenseNotFound:
			qa.Add(model.SeverityWarning, FlagLicenseNotFound, "license not found on board roster")
		}
		if n := len(lc.DisciplinaryActions); n > 0 {
			qa.Add(model.SeverityWarning, FlagLicenseDiscipline, fmt.Sprintf("%d disciplinary action(s) on record", n))
		}
	}

	if geo := results.Geo(); geo != nil {
		qa.FraudIndicators = append(qa.FraudIndicators, geo.FraudIndicators...)
	}

	if normalize.Phone(rec.Phone) == "" {
		if id := results.Identity(); id == nil || id.Phone == "" {
			qa.Add(model.SeverityWarning, FlagMissingPhone, "no phone number submitted or on file")
		}
	}
}
