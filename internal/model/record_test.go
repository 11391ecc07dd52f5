package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubmittedRecord_AddressLine(t *testing.T) {
	r := SubmittedRecord{Street: "123 Main St", City: "Springfield", State: "IL", Zip: "62701"}
	assert.Equal(t, "123 Main St, Springfield, IL 62701", r.AddressLine())
	assert.True(t, r.HasFullAddress())

	r.City = ""
	assert.Equal(t, "123 Main St, IL 62701", r.AddressLine())
	assert.False(t, r.HasFullAddress())

	assert.Empty(t, SubmittedRecord{}.AddressLine())
}

func TestSubmittedRecord_Defaults(t *testing.T) {
	var r SubmittedRecord
	assert.Equal(t, EntityIndividual, r.Entity())
	assert.Equal(t, SourceCSVUpload, r.SourceType())

	r.EntityType = EntityOrganization
	r.Source = SourceStateBoard
	assert.Equal(t, EntityOrganization, r.Entity())
	assert.Equal(t, SourceStateBoard, r.SourceType())
}

func TestSubmittedRecord_Value(t *testing.T) {
	r := SubmittedRecord{
		FullName: "Jane Doe", NPI: "1234567893", Street: "1 Elm St", State: "CA", Zip: "94105",
		Phone: "555-0100", Website: "https://doe.example", Specialty: "Cardiology", LicenseNumber: "A123",
	}
	assert.Equal(t, "Jane Doe", r.Value(FieldName))
	assert.Equal(t, "1234567893", r.Value(FieldNPI))
	assert.Equal(t, "1 Elm St, CA 94105", r.Value(FieldAddress))
	assert.Equal(t, "555-0100", r.Value(FieldPhone))
	assert.Equal(t, "https://doe.example", r.Value(FieldWebsite))
	assert.Equal(t, "Cardiology", r.Value(FieldSpecialty))
	assert.Equal(t, "A123", r.Value(FieldLicenseNumber))
	assert.Empty(t, r.Value(Field("unknown")))
}

func TestQASignals_Count(t *testing.T) {
	var q QASignals
	q.Add(SeverityCritical, "house_number", "mismatch")
	q.Add(SeverityWarning, "phone", "missing")
	q.Add(SeverityWarning, "specialty", "mismatch")
	assert.Equal(t, 1, q.Count(SeverityCritical))
	assert.Equal(t, 2, q.Count(SeverityWarning))
}
