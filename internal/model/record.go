package model

import (
	"strings"
	"time"
)

// SourceType identifies where a piece of provider data originated.
type SourceType string

const (
	SourceNPIRegistry SourceType = "NPI_REGISTRY"
	SourceStateBoard  SourceType = "STATE_BOARD"
	SourceWebScrape   SourceType = "WEB_SCRAPE"
	SourceCSVUpload   SourceType = "CSV_UPLOAD"
)

// SourceTypes lists every known source type.
var SourceTypes = []SourceType{SourceNPIRegistry, SourceStateBoard, SourceWebScrape, SourceCSVUpload}

// EntityType distinguishes individual practitioners from organizations.
type EntityType string

const (
	EntityIndividual   EntityType = "INDIVIDUAL"
	EntityOrganization EntityType = "ORGANIZATION"
)

// EntityTypes lists every known entity type.
var EntityTypes = []EntityType{EntityIndividual, EntityOrganization}

// SubmittedRecord is the provider record under validation. It is passed by
// value and never modified once a validation run starts.
type SubmittedRecord struct {
	FullName      string     `json:"full_name"`
	NPI           string     `json:"npi,omitempty"`
	Street        string     `json:"street,omitempty"`
	City          string     `json:"city,omitempty"`
	State         string     `json:"state,omitempty"`
	Zip           string     `json:"zip,omitempty"`
	Phone         string     `json:"phone,omitempty"`
	Website       string     `json:"website,omitempty"`
	Specialty     string     `json:"specialty,omitempty"`
	LicenseNumber string     `json:"license_number,omitempty"`
	LastConfirmed *time.Time `json:"last_confirmed,omitempty"`

	EntityType EntityType `json:"entity_type,omitempty"`
	Source     SourceType `json:"source,omitempty"`

	Education      []string `json:"education,omitempty"`
	Certifications []string `json:"certifications,omitempty"`
	Languages      []string `json:"languages,omitempty"`
	Insurance      []string `json:"insurance,omitempty"`
}

// Entity returns the record's entity type, defaulting to individual.
func (r SubmittedRecord) Entity() EntityType {
	if r.EntityType == "" {
		return EntityIndividual
	}
	return r.EntityType
}

// SourceType returns where the submission came from, defaulting to an upload.
func (r SubmittedRecord) SourceType() SourceType {
	if r.Source == "" {
		return SourceCSVUpload
	}
	return r.Source
}

// AddressLine renders the postal address as a single line:
// "street, city, ST zip". Empty parts are skipped.
func (r SubmittedRecord) AddressLine() string {
	return FormatAddress(r.Street, r.City, r.State, r.Zip)
}

// HasFullAddress reports whether street, city, state and zip are all set.
func (r SubmittedRecord) HasFullAddress() bool {
	return strings.TrimSpace(r.Street) != "" && strings.TrimSpace(r.City) != "" &&
		strings.TrimSpace(r.State) != "" && strings.TrimSpace(r.Zip) != ""
}

// FormatAddress joins address parts into a single line.
func FormatAddress(street, city, state, zip string) string {
	var parts []string
	if s := strings.TrimSpace(street); s != "" {
		parts = append(parts, s)
	}
	if c := strings.TrimSpace(city); c != "" {
		parts = append(parts, c)
	}
	tail := strings.TrimSpace(strings.TrimSpace(state) + " " + strings.TrimSpace(zip))
	if tail != "" {
		parts = append(parts, tail)
	}
	return strings.Join(parts, ", ")
}
