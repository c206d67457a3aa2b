package model

import (
	"fmt"
	"math"
	"strings"
)

// Claim represents one submitted insurance claim handed to the analysis pipeline.
// The pipeline treats it as read-only for the lifetime of a run.
type Claim struct {
	ID        string         `json:"id" yaml:"id"`                                   // Unique per submission
	Type      ClaimType      `json:"type" yaml:"type"`                               // outpatient, prescription, ...
	Amount    float64        `json:"amount" yaml:"amount"`                           // Declared amount, non-negative
	Documents []DocumentRef  `json:"documents,omitempty" yaml:"documents,omitempty"` // Attached documents in submission order
	Metadata  map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`   // Patient/treatment details, only checked for presence
}

// DocumentRef references one attached document
type DocumentRef struct {
	Name        string `json:"name" yaml:"name"`
	ContentType string `json:"content_type,omitempty" yaml:"content_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes,omitempty" yaml:"size_bytes,omitempty"`
}

// ClaimType categorizes the claim
type ClaimType string

const (
	ClaimTypeOutpatient   ClaimType = "outpatient"
	ClaimTypePrescription ClaimType = "prescription"
	ClaimTypeEmergency    ClaimType = "emergency"
	ClaimTypeDental       ClaimType = "dental"
	ClaimTypeInpatient    ClaimType = "inpatient"
)

// ClaimTypes lists every recognized claim type in display order
func ClaimTypes() []ClaimType {
	return []ClaimType{
		ClaimTypeOutpatient,
		ClaimTypePrescription,
		ClaimTypeEmergency,
		ClaimTypeDental,
		ClaimTypeInpatient,
	}
}

// Valid reports whether t is one of the recognized claim types
func (t ClaimType) Valid() bool {
	switch t {
	case ClaimTypeOutpatient, ClaimTypePrescription, ClaimTypeEmergency, ClaimTypeDental, ClaimTypeInpatient:
		return true
	default:
		return false
	}
}

// ParseClaimType normalizes user input ("Prescription ", "DENTAL") into a ClaimType
func ParseClaimType(s string) (ClaimType, error) {
	t := ClaimType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown claim type %q", ErrInvalidClaim, s)
	}
	return t, nil
}

// Validate checks the claim invariants. The returned error wraps ErrInvalidClaim.
func (c Claim) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("%w: missing claim id", ErrInvalidClaim)
	}
	if !c.Type.Valid() {
		return fmt.Errorf("%w: unknown claim type %q", ErrInvalidClaim, c.Type)
	}
	if math.IsNaN(c.Amount) || math.IsInf(c.Amount, 0) {
		return fmt.Errorf("%w: amount is not a finite number", ErrInvalidClaim)
	}
	if c.Amount < 0 {
		return fmt.Errorf("%w: negative amount %.2f", ErrInvalidClaim, c.Amount)
	}
	return nil
}

// HasMetadata reports whether key is present with a non-empty value
func (c Claim) HasMetadata(key string) bool {
	v, ok := c.Metadata[key]
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// MissingMetadata returns the keys from required that the claim does not carry
func (c Claim) MissingMetadata(required []string) []string {
	var missing []string
	for _, key := range required {
		if !c.HasMetadata(key) {
			missing = append(missing, key)
		}
	}
	return missing
}
