package domain

import (
	"fmt"
	"strconv"

	dErrors "trustdoc/pkg/domain-errors"
)

// DocumentID is the externally shareable document identifier. The format is
// fixed: literal "TD-" prefix, 4-digit issuance year, 6-digit zero-padded
// sequence (e.g. "TD-2024-001234"). Case-sensitive ASCII.
type DocumentID string

const (
	documentIDPrefix = "TD"
	documentIDLen    = len("TD-2024-001234")
)

// MaxDocumentSequence is the largest sequence the 6-digit field can carry.
const MaxDocumentSequence = 999999

// NewDocumentID builds an identifier from an issuance year and a sequence.
// The caller's sequencer guarantees uniqueness; this only guarantees format.
func NewDocumentID(year, sequence int) (DocumentID, error) {
	if year < 1000 || year > 9999 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "issuance year must have four digits")
	}
	if sequence < 0 || sequence > MaxDocumentSequence {
		return "", dErrors.New(dErrors.CodeInvalidInput, "document sequence out of range")
	}
	return DocumentID(fmt.Sprintf("%s-%04d-%06d", documentIDPrefix, year, sequence)), nil
}

// ParseDocumentID validates the exact identifier pattern.
func ParseDocumentID(s string) (DocumentID, error) {
	if !IsValidDocumentID(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "malformed document identifier")
	}
	return DocumentID(s), nil
}

// IsValidDocumentID reports whether s matches TD-YYYY-NNNNNN exactly.
func IsValidDocumentID(s string) bool {
	if len(s) != documentIDLen {
		return false
	}
	if s[0] != 'T' || s[1] != 'D' || s[2] != '-' || s[7] != '-' {
		return false
	}
	for _, i := range []int{3, 4, 5, 6, 8, 9, 10, 11, 12, 13} {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func (id DocumentID) String() string { return string(id) }

func (id DocumentID) IsNil() bool { return id == "" }

// Year extracts the 4-digit issuance year component.
func (id DocumentID) Year() int {
	if !IsValidDocumentID(string(id)) {
		return 0
	}
	year, _ := strconv.Atoi(string(id)[3:7])
	return year
}

// Sequence extracts the 6-digit sequence component.
func (id DocumentID) Sequence() int {
	if !IsValidDocumentID(string(id)) {
		return 0
	}
	seq, _ := strconv.Atoi(string(id)[8:14])
	return seq
}
