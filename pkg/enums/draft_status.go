package enums

import "fmt"

// DraftStatus captures the review lifecycle of a generated reply draft.
type DraftStatus string

const (
	DraftStatusGenerated DraftStatus = "generated"
	DraftStatusApproved  DraftStatus = "approved"
	DraftStatusEdited    DraftStatus = "edited"
	DraftStatusRejected  DraftStatus = "rejected"
	DraftStatusSent      DraftStatus = "sent"
)

var validDraftStatuses = []DraftStatus{
	DraftStatusGenerated,
	DraftStatusApproved,
	DraftStatusEdited,
	DraftStatusRejected,
	DraftStatusSent,
}

// String implements fmt.Stringer.
func (d DraftStatus) String() string {
	return string(d)
}

// IsValid reports whether the value matches a known DraftStatus.
func (d DraftStatus) IsValid() bool {
	for _, candidate := range validDraftStatuses {
		if candidate == d {
			return true
		}
	}
	return false
}

// IsSendable reports whether a human has signed off on the draft.
func (d DraftStatus) IsSendable() bool {
	return d == DraftStatusApproved || d == DraftStatusEdited
}

// ParseDraftStatus converts raw input into a DraftStatus.
func ParseDraftStatus(value string) (DraftStatus, error) {
	for _, candidate := range validDraftStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid draft status %q", value)
}
