package enums

import "fmt"

// ExecutionStatus maps to the execution_status enum in Postgres.
type ExecutionStatus string

const (
	ExecutionStatusExecuted ExecutionStatus = "executed"
	ExecutionStatusFailed   ExecutionStatus = "failed"
)

var validExecutionStatuses = []ExecutionStatus{
	ExecutionStatusExecuted,
	ExecutionStatusFailed,
}

// String implements fmt.Stringer.
func (e ExecutionStatus) String() string {
	return string(e)
}

// IsValid reports whether the value matches the canonical execution_status enum.
func (e ExecutionStatus) IsValid() bool {
	for _, candidate := range validExecutionStatuses {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseExecutionStatus converts raw input into an ExecutionStatus.
func ParseExecutionStatus(value string) (ExecutionStatus, error) {
	for _, candidate := range validExecutionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid execution status %q", value)
}
