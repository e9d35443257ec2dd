package enums

import "fmt"

// ActionType maps to the action_type enum in Postgres.
type ActionType string

const (
	ActionTypeLike          ActionType = "like"
	ActionTypeFollow        ActionType = "follow"
	ActionTypeReply         ActionType = "reply"
	ActionTypeDM            ActionType = "dm"
	ActionTypeWait          ActionType = "wait"
	ActionTypeCheckResponse ActionType = "check_response"
)

var validActionTypes = []ActionType{
	ActionTypeLike,
	ActionTypeFollow,
	ActionTypeReply,
	ActionTypeDM,
	ActionTypeWait,
	ActionTypeCheckResponse,
}

// String implements fmt.Stringer.
func (a ActionType) String() string {
	return string(a)
}

// IsValid reports whether the value matches the canonical action_type enum.
func (a ActionType) IsValid() bool {
	for _, candidate := range validActionTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// IsOutbound reports whether the action reaches the social platform. Wait and
// check_response steps run entirely against local state.
func (a ActionType) IsOutbound() bool {
	switch a {
	case ActionTypeLike, ActionTypeFollow, ActionTypeReply, ActionTypeDM:
		return true
	}
	return false
}

// ParseActionType converts raw input into an ActionType.
func ParseActionType(value string) (ActionType, error) {
	for _, candidate := range validActionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid action type %q", value)
}
