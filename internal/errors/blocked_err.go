package errors

import (
	"fmt"
	"strings"
)

// BlockedError is returned when a policy forbids the entities found in the
// inspected contents.
type BlockedError struct {
	reasons []string
}

func NewBlockedError(reasons []string) *BlockedError {
	return &BlockedError{
		reasons: reasons,
	}
}

func (be *BlockedError) Error() string {
	return fmt.Sprintf("request blocked: [%s]", strings.Join(be.reasons, ", "))
}

func (be *BlockedError) Reasons() []string {
	return be.reasons
}

func (be *BlockedError) Blocked() {}
