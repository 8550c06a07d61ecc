package errors

import (
	"fmt"
	"strings"
)

type WarningError struct {
	warnings []string
}

func NewWarningError(warnings []string) *WarningError {
	return &WarningError{
		warnings: warnings,
	}
}

func (we *WarningError) Error() string {
	return fmt.Sprintf("request warned: [%s]", strings.Join(we.warnings, ", "))
}

func (we *WarningError) Warnings() []string {
	return we.warnings
}
