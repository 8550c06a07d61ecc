package errors

// ValidationError reports a configuration value that cannot be used, such as
// a pattern that does not compile or a score outside [0, 1].
type ValidationError struct {
	message string
	field   string
}

func NewValidationError(msg string) *ValidationError {
	return &ValidationError{
		message: msg,
	}
}

func NewFieldValidationError(field string, msg string) *ValidationError {
	return &ValidationError{
		message: msg,
		field:   field,
	}
}

func (ve *ValidationError) Error() string {
	if len(ve.field) != 0 {
		return ve.field + ": " + ve.message
	}

	return ve.message
}

func (ve *ValidationError) Field() string {
	return ve.field
}

func (ve *ValidationError) Validation() {}
