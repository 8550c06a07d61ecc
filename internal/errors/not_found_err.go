package errors

type NotFoundError struct {
	message  string
	resource string
}

func NewNotFoundError(resource string, msg string) *NotFoundError {
	return &NotFoundError{
		message:  msg,
		resource: resource,
	}
}

func (nfe *NotFoundError) Error() string {
	return nfe.message
}

func (nfe *NotFoundError) Resource() string {
	return nfe.resource
}

func (nfe *NotFoundError) NotFound() {}
