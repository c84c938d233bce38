package tickets

import "errors"

var (
	ErrEventNotFound      = errors.New("event not found")
	ErrEventNotActive     = errors.New("event is not active")
	ErrSoldOut            = errors.New("event is sold out")
	ErrTicketNotFound     = errors.New("ticket not found")
	ErrCredentialNotFound = errors.New("no live credential for ticket")
	ErrForbidden          = errors.New("caller may not access this resource")
	ErrInvalidRequest     = errors.New("invalid request")
)
