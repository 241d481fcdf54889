package errors

import "fmt"

var (
	ErrWorkerPanic     = fmt.Errorf("worker panic")
	ErrUnauthorized    = fmt.Errorf("credential missing or insufficient")
	ErrSessionNotFound = fmt.Errorf("session not found")
	ErrSessionClosed   = fmt.Errorf("session is closed")
	ErrEmptyContent    = fmt.Errorf("message content is empty")
	ErrConnectionLost  = fmt.Errorf("connection lost")
	ErrInvalidStatus   = fmt.Errorf("invalid session status transition")
)
