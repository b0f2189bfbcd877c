package service

import "errors"

var (
	ErrBusy                 = errors.New("a message is already being sent")
	ErrSendFailed           = errors.New("failed to send message")
	ErrEmptyMessage         = errors.New("message content is empty")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrInvalidMode          = errors.New("invalid response mode")
	ErrValidation           = errors.New("validation failed")
	ErrNotAuthenticated     = errors.New("no user logged in")

	// User-facing messages double as the error text.
	ErrEmailTaken         = errors.New("Este email já está cadastrado!")
	ErrInvalidCredentials = errors.New("Email ou senha incorretos!")
	ErrInvalidAdminSecret = errors.New("Senha de administrador incorreta!")
)

// ValidationError carries the message shown to the user. It matches
// ErrValidation with errors.Is.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
