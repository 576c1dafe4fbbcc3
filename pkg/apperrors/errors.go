package apperrors

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrSessionNotFinal   = errors.New("session did not finish with a validated statement")
	ErrCorpusUnavailable = errors.New("training corpus store unavailable")
)
