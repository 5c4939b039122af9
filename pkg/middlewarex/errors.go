package middlewarex

import (
	"git.appkode.ru/pub/go/failure"
)

type middlewareError struct {
	code    failure.ErrorCode
	message string
	cause   error
}

func (e middlewareError) Error() string {
	if e.cause != nil {
		return e.message + ": " + e.cause.Error()
	}

	return e.message
}

func (e middlewareError) Unwrap() error {
	return e.cause
}

func (e middlewareError) ErrorCode() failure.ErrorCode {
	return e.code
}

func (e middlewareError) PublicMessage() string {
	return e.message
}
