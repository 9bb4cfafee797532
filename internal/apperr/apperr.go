// Package apperr defines the single error type returned across the service
// boundary. Every failure a client can observe carries a machine-readable
// code, a human message and the HTTP status it maps to.
package apperr

import (
	"errors"
	"net/http"
)

type Code string

const (
	CodeAlreadyRegistered    Code = "ALREADY_REGISTERED"
	CodeCompanyNotFound      Code = "COMPANY_NOT_FOUND"
	CodeExpiredToken         Code = "EXPIRED_TOKEN"
	CodeForbiddenAction      Code = "FORBIDDEN_ACTION"
	CodeIncorrectOldPassword Code = "INCORRECT_OLD_PASSWORD"
	CodeIncorrectPassword    Code = "INCORRECT_PASSWORD"
	CodeInvalidAccessToken   Code = "INVALID_ACCESS_TOKEN"
	CodeInvalidCredentials   Code = "INVALID_CREDENTIALS"
	CodeInvalidRefreshToken  Code = "INVALID_REFRESH_TOKEN"
	CodeInvalidTokenFormat   Code = "INVALID_TOKEN_FORMAT"
	CodeMissingToken         Code = "MISSING_TOKEN"
	CodeRefreshInProgress    Code = "REFRESH_IN_PROGRESS"
	CodeServerError          Code = "SERVER_ERROR"
	CodeServiceUnavailable   Code = "SERVICE_UNAVAILABLE"
	CodeTokenBlacklisted     Code = "TOKEN_BLACKLISTED"
	CodeUserNotFound         Code = "USER_NOT_FOUND"
	CodeValidation           Code = "VALIDATION_ERROR"
)

var (
	ErrAlreadyRegistered    = New(CodeAlreadyRegistered, "Email is already registered.", http.StatusBadRequest)
	ErrCompanyNotFound      = New(CodeCompanyNotFound, "Company not found.", http.StatusNotFound)
	ErrExpiredToken         = New(CodeExpiredToken, "Token has expired.", http.StatusForbidden)
	ErrForbiddenAction      = New(CodeForbiddenAction, "You do not have permission to perform this action.", http.StatusForbidden)
	ErrIncorrectOldPassword = New(CodeIncorrectOldPassword, "The old password you provided is incorrect.", http.StatusBadRequest)
	ErrIncorrectPassword    = New(CodeIncorrectPassword, "The password you provided is incorrect.", http.StatusBadRequest)
	ErrInvalidAccessToken   = New(CodeInvalidAccessToken, "Invalid token.", http.StatusForbidden)
	ErrInvalidCredentials   = New(CodeInvalidCredentials, "Invalid email or password.", http.StatusUnauthorized)
	ErrInvalidRefreshToken  = New(CodeInvalidRefreshToken, "The provided refresh token is invalid.", http.StatusUnauthorized)
	ErrInvalidTokenFormat   = New(CodeInvalidTokenFormat, "Invalid token format.", http.StatusUnauthorized)
	ErrMissingToken         = New(CodeMissingToken, "Access denied. Missing or invalid Authorization header.", http.StatusUnauthorized)
	ErrRefreshInProgress    = New(CodeRefreshInProgress, "Another refresh for this session is in progress.", http.StatusConflict)
	ErrServerError          = New(CodeServerError, "An unexpected error occurred.", http.StatusInternalServerError)
	ErrServiceUnavailable   = New(CodeServiceUnavailable, "The service is temporarily unavailable.", http.StatusServiceUnavailable)
	ErrTokenBlacklisted     = New(CodeTokenBlacklisted, "Access token is invalid.", http.StatusForbidden)
	ErrUserNotFound         = New(CodeUserNotFound, "User not found.", http.StatusNotFound)
	ErrValidation           = New(CodeValidation, "Request validation failed.", http.StatusUnprocessableEntity)
)

type Error struct {
	Code    Code
	Message string
	Status  int
	Err     error
}

func New(code Code, message string, status int) *Error {
	return &Error{Code: code, Message: message, Status: status}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Code) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Code so that wrapped copies compare equal to the predefined
// values.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Wrap returns a copy of e carrying cause. The cause is never rendered to
// clients.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

// WithMessage returns a copy of e with a different human message.
func (e *Error) WithMessage(message string) *Error {
	cp := *e
	cp.Message = message
	return &cp
}

// WithStatus returns a copy of e surfaced with a different HTTP status.
func (e *Error) WithStatus(status int) *Error {
	cp := *e
	cp.Status = status
	return &cp
}

// From extracts the *Error from err, falling back to SERVER_ERROR.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrServerError.Wrap(err)
}
