package db

import "errors"

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrUserExists      = errors.New("user already exists")
	ErrCompanyNotFound = errors.New("company not found")
	ErrTokenNotFound   = errors.New("token record not found")
)
