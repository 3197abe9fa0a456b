package repository

import (
	"errors"

	"github.com/lib/pq"
)

// Common repository errors
var (
	ErrNotFound        = errors.New("record not found")
	ErrAlreadyExists   = errors.New("record already exists")
	ErrAlreadyResolved = errors.New("security event already resolved")
)

const uniqueViolation = pq.ErrorCode("23505")
