package services

import "errors"

var (
	ErrNotFound        = errors.New("analysis not found")
	ErrNotAuthorized   = errors.New("analysis is not yours")
	ErrResultsPending  = errors.New("analysis results are not available yet")
	ErrDiseaseNotFound = errors.New("disease not found")
	ErrEmailRequired   = errors.New("email is required for public submissions")
	ErrNoBackend       = errors.New("no backend registered for method")
)
