package service

import "errors"

var (
	// ErrInvalidWrite is returned by CacheService.Write for an unknown
	// operation or entity kind, or a record the store refuses.
	ErrInvalidWrite = errors.New("invalid write")

	// ErrEngineClosed is returned once SyncEngine.Shutdown was called.
	ErrEngineClosed = errors.New("sync engine is shut down")

	// ErrNoTenant is returned when neither the record nor the session carries
	// a tenant.
	ErrNoTenant = errors.New("no tenant given")

	ErrUnknownResolution = errors.New("unknown conflict resolution")
)
