package store

import "errors"

// ErrLocalStorageFailure wraps every failure of the storage engine itself
// (I/O, quota, corruption, driver errors). A write that returns it did not
// happen and must be reported to the caller.
var ErrLocalStorageFailure = errors.New("local storage failure")

// Engine conditions recognised from SQLite result codes. They are always
// returned together with [ErrLocalStorageFailure].
var (
	// ErrStorageFull is returned when the database or disk is full.
	ErrStorageFull = errors.New("local storage is full")

	// ErrStorageCorrupt is returned when the database file is malformed or
	// is not a database at all.
	ErrStorageCorrupt = errors.New("local storage is corrupt")
)

// Domain errors. Callers should use [errors.Is] to match against these values.
var (
	// ErrRecordNotFound is returned when a record lookup by identifier finds
	// nothing.
	ErrRecordNotFound = errors.New("record was not found")

	// ErrEntryNotFound is returned when no outbox entry (or failed mutation)
	// has the requested sequence.
	ErrEntryNotFound = errors.New("outbox entry was not found")

	// ErrEntryNotConflicted is returned when a conflict operation targets an
	// entry that is not waiting for resolution.
	ErrEntryNotConflicted = errors.New("outbox entry is not in conflict")

	// ErrInvalidRecord is returned when a record misses its identifier or
	// tenant, or belongs to a different tenant than the one being written.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrInvalidPatch is returned when an update payload is not a JSON object.
	ErrInvalidPatch = errors.New("update payload must be a JSON object")

	// ErrUnknownEntityKind is returned for entity kinds the store has no
	// collection for.
	ErrUnknownEntityKind = errors.New("unknown entity kind")

	// ErrUnknownCollection is returned by Clear for unknown collection names.
	ErrUnknownCollection = errors.New("unknown collection")

	// ErrNoTimestampIndex is returned when chronological order is requested
	// for a collection without a timestamp index.
	ErrNoTimestampIndex = errors.New("collection has no timestamp index")
)

// Low-level database operation errors. These are wrapped together with
// [ErrLocalStorageFailure] when a SQL-level operation fails.
var (
	// ErrBuildingSQLQuery is returned when constructing a SQL query fails.
	ErrBuildingSQLQuery = errors.New("error building sql query")

	// ErrExecutingQuery is returned when executing a SELECT fails.
	ErrExecutingQuery = errors.New("error executing sql query")

	// ErrBeginningTransaction is returned when the driver cannot start a new
	// transaction.
	ErrBeginningTransaction = errors.New("failed to begin transaction")

	// ErrCommittingTransaction is returned when committing a transaction
	// fails. The transaction is rolled back at this point.
	ErrCommittingTransaction = errors.New("failed to commit transaction")

	// ErrExecutingStatement is returned when executing an INSERT, UPDATE or
	// DELETE fails.
	ErrExecutingStatement = errors.New("failed to execute statement")

	// ErrScanningRow is returned when scanning a result row fails.
	ErrScanningRow = errors.New("failed to scan row")

	// ErrScanningRows is returned when iterating a result set fails.
	ErrScanningRows = errors.New("failed to scan rows")
)
