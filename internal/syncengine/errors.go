package syncengine

import "errors"

var (
	// ErrMappingInactive is returned when a pass is requested for a disabled mapping.
	ErrMappingInactive = errors.New("mapping is inactive")
	// ErrConnectionInactive is returned when the mapping's connection is disabled.
	ErrConnectionInactive = errors.New("connection is inactive")
	// ErrDirectionNotAllowed is returned when the mapping's sync direction forbids the pass.
	ErrDirectionNotAllowed = errors.New("sync direction does not allow this pass")
	// ErrMissingConnection is returned when a mapping was loaded without its connection.
	ErrMissingConnection = errors.New("mapping has no connection loaded")
	// ErrRunInProgress is returned when applying a run that is still running.
	ErrRunInProgress = errors.New("sync run is still running")
	// ErrNotPullRun is returned when applying a push run.
	ErrNotPullRun = errors.New("only pull runs have staged records")
	// ErrMissingRecordID is returned for a remote record without a sys_id.
	ErrMissingRecordID = errors.New("remote record has no sys_id")
	// ErrCardNotFound is returned when a staged update references a card that no longer exists.
	ErrCardNotFound = errors.New("referenced card not found")
)
