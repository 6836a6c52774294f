package services

import "errors"

// ErrRunActive is returned when a pass is requested for a mapping that
// already has a running run.
var ErrRunActive = errors.New("mapping already has a running sync")
