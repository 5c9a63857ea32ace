package certflow

import "errors"

var (
	// Submission errors.
	ErrRunActive     = errors.New("certflow: a run is already active")
	ErrInvalidConfig = errors.New("certflow: invalid job configuration")

	// Not found errors.
	ErrCheckpointNotFound = errors.New("certflow: checkpoint not found")
	ErrArtifactNotFound   = errors.New("certflow: artifact not found")

	// Dispatch errors.
	ErrNoConnection = errors.New("certflow: no transport connection")

	// Cancellation errors.
	ErrNothingToStop = errors.New("certflow: no run to stop")
)
