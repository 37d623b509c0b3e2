package models

import "errors"

// Error taxonomy. Validation errors surface synchronously to the submitter;
// engine failures surface asynchronously via the terminal event.
var (
	// ErrInvalidFormat indicates an unsupported input extension or requested
	// output format. Rejected before any job or file is created.
	ErrInvalidFormat = errors.New("unsupported input or output format")

	// ErrUploadRejected indicates the upload exceeded the size ceiling or the
	// multipart payload was malformed. Rejected before job creation.
	ErrUploadRejected = errors.New("upload rejected")

	// ErrArtifactNotFound indicates retrieval after the retention window
	// elapsed, or for a job that failed and never produced an output.
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrJobNotFound indicates an unknown job identifier.
	ErrJobNotFound = errors.New("job not found")

	// ErrStorageUnavailable indicates the working directories cannot be
	// created or written. Fatal for the submission, not for the process.
	ErrStorageUnavailable = errors.New("storage unavailable")
)
