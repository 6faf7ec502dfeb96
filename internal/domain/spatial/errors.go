package spatial

import "errors"

var (
	ErrDatasetNotFound = errors.New("dataset not found")
	ErrLayerNotFound   = errors.New("layer not found")
	// ErrStorage wraps any other failure reported by a repository.
	ErrStorage = errors.New("storage failure")
)
