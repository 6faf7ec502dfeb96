package analyses

import (
	"errors"

	"github.com/bryanwahyu/geoanalysis/internal/domain/operations"
	"github.com/bryanwahyu/geoanalysis/internal/domain/spatial"
)

var (
	ErrAnalysisNotFound  = errors.New("analysis not found")
	ErrInvalidTransition = errors.New("invalid analysis status transition")
	ErrUnknownTaskState  = errors.New("unknown task state")
	ErrTaskNotFound      = errors.New("task not found")

	// shared with the layers below so callers only need this package
	ErrUnsupportedAnalysisType = operations.ErrUnsupportedAnalysisType
	ErrInvalidParameter        = operations.ErrInvalidParameter
	ErrGeometryOperation       = operations.ErrGeometryOperation
	ErrDatasetNotFound         = spatial.ErrDatasetNotFound
	ErrLayerNotFound           = spatial.ErrLayerNotFound
	ErrStorage                 = spatial.ErrStorage
)
