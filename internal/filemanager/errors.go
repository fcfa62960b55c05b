package filemanager

import "errors"

var (
	// ErrPhysicalIO is matched by every *OpError.
	ErrPhysicalIO = errors.New("physical filesystem operation failed")

	ErrInvalidName    = errors.New("invalid name")
	ErrRootUnit       = errors.New("operation not allowed on a category root")
	ErrInvalidMove    = errors.New("invalid move destination")
	ErrExists         = errors.New("entry already exists")
	ErrNotManaged     = errors.New("unit is not part of a managed tree")
	ErrNotInitialized = errors.New("file manager not initialized")
)

// OpError records a failed physical operation and the path it was applied
// to. The virtual tree is never modified when an OpError is returned.
type OpError struct {
	Op   string
	Path string
	Err  error
}

func (e *OpError) Error() string {
	return e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrPhysicalIO) true for any OpError.
func (e *OpError) Is(target error) bool { return target == ErrPhysicalIO }
