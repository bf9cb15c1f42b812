package core

import "errors"

var (
	ErrUnknownLevel     = errors.New("unknown coverage level")
	ErrNoReports        = errors.New("no coverage reports found")
	ErrElementMismatch  = errors.New("report element count differs from ordering")
	ErrMissingSeparator = errors.New("report file name has no ___ separator")
	ErrUnreadableReport = errors.New("coverage report cannot be read")
)
