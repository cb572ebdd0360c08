package materialize

import (
	"errors"
	"fmt"
)

// Kind classifies a materialization failure.
type Kind int

const (
	KindConfiguration Kind = iota + 1
	KindLookup
	KindCopy
	KindDirectoryCreate
	KindCycle
	KindInvalidName
)

// Sentinels for errors.Is; every *Error matches the sentinel of its Kind.
var (
	ErrConfiguration   = errors.New("configuration error")
	ErrLookup          = errors.New("lookup error")
	ErrCopy            = errors.New("copy error")
	ErrDirectoryCreate = errors.New("directory create error")
	ErrCycle           = errors.New("directory cycle")
	ErrInvalidName     = errors.New("invalid name")
)

func (k Kind) sentinel() error {
	switch k {
	case KindConfiguration:
		return ErrConfiguration
	case KindLookup:
		return ErrLookup
	case KindCopy:
		return ErrCopy
	case KindDirectoryCreate:
		return ErrDirectoryCreate
	case KindCycle:
		return ErrCycle
	case KindInvalidName:
		return ErrInvalidName
	default:
		return nil
	}
}

func (k Kind) String() string {
	if s := k.sentinel(); s != nil {
		return s.Error()
	}
	return "unknown error"
}

// Error reports a failure tied to one file record and output path.
type Error struct {
	Kind   Kind
	FileID int64
	Path   string // output path, empty when none was built yet
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Kind != KindConfiguration {
		msg += fmt.Sprintf(": file %d", e.FileID)
	}
	if e.Path != "" {
		msg += " -> " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

func newError(kind Kind, fileID int64, path string, err error) *Error {
	return &Error{Kind: kind, FileID: fileID, Path: path, Err: err}
}

// ConfigError builds a configuration failure that is not tied to a record.
func ConfigError(format string, args ...any) error {
	return &Error{Kind: KindConfiguration, Err: fmt.Errorf(format, args...)}
}
