// Package api holds the data model shared between the record store, the
// materializer and the host pipeline.
package api

// Status is the result a pipeline module reports to its host.
type Status int

const (
	// StatusOK means the module did its job.
	StatusOK Status = iota
	// StatusFail means at least one error occurred. The host keeps running.
	StatusFail
	// StatusStop asks the host to halt the pipeline early.
	StatusStop
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusFail:
		return "FAIL"
	case StatusStop:
		return "STOP"
	default:
		return "UNKNOWN"
	}
}
