package cmd

import (
	"errors"

	"github.com/abdul-hamid-achik/hitfetch/packages/http"
)

// Exit codes for hitfetch CLI
const (
	// ExitSuccess indicates the request succeeded
	ExitSuccess = 0

	// ExitRequestFailure indicates a bad status, length, decode or schema result
	ExitRequestFailure = 1

	// ExitParseError indicates a request file could not be read or parsed
	ExitParseError = 2

	// ExitConfigError indicates an invalid configuration or request description
	ExitConfigError = 3

	// ExitNetworkError indicates a DNS, connection or timeout failure
	ExitNetworkError = 4

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)

// exitError carries the process exit code out of a command. reported is set
// when the formatter already printed the failure.
type exitError struct {
	code     int
	err      error
	reported bool
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitWith(code int, err error) error {
	return &exitError{code: code, err: err}
}

func reportedExit(code int, err error) error {
	return &exitError{code: code, err: err, reported: true}
}

// exitCodeFor maps a request error to an exit code.
func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}

	switch http.KindOf(err) {
	case http.KindInvalidConfig, http.KindConflictingOptions, http.KindNonSerializableValue:
		return ExitConfigError
	case http.KindDNSResolutionFailed, http.KindConnectionError, http.KindRequestTimeout, http.KindResponseTimeout:
		return ExitNetworkError
	case "":
		return ExitUsageError
	default:
		return ExitRequestFailure
	}
}
