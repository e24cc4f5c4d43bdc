package wallet

import (
	"errors"
	"fmt"
	"strings"

	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// EIP-1193 and EIP-3085 provider error codes.
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupportedMethod = 4200
	CodeDisconnected      = 4900
	CodeChainDisconnected = 4901
	CodeUnrecognizedChain = 4902
)

// actionRejected is the string code some client libraries use for a user
// cancellation instead of 4001.
const actionRejected = "ACTION_REJECTED"

// ErrNoProvider is returned when no wallet provider is installed.
var ErrNoProvider = errors.New("no wallet provider available")

// Error is a provider RPC error.
type Error struct {
	Code    int
	Message string
	Data    any
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// ErrorCode satisfies go-ethereum's rpc.Error.
func (e *Error) ErrorCode() int { return e.Code }

// ErrorData satisfies go-ethereum's rpc.DataError.
func (e *Error) ErrorData() any { return e.Data }

// NewError builds a provider error.
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// AsError extracts a provider error from err, converting go-ethereum RPC
// errors on the way.
func AsError(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var perr *Error
	if errors.As(err, &perr) {
		return perr, true
	}
	var rpcErr gethrpc.Error
	if errors.As(err, &rpcErr) {
		converted := &Error{Code: rpcErr.ErrorCode(), Message: rpcErr.Error()}
		var dataErr gethrpc.DataError
		if errors.As(err, &dataErr) {
			converted.Data = dataErr.ErrorData()
		}
		return converted, true
	}
	return nil, false
}

// IsUserRejected reports whether the user explicitly cancelled the request.
func IsUserRejected(err error) bool {
	if err == nil {
		return false
	}
	if perr, ok := AsError(err); ok {
		if perr.Code == CodeUserRejected {
			return true
		}
		if s, ok := perr.Data.(string); ok && s == actionRejected {
			return true
		}
	}
	return strings.Contains(err.Error(), actionRejected)
}

// IsUnrecognizedChain reports whether the wallet does not know the chain.
func IsUnrecognizedChain(err error) bool {
	perr, ok := AsError(err)
	return ok && perr.Code == CodeUnrecognizedChain
}

func normalizeError(err error) error {
	if perr, ok := AsError(err); ok {
		return perr
	}
	return err
}
