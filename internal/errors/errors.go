package errors

import (
	stdErrors "errors"
	"fmt"
)

// Code 表示系统内的统一错误码。
type Code string

// Severity 决定错误在告警与通知中的级别。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

const (
	CodeUnknown               Code = "UNKNOWN"
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"
	CodeNotFound              Code = "NOT_FOUND"
	CodeInitializationFailure Code = "INITIALIZATION_FAILURE"
	CodeStorageFailure        Code = "STORAGE_FAILURE"
	CodeTimeout               Code = "TIMEOUT"

	// 钱包与合约会话相关错误码。
	CodeProviderAbsent  Code = "PROVIDER_ABSENT"
	CodeUserRejected    Code = "USER_REJECTED"
	CodeWrongNetwork    Code = "WRONG_NETWORK"
	CodeUnknownChain    Code = "UNKNOWN_CHAIN"
	CodeCallReverted    Code = "CALL_REVERTED"
	CodeNotConnected    Code = "NOT_CONNECTED"
	CodeUpstreamFailure Code = "UPSTREAM_FAILURE"
)

type codeInfo struct {
	message  string
	severity Severity
	alert    bool
}

// 钱包侧的拒绝与网络问题属于用户操作，只通知不告警。
var codes = map[Code]codeInfo{
	CodeUnknown:               {"unknown error", SeverityCritical, true},
	CodeInvalidArgument:       {"invalid argument", SeverityInfo, false},
	CodeNotFound:              {"resource not found", SeverityInfo, false},
	CodeInitializationFailure: {"service not initialized", SeverityWarning, true},
	CodeStorageFailure:        {"storage failure", SeverityCritical, true},
	CodeTimeout:               {"operation timed out", SeverityWarning, false},
	CodeProviderAbsent:        {"no wallet provider available", SeverityInfo, false},
	CodeUserRejected:          {"request rejected by user", SeverityInfo, false},
	CodeWrongNetwork:          {"wallet is on the wrong network", SeverityInfo, false},
	CodeUnknownChain:          {"chain is not known to the wallet", SeverityWarning, false},
	CodeCallReverted:          {"contract call failed", SeverityWarning, true},
	CodeNotConnected:          {"wallet not connected", SeverityInfo, false},
	CodeUpstreamFailure:       {"upstream service failure", SeverityWarning, false},
}

func infoOf(code Code) codeInfo {
	if info, ok := codes[code]; ok {
		return info
	}
	return codes[CodeUnknown]
}

// Error 是会话、存储与 API 层共用的错误类型。
type Error struct {
	code     Code
	message  string
	cause    error
	metadata map[string]string
	alert    *bool
}

// Option 定义可选配置。
type Option func(*Error)

// WithMetadata 附加额外信息，例如账户或合约方法名。
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// WithAlert 覆盖错误码默认的告警行为。
func WithAlert(alert bool) Option {
	return func(e *Error) {
		e.alert = &alert
	}
}

// New 创建错误，message 为空时使用错误码的默认描述。
func New(code Code, message string, opts ...Option) *Error {
	if message == "" {
		message = infoOf(code).message
	}
	e := &Error{code: code, message: message}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Wrap 在已有错误外包裹统一错误类型。
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 按错误码匹配，errors.Is(err, New(CodeUserRejected, "")) 即可判断拒绝。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if e == nil || !ok || t == nil {
		return false
	}
	return e.code == t.code
}

// Code 返回错误码。
func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

// Message 返回不含底层原因的描述。
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Metadata 返回附加信息的副本。
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.metadata) == 0 {
		return nil
	}
	clone := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		clone[k] = v
	}
	return clone
}

// From 尝试从 error 链中取出统一错误类型。
func From(err error) (*Error, bool) {
	var target *Error
	if err != nil && stdErrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf 返回错误对应的错误码，非统一错误视为 UNKNOWN。
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.code
	}
	return CodeUnknown
}

// ShouldAlert 判断错误是否需要触发告警。
func ShouldAlert(err error) bool {
	e, ok := From(err)
	if !ok {
		return false
	}
	if e.alert != nil {
		return *e.alert
	}
	return infoOf(e.code).alert
}

// SeverityOf 返回错误严重程度。
func SeverityOf(err error) Severity {
	return infoOf(CodeOf(err)).severity
}

// MessageOf 返回适合展示给用户的错误描述；非统一错误返回原始信息。
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := From(err); ok {
		return e.message
	}
	return err.Error()
}
