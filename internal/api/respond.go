package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	xerrors "AgentHub-Chain/internal/errors"
	"AgentHub-Chain/pkg/logger"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code     xerrors.Code      `json:"code"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.L().Warn("写入响应失败", slog.Any("error", err))
	}
}

// statusFor 将错误码映射为 HTTP 状态码。
func statusFor(code xerrors.Code) int {
	switch code {
	case xerrors.CodeNotConnected:
		return http.StatusConflict
	case xerrors.CodeUserRejected, xerrors.CodeInvalidArgument:
		return http.StatusBadRequest
	case xerrors.CodeNotFound:
		return http.StatusNotFound
	case xerrors.CodeCallReverted:
		return http.StatusUnprocessableEntity
	case xerrors.CodeProviderAbsent, xerrors.CodeInitializationFailure:
		return http.StatusServiceUnavailable
	case xerrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case xerrors.CodeUpstreamFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := xerrors.CodeOf(err)
	detail := errorDetail{Code: code, Message: xerrors.MessageOf(err)}
	if e, ok := xerrors.From(err); ok {
		detail.Metadata = e.Metadata()
	}
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		logger.Named("api").Error("请求处理失败", slog.String("code", string(code)), slog.Any("error", err))
	}
	writeJSON(w, status, errorBody{Error: detail})
}

func badRequest(w http.ResponseWriter, message string) {
	writeError(w, xerrors.New(xerrors.CodeInvalidArgument, message))
}

func unavailable(w http.ResponseWriter, component string) {
	writeError(w, xerrors.New(xerrors.CodeInitializationFailure, component+" 未初始化"))
}
