package models

import "errors"

// ErrorInfo 存储了关于错误的结构化信息。
type ErrorInfo struct {
	Message    string `json:"message"`
	Type       string `json:"type,omitempty"`        // 错误的类型，例如 "data_unavailable", "persistence_failure"
	Phase      string `json:"phase,omitempty"`       // 发生错误的调度阶段
	StatusCode int    `json:"status_code,omitempty"` // 相关的HTTP状态码
}

// RequestInfo 存储了关于 HTTP 请求的上下文信息。
type RequestInfo struct {
	Method     string `json:"method"`
	Path       string `json:"path"`
	RemoteAddr string `json:"remote_addr"`
	Status     int    `json:"status"`
	LatencyMs  int64  `json:"latency_ms"`
}

// NewErrorInfo 从 error 构造 ErrorInfo，并根据哨兵错误填充类型。
func NewErrorInfo(err error) ErrorInfo {
	if err == nil {
		return ErrorInfo{}
	}
	info := ErrorInfo{Message: err.Error()}
	switch {
	case errors.Is(err, ErrDataUnavailable):
		info.Type = "data_unavailable"
	case errors.Is(err, ErrPersistence):
		info.Type = "persistence_failure"
	}
	return info
}
