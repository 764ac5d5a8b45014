package ankiconnect

import (
	"errors"
	"fmt"
)

// AnkiError AnkiConnect 调用错误类型
type AnkiError struct {
	Code    int    // 错误码
	Action  string // 出错的动作
	Message string // 错误消息
}

// Error 实现error接口
func (e AnkiError) Error() string {
	if e.Action == "" {
		return fmt.Sprintf("ankiconnect error (code=%d): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("ankiconnect %s error (code=%d): %s", e.Action, e.Code, e.Message)
}

// 错误码常量
const (
	ErrCodeConnection      = 2001 // 无法连接 AnkiConnect
	ErrCodeTimeout         = 2002 // 请求超时
	ErrCodeServer          = 2003 // AnkiConnect 返回错误
	ErrCodeInvalidResponse = 2004 // 响应无法解析
	ErrCodeInvalidRequest  = 2005 // 请求无法构造
)

// 错误消息常量
const (
	ErrMsgConnection      = "Connection failed"
	ErrMsgTimeout         = "Timeout"
	ErrMsgInvalidResponse = "invalid response from AnkiConnect"
)

// NewAnkiError 创建新的错误
func NewAnkiError(code int, action, message string) AnkiError {
	return AnkiError{
		Code:    code,
		Action:  action,
		Message: message,
	}
}

// WrapError 包装普通错误为 AnkiError
func WrapError(err error, code int) AnkiError {
	if err == nil {
		return AnkiError{Code: code, Message: "unknown error"}
	}

	var ankiErr AnkiError
	if errors.As(err, &ankiErr) {
		return ankiErr
	}

	return AnkiError{
		Code:    code,
		Message: err.Error(),
	}
}

// IsUnavailable 判断错误是否表示 AnkiConnect 不可达
func IsUnavailable(err error) bool {
	var ankiErr AnkiError
	if !errors.As(err, &ankiErr) {
		return false
	}
	return ankiErr.Code == ErrCodeConnection || ankiErr.Code == ErrCodeTimeout
}
