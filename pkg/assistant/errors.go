package assistant

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

// IsTransient 判断错误是否为可重试的瞬时故障：网络错误（含单次请求超时）、5xx，以及非额度耗尽的 429。
// 服务商明确拒绝（其余 4xx）属于永久错误。
// 请求超时与调用方 ctx 到期无法从错误本身区分，调用方需先检查自己的 ctx。
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return transientStatus(apiErr.HTTPStatusCode, fmt.Sprint(apiErr.Code))
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return transientStatus(reqErr.HTTPStatusCode, "")
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

func transientStatus(status int, code string) bool {
	if status == http.StatusTooManyRequests {
		return code != "insufficient_quota"
	}
	return status >= http.StatusInternalServerError
}

// Reason 从服务商错误中提取便于展示的原因。
func Reason(err error) string {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatus
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
