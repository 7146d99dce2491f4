// Package response 统一的 HTTP 响应封装：{code, msg, data}
package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// HTTPStatusProvider 能够提供 HTTP 状态码的错误
type HTTPStatusProvider interface {
	HTTPStatus() int
}

// Success 发送成功响应：HTTP 200，业务码 0
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code": 0,
		"msg":  "success",
		"data": data,
	})
}

// Error 按错误类型映射状态码，无法识别时返回 500
func Error(c *gin.Context, err error) {
	ErrorWithData(c, StatusOf(err), MessageOf(err), nil)
}

// ErrorWithStatus 指定状态码的错误响应
func ErrorWithStatus(c *gin.Context, statusCode int, msg string) {
	ErrorWithData(c, statusCode, msg, nil)
}

// ErrorWithData 带附加数据的错误响应
func ErrorWithData(c *gin.Context, statusCode int, msg string, data any) {
	body := gin.H{
		"code": statusCode,
		"msg":  msg,
	}
	if data != nil {
		body["data"] = data
	}
	c.AbortWithStatusJSON(statusCode, body)
}

// StatusOf 解析错误对应的 HTTP 状态码
func StatusOf(err error) int {
	var p HTTPStatusProvider
	if errors.As(err, &p) {
		return p.HTTPStatus()
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		return grpcCodeToHTTP(st.Code())
	}
	return http.StatusInternalServerError
}

// MessageOf gRPC 错误只取 message 部分
func MessageOf(err error) string {
	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		return st.Message()
	}
	return err.Error()
}

// grpcCodeToHTTP gRPC 到 HTTP 的标准映射
func grpcCodeToHTTP(code codes.Code) int {
	switch code {
	case codes.OK:
		return http.StatusOK
	case codes.Canceled:
		return 499
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists, codes.Aborted:
		return http.StatusConflict
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unimplemented:
		return http.StatusNotImplemented
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
