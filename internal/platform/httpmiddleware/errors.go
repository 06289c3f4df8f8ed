package httpmiddleware

import (
	"github.com/gin-gonic/gin"
)

// ErrorResponse 是所有错误响应的统一格式
type ErrorResponse struct {
	Code      int    `json:"code"`       //HTTP 状态码
	Message   string `json:"message"`    //错误信息
	RequestID string `json:"request_id"` //请求序号
}

// AbortWithError 写出统一格式的错误响应并终止后续 handler
func AbortWithError(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, ErrorResponse{
		Code:      code,
		Message:   message,
		RequestID: RequestIDFrom(c), //没有就空
	})
}
