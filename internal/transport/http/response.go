package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 账户接口的统一响应结构
//
// Code 与 HTTP 状态码一致，Msg 为中文提示
type Response struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data,omitempty"`
}

func respond(c *gin.Context, status int, msg string, data interface{}) {
	c.JSON(status, Response{
		Code: status,
		Msg:  msg,
		Data: data,
	})
}

// Success 成功响应（200）
func Success(c *gin.Context, data interface{}) {
	respond(c, http.StatusOK, "成功", data)
}

// SuccessWithMsg 成功响应（自定义消息）
func SuccessWithMsg(c *gin.Context, msg string, data interface{}) {
	respond(c, http.StatusOK, msg, data)
}

// CreatedWithMsg 创建成功（201），用于注册与生成 API Key
func CreatedWithMsg(c *gin.Context, msg string, data interface{}) {
	respond(c, http.StatusCreated, msg, data)
}

// BadRequest 请求参数错误（400）
func BadRequest(c *gin.Context, msg string) {
	respond(c, http.StatusBadRequest, msg, nil)
}

// Unauthorized 未登录或会话失效（401）
func Unauthorized(c *gin.Context, msg string) {
	respond(c, http.StatusUnauthorized, msg, nil)
}

// InternalError 服务器内部错误（500）
func InternalError(c *gin.Context, msg string) {
	respond(c, http.StatusInternalServerError, msg, nil)
}

// Error 按错误分类得到的状态码返回错误
func Error(c *gin.Context, status int, msg string) {
	respond(c, status, msg, nil)
}

// ========== 下载接口的响应格式 ==========
//
// 搜索与下载接口沿用 {success, error} 结构，前端页面与第三方脚本依赖这些字段

// legacyError 下载接口的错误响应
func legacyError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"success": false,
		"error":   msg,
		"code":    code,
	})
}
