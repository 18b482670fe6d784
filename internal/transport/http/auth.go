package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mediadl/backend/internal/auth"
	"mediadl/backend/internal/domain"
	"mediadl/backend/internal/middleware"
)

// AuthHandler 处理认证相关的 HTTP 请求
type AuthHandler struct {
	authService  *auth.Service // 认证业务服务
	secureCookie bool          // 会话 Cookie 是否只走 HTTPS
	log          *zap.Logger   // 结构化日志记录器
}

// NewAuthHandler 创建新的认证处理器实例
//
// 参数:
//   - authService: 认证业务服务
//   - secureCookie: 会话 Cookie 是否设置 Secure
//   - log: 日志记录器
//
// 返回值:
//   - *AuthHandler: 认证处理器实例
func NewAuthHandler(authService *auth.Service, secureCookie bool, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{
		authService:  authService,
		secureCookie: secureCookie,
		log:          log.Named("auth-handler"),
	}
}

// Register 处理用户注册请求
// @Summary 用户注册
// @Description 创建新用户账户，用户名与邮箱均不区分大小写唯一
// @Tags 账户
// @Accept json,x-www-form-urlencoded
// @Produce json
// @Param request body domain.RegisterRequest true "注册信息"
// @Success 201 {object} Response{data=domain.User}
// @Failure 400 {object} Response "请求参数错误"
// @Failure 409 {object} Response "用户名或邮箱已存在"
// @Router /register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req domain.RegisterRequest
	if err := c.ShouldBind(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	user, err := h.authService.Register(auth.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		status := accountStatus(err)
		if status == http.StatusInternalServerError {
			h.log.Error("failed to register user", zap.Error(err))
			InternalError(c, "注册失败，请稍后重试")
			return
		}
		Error(c, status, GetErrorMessage(err))
		return
	}

	CreatedWithMsg(c, "注册成功，请登录", user)
}

// Login 处理用户登录请求
// @Summary 用户登录
// @Description 使用用户名或邮箱登录，成功后写入 access_token Cookie 并返回令牌
// @Tags 账户
// @Accept json,x-www-form-urlencoded
// @Produce json
// @Param request body domain.LoginRequest true "登录信息"
// @Success 200 {object} Response{data=auth.Session}
// @Failure 401 {object} Response "用户名或密码错误"
// @Router /login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req domain.LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	session, err := h.authService.Login(auth.LoginInput{
		Identifier: req.Username,
		Password:   req.Password,
	})
	if err != nil {
		status := accountStatus(err)
		if status == http.StatusInternalServerError {
			h.log.Error("failed to login", zap.Error(err))
			InternalError(c, MsgInternalError)
			return
		}
		h.log.Info("login rejected", zap.String("ip", c.ClientIP()), zap.Error(err))
		Error(c, status, GetErrorMessage(err))
		return
	}

	h.setSessionCookie(c, session.Tokens)
	h.log.Info("user logged in", zap.String("userID", session.User.ID))
	SuccessWithMsg(c, "登录成功", session)
}

// Refresh 使用刷新令牌换取新的访问令牌
// @Summary 刷新令牌
// @Tags 账户
// @Accept json,x-www-form-urlencoded
// @Produce json
// @Param request body domain.RefreshTokenRequest true "刷新令牌"
// @Success 200 {object} Response{data=auth.TokenResponse}
// @Failure 401 {object} Response
// @Router /refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req domain.RefreshTokenRequest
	if err := c.ShouldBind(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	tokens, err := h.authService.Refresh(req.RefreshToken)
	if err != nil {
		Unauthorized(c, MsgTokenInvalid)
		return
	}

	h.setSessionCookie(c, tokens)
	Success(c, tokens)
}

// Logout 清除会话 Cookie
// @Summary 退出登录
// @Tags 账户
// @Produce json
// @Success 200 {object} Response
// @Router /logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", h.secureCookie, true)
	SuccessWithMsg(c, "已退出登录", nil)
}

func (h *AuthHandler) setSessionCookie(c *gin.Context, tokens *auth.TokenResponse) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, tokens.AccessToken, int(tokens.ExpiresIn), "/", "", h.secureCookie, true)
}
