package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"tasktracker/internal/model"
	"tasktracker/internal/pkg/metrics"
	"tasktracker/internal/pkg/seclog"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Handler 提供注册与登录接口。
type Handler struct {
	db     *gorm.DB
	tokens *TokenManager
	seclog *seclog.Logger
	logger *slog.Logger
}

// NewHandler 创建 Auth Handler。
func NewHandler(db *gorm.DB, tokens *TokenManager, events *seclog.Logger, logger *slog.Logger) *Handler {
	return &Handler{
		db:     db,
		tokens: tokens,
		seclog: events,
		logger: logger,
	}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register 创建新用户。
//
// POST /api/register
func (h *Handler) Register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Username and password required"})
		return
	}
	if len(req.Password) < 6 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Password must be at least 6 characters"})
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Could not register user"})
		return
	}

	user := model.User{
		Username:     req.Username,
		PasswordHash: hash,
	}
	if err := h.db.Create(&user).Error; err != nil {
		// 只有唯一索引冲突才视为重名，其余存储错误按 500 处理
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"message": "Username already exists"})
			return
		}
		if h.logger != nil {
			h.logger.Error("create user failed", slog.String("username", req.Username), slog.String("error", err.Error()))
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Could not register user"})
		return
	}

	if h.logger != nil {
		h.logger.Info("user registered", slog.String("username", user.Username), slog.Uint64("user_id", uint64(user.ID)))
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "User registered successfully",
		"user_id": user.ID,
	})
}

// Login 校验用户凭证并签发令牌。
//
// 用户不存在与密码错误返回完全相同的响应，避免泄露哪个因素出错。
//
// POST /api/login
func (h *Handler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Username and password required"})
		return
	}

	var user model.User
	err := h.db.Where("username = ?", req.Username).First(&user).Error
	if err != nil || !VerifyPassword(req.Password, user.PasswordHash) {
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && h.logger != nil {
			h.logger.Error("query user failed", slog.String("error", err.Error()))
		}
		h.seclog.Event("Failed login attempt for user '" + req.Username + "'")
		if metrics.AuthFailuresTotal != nil {
			metrics.AuthFailuresTotal.WithLabelValues("credentials").Inc()
		}
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid credentials"})
		return
	}

	token, err := h.tokens.Issue(user.ID)
	if err != nil {
		if h.logger != nil {
			h.logger.Error("sign token failed", slog.String("username", user.Username), slog.String("error", err.Error()))
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Could not issue token"})
		return
	}

	if h.logger != nil {
		h.logger.Info("user logged in", slog.String("username", user.Username))
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"token":   token,
	})
}
