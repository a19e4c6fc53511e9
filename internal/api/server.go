package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tasktracker/internal/api/auth"
	"tasktracker/internal/api/middleware"
	"tasktracker/internal/config"
	"tasktracker/internal/model"
	"tasktracker/internal/pkg/metrics"
	"tasktracker/internal/pkg/ratelimit"
	"tasktracker/internal/pkg/seclog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// Server 封装了 API 服务所需的依赖和路由处理。
//
// 它持有数据库连接、可选的 Redis 客户端、安全事件日志以及 Gin 路由引擎。
type Server struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *gorm.DB
	rdb       *redis.Client
	router    *gin.Engine
	auth      *auth.Handler
	events    *seclog.Logger
	taskStore TaskStore
	limiter   *ratelimit.Limiter
}

// TaskStore 定义任务存储操作，全部按所属用户过滤。
type TaskStore interface {
	ListTasks(ctx context.Context, userID uint) ([]model.Task, error)
	CreateTask(ctx context.Context, task *model.Task) error
	UpdateTask(ctx context.Context, userID, taskID uint, updates map[string]interface{}) (bool, error)
	DeleteTask(ctx context.Context, userID, taskID uint) (bool, error)
}

type dbTaskStore struct {
	db *gorm.DB
}

func (s dbTaskStore) ListTasks(ctx context.Context, userID uint) ([]model.Task, error) {
	tasks := []model.Task{}
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s dbTaskStore) CreateTask(ctx context.Context, task *model.Task) error {
	return s.db.WithContext(ctx).Create(task).Error
}

func (s dbTaskStore) UpdateTask(ctx context.Context, userID, taskID uint, updates map[string]interface{}) (bool, error) {
	var task model.Task
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", taskID, userID).
		First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(updates) == 0 {
		return true, nil
	}
	err = s.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ? AND user_id = ?", taskID, userID).
		Updates(updates).Error
	return err == nil, err
}

func (s dbTaskStore) DeleteTask(ctx context.Context, userID, taskID uint) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", taskID, userID).
		Delete(&model.Task{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// NewServer 初始化 API 服务器。
//
// 它负责：
// 1. 按配置的驱动打开数据库并执行自动迁移
// 2. 连接 Redis（仅当配置了地址时）
// 3. 打开安全事件日志
// 4. 初始化 Gin 路由引擎
//
// 参数:
//
//	ctx: 上下文
//	cfg: 配置对象
//	logger: 日志记录器
//
// 返回值:
//
//	*Server: 初始化完成的服务器实例
//	error: 初始化失败返回错误
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := openDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&model.User{}, &model.Task{}); err != nil {
		return nil, err
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       0,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
	}

	events, err := seclog.New(cfg.Security.EventLogPath, logger)
	if err != nil {
		return nil, err
	}

	var limiter *ratelimit.Limiter
	if rdb != nil && cfg.Security.LoginRateLimit > 0 {
		limiter = ratelimit.New(rdb, "tasktracker:ratelimit:login:",
			cfg.Security.LoginRateLimit, cfg.Security.LoginRateBurst)
	}

	metrics.Init()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))

	tokens := auth.NewTokenManager(cfg.Security.JWTSecret, cfg.App.TokenTTL)

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		rdb:       rdb,
		router:    r,
		auth:      auth.NewHandler(db, tokens, events, logger),
		events:    events,
		taskStore: dbTaskStore{db: db},
		limiter:   limiter,
	}
	s.registerRoutes(tokens)
	return s, nil
}

func openDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
		TranslateError: true, // 唯一索引冲突映射为 gorm.ErrDuplicatedKey
	}
	switch strings.ToLower(cfg.Driver) {
	case "", "sqlite":
		return gorm.Open(sqlite.Open(cfg.DSN), gormCfg)
	case "mysql":
		return gorm.Open(mysql.Open(cfg.DSN), gormCfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// Close 关闭数据库、缓存与事件日志。
func (s *Server) Close() error {
	var firstErr error
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			firstErr = err
		}
	}
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else if closeErr := sqlDB.Close(); closeErr != nil && firstErr == nil {
			firstErr = closeErr
		}
	}
	if err := s.events.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes(tokens *auth.TokenManager) {
	// Prometheus metrics 端点
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/health", s.handleHealth)

	s.router.POST("/api/register", s.auth.Register)

	login := []gin.HandlerFunc{s.auth.Login}
	if s.limiter != nil {
		login = append([]gin.HandlerFunc{middleware.LoginRateLimit(s.limiter, s.events, s.logger)}, login...)
	}
	s.router.POST("/api/login", login...)

	authed := s.router.Group("/api")
	authed.Use(middleware.AuthMiddleware(tokens, s.events))
	authed.GET("/tasks", s.handleListTasks)
	authed.POST("/tasks", s.handleCreateTask)
	authed.PUT("/tasks/:id", s.handleUpdateTask)
	authed.DELETE("/tasks/:id", s.handleDeleteTask)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// createTaskRequest 创建任务的请求参数。
type createTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// updateTaskRequest 更新任务的请求参数，所有字段均可省略。
type updateTaskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Completed   *bool   `json:"completed"`
}

type taskResponse struct {
	ID          uint      `json:"id"`
	UserID      uint      `json:"user_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
}

// handleListTasks 返回当前用户的任务列表，最新创建的在前。
//
// GET /api/tasks
func (s *Server) handleListTasks(c *gin.Context) {
	userID := middleware.UserID(c)

	tasks, err := s.taskStore.ListTasks(c.Request.Context(), userID)
	if err != nil {
		s.logger.Error("list tasks failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Could not list tasks"})
		return
	}

	out := make([]taskResponse, 0, len(tasks)) // 保证空列表序列化为 [] 而不是 null
	for _, t := range tasks {
		out = append(out, taskResponse{
			ID:          t.ID,
			UserID:      t.UserID,
			Title:       t.Title,
			Description: t.Description,
			Completed:   t.Completed,
			CreatedAt:   t.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"tasks": out})
}

// handleCreateTask 为当前用户创建任务。
//
// POST /api/tasks
func (s *Server) handleCreateTask(c *gin.Context) {
	userID := middleware.UserID(c)

	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Title) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Title required"})
		return
	}

	task := model.Task{
		UserID:      userID,
		Title:       req.Title,
		Description: req.Description,
	}
	if err := s.taskStore.CreateTask(c.Request.Context(), &task); err != nil {
		s.logger.Error("create task failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Could not create task"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Task created successfully",
		"task_id": task.ID,
	})
}

// handleUpdateTask 部分更新任务的标题、描述或完成状态。
//
// 任务不存在与不属于当前用户返回完全相同的 404，避免向非拥有者
// 确认任务是否存在。
//
// PUT /api/tasks/:id
func (s *Server) handleUpdateTask(c *gin.Context) {
	userID := middleware.UserID(c)
	taskID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid task id"})
		return
	}

	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
		return
	}

	updates := map[string]interface{}{}
	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Title required"})
			return
		}
		updates["title"] = *req.Title
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Completed != nil {
		updates["completed"] = *req.Completed
	}

	found, err := s.taskStore.UpdateTask(c.Request.Context(), userID, uint(taskID), updates)
	if err != nil {
		s.logger.Error("update task failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Could not update task"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"message": "Task not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Task updated successfully"})
}

// handleDeleteTask 删除任务。不存在与不属于当前用户同样返回 404。
//
// DELETE /api/tasks/:id
func (s *Server) handleDeleteTask(c *gin.Context) {
	userID := middleware.UserID(c)
	taskID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid task id"})
		return
	}

	found, err := s.taskStore.DeleteTask(c.Request.Context(), userID, uint(taskID))
	if err != nil {
		s.logger.Error("delete task failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Could not delete task"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"message": "Task not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Task deleted successfully"})
}
