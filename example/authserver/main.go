package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tokmz/pusher/pkg/config"
	"github.com/tokmz/pusher/pkg/logger"
	"github.com/tokmz/pusher/pkg/tracing"
)

// AuthRequest 客户端授权请求，JSON 与表单编码均可
type AuthRequest struct {
	SocketID    string `json:"socket_id" form:"socket_id" binding:"required"`
	ChannelName string `json:"channel_name" form:"channel_name" binding:"required"`
}

// Server 频道授权服务
type Server struct {
	key    string
	secret string
	token  string
	log    logger.Logger
}

// sign 计算 <key>:<hex(hmac_sha256(secret, socket_id:channel[:channel_data]))>
func (s *Server) sign(parts ...string) string {
	mac := hmac.New(sha256.New, []byte(s.secret))
	mac.Write([]byte(strings.Join(parts, ":")))
	return s.key + ":" + hex.EncodeToString(mac.Sum(nil))
}

func (s *Server) authorize(c *gin.Context) {
	if s.token != "" && c.GetHeader("Authorization") != "Bearer "+s.token {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	var req AuthRequest
	if err := c.ShouldBind(&req); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch {
	case strings.HasPrefix(req.ChannelName, "presence-"):
		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			userID = req.SocketID
		}
		channelData := `{"user_id":"` + userID + `"}`
		c.JSON(http.StatusOK, gin.H{
			"auth":         s.sign(req.SocketID, req.ChannelName, channelData),
			"channel_data": channelData,
		})
	case strings.HasPrefix(req.ChannelName, "private-"):
		c.JSON(http.StatusOK, gin.H{"auth": s.sign(req.SocketID, req.ChannelName)})
	default:
		c.JSON(http.StatusForbidden, gin.H{"error": "channel does not require auth"})
		return
	}

	s.log.DebugContext(c.Request.Context(), "channel authorized",
		zap.String("socket_id", req.SocketID),
		zap.String("channel", req.ChannelName),
	)
}

func main() {
	cfg := config.New(
		config.WithEnvPrefix("AUTH"),
		config.WithDefaults(map[string]any{
			"addr":   ":8081",
			"key":    "app-key",
			"secret": "app-secret",
			"token":  "example-token",

			"shutdown_timeout": 5 * time.Second,
		}),
	)
	if err := cfg.Load(); err != nil && !errors.Is(err, config.ErrConfigNotFound) {
		log.Fatalf("加载配置失败: %v", err)
	}
	if err := cfg.Require("addr", "key", "secret"); err != nil {
		log.Fatalf("配置不完整: %v", err)
	}

	lg, err := logger.NewDevelopment()
	if err != nil {
		log.Fatalf("创建日志失败: %v", err)
	}
	defer lg.Sync()

	tc := tracing.DefaultConfig()
	tc.ServiceName = "pusher-authserver"
	tc.ExporterType = tracing.ExporterNoop
	if _, err := tracing.NewTracerProvider(tc); err != nil {
		log.Fatalf("初始化追踪失败: %v", err)
	}
	defer tracing.Shutdown(context.Background())

	s := &Server{
		key:    cfg.GetString("key"),
		secret: cfg.GetString("secret"),
		token:  cfg.GetString("token"),
		log:    lg,
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(
		gin.Recovery(),
		tracing.Middleware(tracing.WithFilter(func(c *gin.Context) bool {
			return c.Request.URL.Path != "/healthz"
		})),
		accessLog(lg, "/healthz"),
	)
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.POST("/pusher/auth", s.authorize)

	srv := &http.Server{Addr: cfg.GetString("addr"), Handler: r}
	go func() {
		lg.Info("auth server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("listen failed", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GetDuration("shutdown_timeout"))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("shutdown failed", zap.Error(err))
	}
}
