package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tokmz/pusher"
	"github.com/tokmz/pusher/pkg/config"
	"github.com/tokmz/pusher/pkg/logger"
	"github.com/tokmz/pusher/pkg/tracing"
)

// AppConfig 示例程序配置
type AppConfig struct {
	Pusher  pusher.Config  `mapstructure:"pusher"`
	Tracing tracing.Config `mapstructure:"tracing"`
	Log     LogConfig      `mapstructure:"log"`
	Auth    AuthConfig     `mapstructure:"auth"`

	Channel   string        `mapstructure:"channel"`
	Event     string        `mapstructure:"event"`
	Reconnect time.Duration `mapstructure:"reconnect"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// AuthConfig 授权服务配置，Endpoint 为空时按公共频道订阅
type AuthConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Token    string        `mapstructure:"token"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Form     bool          `mapstructure:"form"` // 表单编码提交
}

func main() {
	path := "example/client/config.yaml"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	var lg logger.Logger
	cfg := config.New(
		config.WithConfigFile(path),
		config.WithEnvPrefix("PUSHER"),
		config.WithDefaults(map[string]any{
			"channel":   "my-channel",
			"event":     "my-event",
			"reconnect": "3s",
			"log.level": "info",
		}),
		// 修改配置文件中的 log.level 即时生效
		config.WithOnChange(func(c *config.Config) {
			if level, ok := logger.ParseLevel(c.GetString("log.level")); ok && lg != nil {
				lg.SetLevel(level)
				lg.Info("log level changed", zap.Stringer("level", level))
			}
		}),
		config.WithOnError(func(err error) {
			if lg != nil {
				lg.Warn("reload config failed", zap.Error(err))
			}
		}),
	)
	if err := cfg.Load(); err != nil && !errors.Is(err, config.ErrConfigNotFound) {
		log.Fatalf("加载配置失败: %v", err)
	}
	defer cfg.Close()

	app := AppConfig{
		Pusher:  *pusher.DefaultConfig(),
		Tracing: *tracing.DefaultConfig(),
	}
	app.Tracing.Enabled = false
	if err := cfg.Unmarshal(&app); err != nil {
		log.Fatalf("解析配置失败: %v", err)
	}

	lg, err := newLogger(app.Log)
	if err != nil {
		log.Fatalf("创建日志失败: %v", err)
	}
	defer lg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if app.Tracing.Enabled {
		if _, err := tracing.NewTracerProvider(&app.Tracing); err != nil {
			fatal(lg, "init tracing failed", err)
		}
		defer tracing.Shutdown(context.Background())
	}

	if cfg.ConfigFileUsed() != "" {
		if err := cfg.StartWatch(); err != nil {
			lg.Warn("watch config failed", zap.Error(err))
		}
	}

	client, err := pusher.New("",
		pusher.WithConfig(app.Pusher),
		pusher.WithLogger(lg),
	)
	if err != nil {
		fatal(lg, "create client failed", err)
	}
	defer client.Close()

	if err := subscribe(client, app, lg); err != nil {
		fatal(lg, "subscribe failed", err)
	}

	run(ctx, client, app.Reconnect, lg)
}

func fatal(lg logger.Logger, msg string, err error) {
	lg.Error(msg, zap.Error(err))
	_ = lg.Sync()
	os.Exit(1)
}

func newLogger(cfg LogConfig) (logger.Logger, error) {
	level, ok := logger.ParseLevel(cfg.Level)
	if !ok {
		level = logger.InfoLevel
	}
	opts := []logger.Option{
		logger.WithLevel(level),
		logger.WithConsoleOutput(),
	}
	if f, ok := logger.ParseFormat(cfg.Format); ok {
		opts = append(opts, logger.WithFormat(f))
	}
	if cfg.File != "" {
		opts = append(opts, logger.WithRotateOutput(&logger.RotateConfig{Filename: cfg.File}))
	}
	return logger.NewWithOptions(opts...)
}

// subscribe 绑定处理函数并订阅配置中的频道
func subscribe(client *pusher.Client, app AppConfig, lg logger.Logger) error {
	client.BindAll(func(msg pusher.Message) error {
		lg.Debug("message",
			zap.String("channel", msg.Channel),
			zap.String("event", msg.Event),
			zap.String("data", msg.Data),
		)
		return nil
	})
	client.OnConnect(func(sessionID string) {
		lg.Info("connected", zap.String("session_id", sessionID))
	})
	client.OnError(func(msg pusher.Message) {
		lg.Warn("connection error", zap.String("data", msg.Data))
	})

	var auth pusher.Authorizer
	if app.Auth.Endpoint != "" {
		opts := []pusher.HTTPAuthOption{pusher.WithAuthLogger(lg.Named("auth"))}
		if app.Auth.Timeout > 0 {
			opts = append(opts, pusher.WithAuthTimeout(app.Auth.Timeout))
		}
		if app.Auth.Form {
			opts = append(opts, pusher.WithFormEncoding())
		}
		if app.Auth.Token != "" {
			opts = append(opts, pusher.WithBearerToken(app.Auth.Token))
		}
		auth = pusher.NewHTTPAuthorizer(app.Auth.Endpoint, opts...)
	}

	ch, err := client.Channel(app.Channel, auth)
	if err != nil {
		return err
	}

	ch.OnSubscribed(pusher.HandlerFunc(func(pusher.Message) {
		lg.Info("subscribed", zap.String("channel", ch.Name()), zap.Stringer("mode", ch.Mode()))
	}))
	ch.OnSubscriptionError(func(err error) {
		lg.Error("subscription failed", zap.String("channel", ch.Name()), zap.Error(err))
	})
	ch.Bind(app.Event, func(msg pusher.Message) error {
		lg.Info("event received", zap.String("event", msg.Event), zap.String("data", msg.Data))
		return nil
	})
	// 服务端发送 unsubscribe 事件且数据为 now 时退订
	ch.Bind("unsubscribe", func(msg pusher.Message) error {
		if msg.Data != "now" {
			return nil
		}
		lg.Info("unsubscribing", zap.String("channel", ch.Name()))
		return ch.Unsubscribe()
	})

	return ch.Subscribe()
}

// run 保持连接，断开后等待 backoff 再重连
func run(ctx context.Context, client *pusher.Client, backoff time.Duration, lg logger.Logger) {
	disconnected := make(chan struct{}, 1)
	client.OnDisconnect(func() {
		select {
		case disconnected <- struct{}{}:
		default:
		}
	})

	for {
		if err := client.Connect(ctx); err != nil {
			lg.Warn("connect failed", zap.Error(err), zap.Duration("retry_in", backoff))
		} else {
			select {
			case <-ctx.Done():
				return
			case <-disconnected:
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}
