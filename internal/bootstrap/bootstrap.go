package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	domainchat "yiscore-server-go/internal/domain/chat"
	"yiscore-server-go/internal/domain/eventbus"
	domainllm "yiscore-server-go/internal/domain/llm"
	_ "yiscore-server-go/internal/domain/llm/openai"
	domainsession "yiscore-server-go/internal/domain/session"
	platformconfig "yiscore-server-go/internal/platform/config"
	platformerrors "yiscore-server-go/internal/platform/errors"
	platformlogging "yiscore-server-go/internal/platform/logging"
	platformstorage "yiscore-server-go/internal/platform/storage"
	httptransport "yiscore-server-go/internal/transport/http"
	httpchat "yiscore-server-go/internal/transport/http/chat"
)

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	config     *platformconfig.Config
	configPath string
	logger     *platformlogging.Logger
	database   *platformstorage.Database
	sessions   domainsession.Store
	provider   domainllm.Provider
}

// Run 启动整个服务生命周期，负责加载配置、初始化依赖和优雅关停。
func Run(ctx context.Context) error {
	state := &appState{}

	steps := InitGraph()
	if err := executeInitSteps(ctx, steps, state); err != nil {
		return err
	}

	config := state.config
	logger := state.logger
	if config == nil || logger == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"bootstrap state validation",
			"config/logger not initialised",
		)
	}

	logBootstrapGraph(steps, logger)

	defer func() {
		if state.provider != nil {
			if err := state.provider.Cleanup(); err != nil {
				logger.WarnTag("引导", "LLM提供者未正常清理: %v", err)
			}
		}
		if state.sessions != nil {
			if err := state.sessions.Close(context.Background()); err != nil {
				logger.WarnTag("会话", "会话存储未正常关闭: %v", err)
			}
		}
		if state.database != nil {
			if err := state.database.Close(); err != nil {
				logger.WarnTag("数据库", "数据库连接未正常关闭: %v", err)
			}
		}
	}()

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	if _, err := startHTTPServer(state, group, groupCtx); err != nil {
		cancel()
		return fmt.Errorf("启动 Http 服务失败: %w", err)
	}

	if err := waitForShutdown(signalCtx, cancel, logger, group); err != nil {
		return err
	}

	logger.InfoTag("引导", "服务已停止")
	logger.Close()
	return nil
}

func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLoggingStep,
		},
		{
			ID:        "storage:init-database",
			Title:     "Initialise database",
			DependsOn: []string{"config:load", "logging:init-provider"},
			Kind:      platformerrors.KindStorage,
			Execute:   initDatabaseStep,
		},
		{
			ID:        "session:init-store",
			Title:     "Initialise session store",
			DependsOn: []string{"config:load", "logging:init-provider"},
			Kind:      platformerrors.KindSession,
			Execute:   initSessionStoreStep,
		},
		{
			ID:        "events:register-handlers",
			Title:     "Register lifecycle event handlers",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   registerEventHandlersStep,
		},
		{
			ID:        "llm:init-provider",
			Title:     "Initialise LLM provider",
			DependsOn: []string{"config:load", "logging:init-provider"},
			Kind:      platformerrors.KindProvider,
			Execute:   initProviderStep,
		},
	}
}

func logBootstrapGraph(steps []initStep, logger *platformlogging.Logger) {
	logger.InfoTag("引导", "初始化依赖关系概览")

	stepNames := map[string]string{
		"config:load":              "加载配置",
		"logging:init-provider":    "初始化日志提供者",
		"storage:init-database":    "初始化数据库",
		"session:init-store":       "初始化会话存储",
		"events:register-handlers": "注册生命周期事件处理器",
		"llm:init-provider":        "初始化LLM提供者",
	}

	for _, step := range steps {
		if name, ok := stepNames[step.ID]; ok {
			logger.InfoTag("引导", name)
		}
	}
	logger.InfoTag("引导", "启动服务")
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"execute init steps",
			"nil bootstrap state",
		)
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(
					platformerrors.KindBootstrap,
					step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep),
				)
			}
		}
		if step.Execute == nil {
			return platformerrors.New(
				platformerrors.KindBootstrap,
				step.ID,
				"missing execute function",
			)
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}

			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

func loadConfigStep(_ context.Context, state *appState) error {
	result, err := platformconfig.NewLoader().Load()
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindConfig, "config:load", "failed to load configuration", err)
	}

	state.config = result.Config
	state.configPath = result.Path
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	if state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"logging:init-provider",
			"config not loaded",
		)
	}

	logger, err := platformlogging.NewLogger(&platformlogging.Config{
		LogLevel: state.config.Log.Level,
		LogDir:   state.config.Log.Dir,
		LogFile:  state.config.Log.File,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "logging:init-provider", "failed to initialize logging provider", err)
	}

	state.logger = logger
	logger.InfoTag("引导", "日志模块就绪 [%s] %s", state.config.Log.Level, state.configPath)
	return nil
}

func initDatabaseStep(_ context.Context, state *appState) error {
	database, err := platformstorage.Open(state.config.Database)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "storage:init-database", "failed to initialize database", err)
	}

	state.database = database
	state.logger.InfoTag("数据库", "数据库连接就绪 [%s]", state.config.Database.Driver)
	return nil
}

func initSessionStoreStep(_ context.Context, state *appState) error {
	cfg := domainsession.Config{
		Driver: state.config.Session.Driver,
		TTL:    state.config.Session.TTL,
	}
	if cfg.Driver == domainsession.DriverRedis {
		cfg.Redis = &domainsession.RedisConfig{
			Addr:     state.config.Session.Redis.Addr,
			Username: state.config.Session.Redis.Username,
			Password: state.config.Session.Redis.Password,
			DB:       state.config.Session.Redis.DB,
			Prefix:   state.config.Session.Redis.Prefix,
		}
	}

	sessions, err := domainsession.New(cfg)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindSession, "session:init-store", "failed to create session store", err)
	}

	state.sessions = sessions
	state.logger.InfoTag("会话", "会话存储就绪 [%s]", state.config.Session.Driver)
	return nil
}

func registerEventHandlersStep(_ context.Context, state *appState) error {
	if err := eventbus.SetupEventHandlers(state.logger); err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "events:register-handlers", "failed to register event handlers", err)
	}
	return nil
}

func initProviderStep(_ context.Context, state *appState) error {
	provider, err := domainllm.Create("openai", &domainllm.Config{
		Type:        "openai",
		ModelName:   state.config.LLM.ModelName,
		BaseURL:     state.config.LLM.BaseURL,
		APIKey:      state.config.LLM.APIKey,
		Temperature: state.config.LLM.Temperature,
		MaxTokens:   state.config.LLM.MaxTokens,
		TopP:        state.config.LLM.TopP,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindProvider, "llm:init-provider", "failed to create llm provider", err)
	}
	if err := provider.Initialize(); err != nil {
		return platformerrors.Wrap(platformerrors.KindProvider, "llm:init-provider", "failed to initialize llm provider", err)
	}

	state.provider = provider
	state.logger.InfoLLM("LLM提供者就绪 - 模型: %s, 地址: %s",
		state.config.LLM.ModelName, state.config.LLM.BaseURL)
	return nil
}

func startHTTPServer(
	state *appState,
	g *errgroup.Group,
	groupCtx context.Context,
) (*http.Server, error) {
	config := state.config
	logger := state.logger

	httpRouter, err := httptransport.Build(httptransport.Options{
		Config: config,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	contextBuilder := domainchat.NewContextBuilder(
		platformstorage.NewPatientRepository(),
		config.Context,
	)

	relay, err := domainchat.NewService(
		state.provider,
		state.database,
		contextBuilder,
		state.sessions,
		logger,
	)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindBootstrap, "chat:new-service", "failed to create chat service", err)
	}

	chatService, err := httpchat.NewService(config, logger, relay)
	if err != nil {
		logger.ErrorTag("聊天", "聊天服务初始化失败: %v", err)
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "chat:new-http-service", "failed to create chat http service", err)
	}

	if err := chatService.Register(groupCtx, httpRouter.API); err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "chat:register-routes", "failed to register chat routes", err)
	}

	httpServer := &http.Server{
		Addr:    config.Server.IP + ":" + strconv.Itoa(config.Server.Port),
		Handler: httpRouter.Engine,
	}

	g.Go(func() error {
		logger.InfoTag("HTTP", "Gin 服务已启动，访问地址 http://localhost:%d", config.Server.Port)
		logger.InfoTag("HTTP", "聊天接口入口: http://localhost:%d%s/completions", config.Server.Port, config.Server.APIPrefix)

		go func() {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.ErrorTag("HTTP", "HTTP 服务关闭失败: %v", err)
			} else {
				logger.InfoTag("HTTP", "HTTP 服务已优雅关闭")
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag("HTTP", "HTTP 服务启动失败: %v", err)
			return err
		}
		return nil
	})

	return httpServer, nil
}

func waitForShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	logger *platformlogging.Logger,
	g *errgroup.Group,
) error {
	<-ctx.Done()
	logger.InfoTag("引导", "收到系统信号 %v，正在进行资源清理", context.Cause(ctx))

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag("引导", "服务关闭过程中出现错误: %v", err)
			return err
		}
		logger.InfoTag("引导", "所有服务已成功关闭")
	case <-time.After(15 * time.Second):
		timeoutErr := errors.New("服务关闭超时")
		logger.ErrorTag("引导", "服务关闭超时，已强制退出")
		return timeoutErr
	}
	return nil
}
