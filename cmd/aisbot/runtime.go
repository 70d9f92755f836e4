package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aisbot/aisbot/internal/agent"
	"github.com/aisbot/aisbot/internal/agent/providers"
	"github.com/aisbot/aisbot/internal/bus"
	"github.com/aisbot/aisbot/internal/channels"
	clichannel "github.com/aisbot/aisbot/internal/channels/cli"
	"github.com/aisbot/aisbot/internal/channels/telegram"
	"github.com/aisbot/aisbot/internal/compression"
	"github.com/aisbot/aisbot/internal/config"
	"github.com/aisbot/aisbot/internal/cron"
	"github.com/aisbot/aisbot/internal/mcp"
	"github.com/aisbot/aisbot/internal/observability"
	"github.com/aisbot/aisbot/internal/sessions"
	"github.com/aisbot/aisbot/internal/skills"
	"github.com/aisbot/aisbot/internal/tools"
	crontool "github.com/aisbot/aisbot/internal/tools/cron"
	"github.com/aisbot/aisbot/internal/tools/files"
	messagetool "github.com/aisbot/aisbot/internal/tools/message"
	"github.com/aisbot/aisbot/internal/tools/shell"
	"github.com/aisbot/aisbot/internal/tools/spawn"
	"github.com/aisbot/aisbot/internal/tools/web"
	"github.com/aisbot/aisbot/internal/workspace"
	"github.com/aisbot/aisbot/pkg/models"
)

// runtime owns every long-lived component behind the serve and message
// commands: observability, bus, sessions, providers, tools, MCP proxy,
// agent loop, channels, and the cron scheduler.
type runtime struct {
	cfg     *config.Config
	logger  *observability.Logger
	metrics *observability.Metrics

	bus      *bus.MessageBus
	store    sessions.Store
	registry *tools.Registry
	proxy    *mcp.Proxy
	manager  *agent.Manager
	loop     *agent.Loop
	channels *channels.Registry
	cron     *cron.Service
	skills   *skills.Loader

	metricsServer  *http.Server
	dispatchDone   chan struct{}
	shutdownTracer func(context.Context) error
}

// newRuntime wires all components from configuration in dependency order.
// Nothing is started; call Start for the daemon surfaces, or drive
// loop.RunDirect for one-shot turns.
func newRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	metrics := observability.NewMetrics()

	traceCfg := observability.TraceConfig{
		ServiceName:    "aisbot",
		ServiceVersion: version,
		SamplingRate:   cfg.Observability.Tracing.SamplingRate,
		Insecure:       cfg.Observability.Tracing.Insecure,
	}
	if cfg.Observability.Tracing.Enabled {
		traceCfg.Endpoint = cfg.Observability.Tracing.Endpoint
		if cfg.Observability.Tracing.ServiceName != "" {
			traceCfg.ServiceName = cfg.Observability.Tracing.ServiceName
		}
	}
	tracer, shutdownTracer := observability.NewTracer(traceCfg)

	b, err := bus.New(cfg.Bus.Provider, bus.Options{
		DomainID:    cfg.Bus.DomainID,
		ZenohConfig: cfg.Bus.ZenohConfig,
		Logger:      logger,
		Metrics:     metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("create bus: %w", err)
	}
	if err := b.Init(ctx); err != nil {
		return nil, fmt.Errorf("init bus: %w", err)
	}

	store, err := sessions.New(cfg, logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	ws := cfg.WorkspacePath()
	boot, err := workspace.EnsureWorkspaceFiles(ws, workspace.DefaultBootstrapFiles(), false)
	if err != nil {
		return nil, err
	}
	if len(boot.Created) > 0 {
		logger.Info(ctx, "workspace bootstrapped", "path", ws, "created", len(boot.Created))
	}

	chat := providers.FromConfig(ctx, cfg, logger, metrics)

	// The summary strategy needs a plain chat function; the factory absorbs
	// provider failures into the response, so surface those as errors here.
	chatFn := func(ctx context.Context, messages []models.ChatMessage) (*models.LLMResponse, error) {
		resp := chat.Chat(ctx, &agent.ChatRequest{Messages: messages})
		if resp.FinishReason == "error" {
			return nil, errors.New(resp.Content)
		}
		return resp, nil
	}
	compressor := compression.NewCompressor(cfg.Tools.Compression, chatFn, logger, metrics)

	skillsLoader := skills.NewLoader(cfg.SkillsDir(), logger)

	mcpServers := cfg.MCPServers
	if len(mcpServers) == 0 {
		mcpServers = discoverMCPServers(ctx, ws, logger)
	}
	proxy := mcp.NewProxy(mcpServers, logger, metrics)

	registry := tools.NewRegistry(logger, metrics)
	subRegistry := tools.NewRegistry(logger, metrics)

	base := baseTools(cfg, ws)
	base = append(base, mcp.NewProxyTool(proxy))
	for _, reg := range []*tools.Registry{registry, subRegistry} {
		for _, tool := range base {
			if err := reg.Register(tool); err != nil {
				return nil, fmt.Errorf("register tool: %w", err)
			}
		}
	}

	manager := agent.NewManager(b, chat, subRegistry, store, ws, cfg.Agents.Defaults, logger, metrics)

	// Conversation-facing tools stay out of the subagent registry so
	// background tasks cannot send messages or spawn more of themselves.
	conversational := []tools.Tool{
		messagetool.NewTool(b),
		spawn.NewTool(manager),
	}
	var cronService *cron.Service
	if cfg.Cron.Enabled {
		cronService = cron.NewService(cron.Config{
			StorePath: cfg.CronStorePath(),
			Publisher: b,
			Logger:    logger,
			Metrics:   metrics,
		})
		conversational = append(conversational, crontool.NewTool(cronService))
	}
	for _, tool := range conversational {
		if err := registry.Register(tool); err != nil {
			return nil, fmt.Errorf("register tool: %w", err)
		}
	}

	builder := agent.NewContextBuilder(ws, skillsLoader, compressor, logger)

	deps := agent.Deps{
		Bus:        b,
		Chat:       chat,
		Sessions:   store,
		Registry:   registry,
		Context:    builder,
		Compressor: compressor,
		Logger:     logger,
		Metrics:    metrics,
		Tracer:     tracer,
	}
	if len(mcpServers) > 0 {
		deps.Discovery = proxy
	}
	loop := agent.NewLoop(deps, cfg.Agents.Defaults)

	chRegistry := channels.NewRegistry(b, logger)
	if cfg.Channels.CLI.Enabled {
		if err := chRegistry.Register(clichannel.New(b, clichannel.Config{Logger: logger})); err != nil {
			return nil, err
		}
	}
	if cfg.Channels.Telegram.Enabled {
		tg, err := telegram.New(b, telegram.Config{
			Token:     cfg.Channels.Telegram.Token,
			AllowFrom: cfg.Channels.Telegram.AllowFrom,
			Proxy:     cfg.Channels.Telegram.Proxy,
			MediaDir:  filepath.Join(ws, "media"),
			Logger:    logger,
			Metrics:   metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("telegram adapter: %w", err)
		}
		if err := chRegistry.Register(tg); err != nil {
			return nil, err
		}
	}

	return &runtime{
		cfg:            cfg,
		logger:         logger,
		metrics:        metrics,
		bus:            b,
		store:          store,
		registry:       registry,
		proxy:          proxy,
		manager:        manager,
		loop:           loop,
		channels:       chRegistry,
		cron:           cronService,
		skills:         skillsLoader,
		shutdownTracer: shutdownTracer,
	}, nil
}

// baseTools builds the workspace tools shared by the main loop and
// subagents.
func baseTools(cfg *config.Config, ws string) []tools.Tool {
	fileCfg := files.Config{
		Workspace: ws,
		Restrict:  cfg.Tools.RestrictToWorkspace,
	}
	shellCfg := shell.Config{
		Workspace: ws,
		Restrict:  cfg.Tools.RestrictToWorkspace,
		Timeout:   time.Duration(cfg.Tools.Exec.Timeout) * time.Second,
	}
	webCfg := web.Config{MaxResults: cfg.Tools.Web.Search.MaxResults}

	return []tools.Tool{
		files.NewReadTool(fileCfg),
		files.NewWriteTool(fileCfg),
		files.NewEditTool(fileCfg),
		files.NewListDirTool(fileCfg),
		shell.NewExecTool(shellCfg),
		web.NewSearchTool(webCfg),
		web.NewFetchTool(webCfg),
	}
}

// discoverMCPServers searches the standard candidate paths for MCP server
// definitions when the main config carries none.
func discoverMCPServers(ctx context.Context, ws string, logger *observability.Logger) map[string]config.MCPServerConfig {
	for _, candidate := range config.MCPConfigCandidates(ws) {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		servers, err := config.LoadMCPServers(candidate)
		if err != nil {
			logger.Debug(ctx, "mcp config candidate rejected", "path", candidate, "error", err)
			continue
		}
		logger.Info(ctx, "mcp servers loaded", "path", candidate, "servers", len(servers))
		return servers
	}
	return nil
}

// Start brings up the daemon surfaces and blocks on the agent loop until
// Stop is called or ctx is cancelled.
func (rt *runtime) Start(ctx context.Context) error {
	if err := rt.startMetricsServer(ctx); err != nil {
		return err
	}

	if err := rt.channels.StartAll(ctx); err != nil {
		return err
	}

	// Outbound dispatch runs until bus.Stop so replies queued during
	// shutdown still reach their adapters.
	rt.dispatchDone = make(chan struct{})
	go func() {
		defer close(rt.dispatchDone)
		if err := rt.bus.DispatchOutbound(context.Background()); err != nil {
			rt.logger.Error(ctx, "outbound dispatch stopped", "error", err)
		}
	}()

	if rt.cron != nil {
		if err := rt.cron.Start(ctx); err != nil {
			return fmt.Errorf("start cron: %w", err)
		}
	}

	if rt.cfg.Skills.Watch {
		if err := rt.skills.Watch(ctx); err != nil {
			rt.logger.Warn(ctx, "skills watcher unavailable", "error", err)
		}
	}

	if len(rt.proxy.ServerNames()) > 0 {
		rt.proxy.Preload(ctx)
		registered := rt.proxy.RegisterAll(ctx, rt.registry)
		rt.logger.Info(ctx, "mcp tools registered", "count", len(registered))
	}

	return rt.loop.Run(ctx)
}

// Stop tears the runtime down in reverse dependency order. Every component
// is stopped even when one fails; the first error wins.
func (rt *runtime) Stop(ctx context.Context) error {
	rt.loop.Stop()

	if rt.cron != nil {
		rt.cron.Stop()
	}

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	record(rt.channels.StopAll(ctx))

	// Subagents publish completion announcements to the bus, so wait for
	// them before stopping it.
	rt.manager.Wait()
	rt.bus.Stop()
	if rt.dispatchDone != nil {
		<-rt.dispatchDone
	}

	record(rt.skills.Close())
	record(rt.store.Close())

	if rt.metricsServer != nil {
		record(rt.metricsServer.Shutdown(ctx))
	}
	if rt.shutdownTracer != nil {
		record(rt.shutdownTracer(ctx))
	}
	return firstErr
}

// startMetricsServer exposes /metrics and /healthz when an address is
// configured.
func (rt *runtime) startMetricsServer(ctx context.Context) error {
	addr := rt.cfg.Observability.MetricsAddr
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listen: %w", err)
	}
	rt.metricsServer = server

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.logger.Error(ctx, "metrics server error", "error", err)
		}
	}()

	rt.logger.Info(ctx, "metrics server started", "addr", addr)
	return nil
}
