package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lachopopov/multiagent-system-demo/agent/conversation"
	"github.com/lachopopov/multiagent-system-demo/agent/crews"
	"github.com/lachopopov/multiagent-system-demo/agent/hitl"
	"github.com/lachopopov/multiagent-system-demo/agent/selector"
	"github.com/lachopopov/multiagent-system-demo/agent/termination"
	"github.com/lachopopov/multiagent-system-demo/config"
	"github.com/lachopopov/multiagent-system-demo/internal/server"
)

const nextInstructionPrompt = "Enter next instruction or feedback (or 'exit' to quit): "

// chatOptions 是 run 与 calculator 共用的参数
type chatOptions struct {
	task  string
	once  bool
	plain bool
	// askTask 为真时在没有任务的情况下先提示输入，否则使用配置的默认任务
	askTask     bool
	askPrompt   string
	definition  func() crews.Definition
	humanPrompt string
}

func (o *chatOptions) bindFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&o.once, "once", false, "Run a single task and exit without asking for the next instruction")
	cmd.Flags().BoolVar(&o.plain, "plain", false, "Disable colors and markdown rendering")
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &chatOptions{
		definition:  crews.Procurement,
		humanPrompt: crews.ProcurementHumanPrompt,
	}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the procurement group chat",
		Long: `Runs the procurement crew on a task. After every run the next instruction is read from stdin;
an empty line or 'exit' ends the session.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, root, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.task, "task", "t", "", "Initial task (defaults to conversation.default_task)")
	opts.bindFlags(cmd)
	return cmd
}

func newCalculatorCmd(root *rootOptions) *cobra.Command {
	opts := &chatOptions{
		definition: crews.Calculator,
		askTask:    true,
		askPrompt:  "Question: ",
	}
	cmd := &cobra.Command{
		Use:   "calculator [question]",
		Short: "Ask the single-agent calculator",
		Example: `  procurement calculator "What is 6 times 7?"
  procurement calculator --once "2 to the power of 10"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.task = strings.Join(args, " ")
			return runChat(cmd, root, opts)
		},
	}
	opts.bindFlags(cmd)
	return cmd
}

// session 是一次命令执行中的驱动循环
type session struct {
	orch    *conversation.Orchestrator
	console *console
	render  *renderer
	logger  *zap.Logger
}

func runChat(cmd *cobra.Command, root *rootOptions, opts *chatOptions) error {
	cfg, err := root.load()
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	// Ctrl+C 由每次运行单独处理，这里只响应 SIGTERM
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(ctx); err != nil {
			logger.Warn("failed to release resources", zap.Error(err))
		}
	}()

	def := opts.definition()
	in := newConsole(cmd.InOrStdin(), cmd.OutOrStdout())
	view := newRenderer(cmd.OutOrStdout(), opts.plain, def.HumanName())

	s, err := newSession(a, def, opts.humanPrompt, in, view)
	if err != nil {
		return err
	}

	task := strings.TrimSpace(opts.task)
	switch {
	case task != "":
	case !opts.askTask:
		task = cfg.Conversation.DefaultTask
	default:
		line, err := s.prompt(ctx, opts.askPrompt)
		if err != nil || hitl.IsExitInput(line) {
			return ignoreEOF(err)
		}
		task = strings.TrimSpace(line)
	}

	g, gctx := errgroup.WithContext(ctx)
	sctx, cancelServer := context.WithCancel(gctx)
	defer cancelServer()

	if cfg.Server.Enabled {
		if !cfg.Server.JWT.Enabled() && !loopbackAddr(cfg.Server.Addr) {
			logger.Warn("monitor serves the transcript without authentication on a non-loopback address; set server.jwt",
				zap.String("addr", cfg.Server.Addr))
		}
		srv := server.NewManager(server.NewRouter(server.RouterConfig{
			Transcript: a.store,
			Status:     s.orch,
			Metrics:    a.metrics,
			Gatherer:   prometheus.DefaultGatherer,
			Tracer:     a.otel.Tracer("procurement/http"),
			Logger:     logger,
			JWT:        server.JWTConfig(cfg.Server.JWT),
		}), serverConfig(cfg.Server), logger)
		g.Go(func() error { return srv.Run(sctx) })
	}

	g.Go(func() error {
		defer cancelServer()
		return s.loop(gctx, task, opts.once)
	})
	return g.Wait()
}

func newSession(a *app, def crews.Definition, humanPrompt string, in *console, view *renderer) (*session, error) {
	cfg := a.cfg
	crew, err := crews.Build(def, a.provider, crews.AgentSettings{
		Model:         cfg.LLM.Model,
		Temperature:   float32(cfg.LLM.Temperature),
		MaxToolRounds: cfg.LLM.MaxToolRounds,
		Timeout:       cfg.LLM.Timeout,
		Retryer:       a.retryer,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("build %s crew: %w", def.Name, err)
	}

	sel := selector.New(selectorConfig(def, cfg), a.provider, a.logger, selector.WithRetryer(a.retryer))
	eval := termination.New(termination.Config{
		Keywords:    cfg.Conversation.Keywords,
		MaxMessages: cfg.Conversation.MaxMessages,
	})

	opts := []conversation.Option{
		conversation.WithTracer(a.otel.Tracer("procurement")),
		conversation.WithMetrics(a.metrics),
		conversation.WithObserver(view.Observe),
	}
	var human conversation.HumanBoundary
	if def.HumanName() != "" {
		b := hitl.NewBoundary(nil, cfg.Human.Timeout, a.logger)
		b.RegisterHandler(in.humanHandler(b))
		human = b
		if humanPrompt != "" {
			opts = append(opts, conversation.WithHumanPrompt(humanPrompt))
		}
	}

	orch, err := conversation.New(crew.Registry, a.store, eval, sel, human, a.logger, opts...)
	if err != nil {
		return nil, err
	}
	return &session{orch: orch, console: in, render: view, logger: a.logger}, nil
}

// selectorConfig 叠加顺序: 默认值 → 团队模板 → 配置文件
func selectorConfig(def crews.Definition, cfg *config.Config) selector.Config {
	sc := def.SelectorConfig(selector.DefaultConfig())
	sc.HistoryWindow = cfg.Selector.HistoryWindow
	sc.AllowRepeatedSpeaker = cfg.Selector.AllowRepeatedSpeaker
	sc.Model = cfg.LLM.Model
	if cfg.Selector.Timeout > 0 {
		sc.Timeout = cfg.Selector.Timeout
	}
	if cfg.Selector.Template != "" {
		sc.Template = cfg.Selector.Template
	}
	if cfg.Selector.Policy != "" {
		sc.Policy = cfg.Selector.Policy
	}
	return sc
}

func serverConfig(cfg config.ServerConfig) server.Config {
	sc := server.DefaultConfig()
	sc.Addr = cfg.Addr
	if cfg.ReadTimeout > 0 {
		sc.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		sc.WriteTimeout = cfg.WriteTimeout
	}
	if cfg.ShutdownTimeout > 0 {
		sc.ShutdownTimeout = cfg.ShutdownTimeout
	}
	return sc
}

// loopbackAddr 报告监听地址是否只绑定本机
func loopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil || host == "" {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// loop 运行任务，随后读取下一条指令，直到 exit、空行、EOF 或 Ctrl+C
func (s *session) loop(ctx context.Context, task string, once bool) error {
	for {
		runErr := s.run(ctx, task)
		if once {
			return runErr
		}
		if ctx.Err() != nil {
			return nil
		}

		next, err := s.prompt(ctx, nextInstructionPrompt)
		if err != nil {
			return ignoreEOF(err)
		}
		if hitl.IsExitInput(next) {
			s.logger.Info("session ended by user")
			return nil
		}
		task = strings.TrimSpace(next)
	}
}

// run 执行一次任务；Ctrl+C 只取消当前运行
func (s *session) run(ctx context.Context, task string) error {
	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	res, err := s.orch.Run(runCtx, task)
	s.render.Result(res, err)
	if err != nil {
		s.logger.Warn("run ended with error", zap.Error(err))
	}
	return err
}

// prompt 读取一行；等待期间 Ctrl+C 结束会话
func (s *session) prompt(ctx context.Context, text string) (string, error) {
	pctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	line, err := s.console.ReadLine(pctx, text)
	if err != nil && pctx.Err() != nil {
		return "", io.EOF
	}
	return line, err
}

func ignoreEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
