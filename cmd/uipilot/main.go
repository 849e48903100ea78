package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rahul/uipilot/internal/agent"
	"github.com/rahul/uipilot/internal/device"
	"github.com/rahul/uipilot/internal/gateway"
	"github.com/rahul/uipilot/internal/governance"
	"github.com/rahul/uipilot/internal/llm"
	"github.com/rahul/uipilot/internal/observability"
	"github.com/rahul/uipilot/internal/scenario"
	"github.com/rahul/uipilot/internal/store"
	"github.com/rahul/uipilot/internal/tools"
	"github.com/rahul/uipilot/pkg/config"
	"github.com/spf13/cobra"
)

var (
	configPath  string
	metricsAddr string
	quiet       bool
)

func main() {
	root := &cobra.Command{
		Use:           "uipilot",
		Short:         "Run natural-language UI test scenarios with an LLM agent",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if !quiet {
				observability.PrintBanner()
			}
			// Route all log output through the terminal mutex so it never
			// interleaves with status lines.
			log.SetOutput(observability.NewTermWriter())
			startMetrics(metricsAddr)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json", "path to a JSON or YAML config file")
	root.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	root.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "do not print the banner")

	root.AddCommand(newRunCmd(), newRecoverCmd(), newRunsCmd(), newWatchCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		log.Printf("\033[91m[ FAIL ] %v\033[0m", err)
		stop()
		os.Exit(1)
	}
}

func startMetrics(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Printf("Serving metrics on %s/metrics", addr)
		if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Metrics server stopped: %v", err)
		}
	}()
}

// app holds the components shared by every command.
type app struct {
	cfg       *config.Config
	store     *store.RecordingStore
	device    device.Device
	logger    *observability.Logger
	agent     *agent.Runner
	scenarios *scenario.Runner
	telegram  *gateway.TelegramGateway
}

// newApp wires the stack. platform and startURL override the device config
// when set.
func newApp(platform, startURL string) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if platform != "" {
		cfg.Device.Platform = platform
	}
	if startURL != "" {
		cfg.Device.StartURL = startURL
	}

	// 1. Model
	pName, pCfg := cfg.GetDefaultProvider()
	if pName == "" {
		return nil, errors.New("no enabled provider found in config")
	}
	model, err := llm.NewModel(llm.ProviderSettings{
		Name:    pName,
		APIKey:  pCfg.APIKey,
		Model:   pCfg.Model,
		BaseURL: pCfg.BaseURL,
	})
	if err != nil {
		return nil, err
	}

	logger := observability.NewLoggerTo(os.Stdout, filepath.Join(cfg.App.LogDir, "llm.jsonl"))
	transport := llm.NewModelTransport(model, pCfg.Model, pCfg.Vision)
	transport.OnUsage = func(model string, u llm.Usage) {
		logger.LogCost("", u.PromptTokens, u.CompletionTokens, model)
	}

	// 2. Device
	var dev device.Device
	switch cfg.Device.Platform {
	case "desktop":
		dev = device.NewDesktop(cfg.Device.Display, cfg.Device.Screenshot || pCfg.Vision)
	default:
		dev = device.NewBrowser(device.BrowserOptions{
			Headless:      cfg.Device.IsHeadless(),
			StartURL:      cfg.Device.StartURL,
			Screenshots:   cfg.Device.Screenshot || pCfg.Vision,
			ActionTimeout: cfg.Device.ActionTimeout.Duration,
		})
	}

	// 3. Policy
	policy, err := governance.NewPolicyEngine(cfg.Policy.DeniedTools, cfg.Policy.DeniedPatterns)
	if err != nil {
		return nil, err
	}

	// 4. Agent
	helper := agent.NewHelper(transport, tools.NewDefaultRegistry(dev.Platform()), dev, agent.NewPromptManager(cfg.Agent.PromptsDir))
	helper.Policy = policy
	helper.Events = logger
	helper.Vision = pCfg.Vision
	helper.Retry = agent.RetryPolicy{
		MaxAttempts: cfg.Agent.RetryAttempts,
		BaseDelay:   cfg.Agent.RetryBaseDelay.Duration,
		Increment:   cfg.Agent.RetryIncrement.Duration,
	}

	runner := agent.NewRunner(helper)
	runner.MaxSteps = cfg.Agent.MaxSteps
	runner.History = agent.HistoryPolicy{Limit: cfg.Agent.HistoryLimit, MaxAge: cfg.Agent.HistoryMaxAge.Duration}

	// 5. Storage
	st, err := store.NewRecordingStore(cfg.Memory.Path)
	if err != nil {
		closeDevice(dev)
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		store:  st,
		device: dev,
		logger: logger,
		agent:  runner,
	}
	a.scenarios = scenario.NewRunner(runner, dev, st)
	a.scenarios.Events = logger

	// 6. Gateways
	if tgCfg, ok := cfg.GetTelegramConfig(); ok {
		tg, err := gateway.NewTelegramGateway(tgCfg.Token, tgCfg.ChatID)
		if err != nil {
			log.Printf("Warning: telegram gateway disabled: %v", err)
		} else {
			a.telegram = tg
			a.scenarios.Notifiers = append(a.scenarios.Notifiers, tg)
		}
	}
	if dcCfg, ok := cfg.GetDiscordConfig(); ok {
		dc, err := gateway.NewDiscordGateway(dcCfg.Token, dcCfg.ChatID)
		if err != nil {
			log.Printf("Warning: discord gateway disabled: %v", err)
		} else {
			a.scenarios.Notifiers = append(a.scenarios.Notifiers, dc)
		}
	}
	return a, nil
}

func (a *app) Close() {
	closeDevice(a.device)
	if err := a.store.Close(); err != nil {
		log.Printf("Failed to close store: %v", err)
	}
}

func closeDevice(dev device.Device) {
	if c, ok := dev.(io.Closer); ok {
		c.Close()
	}
}
