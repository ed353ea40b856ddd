package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	httpLayer "loan-risk/http"
	"loan-risk/logger"
	"loan-risk/service"
)

const (
	serverShutdownTimeout = 10 * time.Second
	modelCheckTimeout     = 5 * time.Second

	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	loanIDFlag = &cli.StringFlag{
		Name:     "loan-id",
		Aliases:  []string{"l"},
		Usage:    "ID of the loan to score",
		Required: true,
	}

	formatFlag = &cli.StringFlag{
		Name:  "format",
		Usage: "Output format [json, yaml]",
		Value: formatJSON,
	}

	serveCmd = &cli.Command{
		Name:    "serve",
		Aliases: []string{"server"},
		Usage:   "Start the HTTP API",
		Action:  cmdServe,
	}

	scoreCmd = &cli.Command{
		Name:   "score",
		Usage:  "Print the risk assessment of a loan",
		Action: cmdScore,
		Flags: []cli.Flag{
			loanIDFlag,
			formatFlag,
		},
	}

	modelsCmd = &cli.Command{
		Name:   "models",
		Usage:  "List the models installed on the Ollama server",
		Action: cmdModels,
	}
)

func cmdServe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	checkCtx, cancel := context.WithTimeout(ctx, modelCheckTimeout)
	if err := app.analyzer.CheckModel(checkCtx); err != nil {
		logger.Warn("model check failed, analyses will fail until it is available",
			zap.String("model", cfg.Ollama.Model),
			zap.Error(err))
	}
	cancel()

	if !c.Bool(debugFlag.Name) {
		gin.SetMode(gin.ReleaseMode)
	}

	rateLimiter := httpLayer.NewRateLimiter(cfg.RateLimit.Capacity, cfg.RateLimit.Refill())
	defer rateLimiter.Stop()

	router, err := httpLayer.SetupRouter(httpLayer.NewAnalysisHandler(app.service), rateLimiter, cfg.Server.TrustedProxies)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout(),
		WriteTimeout: cfg.Server.WriteTimeout(),
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server started",
			zap.String("address", server.Addr),
			zap.String("model", cfg.Ollama.Model))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server error")
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "forced shutdown")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("server stopped")
	return nil
}

func cmdScore(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	cfg.Store.Driver = ""
	cfg.Redis.Enabled = false

	app, err := newApplication(c.Context, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	assessment, err := app.service.ScoreLoan(c.Context, c.String(loanIDFlag.Name))
	if err != nil {
		return err
	}

	return printResult(c.App.Writer, c.String(formatFlag.Name), assessment)
}

func cmdModels(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	client := service.NewOllamaClient(cfg.Ollama.BaseURL, cfg.Ollama.Timeout())
	models, err := client.ListModels(c.Context)
	if err != nil {
		return err
	}

	for _, m := range models {
		marker := " "
		if m == cfg.Ollama.Model || m == cfg.Ollama.Model+":latest" {
			marker = "*"
		}
		fmt.Fprintf(c.App.Writer, "%s %s\n", marker, m)
	}

	return service.NewLLMAnalyzer(client, cfg.Ollama.Model, cfg.Ollama.Temperature).CheckModel(c.Context)
}

func printResult(w io.Writer, format string, v any) error {
	switch format {
	case formatYAML, "yml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(v)
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}
