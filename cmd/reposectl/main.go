package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sre-norns/repose/pkg/grace"
)

type ClientConfig struct {
	BaseUrl     string        `help:"Base URL of the API, overrides one from the schema" name:"base-url" env:"REPOSE_BASE_URL"`
	Token       string        `help:"Bearer token to authenticate requests with" env:"REPOSE_TOKEN"`
	Schema      string        `help:"Schema file declaring resource kinds, '-' to read from STDIN" short:"s" env:"REPOSE_SCHEMA" default:"repose.yaml"`
	RateLimit   float64       `help:"Maximum number of requests per second, 0 for no limit" default:"0"`
	Timeout     time.Duration `help:"Timeout for a command" default:"30s"`
	MetricsFile string        `help:"Write client metrics in Prometheus text format to this file on exit" name:"metrics-file" type:"path"`
}

type commandContext struct {
	*ClientConfig

	OutputFormatter formatter
	Context         context.Context
	Logger          log.Logger
	Registry        *prometheus.Registry
}

type outputFormat string

func (f outputFormat) AfterApply(cfg *commandContext) (err error) {
	cfg.OutputFormatter, err = getFormatter(f)
	return err
}

type logLevel string

func (l logLevel) AfterApply(cfg *commandContext) error {
	cfg.Logger = newLogger(l)
	return nil
}

var appCli struct {
	ClientConfig

	Format   outputFormat `enum:"yaml,yml,json,table" help:"Data output format" short:"o" default:"yml"`
	LogLevel logLevel     `enum:"debug,info,warn,error" help:"Log level" name:"log-level" default:"warn"`

	Kinds  KindsCmd  `cmd:"" help:"Show resource kinds declared in the schema"`
	Get    GetCmd    `cmd:"" help:"Get and display a single resource"`
	List   ListCmd   `cmd:"" help:"List resources of a kind"`
	Count  CountCmd  `cmd:"" help:"Count resources of a kind"`
	Set    SetCmd    `cmd:"" help:"Change fields of a resource and save changes"`
	Create CreateCmd `cmd:"" help:"Create a new resource from a file"`
}

func newLogger(l logLevel) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)

	var allow level.Option
	switch l {
	case "debug":
		allow = level.AllowDebug()
	case "info":
		allow = level.AllowInfo()
	case "error":
		allow = level.AllowError()
	default:
		allow = level.AllowWarn()
	}

	return level.NewFilter(logger, allow)
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		grace.ExitOrLog(newLogger("warn"), err)
	}

	mainContext := grace.SetupSignalHandler()
	cfg := &commandContext{
		Context:         mainContext,
		OutputFormatter: yamlFormatter,
		ClientConfig:    &appCli.ClientConfig,
		Logger:          newLogger("warn"),
		Registry:        prometheus.NewRegistry(),
	}
	appCtx := kong.Parse(&appCli,
		kong.Name("reposectl"),
		kong.Description("Command line tool to browse and edit resources of a REST API described by a schema"),
		kong.Bind(cfg),
	)

	err := appCtx.Run(cfg)
	if cfg.MetricsFile != "" {
		if writeErr := prometheus.WriteToTextfile(cfg.MetricsFile, cfg.Registry); writeErr != nil {
			level.Warn(cfg.Logger).Log("msg", "failed to write metrics", "file", cfg.MetricsFile, "err", writeErr)
		}
	}

	if errors.Is(err, context.Canceled) {
		grace.ExitOrLog(cfg.Logger, err)
		return
	}
	grace.SuccessRequired(cfg.Logger, err, "command failed")
}
