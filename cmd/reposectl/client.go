package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sre-norns/repose/pkg/api"
	"github.com/sre-norns/repose/pkg/grace"
	"github.com/sre-norns/repose/pkg/repose"
	"github.com/sre-norns/repose/pkg/schema"
	"golang.org/x/time/rate"
)

func readContent(filename string) ([]byte, string, error) {
	if filename == "-" {
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return content, "<stdin>", fmt.Errorf("failed to read content from STDIN: %w", err)
		}

		return content, "<stdin>", err
	}

	content, err := os.ReadFile(filename)
	return content, filepath.Ext(filename), err
}

// connect loads the schema and registers its kinds with an Api talking to the configured server
func (cfg *commandContext) connect() (*repose.Api, error) {
	content, _, err := readContent(cfg.Schema)
	if err != nil {
		return nil, grace.WrapError(err, "a readable schema file", "pass --schema or set REPOSE_SCHEMA")
	}

	declared, err := schema.Parse(content)
	if err != nil {
		return nil, fmt.Errorf("schema %q: %w", cfg.Schema, err)
	}

	baseUrl := cfg.BaseUrl
	if baseUrl == "" {
		baseUrl = declared.BaseUrl
	}
	if baseUrl == "" {
		return nil, grace.RaiseError("API base URL", "nothing", "pass --base-url, set REPOSE_BASE_URL or baseUrl in the schema")
	}

	options := []api.Option{
		api.WithLogger(cfg.Logger),
	}
	if cfg.Registry != nil {
		options = append(options, api.WithMetrics(cfg.Registry))
	}
	if cfg.Token != "" {
		options = append(options, api.WithBearerToken(cfg.Token))
	}
	if cfg.RateLimit > 0 {
		options = append(options, api.WithRateLimit(rate.Limit(cfg.RateLimit), 1))
	}

	client, err := api.NewRestApiClient(baseUrl, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize API Client: %w", err)
	}

	a := repose.NewApi(client, repose.WithLogger(cfg.Logger))
	if _, err := declared.Register(a); err != nil {
		return nil, err
	}

	return a, nil
}
