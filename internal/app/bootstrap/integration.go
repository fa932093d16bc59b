package bootstrap

import (
	"fmt"
	"net/url"
	"strings"

	appconfig "github.com/wolfman30/ecw-bridge/internal/config"
	"github.com/wolfman30/ecw-bridge/internal/ecw"
	"github.com/wolfman30/ecw-bridge/internal/observability/metrics"
	"github.com/wolfman30/ecw-bridge/pkg/logging"
)

// BuildIntegrationFactory returns a func that opens one portal integration
// per caller session. The endpoint catalog is built once and shared.
func BuildIntegrationFactory(cfg *appconfig.Config, logger *logging.Logger, portalMetrics *metrics.PortalMetrics) (func(ecw.AuthTokens) (*ecw.Integration, error), error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	baseURL := strings.TrimSpace(cfg.ECWBaseURL)
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("bootstrap: invalid ECW base URL %q: %w", baseURL, err)
	}
	catalog, err := ecw.DefaultCatalog(baseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: build endpoint catalog: %w", err)
	}

	if cfg.ECWDryRun {
		logger.Warn("ecw dry run enabled; portal writes will be skipped")
	}
	logger.Info("ecw integration configured", "base_url", baseURL, "timeout", cfg.ECWHTTPTimeout)

	return func(auth ecw.AuthTokens) (*ecw.Integration, error) {
		return ecw.New(ecw.Config{
			Auth:      auth,
			Catalog:   catalog,
			BaseURL:   baseURL,
			UserAgent: cfg.ECWUserAgent,
			Timeout:   cfg.ECWHTTPTimeout,
			Logger:    logger,
			Metrics:   portalMetrics,
		}, ecw.WithDryRun(cfg.ECWDryRun))
	}, nil
}
