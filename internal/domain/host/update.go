package host

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/localwebapp/internal/domain/manifest"
	"github.com/GriffinCanCode/localwebapp/internal/infrastructure/logging"
	"github.com/GriffinCanCode/localwebapp/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/localwebapp/internal/shared/types"
)

// UpdateSource yields the newest known manifest of an app, or nil when it
// knows none
type UpdateSource interface {
	Latest(ctx context.Context, appID string) (*types.Manifest, error)
}

// FileUpdateSource reads candidate descriptors from <Dir>/<appId>/
type FileUpdateSource struct {
	Dir string
}

// Latest implements UpdateSource
func (s *FileUpdateSource) Latest(ctx context.Context, appID string) (*types.Manifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir := filepath.Join(s.Dir, appID)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	doc, err := manifest.Load(dir)
	if err != nil {
		return nil, err
	}
	if doc.Manifest.ID != appID {
		return nil, fmt.Errorf("feed descriptor in %s describes %q", dir, doc.Manifest.ID)
	}
	return &doc.Manifest, nil
}

// HTTPUpdateSource fetches GET <BaseURL>/<appId> and expects a JSON
// descriptor. 404 means no candidate.
type HTTPUpdateSource struct {
	baseURL string
	client  *resty.Client
	breaker *resilience.Breaker
	logger  *zap.Logger
}

// NewHTTPUpdateSource creates a feed client with retries and a circuit breaker
func NewHTTPUpdateSource(baseURL string, timeout time.Duration, retries int, logger *zap.Logger) *HTTPUpdateSource {
	if logger == nil {
		logger = zap.NewNop()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = retries
	retryClient.RetryWaitMin = 100 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = nil

	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "localwebapp-update/1.0")
	client.SetTransport(retryClient.StandardClient().Transport)

	return &HTTPUpdateSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		breaker: resilience.New("update-feed", resilience.ForUpdateFeed(timeout, logger)),
		logger:  logger,
	}
}

// Breaker exposes the circuit breaker guarding the feed
func (s *HTTPUpdateSource) Breaker() *resilience.Breaker {
	return s.breaker
}

// Latest implements UpdateSource
func (s *HTTPUpdateSource) Latest(ctx context.Context, appID string) (*types.Manifest, error) {
	endpoint := s.baseURL + "/" + url.PathEscape(appID)

	return resilience.Do(ctx, s.breaker, func(ctx context.Context) (*types.Manifest, error) {
		resp, err := s.client.R().SetContext(ctx).Get(endpoint)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", endpoint, err)
		}

		switch {
		case resp.StatusCode() == http.StatusNotFound:
			return nil, nil
		case resp.IsError():
			return nil, fmt.Errorf("fetch %s: status %d", endpoint, resp.StatusCode())
		}

		doc, err := manifest.Parse("webapp.json", resp.Body())
		if err != nil {
			return nil, err
		}
		if doc.Manifest.ID != appID {
			return nil, fmt.Errorf("feed returned descriptor for %q", doc.Manifest.ID)
		}
		s.logger.Debug("update feed answered",
			logging.AppID(appID),
			zap.String("version", doc.Manifest.Version))
		return &doc.Manifest, nil
	})
}
