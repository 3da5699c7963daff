package ticket

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/voyaai/voyaai/internal/provider/resilience"
)

// ResolverName identifies the recognizer in the provider registry.
const ResolverName = "ticket-recognizer"

// HTTPDoer executes HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPResolverConfig configures an HTTPResolver.
type HTTPResolverConfig struct {
	// Endpoint receives the raw image in a POST body and answers with the
	// recognizer's JSON (required).
	Endpoint string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// HTTPClient (optional). If nil, uses a resilient client.
	HTTPClient HTTPDoer

	// Timeout for a single recognition (default: 30s).
	Timeout time.Duration

	// Registry for health tracking (optional).
	Registry *resilience.Registry

	Logger zerolog.Logger
}

// HTTPResolver sends ticket images to a recognition service.
type HTTPResolver struct {
	endpoint   string
	apiKey     string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

var _ Resolver = (*HTTPResolver)(nil)

// NewHTTPResolver creates a resolver for cfg.Endpoint.
func NewHTTPResolver(cfg HTTPResolverConfig) *HTTPResolver {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.RecognizerClientConfig(ResolverName)
		clientCfg.Timeout = timeout
		clientCfg.Registry = cfg.Registry
		clientCfg.Logger = cfg.Logger
		httpClient = resilience.NewClient(clientCfg)
	}

	return &HTTPResolver{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Resolve recognizes image and returns the parsed ticket. Recognizer
// rejections come back as *ParseError.
func (r *HTTPResolver) Resolve(ctx context.Context, image []byte) (*Ticket, error) {
	if len(image) == 0 {
		return nil, ErrEmptyImage
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", http.DetectContentType(image))
	req.Header.Set("Accept", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling recognizer: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading recognizer response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("recognizer returned status %d", resp.StatusCode)
	}

	t, err := Parse(body)
	if err != nil {
		r.logger.Info().Err(err).Int("image_bytes", len(image)).Msg("ticket not recognized")
		return nil, err
	}

	r.logger.Debug().
		Str("type", string(t.Type)).
		Str("number", t.Number()).
		Msg("ticket recognized")
	return t, nil
}
