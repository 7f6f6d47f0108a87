package httpclient

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"governance_relayer/internal/app/port"
	"governance_relayer/internal/domain/entity"
	"governance_relayer/internal/infrastructure/configloader"

	jsoniter "github.com/json-iterator/go"
	"github.com/patrickmn/go-cache"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var _ port.AttestationFetcher = (*attestationClient)(nil)

// signedVAAResponse is the body of GET /v1/signed_vaa/{chain}/{emitter}/{seq}.
type signedVAAResponse struct {
	VaaBytes string `json:"vaaBytes"`
	Code     int    `json:"code,omitempty"`
	Message  string `json:"message,omitempty"`
}

// attestationClient looks up signed messages on the guardian REST service.
// Each FetchAttestation call is a single HTTP attempt; signed payloads never change, so
// successful lookups are cached.
type attestationClient struct {
	client  *fasthttp.Client
	timeout time.Duration
	logger  *zap.Logger
	limiter *rate.Limiter
	cache   *cache.Cache
	group   singleflight.Group
}

// NewAttestationClient creates the guardian REST client.
func NewAttestationClient(cfg configloader.AttestationConfig, logger *zap.Logger) port.AttestationFetcher {
	ttl := time.Duration(cfg.CacheTTLMinutes) * time.Minute
	return &attestationClient{
		client: &fasthttp.Client{
			Name:                "governance-relayer",
			MaxIdleConnDuration: 30 * time.Second,
		},
		timeout: configloader.Millis(cfg.RequestTimeoutMs),
		logger:  logger.Named("AttestationClient"),
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), cfg.Burst),
		cache:   cache.New(ttl, 2*ttl),
	}
}

// FetchAttestation implements port.AttestationFetcher.
func (c *attestationClient) FetchAttestation(ctx context.Context, serviceBaseURL string, key entity.AttestationKey) ([]byte, error) {
	base := strings.TrimRight(strings.TrimSpace(serviceBaseURL), "/")
	if base == "" {
		return nil, entity.ConfigError("attestation service address is empty")
	}
	requestURL := fmt.Sprintf("%s/v1/signed_vaa/%d/%s/%d", base, key.EmitterChainID, key.EmitterAddress, key.Sequence)

	if cached, found := c.cache.Get(requestURL); found {
		c.logger.Debug("Attestation served from cache", zap.String("key", key.String()))
		return append([]byte(nil), cached.([]byte)...), nil
	}

	v, err, shared := c.group.Do(requestURL, func() (any, error) {
		return c.fetch(ctx, requestURL, key)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("Attestation lookup shared with a concurrent caller", zap.String("key", key.String()))
	}
	return append([]byte(nil), v.([]byte)...), nil
}

func (c *attestationClient) fetch(ctx context.Context, requestURL string, key entity.AttestationKey) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter wait for %s: %v", entity.ErrAttestationService, key, err)
	}

	c.logger.Debug("Requesting signed attestation", zap.String("url", requestURL))

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI(requestURL)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")

	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	deadline, ok := ctx.Deadline()
	if !ok || time.Until(deadline) > c.timeout {
		deadline = time.Now().Add(c.timeout)
	}
	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		c.logger.Warn("Failed to execute request to attestation service", zap.String("url", requestURL), zap.Error(err))
		return nil, fmt.Errorf("%w: request to %s: %v", entity.ErrAttestationService, requestURL, err)
	}

	rawBody := resp.Body()
	switch status := resp.StatusCode(); {
	case status == fasthttp.StatusNotFound:
		c.logger.Debug("Attestation not signed yet", zap.String("key", key.String()))
		return nil, fmt.Errorf("%w: %s", entity.ErrAttestationUnavailable, key)
	case status != fasthttp.StatusOK:
		c.logger.Error("Attestation service request failed",
			zap.String("url", requestURL),
			zap.Int("statusCode", status),
			zap.ByteString("responseBody", rawBody),
		)
		return nil, fmt.Errorf("%w: %s returned status %d: %s", entity.ErrAttestationService, requestURL, status, string(rawBody))
	}

	var body signedVAAResponse
	if err := json.Unmarshal(rawBody, &body); err != nil {
		c.logger.Error("Failed to unmarshal attestation response",
			zap.String("url", requestURL), zap.ByteString("responseBody", rawBody), zap.Error(err))
		return nil, fmt.Errorf("%w: failed to unmarshal response from %s: %v", entity.ErrAttestationService, requestURL, err)
	}
	if body.VaaBytes == "" {
		return nil, fmt.Errorf("%w: %s returned no vaaBytes (code %d: %s)",
			entity.ErrAttestationService, requestURL, body.Code, body.Message)
	}
	vaa, err := base64.StdEncoding.DecodeString(body.VaaBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: vaaBytes from %s is not base64: %v", entity.ErrAttestationService, requestURL, err)
	}

	c.cache.Set(requestURL, vaa, cache.DefaultExpiration)
	c.logger.Info("Fetched signed attestation", zap.String("key", key.String()), zap.Int("size", len(vaa)))
	return vaa, nil
}
