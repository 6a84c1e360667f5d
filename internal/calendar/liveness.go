package calendar

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"taskcal/internal/config"
	"taskcal/internal/domain"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	googleoauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// Prober asks the identity provider whether an access token is still accepted.
type Prober struct {
	endpoint string
	timeout  time.Duration
	cache    domain.LivenessCache
	cacheTTL time.Duration
	logger   *zerolog.Logger
}

// NewProber builds a prober. cache may be nil; it is only consulted when
// cfg.LivenessCacheTTL is positive.
func NewProber(cfg config.CalendarConfig, cache domain.LivenessCache, logger *zerolog.Logger) *Prober {
	timeout := cfg.ProbeTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Prober{
		endpoint: cfg.IdentityEndpoint,
		timeout:  timeout,
		cache:    cache,
		cacheTTL: cfg.LivenessCacheTTL,
		logger:   logger,
	}
}

func (p *Prober) cacheEnabled() bool {
	return p.cache != nil && p.cacheTTL > 0
}

// IsLive issues one userinfo request. Any failure, timeout or non-2xx answer
// means the token is not live. There are no retries.
func (p *Prober) IsLive(ctx context.Context, accessToken string) bool {
	if accessToken == "" {
		return false
	}

	key := tokenKey(accessToken)
	if p.cacheEnabled() {
		live, err := p.cache.IsLive(ctx, key)
		if err != nil {
			p.logger.Warn().Err(err).Msg("liveness cache lookup error")
		} else if live {
			return true
		}
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	opts := []option.ClientOption{
		option.WithHTTPClient(oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))),
	}
	if p.endpoint != "" {
		opts = append(opts, option.WithEndpoint(p.endpoint))
	}

	svc, err := googleoauth2.NewService(ctx, opts...)
	if err != nil {
		p.logger.Error().Err(err).Msg("create identity client error")
		return false
	}

	if _, err := svc.Userinfo.Get().Context(ctx).Do(); err != nil {
		p.logger.Debug().Err(err).Msg("calendar credential is not live")
		return false
	}

	if p.cacheEnabled() {
		if err := p.cache.MarkLive(ctx, key, p.cacheTTL); err != nil {
			p.logger.Warn().Err(err).Msg("liveness cache store error")
		}
	}
	return true
}

// tokenKey keeps raw tokens out of the cache.
func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
