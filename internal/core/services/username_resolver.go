package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/lorrc/testit-reports/internal/core/domain"
	"github.com/lorrc/testit-reports/internal/core/ports"
)

// CachedUsernameResolver looks names up in TestIT and remembers the answers
// for a while. Lookups that fail fall back to a placeholder that is not cached,
// so the next run tries again.
type CachedUsernameResolver struct {
	client ports.TestManagementClient
	cache  *cache.Cache
	logger *slog.Logger
}

var _ ports.UsernameResolver = (*CachedUsernameResolver)(nil)

// NewCachedUsernameResolver creates a resolver whose entries live for ttl.
// A ttl of zero or less keeps entries for the life of the process.
func NewCachedUsernameResolver(client ports.TestManagementClient, ttl time.Duration, logger *slog.Logger) *CachedUsernameResolver {
	expiration, cleanup := ttl, 2*ttl
	if ttl <= 0 {
		expiration, cleanup = cache.NoExpiration, 0
	}
	return &CachedUsernameResolver{
		client: client,
		cache:  cache.New(expiration, cleanup),
		logger: logger,
	}
}

func (r *CachedUsernameResolver) ResolveUsername(ctx context.Context, token string, userID uuid.UUID) string {
	key := userID.String()
	if name, ok := r.cache.Get(key); ok {
		return name.(string)
	}

	name, err := r.client.GetUserName(ctx, token, userID)
	name = strings.TrimSpace(name)
	if err != nil || name == "" {
		r.logger.WarnContext(ctx, "could not resolve TestIT username, using placeholder",
			"testit_user_id", userID,
			"error", err,
		)
		return domain.PlaceholderUsername(userID)
	}

	r.cache.SetDefault(key, name)
	return name
}

// Forget drops every cached name.
func (r *CachedUsernameResolver) Forget() {
	r.cache.Flush()
}

// PlaceholderResolver never calls out and always answers with the placeholder.
type PlaceholderResolver struct{}

var _ ports.UsernameResolver = PlaceholderResolver{}

func (PlaceholderResolver) ResolveUsername(_ context.Context, _ string, userID uuid.UUID) string {
	return domain.PlaceholderUsername(userID)
}
