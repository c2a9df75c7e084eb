package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/lorrc/testit-reports/internal/core/domain"
	"github.com/lorrc/testit-reports/internal/core/mocks"
	"github.com/lorrc/testit-reports/internal/core/services"
)

func TestCachedUsernameResolver(t *testing.T) {
	ctx := context.Background()

	t.Run("caches resolved names", func(t *testing.T) {
		client := mocks.NewMockTestManagementClient()
		resolver := services.NewCachedUsernameResolver(client, 0, testLogger())
		user := uuid.New()

		client.On("GetUserName", ctx, "token", user).Return("Alice", nil).Once()

		assert.Equal(t, "Alice", resolver.ResolveUsername(ctx, "token", user))
		assert.Equal(t, "Alice", resolver.ResolveUsername(ctx, "token", user))
		client.AssertNumberOfCalls(t, "GetUserName", 1)
	})

	t.Run("failures fall back to a placeholder and are retried", func(t *testing.T) {
		client := mocks.NewMockTestManagementClient()
		resolver := services.NewCachedUsernameResolver(client, time.Hour, testLogger())
		user := uuid.New()

		client.On("GetUserName", ctx, "token", user).Return("", errors.New("404")).Once()
		client.On("GetUserName", ctx, "token", user).Return("Bob", nil).Once()

		assert.Equal(t, domain.PlaceholderUsername(user), resolver.ResolveUsername(ctx, "token", user))
		assert.Equal(t, "Bob", resolver.ResolveUsername(ctx, "token", user))
	})

	t.Run("blank names are treated as missing", func(t *testing.T) {
		client := mocks.NewMockTestManagementClient()
		resolver := services.NewCachedUsernameResolver(client, 0, testLogger())
		user := uuid.New()

		client.On("GetUserName", ctx, "token", user).Return("   ", nil)

		assert.Equal(t, domain.PlaceholderUsername(user), resolver.ResolveUsername(ctx, "token", user))
	})

	t.Run("forget clears the cache", func(t *testing.T) {
		client := mocks.NewMockTestManagementClient()
		resolver := services.NewCachedUsernameResolver(client, 0, testLogger())
		user := uuid.New()

		client.On("GetUserName", ctx, "token", user).Return("Carol", nil)

		resolver.ResolveUsername(ctx, "token", user)
		resolver.Forget()
		resolver.ResolveUsername(ctx, "token", user)
		client.AssertNumberOfCalls(t, "GetUserName", 2)
	})
}

func TestPlaceholderResolver(t *testing.T) {
	user := uuid.MustParse("1b4e28ba-2fa1-11d2-883f-0016d3cca427")
	assert.Equal(t, "User 1b4e28ba", services.PlaceholderResolver{}.ResolveUsername(context.Background(), "", user))
}
