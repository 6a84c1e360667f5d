package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockCache struct {
	mock.Mock
}

func (m *mockCache) IsLive(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *mockCache) MarkLive(ctx context.Context, key string, ttl time.Duration) error {
	args := m.Called(ctx, key, ttl)
	return args.Error(0)
}

func TestFailoverLivenessCache(t *testing.T) {
	primary := new(mockCache)
	fallback := new(mockCache)
	logger := zerolog.New(io.Discard)
	cache := NewFailoverLivenessCache(primary, fallback, &logger)
	ctx := context.Background()

	t.Run("PrimarySuccess", func(t *testing.T) {
		primary.On("IsLive", ctx, "a").Return(true, nil).Once()

		live, err := cache.IsLive(ctx, "a")
		assert.NoError(t, err)
		assert.True(t, live)
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		primary.On("MarkLive", ctx, "b", time.Minute).Return(errors.New("fail")).Once()
		fallback.On("MarkLive", ctx, "b", time.Minute).Return(nil).Once()

		assert.NoError(t, cache.MarkLive(ctx, "b", time.Minute))
		assert.True(t, cache.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("StaysOnFallbackWhileDown", func(t *testing.T) {
		fallback.On("IsLive", ctx, "b").Return(true, nil).Once()

		live, err := cache.IsLive(ctx, "b")
		assert.NoError(t, err)
		assert.True(t, live)
		primary.AssertNotCalled(t, "IsLive", ctx, "b")
		fallback.AssertExpectations(t)
	})

	t.Run("RecoveryAttempt", func(t *testing.T) {
		cache.isDown.Store(true)
		cache.lastCheck = time.Now().Add(-2 * time.Minute)
		primary.On("IsLive", ctx, "c").Return(false, nil).Once()

		live, err := cache.IsLive(ctx, "c")
		assert.NoError(t, err)
		assert.False(t, live)
		assert.False(t, cache.isDown.Load())
		primary.AssertExpectations(t)
	})
}
