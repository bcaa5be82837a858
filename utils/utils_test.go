package utils

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode(3)
	require.NoError(t, err)
	assert.Len(t, code, 6)

	// Codes are random, two draws colliding is effectively impossible.
	other, err := GenerateCode(3)
	require.NoError(t, err)
	assert.NotEqual(t, code, other)
}

func TestGenerateCode_Uppercase(t *testing.T) {
	code, err := GenerateCode(8)
	require.NoError(t, err)
	for _, c := range code {
		assert.Contains(t, "0123456789ABCDEF", string(c))
	}
}

func TestCircuitBreaker_PassesThroughSuccess(t *testing.T) {
	cb := NewCircuitBreaker("test")

	result, err := cb.Execute(context.Background(), func() (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestCircuitBreaker_PropagatesError(t *testing.T) {
	cb := NewCircuitBreaker("test")
	boom := errors.New("boom")

	_, err := cb.Execute(context.Background(), func() (any, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestCircuitBreaker_OpensAfterFailureRatio(t *testing.T) {
	cb := NewCircuitBreaker("test")
	boom := errors.New("boom")

	// Enough consecutive failures to cross the trip threshold.
	for i := 0; i < 100; i++ {
		_, _ = cb.Execute(context.Background(), func() (any, error) {
			return nil, boom
		})
	}

	_, err := cb.Execute(context.Background(), func() (any, error) {
		t.Fatal("request must not run while the breaker is open")
		return nil, nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
}

func TestCircuitBreaker_StaysClosedOnMixedTraffic(t *testing.T) {
	cb := NewCircuitBreaker("test")
	boom := errors.New("boom")

	// Failure ratio stays below the 0.6 trip point.
	for i := 0; i < 200; i++ {
		if i%2 == 0 {
			_, _ = cb.Execute(context.Background(), func() (any, error) { return nil, nil })
		} else {
			_, _ = cb.Execute(context.Background(), func() (any, error) { return nil, boom })
		}
	}

	_, err := cb.Execute(context.Background(), func() (any, error) { return "ok", nil })
	assert.NoError(t, err)
}

func TestRedisHealthCheck(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectPing().SetVal("PONG")

	assert.NoError(t, RedisHealthCheck(db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisHealthCheck_Failure(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectPing().SetErr(errors.New("connection refused"))

	err := RedisHealthCheck(db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis health check failed")
}
