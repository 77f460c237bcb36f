package handlers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/attendance-hub/pkg/circuitbreaker"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type breaker struct{ state circuitbreaker.State }

func (b breaker) BreakerState() circuitbreaker.State { return b.state }

func TestCompositeHealthChecker(t *testing.T) {
	c := NewCompositeHealthChecker("1.2.3")

	status := c.Check(context.Background())
	assert.True(t, status.Healthy)
	assert.Equal(t, "No health checks registered", status.Message)

	c.AddCheck("database", NewPingCheck(pinger{}))
	c.AddCheck("school_api", NewBreakerCheck(breaker{circuitbreaker.StateHalfOpen}))
	status = c.Check(context.Background())
	assert.True(t, status.Healthy)
	assert.Len(t, status.Checks, 2)
	assert.Equal(t, "1.2.3", status.Version)

	c.AddCheck("redis", NewPingCheck(pinger{err: errors.New("connection refused")}))
	c.AddCheck("school_api", NewBreakerCheck(breaker{circuitbreaker.StateOpen}))
	status = c.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.False(t, status.Ready)
	assert.Equal(t, "Some checks failed: redis, school_api", status.Message)
	assert.Equal(t, ErrBreakerOpen.Error(), status.Checks["school_api"].Message)

	c.RemoveCheck("redis")
	c.RemoveCheck("school_api")
	assert.True(t, c.Check(context.Background()).Healthy)
}

func TestCompositeHealthChecker_Timeout(t *testing.T) {
	c := NewCompositeHealthChecker("")
	c.SetTimeout(10 * time.Millisecond)
	c.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	status := c.Check(context.Background())
	require.Contains(t, status.Checks, "slow")
	assert.False(t, status.Checks["slow"].Healthy)
}
