package health

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestChecker_AllOK(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("persist", func(ctx context.Context) Status { return StatusOK })
	c.Register("remote", func(ctx context.Context) Status { return StatusOK })

	results := c.RunAll(context.Background())
	assert.Equal(t, StatusOK, results["persist"])
	assert.Equal(t, StatusOK, results["remote"])
	assert.True(t, c.IsReady(context.Background()))
}

func TestChecker_DownDependencyBlocksReadiness(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("persist", func(ctx context.Context) Status { return StatusOK })
	c.Register("remote", func(ctx context.Context) Status { return StatusDown })

	assert.False(t, c.IsReady(context.Background()))
}

func TestChecker_DegradedIsStillReady(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("remote", func(ctx context.Context) Status { return StatusDegraded })

	assert.True(t, c.IsReady(context.Background()))
}

func TestChecker_CachesResults(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("persist", func(ctx context.Context) Status { return StatusOK })

	assert.Empty(t, c.Cached())
	c.RunAll(context.Background())
	assert.Equal(t, StatusOK, c.Cached()["persist"])
}

func TestReadyGate(t *testing.T) {
	ready := make(chan struct{})
	check := ReadyGate(ready)

	assert.Equal(t, StatusDown, check(context.Background()))
	close(ready)
	assert.Equal(t, StatusOK, check(context.Background()))
}
