package router_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/switchboard/pkg/adapters/memory"
	"github.com/aretw0/switchboard/pkg/adapters/router"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter(t *testing.T) {
	ctx := context.Background()
	lua := memory.NewTransport(memory.WithEngine("lua", memory.NewLuaEngine))
	echo := memory.NewTransport()
	echo.RegisterFunc("echo", memory.Echo)

	r := router.New(router.WithRoute("lua", lua), router.WithFallback(echo))
	assert.Equal(t, []string{"lua"}, r.Engines())

	h, err := r.Start(ctx, "lua")
	require.NoError(t, err)
	assert.True(t, r.IsAlive(h))
	_, err = r.Execute(ctx, h, "1 + 1", false)
	require.NoError(t, err)
	res, err := r.Reply(ctx, h, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOK, res.Status)
	assert.Len(t, lua.Requests(), 1)
	assert.Empty(t, echo.Requests())

	e, err := r.Start(ctx, "echo")
	require.NoError(t, err)
	_, err = r.Execute(ctx, e, "hi", false)
	require.NoError(t, err)
	assert.Len(t, echo.Requests(), 1)

	require.NoError(t, r.Shutdown(ctx, h))
	assert.False(t, r.IsAlive(h))
}

func TestRouter_NoRoute(t *testing.T) {
	r := router.New()
	_, err := r.Start(context.Background(), "python3")
	assert.ErrorIs(t, err, domain.ErrEngineNotFound)
}
