// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/cuepoint/internal/config"
)

func testDeps(addr string) Deps {
	return Deps{
		Logger: zerolog.Nop(),
		Server: config.ServerConfig{
			ListenAddr:      addr,
			ReadTimeout:     time.Second,
			WriteTimeout:    time.Second,
			ShutdownTimeout: 2 * time.Second,
		},
		Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}),
	}
}

func startManager(t *testing.T, m Manager) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()
	require.Eventually(t, func() bool { return m.Addr() != "" }, 2*time.Second, 10*time.Millisecond)
	return cancel, done
}

func TestNewManagerRequiresHandler(t *testing.T) {
	_, err := NewManager(Deps{Logger: zerolog.Nop()})
	assert.ErrorIs(t, err, ErrMissingHandler)
}

func TestManagerServesAndRunsHooksInReverse(t *testing.T) {
	m, err := NewManager(testDeps("127.0.0.1:0"))
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		order []string
	)
	for _, name := range []string{"store", "scheduler", "supervisor"} {
		m.RegisterShutdownHook(name, func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		})
	}

	cancel, done := startManager(t, m)
	resp, err := http.Get("http://" + m.Addr() + "/")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	assert.ErrorIs(t, m.Start(context.Background()), ErrManagerStarted)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("manager did not stop")
	}
	assert.Equal(t, []string{"supervisor", "scheduler", "store"}, order)
	assert.NoError(t, m.Shutdown(context.Background()), "second shutdown is a no-op")
}

func TestManagerShutdownBeforeStart(t *testing.T) {
	m, err := NewManager(testDeps("127.0.0.1:0"))
	require.NoError(t, err)
	assert.ErrorIs(t, m.Shutdown(context.Background()), ErrManagerNotStarted)
}

func TestManagerListenFailureRunsHooks(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	m, err := NewManager(testDeps(ln.Addr().String()))
	require.NoError(t, err)
	var ran bool
	m.RegisterShutdownHook("store", func(context.Context) error {
		ran = true
		return nil
	})

	err = m.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start API server")
	assert.True(t, ran)
}

func TestManagerJoinsHookErrors(t *testing.T) {
	m, err := NewManager(testDeps("127.0.0.1:0"))
	require.NoError(t, err)
	boom := errors.New("flush failed")
	m.RegisterShutdownHook("telemetry", func(context.Context) error { return boom })

	cancel, done := startManager(t, m)
	cancel()
	err = <-done
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "hook telemetry")
}

func TestAppRequiresManager(t *testing.T) {
	app := NewApp(zerolog.Nop(), nil, nil)
	assert.ErrorIs(t, app.Run(context.Background()), ErrMissingManager)
}
