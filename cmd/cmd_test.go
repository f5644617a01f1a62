package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"epserver/config"
	"epserver/core"
	"epserver/stores"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCommand(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	root := newRootCmd()
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	require.NoError(t, root.Execute())
	return out.String()
}

func TestInitialize(t *testing.T) {
	ctx := context.Background()
	t.Setenv("DATABASE_URL", "sqlite:///"+filepath.Join(t.TempDir(), "ep.db"))

	out := runCommand(t, "", "initialize")
	assert.Contains(t, out, "Tables created")

	cfg, err := config.Load()
	require.NoError(t, err)
	store, err := stores.OpenDatabase(cfg.Database)
	require.NoError(t, err)
	id, err := store.Create(ctx, &core.Document{Title: "t", Data: "a"})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	out = runCommand(t, "no\n", "initialize", "--drop-all")
	assert.Contains(t, out, "Canceling operation")
	store, err = stores.OpenDatabase(cfg.Database)
	require.NoError(t, err)
	_, err = store.FindID(ctx, id)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	out = runCommand(t, "", "initialize", "--drop-all", "--yes")
	assert.Contains(t, out, "Deleting table content")
	store, err = stores.OpenDatabase(cfg.Database)
	require.NoError(t, err)
	defer store.Close()
	_, err = store.FindID(ctx, id)
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestServeShutsDownOnCancel(t *testing.T) {
	t.Setenv("STORAGE_TYPE", "memory")
	cfg, err := config.Load()
	require.NoError(t, err)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, cfg, listener)
	}()

	url := fmt.Sprintf("http://%s/documents/%s", listener.Addr(), core.Digest([]byte("x=1")))
	resp, err := http.Post(url, "application/json", strings.NewReader(`{"title":"t","document":"x=1","history":[]}`))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestConfigureLogging(t *testing.T) {
	assert.NoError(t, configureLogging(config.LogConfig{Level: "debug", Format: "json"}))
	assert.NoError(t, configureLogging(config.LogConfig{Level: "info", Format: "text"}))
	assert.Error(t, configureLogging(config.LogConfig{Level: "loud", Format: "text"}))
}
