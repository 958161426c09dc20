package nats

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusOfNilClient(t *testing.T) {
	var c *Client
	assert.Equal(t, StatusDisabled, c.Status())
	assert.False(t, c.IsConnected())
	c.Close()
}

func TestBuildTLSConfig(t *testing.T) {
	cfg, err := buildTLSConfig(Config{})
	require.NoError(t, err)
	assert.Nil(t, cfg)

	_, err = buildTLSConfig(Config{CertFile: "client.pem"})
	assert.ErrorContains(t, err, "set together")

	_, err = buildTLSConfig(Config{CAFile: filepath.Join(t.TempDir(), "missing.pem")})
	assert.ErrorContains(t, err, "read CA file")

	garbage := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("not a certificate"), 0o600))
	_, err = buildTLSConfig(Config{CAFile: garbage})
	assert.ErrorContains(t, err, "parse CA certificate")
}

func TestConnectHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Connect(ctx, Config{URL: "nats://127.0.0.1:1"}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
