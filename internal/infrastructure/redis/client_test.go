package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	s := miniredis.RunT(t)
	ctx := context.Background()

	client, err := NewClient(ctx, "redis://"+s.Addr()+"/2")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	assert.Equal(t, 2, client.Options().DB)
	assert.Equal(t, 2*time.Second, client.Options().DialTimeout)
	require.NoError(t, client.Set(ctx, "carbonledger:ping", "ok", 0).Err())
	assert.Equal(t, "ok", client.Get(ctx, "carbonledger:ping").Val())
}

func TestNewClientKeepsDialTimeoutFromURL(t *testing.T) {
	s := miniredis.RunT(t)

	client, err := NewClient(context.Background(), "redis://"+s.Addr()+"?dial_timeout=500ms")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	assert.Equal(t, 500*time.Millisecond, client.Options().DialTimeout)
}

func TestNewClientInvalidURL(t *testing.T) {
	for _, url := range []string{"://bad-url", "http://localhost:6379"} {
		_, err := NewClient(context.Background(), url)
		assert.ErrorContains(t, err, "failed to parse redis URL", url)
	}
}

func TestNewClientServerDown(t *testing.T) {
	s := miniredis.RunT(t)
	url := "redis://" + s.Addr()
	s.Close()

	_, err := NewClient(context.Background(), url)
	assert.ErrorContains(t, err, "failed to ping redis")
}
