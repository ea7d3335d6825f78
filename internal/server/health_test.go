package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cory-johannsen/harmony/internal/config"
)

func startHealth(t *testing.T) (*HealthServer, healthpb.HealthClient) {
	t.Helper()
	hs := NewHealthServer(config.HealthConfig{Enabled: true, Host: "127.0.0.1", Port: 0}, zaptest.NewLogger(t))

	errCh := make(chan error, 1)
	go func() { errCh <- hs.ListenAndServe() }()
	require.Eventually(t, func() bool { return hs.Addr() != nil }, 2*time.Second, 5*time.Millisecond)

	conn, err := grpc.NewClient(hs.Addr().String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
		hs.Stop()
		assert.NoError(t, <-errCh)
	})
	return hs, healthpb.NewHealthClient(conn)
}

func check(t *testing.T, client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestHealthServer_NotServingUntilReady(t *testing.T) {
	_, client := startHealth(t)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, client, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, client, HealthService))
}

func TestHealthServer_SetServing(t *testing.T) {
	hs, client := startHealth(t)

	hs.SetServing(true)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, HealthService))

	hs.SetServing(false)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, client, HealthService))
}

func TestHealthServer_AddrNilBeforeListen(t *testing.T) {
	hs := NewHealthServer(config.HealthConfig{Host: "127.0.0.1"}, zaptest.NewLogger(t))
	assert.Nil(t, hs.Addr())
}
