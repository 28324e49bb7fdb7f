package telemetry_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"

	"github.com/kubikal7/ski-jumping-management/internal/telemetry"
)

func TestInitDisabled(t *testing.T) {
	tel, err := telemetry.Init(context.Background(), telemetry.Config{ServiceName: "skijump"})
	require.NoError(t, err)
	assert.Nil(t, tel.MetricsHandler())
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestPrometheusHandlerExposesMeters(t *testing.T) {
	ctx := context.Background()
	tel, err := telemetry.Init(ctx, telemetry.Config{ServiceName: "skijump", Version: "test", Prometheus: true})
	require.NoError(t, err)
	defer func() { _ = tel.Shutdown(ctx) }()

	counter, err := telemetry.Meter("skijump/test").Int64Counter("skijump.test.hits",
		metric.WithDescription("test counter"))
	require.NoError(t, err)
	counter.Add(ctx, 3)

	srv := httptest.NewServer(tel.MetricsHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "skijump_test_hits")
	assert.Contains(t, string(body), "go_goroutines")
}
