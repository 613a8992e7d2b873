package telemetry

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeRespondsOnConfiguredAddrAndShutsDownOnCancel(t *testing.T) {
	tel := New()
	tel.Iterations.Add(3)
	tel.PoolEnergy.Set(42)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- tel.Serve(ctx, "127.0.0.1:19199") }()

	var resp *http.Response
	var err error
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://127.0.0.1:19199/metrics")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.NoError(t, err, "metrics endpoint never became reachable")
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err, "Serve returned an error on shutdown")
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not shut down within the timeout")
	}
}
