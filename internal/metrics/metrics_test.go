package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/afdcore/afd/internal/shm"
)

func TestServeMuxExposesHostMetrics(t *testing.T) {
	dir := t.TempDir()
	fsa, err := shm.CreateFSA(dir, "1", 1)
	require.NoError(t, err)
	defer fsa.Handle().Detach()
	fsa.Write(0, shm.HostEntry{Alias: "host1", ErrorCounter: 2, FileCounterDone: 9})

	status, err := shm.CreateStatus(dir, "1")
	require.NoError(t, err)
	defer status.Handle().Detach()
	status.Write(shm.AfdStatus{JobsInQueue: 3})

	mux := NewServeMux(NewCollector(status, fsa))

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	require.True(t, strings.Contains(body, `afd_host_error_counter{host="host1"} 2`))
	require.True(t, strings.Contains(body, `afd_jobs_in_queue 3`))
}

func TestHealthzReturnsOK(t *testing.T) {
	mux := NewServeMux(NewCollector(nil, nil))
	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}
