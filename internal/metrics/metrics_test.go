package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.UploadSucceeded(100)
	m.UploadSucceeded(50)
	m.UploadFailed()
	m.PreviewOpened("ready")
	m.PreviewOpened("discarded")
	m.PreviewOpened("ready")
	m.Exported("local", nil)
	m.Exported("local", errors.New("disk full"))

	assert.Equal(t, 2.0, promtest.ToFloat64(m.uploadsTotal.WithLabelValues("succeeded")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.uploadsTotal.WithLabelValues("failed")))
	assert.Equal(t, 150.0, promtest.ToFloat64(m.uploadBytesTotal))
	assert.Equal(t, 2.0, promtest.ToFloat64(m.previewOpens.WithLabelValues("ready")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.previewOpens.WithLabelValues("discarded")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.exportsTotal.WithLabelValues("local", "error")))

	n, err := promtest.GatherAndCount(m.Registry(), "drive_uploads_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMetrics_InstancesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.UploadFailed()

	assert.Equal(t, 0.0, promtest.ToFloat64(b.uploadsTotal.WithLabelValues("failed")))
}

func TestMetrics_Push(t *testing.T) {
	var (
		mu     sync.Mutex
		path   string
		method string
		body   string
	)
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		path, method, body = r.URL.Path, r.Method, string(data)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(gw.Close)

	m := New()
	m.UploadSucceeded(10)

	require.NoError(t, m.Push(context.Background(), gw.URL, "drive", "laptop"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/drive/instance/laptop", path)
	assert.True(t, strings.Contains(body, "drive_upload_bytes_total"), "pushed body lacks counters")
}

func TestMetrics_PushFailure(t *testing.T) {
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(gw.Close)

	err := New().Push(context.Background(), gw.URL, "drive", "")
	require.Error(t, err)
}
