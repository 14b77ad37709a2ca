package httpx

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jobsJSON = `{"jobs":[` + strings.TrimSuffix(strings.Repeat(`{"job_type":"RTC_GAMMA"},`, 200), ",") + `]}`

func jsonHandler(status int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	})
}

func serveCompressed(t *testing.T, cfg CompressionConfig, h http.Handler, method, acceptEncoding string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, "/jobs", nil)
	if acceptEncoding != "" {
		req.Header.Set("Accept-Encoding", acceptEncoding)
	}
	rec := httptest.NewRecorder()
	Compression(cfg)(h).ServeHTTP(rec, req)
	resp := rec.Result()
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func gunzip(t *testing.T, r io.Reader) string {
	t.Helper()
	zr, err := gzip.NewReader(r)
	require.NoError(t, err)
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	require.NoError(t, err)
	return string(raw)
}

func TestCompression_AcceptEncoding(t *testing.T) {
	tests := []struct {
		name           string
		acceptEncoding string
		expectGzip     bool
	}{
		{name: "gzip accepted", acceptEncoding: "gzip, deflate", expectGzip: true},
		{name: "gzip with q value", acceptEncoding: "deflate, gzip;q=0.5", expectGzip: true},
		{name: "gzip disabled", acceptEncoding: "gzip;q=0", expectGzip: false},
		{name: "other encoding", acceptEncoding: "br", expectGzip: false},
		{name: "no header", acceptEncoding: "", expectGzip: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := serveCompressed(t, CompressionConfig{Level: 6}, jsonHandler(http.StatusOK, jobsJSON),
				http.MethodGet, tt.acceptEncoding)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			if tt.expectGzip {
				assert.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))
				assert.Equal(t, jobsJSON, gunzip(t, resp.Body))
				return
			}
			assert.Empty(t, resp.Header.Get("Content-Encoding"))
			raw, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, jobsJSON, string(raw))
		})
	}
}

func TestCompression_SkipsUncompressibleResponses(t *testing.T) {
	t.Run("no content", func(t *testing.T) {
		resp := serveCompressed(t, CompressionConfig{}, jsonHandler(http.StatusNoContent, ""), http.MethodGet, "gzip")
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Empty(t, resp.Header.Get("Content-Encoding"))
	})

	t.Run("binary content type", func(t *testing.T) {
		h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/octet-stream")
			_, _ = io.WriteString(w, jobsJSON)
		})
		resp := serveCompressed(t, CompressionConfig{}, h, http.MethodGet, "gzip")
		assert.Empty(t, resp.Header.Get("Content-Encoding"))
	})

	t.Run("head request", func(t *testing.T) {
		resp := serveCompressed(t, CompressionConfig{}, jsonHandler(http.StatusOK, ""), http.MethodHead, "gzip")
		assert.Empty(t, resp.Header.Get("Content-Encoding"))
		assert.Empty(t, resp.Header.Get("Vary"))
	})

	t.Run("already encoded", func(t *testing.T) {
		h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Content-Encoding", "identity")
			_, _ = io.WriteString(w, jobsJSON)
		})
		resp := serveCompressed(t, CompressionConfig{}, h, http.MethodGet, "gzip")
		assert.Equal(t, "identity", resp.Header.Get("Content-Encoding"))
	})
}

func TestCompression_MinSize(t *testing.T) {
	small := `{"status":"ok"}`

	resp := serveCompressed(t, CompressionConfig{MinSize: 256}, jsonHandler(http.StatusCreated, small), http.MethodGet, "gzip")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Content-Encoding"))
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, small, string(raw))

	resp = serveCompressed(t, CompressionConfig{MinSize: 256}, jsonHandler(http.StatusOK, jobsJSON), http.MethodGet, "gzip")
	assert.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))
	assert.Equal(t, jobsJSON, gunzip(t, resp.Body))
}
