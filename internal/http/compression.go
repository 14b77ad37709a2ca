package httpx

import (
	"compress/gzip"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
)

// CompressionConfig configures the gzip middleware.
type CompressionConfig struct {
	Level   int // gzip level, 1-9
	MinSize int // responses shorter than this are sent uncompressed; 0 compresses everything
	Logger  *slog.Logger
}

var compressibleTypes = map[string]bool{ //nolint:gochecknoglobals // read-only lookup
	"application/json":         true,
	"application/problem+json": true,
	"text/plain":               true,
}

// writerPool keeps one sync.Pool of gzip writers per compression level.
type writerPool struct {
	mu    sync.Mutex
	pools map[int]*sync.Pool
}

func (p *writerPool) get(level int) *gzip.Writer {
	p.mu.Lock()
	pool, ok := p.pools[level]
	if !ok {
		pool = &sync.Pool{New: func() any { return newGzipWriter(level) }}
		p.pools[level] = pool
	}
	p.mu.Unlock()

	if w, ok := pool.Get().(*gzip.Writer); ok {
		return w
	}
	return newGzipWriter(level)
}

func (p *writerPool) put(w *gzip.Writer, level int) {
	p.mu.Lock()
	pool, ok := p.pools[level]
	p.mu.Unlock()
	if ok {
		w.Reset(io.Discard)
		pool.Put(w)
	}
}

func newGzipWriter(level int) *gzip.Writer {
	w, err := gzip.NewWriterLevel(io.Discard, level)
	if err != nil {
		return gzip.NewWriter(io.Discard)
	}
	return w
}

// Compression returns a middleware that gzips JSON and text responses for clients that
// accept gzip. HEAD requests and 1xx, 204 and 304 responses pass through untouched.
func Compression(cfg CompressionConfig) func(http.Handler) http.Handler {
	if cfg.Level < gzip.BestSpeed || cfg.Level > gzip.BestCompression {
		cfg.Level = gzip.DefaultCompression
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	pool := &writerPool{pools: make(map[int]*sync.Pool)}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodHead || !acceptsGzip(r.Header.Get("Accept-Encoding")) {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Add("Vary", "Accept-Encoding")
			gzw := &gzipResponseWriter{ResponseWriter: w, level: cfg.Level, minSize: cfg.MinSize, pool: pool}
			next.ServeHTTP(gzw, r)

			if err := gzw.finish(); err != nil {
				cfg.Logger.ErrorContext(r.Context(), "closing gzip writer failed", "error", err)
			}
		})
	}
}

// acceptsGzip reports whether the Accept-Encoding header allows gzip. An explicit q=0
// disables it.
func acceptsGzip(acceptEncoding string) bool {
	for _, part := range strings.Split(acceptEncoding, ",") {
		encoding, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if !strings.EqualFold(strings.TrimSpace(encoding), "gzip") {
			continue
		}
		q := strings.ReplaceAll(params, " ", "")
		return q != "q=0" && q != "q=0.0" && q != "q=0.00" && q != "q=0.000"
	}
	return false
}

func isCompressible(contentType string) bool {
	mediaType, _, _ := strings.Cut(contentType, ";")
	return compressibleTypes[strings.ToLower(strings.TrimSpace(mediaType))]
}

type gzipResponseWriter struct {
	http.ResponseWriter
	level   int
	minSize int
	pool    *writerPool

	status        int
	headerWritten bool
	compress      bool
	buffered      []byte
	gz            *gzip.Writer
}

func (w *gzipResponseWriter) WriteHeader(status int) {
	if w.headerWritten {
		return
	}
	w.headerWritten = true
	w.status = status

	if status < http.StatusOK || status == http.StatusNoContent || status == http.StatusNotModified ||
		w.Header().Get("Content-Encoding") != "" || !isCompressible(w.Header().Get("Content-Type")) {
		w.ResponseWriter.WriteHeader(status)
		return
	}

	w.compress = true
	if w.minSize <= 0 {
		w.startGzip()
	}
}

func (w *gzipResponseWriter) startGzip() {
	w.gz = w.pool.get(w.level)
	w.gz.Reset(w.ResponseWriter)
	w.Header().Set("Content-Encoding", "gzip")
	w.Header().Del("Content-Length")
	w.ResponseWriter.WriteHeader(w.status)
}

func (w *gzipResponseWriter) Write(b []byte) (int, error) {
	if !w.headerWritten {
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", http.DetectContentType(b))
		}
		w.WriteHeader(http.StatusOK)
	}
	if !w.compress {
		return w.ResponseWriter.Write(b)
	}
	if w.gz != nil {
		return w.gz.Write(b)
	}

	w.buffered = append(w.buffered, b...)
	if len(w.buffered) < w.minSize {
		return len(b), nil
	}
	w.startGzip()
	_, err := w.gz.Write(w.buffered)
	w.buffered = nil
	return len(b), err
}

// finish flushes a response that never reached MinSize uncompressed, or closes the gzip stream.
func (w *gzipResponseWriter) finish() error {
	if w.gz == nil {
		if w.compress {
			w.ResponseWriter.WriteHeader(w.status)
			if len(w.buffered) > 0 {
				_, err := w.ResponseWriter.Write(w.buffered)
				return err
			}
		}
		return nil
	}
	err := w.gz.Close()
	w.pool.put(w.gz, w.level)
	return err
}

// Flush implements http.Flusher.
func (w *gzipResponseWriter) Flush() {
	if w.gz != nil {
		_ = w.gz.Flush()
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
