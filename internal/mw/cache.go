package mw

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

// CacheHeader reports whether a response came from the cache.
const CacheHeader = "X-Cache"

// ResponseCache keeps successful GET responses, keyed by request URI, until
// their TTL passes or something that changes the data calls Invalidate.
type ResponseCache struct {
	store *cache.Cache
	ttl   time.Duration
}

// NewResponseCache creates a cache whose entries live for ttl.
func NewResponseCache(ttl time.Duration) *ResponseCache {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &ResponseCache{store: cache.New(ttl, 2*ttl), ttl: ttl}
}

// Invalidate drops every cached response.
func (rc *ResponseCache) Invalidate() {
	rc.store.Flush()
}

type snapshot struct {
	status int
	header http.Header
	body   []byte
}

// recordingWriter tees the body so it can be stored after the handler runs.
type recordingWriter struct {
	gin.ResponseWriter
	buf *bytes.Buffer
}

func (w recordingWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w recordingWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Middleware serves GET requests from the cache, filling it on a miss. Only
// 200 responses are stored.
func (rc *ResponseCache) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := c.Request.URL.RequestURI()
		if v, ok := rc.store.Get(key); ok {
			hit := v.(snapshot)
			dst := c.Writer.Header()
			for k, vals := range hit.header {
				dst[k] = vals
			}
			dst.Set(CacheHeader, "HIT")
			c.Writer.WriteHeader(hit.status)
			c.Writer.Write(hit.body)
			c.Abort()
			return
		}

		c.Writer.Header().Set(CacheHeader, "MISS")
		rw := &recordingWriter{ResponseWriter: c.Writer, buf: &bytes.Buffer{}}
		c.Writer = rw
		c.Next()

		if rw.Status() != http.StatusOK {
			return
		}
		header := rw.Header().Clone()
		header.Del(CacheHeader)
		rc.store.Set(key, snapshot{status: rw.Status(), header: header, body: rw.buf.Bytes()}, rc.ttl)
	}
}
