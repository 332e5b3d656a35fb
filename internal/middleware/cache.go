package middleware

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-session/internal/config"
)

// generationTTL keeps an entry's generation counter well past any
// request that could still be in flight.
const generationTTL = time.Hour

// storeScript writes KEYS[1] only if the generation in KEYS[2] is still
// the one read before the handler ran.  An eviction in between bumps it
// and the stale response is dropped.
var storeScript = redis.NewScript(`
if (redis.call('GET', KEYS[2]) or '') ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// captureWriter captures response body/status while forwarding to the client.
type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
	size   int64
	limit  int64
}

func (cw *captureWriter) WriteHeader(code int) {
	cw.status = code
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	if cw.limit <= 0 || cw.size+int64(len(b)) <= cw.limit {
		cw.buf.Write(b)
	}
	cw.size += int64(len(b))
	return cw.ResponseWriter.Write(b)
}

// CacheKey is the Redis key of the cached GET of path.  The query string
// is not part of it: the cached routes ignore it, and eviction must hit
// every variant.
func CacheKey(prefix, path string) string {
	return prefix + ":GET:" + path
}

func generationKey(key string) string { return key + ":gen" }

// perRequestHeaders are never stored or replayed.
var perRequestHeaders = []string{"Content-Length", "X-Cache", echo.HeaderXRequestID}

// encodePayload packs: [4 bytes status][4 bytes headerLen][headerJSON][body]
func encodePayload(status int, header http.Header, body []byte) ([]byte, error) {
	hdrJSON, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8+len(hdrJSON)+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(status))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(hdrJSON)))
	copy(out[8:], hdrJSON)
	copy(out[8+len(hdrJSON):], body)
	return out, nil
}

func decodePayload(bs []byte) (status int, header http.Header, body []byte, ok bool) {
	if len(bs) < 8 {
		return 0, nil, nil, false
	}
	status = int(binary.BigEndian.Uint32(bs[0:4]))
	hlen := int(binary.BigEndian.Uint32(bs[4:8]))
	if hlen < 0 || 8+hlen > len(bs) {
		return 0, nil, nil, false
	}
	header = make(http.Header)
	if hlen > 0 {
		if err := json.Unmarshal(bs[8:8+hlen], &header); err != nil {
			return 0, nil, nil, false
		}
	}
	return status, header, bs[8+hlen:], true
}

// replay writes a cached response.  Headers the current request already
// carries (its request ID) win over stored ones.
func replay(c echo.Context, status int, header http.Header, body []byte) error {
	for _, k := range perRequestHeaders {
		header.Del(k)
	}
	out := c.Response().Header()
	for k, vals := range header {
		for _, v := range vals {
			out.Add(k, v)
		}
	}
	out.Set("X-Cache", "HIT")
	c.Response().WriteHeader(status)
	_, err := c.Response().Write(body)
	return err
}

// NewRedisCache caches 200 responses to GET requests of the routes it
// wraps.  Headers are stored with the body.  Responses larger than
// MaxBodyBytes are served but not stored.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	maxBody := int64(cfg.MaxBodyBytes)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			r := c.Request()
			if r.Method != http.MethodGet {
				return next(c)
			}
			ctx := r.Context()
			key := CacheKey(cfg.Prefix, r.URL.Path)

			if bs, err := rdb.Get(ctx, key).Bytes(); err == nil {
				if status, hdr, body, ok := decodePayload(bs); ok {
					return replay(c, status, hdr, body)
				}
			}

			gen, err := rdb.Get(ctx, generationKey(key)).Result()
			if errors.Is(err, redis.Nil) {
				gen, err = "", nil
			}
			if err != nil {
				return next(c)
			}

			cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: maxBody}
			c.Response().Writer = cw
			c.Response().Header().Set("X-Cache", "MISS")

			if err := next(c); err != nil {
				return err
			}
			if cw.status != http.StatusOK || (maxBody > 0 && cw.size > maxBody) {
				return nil
			}
			hdr := c.Response().Header().Clone()
			for _, k := range perRequestHeaders {
				hdr.Del(k)
			}
			payload, err := encodePayload(cw.status, hdr, cw.buf.Bytes())
			if err != nil {
				return nil
			}
			err = storeScript.Run(context.WithoutCancel(ctx), rdb,
				[]string{key, generationKey(key)}, gen, payload, cfg.TTL.Milliseconds()).Err()
			if err != nil {
				logrus.WithError(err).WithField("key", key).Debug("cache: store failed")
			}
			return nil
		}
	}
}

// TableCacheEvictor drops the cached status of a table whenever its
// occupancy changes.
type TableCacheEvictor struct {
	prefix string
	rdb    *redis.Client
}

// NewTableCacheEvictor returns an evictor, or nil when caching is off.
func NewTableCacheEvictor(cfg config.CacheConfig, rdb *redis.Client) *TableCacheEvictor {
	if !cfg.Enabled || rdb == nil {
		return nil
	}
	return &TableCacheEvictor{prefix: cfg.Prefix, rdb: rdb}
}

// TableChanged deletes the cached GET /v1/tables/:id and bumps its
// generation so a read that started before the change cannot store its
// response afterwards.
func (e *TableCacheEvictor) TableChanged(ctx context.Context, tableID uint64) {
	if e == nil {
		return
	}
	key := CacheKey(e.prefix, fmt.Sprintf("/v1/tables/%d", tableID))
	_, err := e.rdb.TxPipelined(context.WithoutCancel(ctx), func(p redis.Pipeliner) error {
		p.Incr(ctx, generationKey(key))
		p.Expire(ctx, generationKey(key), generationTTL)
		p.Del(ctx, key)
		return nil
	})
	if err != nil {
		logrus.WithError(err).WithField("table_id", tableID).Warn("cache: evict table status failed")
	}
}
