package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/partnerledger-backend/api/responses"
	pkgerrors "github.com/angelmondragon/partnerledger-backend/pkg/errors"
	"github.com/angelmondragon/partnerledger-backend/pkg/logger"
)

const (
	idempotencyHeader    = "Idempotency-Key"
	replayedHeader       = "Idempotent-Replayed"
	maxIdempotencyKeyLen = 255

	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
	// inFlightTTL bounds how long a crashed request can block its key.
	inFlightTTL = 2 * time.Minute
)

// idempotencyRule matches a concrete path: exactly, or by prefix and suffix
// around a single id segment.
type idempotencyRule struct {
	method string
	prefix string
	suffix string
	exact  bool
	ttl    time.Duration
}

func (r idempotencyRule) matches(method, path string) bool {
	if r.method != method {
		return false
	}
	if r.exact {
		return path == r.prefix
	}
	return strings.HasPrefix(path, r.prefix) && strings.HasSuffix(path, r.suffix)
}

// Routes that move money get the longer window; a settled payout replayed a
// week later must still answer with the original result.
var idempotencyRules = []idempotencyRule{
	{method: http.MethodPost, prefix: "/api/v1/affiliates/apply", exact: true, ttl: defaultIdempotencyTTL},
	{method: http.MethodPost, prefix: "/api/v1/affiliates/me/listings", exact: true, ttl: defaultIdempotencyTTL},
	{method: http.MethodPost, prefix: "/api/admin/v1/assignments", exact: true, ttl: defaultIdempotencyTTL},
	{method: http.MethodPost, prefix: "/api/admin/v1/tenants/", ttl: defaultIdempotencyTTL},
	{method: http.MethodPost, prefix: "/api/admin/v1/affiliates/", suffix: "/adjustments", ttl: criticalIdempotencyTTL},
	{method: http.MethodPost, prefix: "/api/admin/v1/affiliates/", suffix: "/payouts", ttl: criticalIdempotencyTTL},
	{method: http.MethodPost, prefix: "/api/admin/v1/payouts/", suffix: "/settle", ttl: criticalIdempotencyTTL},
}

type idempotencyStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

type recordState string

const (
	statePending recordState = "pending"
	stateDone    recordState = "done"
)

type idempotencyRecord struct {
	State       recordState `json:"state"`
	RequestHash string      `json:"request_hash"`
	Status      int         `json:"status,omitempty"`
	ContentType string      `json:"content_type,omitempty"`
	Body        []byte      `json:"body,omitempty"`
}

// Idempotency claims the caller's Idempotency-Key before the handler runs,
// so two concurrent retries of the same payout request cannot both execute.
// The finished response is stored and replayed verbatim; 5xx responses
// release the key so the client can retry.
func Idempotency(store idempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := routeTTL(r.Method, routePattern(r))
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			fail := func(err error) { responses.WriteError(ctx, logg, w, err) }

			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			switch {
			case clientKey == "":
				fail(pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			case len(clientKey) > maxIdempotencyKeyLen:
				fail(pkgerrors.Newf(pkgerrors.CodeValidation, "Idempotency-Key longer than %d characters", maxIdempotencyKeyLen))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				fail(pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			hash := requestHash(r, body)
			key := store.IdempotencyKey(requestScope(r), clientKey)

			claimed, err := store.SetNX(ctx, key, encodeRecord(idempotencyRecord{State: statePending, RequestHash: hash}), inFlightTTL)
			if err != nil {
				fail(pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !claimed {
				replayOrReject(ctx, store, key, hash, w, fail)
				return
			}

			rec := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			status := rec.statusOrOK()
			if status >= http.StatusInternalServerError {
				if err := store.Del(ctx, key); err != nil && logg != nil {
					logg.Error(ctx, "release idempotency key", err)
				}
				return
			}
			final := idempotencyRecord{
				State:       stateDone,
				RequestHash: hash,
				Status:      status,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
			}
			if err := store.Set(ctx, key, encodeRecord(final), ttl); err != nil && logg != nil {
				logg.Error(ctx, "persist idempotency record", err)
			}
		})
	}
}

func replayOrReject(ctx context.Context, store idempotencyStore, key, hash string, w http.ResponseWriter, fail func(error)) {
	stored, err := store.Get(ctx, key)
	if err != nil && !errors.Is(err, redis.Nil) {
		fail(pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record"))
		return
	}
	if stored == "" {
		// Released by a failed attempt between our claim and this read.
		fail(pkgerrors.New(pkgerrors.CodeConflict, "request with this Idempotency-Key is being retried; try again"))
		return
	}
	var record idempotencyRecord
	if err := json.Unmarshal([]byte(stored), &record); err != nil {
		fail(pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	switch {
	case record.RequestHash != hash:
		fail(pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case record.State != stateDone:
		fail(pkgerrors.New(pkgerrors.CodeConflict, "request with this Idempotency-Key is still in progress"))
	default:
		if record.ContentType != "" {
			w.Header().Set("Content-Type", record.ContentType)
		}
		w.Header().Set(replayedHeader, "true")
		w.WriteHeader(record.Status)
		_, _ = w.Write(record.Body)
	}
}

// requestScope keeps keys of different users and routes apart.
func requestScope(r *http.Request) string {
	return strings.Join([]string{UserIDFromContext(r.Context()), r.Method, r.URL.Path}, "|")
}

func requestHash(r *http.Request, body []byte) string {
	h := sha256.New()
	h.Write([]byte(r.URL.RawQuery))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func encodeRecord(record idempotencyRecord) string {
	raw, _ := json.Marshal(record)
	return string(raw)
}

// routePattern prefers the matched chi pattern. Mounted as middleware it is
// still partial ("/api/*"), so the concrete path is used instead.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" && !strings.HasSuffix(pattern, "*") {
			return pattern
		}
	}
	return strings.TrimSuffix(r.URL.Path, "/")
}

func routeTTL(method, path string) (time.Duration, bool) {
	if path == "" {
		return 0, false
	}
	for _, rule := range idempotencyRules {
		if rule.matches(method, path) {
			return rule.ttl, true
		}
	}
	return 0, false
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseCapture) statusOrOK() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}
