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

	"github.com/watchpoints/points-engine/api/responses"
	pkgerrors "github.com/watchpoints/points-engine/pkg/errors"
	"github.com/watchpoints/points-engine/pkg/logger"
	pkgredis "github.com/watchpoints/points-engine/pkg/redis"
)

const (
	IdempotencyHeader = "Idempotency-Key"

	settlementKeyTTL = 24 * time.Hour
	spendKeyTTL      = 7 * 24 * time.Hour
	// inFlightTTL bounds how long a crashed request can hold its key.
	inFlightTTL = 30 * time.Second
)

// IdempotencyPolicy marks a route whose writes must not run twice for the same
// key. Pattern uses chi syntax; a {param} segment matches any value.
type IdempotencyPolicy struct {
	Method  string
	Pattern string
	TTL     time.Duration
}

// DefaultIdempotencyPolicies covers every endpoint that moves points or
// settles a redemption.
func DefaultIdempotencyPolicies() []IdempotencyPolicy {
	return []IdempotencyPolicy{
		{Method: http.MethodPost, Pattern: "/api/v1/redemptions", TTL: spendKeyTTL},
		{Method: http.MethodPost, Pattern: "/api/admin/v1/bonuses", TTL: spendKeyTTL},
		{Method: http.MethodPost, Pattern: "/api/admin/v1/redemptions/{redemptionId}/complete", TTL: settlementKeyTTL},
		{Method: http.MethodPost, Pattern: "/api/admin/v1/redemptions/{redemptionId}/fail", TTL: settlementKeyTTL},
	}
}

func (p IdempotencyPolicy) matches(method, path string) bool {
	if p.Method != method {
		return false
	}
	want := strings.Split(strings.Trim(p.Pattern, "/"), "/")
	got := strings.Split(strings.Trim(path, "/"), "/")
	if len(want) != len(got) {
		return false
	}
	for i, segment := range want {
		if strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}") {
			if got[i] == "" {
				return false
			}
			continue
		}
		if segment != got[i] {
			return false
		}
	}
	return true
}

// replayStore is the redis surface used to claim keys and persist responses.
type replayStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// storedResponse is what a key resolves to. InFlight is set while the first
// request holding the key is still running.
type storedResponse struct {
	InFlight    bool   `json:"in_flight,omitempty"`
	RequestHash string `json:"request_hash"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Idempotency makes the routes named by policies safe to retry. The first
// request claims the key; concurrent duplicates get a conflict until it
// finishes, and later duplicates replay its response. Server errors release
// the key so the caller can retry with it.
func Idempotency(store replayStore, logg *logger.Logger, policies ...IdempotencyPolicy) func(http.Handler) http.Handler {
	if len(policies) == 0 {
		policies = DefaultIdempotencyPolicies()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			policy, ok := policyFor(policies, r.Method, routePattern(r))
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			token := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if token == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotencyRequired, "Idempotency-Key header required"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			requestHash := digest(body)
			key := store.IdempotencyKey(keyScope(r), token)

			claim, err := json.Marshal(storedResponse{InFlight: true, RequestHash: requestHash})
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode idempotency claim"))
				return
			}
			claimed, err := store.SetNX(ctx, key, string(claim), inFlightTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !claimed {
				replay(ctx, store, logg, w, key, requestHash)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			status := capture.statusCode()
			if status >= http.StatusInternalServerError {
				if delErr := store.Del(context.WithoutCancel(ctx), key); delErr != nil {
					logError(ctx, logg, "release idempotency key", delErr)
				}
				return
			}
			record, err := json.Marshal(storedResponse{
				RequestHash: requestHash,
				Status:      status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
			})
			if err != nil {
				logError(ctx, logg, "encode idempotency record", err)
				return
			}
			if err := store.Set(context.WithoutCancel(ctx), key, string(record), policy.TTL); err != nil {
				logError(ctx, logg, "persist idempotency record", err)
			}
		})
	}
}

func replay(ctx context.Context, store replayStore, logg *logger.Logger, w http.ResponseWriter, key, requestHash string) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, pkgredis.Nil) {
		// The holder released the key between our claim and this read.
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this Idempotency-Key changed state; retry"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read idempotency record"))
		return
	}
	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	if stored.RequestHash != requestHash {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
		return
	}
	if stored.InFlight {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this Idempotency-Key is still in progress"))
		return
	}
	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
}

// keyScope keeps keys private to the caller and the route they were sent to.
func keyScope(r *http.Request) string {
	return strings.Join([]string{callerKeyPart(r.Context()), r.Method, r.URL.Path}, "|")
}

func digest(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// routePattern prefers the matched chi pattern. Inside a mounted subrouter
// the pattern still ends in a wildcard, so the raw path is used instead.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" && !strings.Contains(pattern, "*") {
			return pattern
		}
	}
	return r.URL.Path
}

func policyFor(policies []IdempotencyPolicy, method, path string) (IdempotencyPolicy, bool) {
	if path == "" {
		return IdempotencyPolicy{}, false
	}
	for _, p := range policies {
		if p.matches(method, path) {
			return p, true
		}
	}
	return IdempotencyPolicy{}, false
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}

func logError(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil || err == nil {
		return
	}
	logg.Error(ctx, msg, err)
}
