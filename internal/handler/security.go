package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/order-ledger/internal/domain/auth"
)

const (
	apiKeyHeader        = "api_key"
	authorizationPrefix = "ApiKey "
)

// SecurityHandler authenticates API requests via HMAC-SHA256 hashed API keys
// and enforces per-route scopes.
type SecurityHandler struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewSecurityHandler creates a SecurityHandler with the given API key
// repository and HMAC pepper.
func NewSecurityHandler(apikeys auth.Repository, pepper []byte) *SecurityHandler {
	return &SecurityHandler{
		apikeys: apikeys,
		pepper:  pepper,
	}
}

// HashKey returns the hex HMAC-SHA256 of key under pepper, as stored in the
// api_keys table.
func HashKey(key string, pepper []byte) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// Authenticate resolves the request's API key and stores it in the request
// context. Requests without a valid key get 401.
func (s *SecurityHandler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := requestKey(r)
		if key == "" {
			writeStatus(w, r, http.StatusUnauthorized, "Authentication credentials were not provided.")
			return
		}

		info, err := s.verify(r, key)
		if err != nil {
			if !errors.Is(err, auth.ErrKeyNotFound) {
				zctx.From(r.Context()).Warn("API key lookup failed", zap.Error(err))
			}
			writeStatus(w, r, http.StatusUnauthorized, "Invalid API key.")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithKey(r.Context(), info)))
	})
}

func (s *SecurityHandler) verify(r *http.Request, key string) (*auth.APIKeyInfo, error) {
	hexHash := HashKey(key, s.pepper)
	info, err := s.apikeys.FindByHash(r.Context(), hexHash)
	if err != nil {
		return nil, err
	}

	// The stored hash could differ from the computed one if the repository
	// returned a stale or wrong row.
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return nil, errors.Wrap(err, "decode stored hash")
	}
	computed, _ := hex.DecodeString(hexHash)
	if subtle.ConstantTimeCompare(computed, stored) != 1 {
		return nil, auth.ErrKeyNotFound
	}
	return info, nil
}

// RequireScope rejects authenticated requests whose key lacks scope with 403.
func (s *SecurityHandler) RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, ok := auth.KeyFrom(r.Context())
			if !ok {
				writeStatus(w, r, http.StatusUnauthorized, "Authentication credentials were not provided.")
				return
			}
			if !info.HasScope(scope) {
				writeStatus(w, r, http.StatusForbidden, "The API key is not allowed to perform this action.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestKey(r *http.Request) string {
	if k := r.Header.Get(apiKeyHeader); k != "" {
		return k
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, authorizationPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(h, authorizationPrefix))
	}
	return ""
}
