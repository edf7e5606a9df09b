package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

const (
	// ResolverKeyHeader carries the resolver API key.
	ResolverKeyHeader = "X-Resolver-Key"
	// OracleSignatureHeader carries an oracle's signature over the
	// resolution message of the request's market and result.
	OracleSignatureHeader = "X-Oracle-Signature"

	maxResolveBody = 64 << 10
)

// SignatureVerifier checks oracle resolution signatures.
type SignatureVerifier interface {
	Verify(marketID string, result domain.Side, signature string) (common.Address, error)
	Empty() bool
}

type resolverKey struct{}

// ResolverFrom returns who authorised the request: "api_key" or the oracle
// address.
func ResolverFrom(ctx context.Context) string {
	v, _ := ctx.Value(resolverKey{}).(string)
	return v
}

// Resolver guards routes that only a resolver may call. The resolver key
// authorises any of them; an oracle signature authorises a resolution whose
// JSON body names the signed result for the {id} market.
func Resolver(apiKey string, verifier SignatureVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	oracles := verifier != nil && !verifier.Empty()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key := r.Header.Get(ResolverKeyHeader); key != "" {
				if apiKey == "" || !constantTimeEqual(key, apiKey) {
					writeError(w, http.StatusForbidden, "invalid resolver key")
					return
				}
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), resolverKey{}, "api_key")))
				return
			}

			sig := r.Header.Get(OracleSignatureHeader)
			if sig == "" {
				writeError(w, http.StatusUnauthorized, "resolver credentials required")
				return
			}
			if !oracles {
				writeError(w, http.StatusForbidden, "oracle signatures are not accepted")
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxResolveBody))
			if err != nil {
				writeError(w, http.StatusBadRequest, "unreadable body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			var req struct {
				Result string `json:"result"`
			}
			if err := json.Unmarshal(body, &req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid JSON body")
				return
			}
			side, err := domain.ParseSide(req.Result)
			if err != nil {
				writeError(w, http.StatusBadRequest, "result must be yes or no")
				return
			}

			marketID := r.PathValue("id")
			addr, err := verifier.Verify(marketID, side, sig)
			if err != nil {
				logger.WarnContext(r.Context(), "middleware: oracle signature rejected",
					slog.String("market_id", marketID),
					slog.String("error", err.Error()),
				)
				writeError(w, http.StatusForbidden, "invalid oracle signature")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), resolverKey{}, addr.Hex())))
		})
	}
}

// ResolverKeyOnly guards resolver routes other than resolution. The signed
// message names only a market and a result, so oracle signatures are
// refused here.
func ResolverKeyOnly(apiKey string) func(http.Handler) http.Handler {
	return Resolver(apiKey, nil, nil)
}
