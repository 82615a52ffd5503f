package daemon

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humaecho"
	"github.com/labstack/echo/v4"

	"vodingest/internal/ingest"
	"vodingest/internal/services"
)

// Identity headers set by the fronting web layer.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

const roleAdmin = "admin"

type principalKey struct{}

func withPrincipal(ctx context.Context, p ingest.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFrom(ctx context.Context) ingest.Principal {
	p, _ := ctx.Value(principalKey{}).(ingest.Principal)
	return p
}

// principalFromHeaders trusts the identity asserted by the web layer. The
// bearer check guards who may assert it.
func principalFromHeaders(userID, role string) ingest.Principal {
	return ingest.Principal{
		UserID: strings.TrimSpace(userID),
		Admin:  strings.EqualFold(strings.TrimSpace(role), roleAdmin),
	}
}

// authenticate validates the shared bearer token when one is configured and
// attaches the caller's principal and request id to the request context.
func (s *apiServer) authenticate(ctx huma.Context, next func(huma.Context)) {
	if s.token != "" {
		presented, ok := strings.CutPrefix(ctx.Header("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(s.token)) != 1 {
			writeHumaError(ctx, &apiError{status: http.StatusUnauthorized, Message: "unauthorized"})
			return
		}
	}

	echoCtx := humaecho.Unwrap(ctx)
	r := echoCtx.Request()
	reqCtx := withPrincipal(r.Context(), principalFromHeaders(ctx.Header(HeaderUserID), ctx.Header(HeaderUserRole)))
	if id := echoCtx.Response().Header().Get(echo.HeaderXRequestID); id != "" {
		reqCtx = services.WithRequestID(reqCtx, id)
	}
	echoCtx.SetRequest(r.WithContext(reqCtx))
	next(ctx)
}
