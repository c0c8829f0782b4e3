package middleware

import (
	"context"
	"net/http"

	goGuard "github.com/MrEthical07/goGuard"
)

// Authorizer is the slice of *goGuard.Engine the gate needs.
type Authorizer interface {
	Authorize(ctx context.Context, req goGuard.Request) (goGuard.Decision, error)
}

// Resolver builds the gate request for r: the acting subject plus the
// forum, thread and post the route addresses. Returning an error aborts
// the request through WriteError.
type Resolver func(r *http.Request) (goGuard.Request, error)

type decisionContextKey struct{}

// DecisionFromContext returns the allowing decision stored by Gate. Handlers
// should persist Decision.Content rather than the raw body, since it may
// have been truncated.
func DecisionFromContext(ctx context.Context) (goGuard.Decision, bool) {
	d, ok := ctx.Value(decisionContextKey{}).(goGuard.Decision)
	return d, ok
}

// Gate authorizes every request through engine before calling next.
// Denials never reach next.
func Gate(engine Authorizer, resolve Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil || resolve == nil {
				WriteError(w, goGuard.ErrEngineNotReady, 0)
				return
			}

			req, err := resolve(r)
			if err != nil {
				WriteError(w, err, 0)
				return
			}

			d, err := engine.Authorize(r.Context(), req)
			if err != nil {
				WriteError(w, err, 0)
				return
			}
			if !d.Allowed {
				writeDenied(w, d)
				return
			}

			ctx := context.WithValue(r.Context(), decisionContextKey{}, d)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAction is Gate with the action fixed, for routes that map onto
// one gated action.
func RequireAction(engine Authorizer, action goGuard.Action, resolve Resolver) func(http.Handler) http.Handler {
	return Gate(engine, func(r *http.Request) (goGuard.Request, error) {
		if resolve == nil {
			return goGuard.Request{}, goGuard.ErrEngineNotReady
		}
		req, err := resolve(r)
		if err != nil {
			return goGuard.Request{}, err
		}
		req.Action = action
		return req, nil
	})
}
