// Package auth resolves the calling principal. Credential verification
// happens upstream; the gateway forwards the verified identity in headers
// and this service trusts it.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"parkease-api-go/internal/domain"
)

// Headers set by the upstream authenticating proxy.
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

// ErrUnauthenticated is returned when no valid principal is present.
var ErrUnauthenticated = errors.New("missing or invalid actor identity")

// Resolver turns a request into an authenticated actor.
type Resolver interface {
	Resolve(r *http.Request) (domain.Actor, error)
}

// HeaderResolver reads the actor from trusted proxy headers.
type HeaderResolver struct{}

// Resolve implements Resolver.
func (HeaderResolver) Resolve(r *http.Request) (domain.Actor, error) {
	actor := domain.Actor{
		ID:   strings.TrimSpace(r.Header.Get(HeaderActorID)),
		Role: domain.Role(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderActorRole)))),
	}
	if !actor.Valid() {
		return domain.Actor{}, ErrUnauthenticated
	}
	return actor, nil
}

type ctxKey struct{}

// WithActor returns a copy of ctx carrying actor.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, actor)
}

// ActorFrom returns the actor stored in ctx.
func ActorFrom(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(ctxKey{}).(domain.Actor)
	return actor, ok
}
