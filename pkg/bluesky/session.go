package bluesky

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	pkgerrors "github.com/leadcadencehq/leadcadence-backend/pkg/errors"
)

const (
	// accessRefreshSkew refreshes the access token this long before its exp
	// claim so in-flight calls never race the expiry.
	accessRefreshSkew = 5 * time.Minute

	sessionGuardScope  = "bluesky:create-session"
	sessionGuardLimit  = 10
	sessionGuardWindow = 5 * time.Minute
)

type session struct {
	accessJWT  string
	refreshJWT string
	did        string
	handle     string
	accessExp  time.Time
}

func (s *session) expiresWithin(now time.Time, skew time.Duration) bool {
	if s == nil {
		return true
	}
	if s.accessExp.IsZero() {
		return false
	}
	return !now.Add(skew).Before(s.accessExp)
}

// tokenExpiry reads the exp claim without verifying the signature; the PDS is
// the authority on its own tokens, we only need the deadline for scheduling.
func tokenExpiry(raw string) (time.Time, bool) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

type sessionResponse struct {
	AccessJWT  string `json:"accessJwt"`
	RefreshJWT string `json:"refreshJwt"`
	DID        string `json:"did"`
	Handle     string `json:"handle"`
}

func (r sessionResponse) toSession() *session {
	s := &session{
		accessJWT:  r.AccessJWT,
		refreshJWT: r.RefreshJWT,
		did:        r.DID,
		handle:     r.Handle,
	}
	if exp, ok := tokenExpiry(r.AccessJWT); ok {
		s.accessExp = exp
	}
	return s
}

// ensureSession guarantees a usable access token, creating or refreshing the
// session as needed. Callers must not hold c.mu.
func (c *Client) ensureSession(ctx context.Context) (*session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.session != nil && !c.session.expiresWithin(now, accessRefreshSkew) {
		return c.session, nil
	}

	if c.session != nil && c.session.refreshJWT != "" {
		refreshed, err := c.refreshSessionLocked(ctx)
		if err == nil {
			c.session = refreshed
			return c.session, nil
		}
		// Refresh tokens get revoked on password rotation; fall through to a
		// fresh login rather than failing the action.
		c.session = nil
	}

	created, err := c.createSessionLocked(ctx)
	if err != nil {
		return nil, err
	}
	c.session = created
	return c.session, nil
}

func (c *Client) createSessionLocked(ctx context.Context) (*session, error) {
	if err := c.allowSessionCreate(ctx); err != nil {
		return nil, err
	}

	body := map[string]string{
		"identifier": c.creds.Identifier,
		"password":   c.creds.AppPassword,
	}

	var resp sessionResponse
	if err := c.xrpc(ctx, xrpcRequest{
		method: http.MethodPost,
		nsid:   "com.atproto.server.createSession",
		body:   body,
	}, &resp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "create session")
	}
	if resp.AccessJWT == "" || resp.DID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "create session returned no credentials")
	}

	return resp.toSession(), nil
}

func (c *Client) refreshSessionLocked(ctx context.Context) (*session, error) {
	var resp sessionResponse
	if err := c.xrpc(ctx, xrpcRequest{
		method: http.MethodPost,
		nsid:   "com.atproto.server.refreshSession",
		bearer: c.session.refreshJWT,
	}, &resp); err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}
	if resp.AccessJWT == "" {
		return nil, fmt.Errorf("refresh session returned no access token")
	}
	return resp.toSession(), nil
}

// allowSessionCreate consults the shared fixed-window guard so a crash-looping
// worker cannot burn the PDS login budget for the handle.
func (c *Client) allowSessionCreate(ctx context.Context) error {
	if c.sessionGuard == nil {
		return nil
	}
	scope := fmt.Sprintf("%s:%s", sessionGuardScope, c.creds.Identifier)
	allowed, _, err := c.sessionGuard.FixedWindowAllow(ctx, scope, sessionGuardLimit, sessionGuardWindow)
	if err != nil {
		// Guard outages should not block outreach; the PDS enforces its own
		// ceiling regardless.
		return nil
	}
	if !allowed {
		return pkgerrors.New(pkgerrors.CodeRateLimit, "session creation budget exhausted for handle")
	}
	return nil
}

// invalidateSession drops the cached session so the next call re-authenticates.
func (c *Client) invalidateSession() {
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
}
