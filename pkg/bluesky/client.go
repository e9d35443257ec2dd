package bluesky

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/leadcadencehq/leadcadence-backend/pkg/errors"
	"github.com/leadcadencehq/leadcadence-backend/pkg/ratelimit"
)

const (
	defaultHost                = "https://bsky.social"
	defaultRequestTimeout      = 30 * time.Second
	errorBodyReadLimit   int64 = 2048

	// chatProxy routes convo calls through the Bluesky chat service.
	chatProxy = "did:web:api.bsky.chat#bsky_chat"

	headerRateLimitRemaining = "RateLimit-Remaining"
	headerRateLimitReset     = "RateLimit-Reset"

	// rateHeaderAdoptThreshold keeps local pacing in charge until the platform
	// reports the budget is nearly gone; a large remaining would otherwise
	// override the window and admit an unpaced burst.
	rateHeaderAdoptThreshold = 5
)

var (
	errIdentifierRequired  = errors.New("bluesky identifier is required")
	errAppPasswordRequired = errors.New("bluesky app password is required")
)

// Credentials identify the actor account the client posts as.
type Credentials struct {
	Identifier  string
	AppPassword string
}

// SessionGuard bounds createSession attempts across processes. The Redis
// client satisfies this directly.
type SessionGuard interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Client speaks XRPC to a Bluesky PDS on behalf of one actor account. It
// manages the session lifecycle itself and paces outbound calls through the
// shared limiter when one is configured.
type Client struct {
	httpClient   *http.Client
	host         string
	creds        Credentials
	limiter      *ratelimit.Limiter
	sessionGuard SessionGuard
	now          func() time.Time

	mu      sync.Mutex
	session *session
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithHost overrides the PDS host.
func WithHost(host string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(host)
		if trimmed != "" {
			c.host = strings.TrimRight(trimmed, "/")
		}
	}
}

// WithLimiter paces authenticated calls through the given limiter.
func WithLimiter(limiter *ratelimit.Limiter) Option {
	return func(c *Client) {
		c.limiter = limiter
	}
}

// WithSessionGuard bounds session creation through a shared fixed window.
func WithSessionGuard(guard SessionGuard) Option {
	return func(c *Client) {
		c.sessionGuard = guard
	}
}

// WithClock overrides time for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient builds a Bluesky client for the given account credentials.
func NewClient(creds Credentials, opts ...Option) (*Client, error) {
	creds.Identifier = strings.TrimSpace(creds.Identifier)
	if creds.Identifier == "" {
		return nil, errIdentifierRequired
	}
	if strings.TrimSpace(creds.AppPassword) == "" {
		return nil, errAppPasswordRequired
	}

	client := &Client{
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		host:       defaultHost,
		creds:      creds,
		now:        time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	if client.host == "" {
		client.host = defaultHost
	}

	return client, nil
}

// DID returns the authenticated actor's DID, establishing a session if needed.
func (c *Client) DID(ctx context.Context) (string, error) {
	sess, err := c.ensureSession(ctx)
	if err != nil {
		return "", err
	}
	return sess.did, nil
}

// Ping verifies the PDS is reachable without consuming the session budget.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "bluesky client not configured")
	}
	var resp struct {
		DID string `json:"did"`
	}
	if err := c.xrpc(ctx, xrpcRequest{
		method: http.MethodGet,
		nsid:   "com.atproto.server.describeServer",
	}, &resp); err != nil {
		return mapAPIError(err, "describe server")
	}
	return nil
}

// apiError carries the XRPC failure body alongside the HTTP status.
type apiError struct {
	status  int
	name    string
	message string
}

func (e *apiError) Error() string {
	if e.message != "" {
		return fmt.Sprintf("xrpc status %d: %s: %s", e.status, e.name, e.message)
	}
	return fmt.Sprintf("xrpc status %d: %s", e.status, e.name)
}

func isAuthExpired(err error) bool {
	var apiErr *apiError
	return errors.As(err, &apiErr) && apiErr.status == http.StatusUnauthorized
}

func mapAPIError(err error, op string) error {
	if err == nil {
		return nil
	}
	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		if pkgerrors.As(err) != nil {
			return err
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
	}
	switch {
	case apiErr.status == http.StatusTooManyRequests:
		return pkgerrors.Wrap(pkgerrors.CodeRateLimit, err, op)
	case apiErr.status == http.StatusUnauthorized || apiErr.status == http.StatusForbidden:
		return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, op)
	case apiErr.status >= 500:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
	default:
		return pkgerrors.Wrap(pkgerrors.CodeConnector, err, op)
	}
}

type xrpcRequest struct {
	method string
	nsid   string
	query  url.Values
	body   any
	bearer string
	proxy  string
}

// authedXRPC runs a session-bearing call, paced by the limiter, retrying once
// after re-authentication when the access token has expired server-side.
func (c *Client) authedXRPC(ctx context.Context, req xrpcRequest, out any) error {
	if err := c.pace(ctx); err != nil {
		return err
	}

	sess, err := c.ensureSession(ctx)
	if err != nil {
		return err
	}

	req.bearer = sess.accessJWT
	callErr := c.xrpc(ctx, req, out)
	if callErr == nil {
		return nil
	}
	if !isAuthExpired(callErr) {
		return callErr
	}

	c.invalidateSession()
	sess, err = c.ensureSession(ctx)
	if err != nil {
		return err
	}
	req.bearer = sess.accessJWT
	return c.xrpc(ctx, req, out)
}

// pace blocks until the limiter admits the call, bounded by ctx.
func (c *Client) pace(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	for {
		wait, err := c.limiter.Acquire(ctx)
		if err != nil {
			return err
		}
		if wait <= 0 {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// xrpc performs one HTTP round trip. It never touches c.mu so session code can
// call it while holding the lock. Rate-limit headers are adopted even on
// failed responses.
func (c *Client) xrpc(ctx context.Context, req xrpcRequest, out any) error {
	endpoint := fmt.Sprintf("%s/xrpc/%s", strings.TrimRight(c.host, "/"), req.nsid)
	if len(req.query) > 0 {
		endpoint += "?" + req.query.Encode()
	}

	var bodyReader io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal xrpc request")
		}
		bodyReader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, endpoint, bodyReader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build xrpc request")
	}
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.bearer)
	}
	if req.proxy != "" {
		httpReq.Header.Set("Atproto-Proxy", req.proxy)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute xrpc request")
	}
	defer func() { _ = resp.Body.Close() }()

	c.adoptRateHeaders(ctx, resp.Header)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode xrpc response")
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
	apiErr := &apiError{status: resp.StatusCode}

	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		apiErr.name = body.Error
		apiErr.message = body.Message
	} else {
		apiErr.name = strings.TrimSpace(string(raw))
	}
	return apiErr
}

// adoptRateHeaders feeds the platform's own accounting into the limiter so
// local pacing tracks the authoritative budget.
func (c *Client) adoptRateHeaders(ctx context.Context, h http.Header) {
	if c.limiter == nil {
		return
	}
	remainingRaw := h.Get(headerRateLimitRemaining)
	resetRaw := h.Get(headerRateLimitReset)
	if remainingRaw == "" || resetRaw == "" {
		return
	}
	remaining, err := strconv.Atoi(remainingRaw)
	if err != nil || remaining > rateHeaderAdoptThreshold {
		return
	}
	resetUnix, err := strconv.ParseInt(resetRaw, 10, 64)
	if err != nil {
		return
	}
	_ = c.limiter.UpdateFromHeaders(ctx, remaining, time.Unix(resetUnix, 0))
}
