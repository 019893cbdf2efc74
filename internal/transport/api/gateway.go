package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"guardian-shell/internal/domain/auth/model"
	platformerrors "guardian-shell/internal/platform/errors"
	"guardian-shell/internal/platform/logging"
	"guardian-shell/internal/platform/observability"
)

// SessionSource is the part of the session manager the gateway reads from.
// The gateway never writes tokens itself.
type SessionSource interface {
	AccessToken() string
	RefreshAuth(ctx context.Context) (bool, error)
}

// Request describes one backend call. Body is held in memory so the call
// can be replayed after a token refresh.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// Response is a fully read backend response.
type Response struct {
	Status    int
	Header    http.Header
	Body      []byte
	RequestID string
}

type refreshResult struct {
	token string
	err   error
}

// Gateway attaches the bearer token to every call and turns a 401 into a
// single shared refresh followed by one replay per request.
type Gateway struct {
	baseURL string
	http    *http.Client
	session SessionSource
	logger  model.Logger
	devlog  *logging.DevLog
	metrics *observability.Recorder

	mu         sync.Mutex
	refreshing bool
	waiters    []chan refreshResult
}

type GatewayOptions struct {
	BaseURL string
	Timeout time.Duration
	Session SessionSource
	Logger  model.Logger
	DevLog  *logging.DevLog
	Metrics *observability.Recorder
	// Client overrides the HTTP client, mostly for tests.
	Client *http.Client
}

func NewGateway(opts GatewayOptions) *Gateway {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = model.NopLogger{}
	}
	return &Gateway{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    client,
		session: opts.Session,
		logger:  logger,
		devlog:  opts.DevLog,
		metrics: opts.Metrics,
	}
}

// Do sends req. A 401 on the first attempt triggers the refresh protocol;
// if refresh fails the caller gets the refresh error, not the 401. Other
// statuses of 400 and above come back as KindHTTP errors alongside the
// response.
func (g *Gateway) Do(ctx context.Context, req Request) (*Response, error) {
	resp, err := g.send(ctx, req, g.session.AccessToken())
	if err != nil {
		return nil, err
	}
	if resp.Status != http.StatusUnauthorized {
		return resp, statusError(req, resp)
	}

	token, err := g.awaitRefresh(ctx)
	if err != nil {
		return nil, err
	}

	// Replayed requests are marked retried: a second 401 is returned as is.
	resp, err = g.send(ctx, req, token)
	if err != nil {
		return nil, err
	}
	return resp, statusError(req, resp)
}

// DoJSON encodes in (when non-nil) as the body and decodes the response into out.
func (g *Gateway) DoJSON(ctx context.Context, method, path string, in, out any) (*Response, error) {
	req := Request{Method: method, Path: path, Header: http.Header{}}
	if in != nil {
		body, err := sonic.Marshal(in)
		if err != nil {
			return nil, platformerrors.Wrap(platformerrors.KindUnknown, "gateway.encode", "encode request body", err)
		}
		req.Body = body
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.Do(ctx, req)
	if err != nil {
		return resp, err
	}
	if out != nil && len(resp.Body) > 0 {
		if err := sonic.Unmarshal(resp.Body, out); err != nil {
			return resp, platformerrors.Wrap(platformerrors.KindHTTP, "gateway.decode", "malformed response", err)
		}
	}
	return resp, nil
}

// awaitRefresh either joins the refresh in flight as a FIFO waiter or
// becomes the refresh leader.
func (g *Gateway) awaitRefresh(ctx context.Context) (string, error) {
	g.mu.Lock()
	if g.refreshing {
		ch := make(chan refreshResult, 1)
		g.waiters = append(g.waiters, ch)
		n := len(g.waiters)
		g.mu.Unlock()

		g.logger.Debug("401 while refresh in flight, queued as waiter %d", n)
		select {
		case res := <-ch:
			return res.token, res.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	g.refreshing = true
	g.mu.Unlock()

	return g.leadRefresh(ctx)
}

func (g *Gateway) leadRefresh(ctx context.Context) (token string, err error) {
	defer func() {
		g.mu.Lock()
		waiters := g.waiters
		g.waiters = nil
		g.refreshing = false
		g.mu.Unlock()

		for _, ch := range waiters {
			ch <- refreshResult{token: token, err: err}
		}
		g.logger.Debug("refresh settled, resolved %d waiters, err=%v", len(waiters), err)
	}()

	g.logger.Info("access token rejected, refreshing session")
	g.record("info", "token refresh started", nil)

	// One caller giving up must not abort the refresh every waiter depends on.
	ok, refreshErr := g.session.RefreshAuth(context.WithoutCancel(ctx))
	switch {
	case refreshErr != nil:
		err = refreshErr
	case !ok:
		err = platformerrors.New(platformerrors.KindRefreshExhausted, "gateway.refresh", "no refresh token available")
	default:
		token = g.session.AccessToken()
	}

	if err != nil {
		g.record("error", "token refresh failed", map[string]any{"error": err.Error()})
	} else {
		g.record("info", "token refresh succeeded", nil)
	}
	return token, err
}

func (g *Gateway) send(ctx context.Context, req Request, token string) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	target := g.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindNetwork, "gateway.build", "build request", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	rid := uuid.NewString()
	httpReq.Header.Set(requestIDHeader, rid)
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	_, spanEnd := g.metrics.StartSpan(ctx, "gateway", method+" "+req.Path)
	httpResp, err := g.http.Do(httpReq)
	spanEnd(err)
	if err != nil {
		g.record("error", method+" "+req.Path+" failed", map[string]any{"rid": rid, "error": err.Error()})
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, platformerrors.Wrap(platformerrors.KindTimeout, "gateway.send", "request timed out", err)
		}
		return nil, platformerrors.Wrap(platformerrors.KindNetwork, "gateway.send", "no response", err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindNetwork, "gateway.read", "read response", err)
	}

	elapsed := time.Since(start)
	g.logger.Debug("%s %s rid=%s status=%d in %s", method, req.Path, rid, httpResp.StatusCode, elapsed)
	g.record("info", method+" "+req.Path, map[string]any{
		"rid":    rid,
		"status": httpResp.StatusCode,
		"ms":     elapsed.Milliseconds(),
	})

	return &Response{
		Status:    httpResp.StatusCode,
		Header:    httpResp.Header,
		Body:      data,
		RequestID: rid,
	}, nil
}

func (g *Gateway) record(level, msg string, meta map[string]any) {
	if !g.devlog.Enabled() {
		return
	}
	switch level {
	case "error":
		g.devlog.Error(logging.ScopeAPI, msg, meta)
	default:
		g.devlog.Info(logging.ScopeAPI, msg, meta)
	}
}

func statusError(req Request, resp *Response) error {
	if resp.Status < http.StatusBadRequest {
		return nil
	}
	msg := http.StatusText(resp.Status)
	var env struct {
		Message string `json:"message"`
	}
	if err := sonic.Unmarshal(resp.Body, &env); err == nil && env.Message != "" {
		msg = env.Message
	}
	return platformerrors.HTTPStatus("gateway "+req.Method+" "+req.Path, resp.Status, msg)
}
