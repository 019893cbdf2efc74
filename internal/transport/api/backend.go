package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"guardian-shell/internal/domain/auth/model"
	platformerrors "guardian-shell/internal/platform/errors"
)

const (
	requestIDHeader = "X-Request-Id"
	maxResponseBody = 1 << 20
)

// envelope is the backend's common response wrapper.
type envelope struct {
	Status  interface{}     `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type authData struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	User         *backendUser `json:"user"`
}

type backendUser struct {
	ID    interface{} `json:"id"`
	Email string      `json:"email"`
	Name  string      `json:"name"`
	Phone string      `json:"phone"`
	Role  string      `json:"role"`
}

func (u *backendUser) toModel() *model.User {
	if u == nil || u.ID == nil {
		return nil
	}
	return &model.User{
		ID:    fmt.Sprint(u.ID),
		Email: u.Email,
		Name:  u.Name,
		Phone: u.Phone,
		Role:  u.Role,
	}
}

// BackendClient calls the auth endpoints directly. Refresh goes through here
// rather than the Gateway so a 401 from /auth/refresh can never recurse.
type BackendClient struct {
	baseURL string
	http    *http.Client
	logger  model.Logger
}

func NewBackendClient(baseURL string, timeout time.Duration, logger model.Logger) *BackendClient {
	if logger == nil {
		logger = model.NopLogger{}
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &BackendClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (c *BackendClient) Login(ctx context.Context, creds model.Credentials) (model.TokenPair, *model.User, error) {
	return c.authExchange(ctx, "backend.login", "/auth/login", map[string]string{
		"email":    creds.Email,
		"password": creds.Password,
	})
}

func (c *BackendClient) SocialLogin(ctx context.Context, provider, providerToken string) (model.TokenPair, *model.User, error) {
	return c.authExchange(ctx, "backend.social_login", "/auth/social", map[string]string{
		"provider":    provider,
		"accessToken": providerToken,
	})
}

func (c *BackendClient) Refresh(ctx context.Context, refreshToken string) (model.TokenPair, error) {
	var data authData
	if err := c.postJSON(ctx, "backend.refresh", "/auth/refresh", map[string]string{
		"refresh_token": refreshToken,
	}, &data); err != nil {
		return model.TokenPair{}, err
	}
	if data.AccessToken == "" || data.RefreshToken == "" {
		return model.TokenPair{}, platformerrors.New(platformerrors.KindHTTP, "backend.refresh", "malformed response")
	}
	return model.TokenPair{AccessToken: data.AccessToken, RefreshToken: data.RefreshToken}, nil
}

func (c *BackendClient) authExchange(ctx context.Context, op, path string, body any) (model.TokenPair, *model.User, error) {
	var data authData
	if err := c.postJSON(ctx, op, path, body, &data); err != nil {
		return model.TokenPair{}, nil, err
	}
	user := data.User.toModel()
	if data.AccessToken == "" || data.RefreshToken == "" || user == nil {
		return model.TokenPair{}, nil, platformerrors.New(platformerrors.KindHTTP, op, "malformed response")
	}
	return model.TokenPair{AccessToken: data.AccessToken, RefreshToken: data.RefreshToken}, user, nil
}

func (c *BackendClient) postJSON(ctx context.Context, op, path string, body any, out any) error {
	payload, err := sonic.Marshal(body)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindUnknown, op, "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindNetwork, op, "build request", err)
	}
	rid := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, rid)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("%s rid=%s failed after %s: %v", op, rid, time.Since(start), err)
		if errors.Is(err, context.DeadlineExceeded) {
			return platformerrors.Wrap(platformerrors.KindTimeout, op, "request timed out", err)
		}
		return platformerrors.Wrap(platformerrors.KindNetwork, op, "no response", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindNetwork, op, "read response", err)
	}
	c.logger.Debug("%s rid=%s status=%d in %s", op, rid, resp.StatusCode, time.Since(start))

	var env envelope
	decodeErr := sonic.Unmarshal(raw, &env)

	if resp.StatusCode >= http.StatusBadRequest {
		msg := http.StatusText(resp.StatusCode)
		if decodeErr == nil && env.Message != "" {
			msg = env.Message
		}
		return platformerrors.HTTPStatus(op, resp.StatusCode, msg)
	}
	if decodeErr != nil || len(env.Data) == 0 {
		return platformerrors.New(platformerrors.KindHTTP, op, "malformed response")
	}
	if err := sonic.Unmarshal(env.Data, out); err != nil {
		return platformerrors.Wrap(platformerrors.KindHTTP, op, "malformed response", err)
	}
	return nil
}
