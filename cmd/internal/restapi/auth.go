package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	v1 "daycheck/shared/contracts/push/v1"
)

// TokenPair is the credential pair issued by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// EnvelopeShape names the two token response layouts the backend has used.
type EnvelopeShape int

const (
	// ShapeFlat is {"accessToken": ..., "refreshToken": ...}.
	ShapeFlat EnvelopeShape = iota + 1
	// ShapeNested is {"data": {"accessToken": ..., "refreshToken": ...}}.
	ShapeNested
)

func (s EnvelopeShape) String() string {
	switch s {
	case ShapeFlat:
		return "flat"
	case ShapeNested:
		return "nested"
	default:
		return "unknown"
	}
}

// TokenEnvelope is a token response normalized at the boundary.
type TokenEnvelope struct {
	Shape  EnvelopeShape
	Tokens TokenPair
}

// DecodeTokenEnvelope normalizes a login or refresh body. A non-null "data"
// member wins over top-level fields. It does not check which fields are present.
func DecodeTokenEnvelope(body []byte) (TokenEnvelope, error) {
	var raw struct {
		TokenPair
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return TokenEnvelope{}, fmt.Errorf("%w: token envelope: %v", ErrMalformedResponse, err)
	}

	data := bytes.TrimSpace(raw.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return TokenEnvelope{Shape: ShapeFlat, Tokens: trimPair(raw.TokenPair)}, nil
	}

	var nested TokenPair
	if err := json.Unmarshal(data, &nested); err != nil {
		return TokenEnvelope{}, fmt.Errorf("%w: token envelope data: %v", ErrMalformedResponse, err)
	}
	return TokenEnvelope{Shape: ShapeNested, Tokens: trimPair(nested)}, nil
}

func trimPair(p TokenPair) TokenPair {
	return TokenPair{
		AccessToken:  strings.TrimSpace(p.AccessToken),
		RefreshToken: strings.TrimSpace(p.RefreshToken),
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges credentials for a token pair. Both tokens must be present.
func (c *Client) Login(ctx context.Context, email, password string) (TokenPair, error) {
	body, err := c.DoRaw(ctx, http.MethodPost, "/api/auth/login", nil, loginRequest{Email: email, Password: password})
	if err != nil {
		return TokenPair{}, err
	}
	env, err := DecodeTokenEnvelope(body)
	if err != nil {
		return TokenPair{}, err
	}
	if env.Tokens.AccessToken == "" || env.Tokens.RefreshToken == "" {
		return TokenPair{}, fmt.Errorf("%w: login: missing token (%s envelope)", ErrMalformedResponse, env.Shape)
	}
	return env.Tokens, nil
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh exchanges a refresh token for a new access token. The returned
// RefreshToken is empty when the backend did not rotate it.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	body, err := c.DoRaw(ctx, http.MethodPost, "/api/auth/refresh", nil, refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return TokenPair{}, err
	}
	env, err := DecodeTokenEnvelope(body)
	if err != nil {
		return TokenPair{}, err
	}
	if env.Tokens.AccessToken == "" {
		return TokenPair{}, fmt.Errorf("%w: refresh: missing access token (%s envelope)", ErrMalformedResponse, env.Shape)
	}
	return env.Tokens, nil
}

// User is the server-opaque profile of the authenticated user. Raw keeps the
// body exactly as received; ID, Email and Name are extracted for display.
type User struct {
	ID    string
	Email string
	Name  string
	Raw   json.RawMessage
}

type userFields struct {
	ID       v1.ID  `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Nickname string `json:"nickname"`
}

func (u *User) UnmarshalJSON(b []byte) error {
	var top struct {
		userFields
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &top); err != nil {
		return err
	}
	f := top.userFields
	if data := bytes.TrimSpace(top.Data); len(data) > 0 && data[0] == '{' && f.ID == "" && f.Email == "" {
		if err := json.Unmarshal(data, &f); err != nil {
			return err
		}
	}
	name := f.Name
	if name == "" {
		name = f.Nickname
	}
	*u = User{
		ID:    f.ID.String(),
		Email: f.Email,
		Name:  name,
		Raw:   append(json.RawMessage(nil), b...),
	}
	return nil
}

func (u User) MarshalJSON() ([]byte, error) {
	if len(u.Raw) > 0 {
		return u.Raw, nil
	}
	return json.Marshal(userFields{ID: v1.ID(u.ID), Email: u.Email, Name: u.Name})
}

// CurrentUser fetches the profile for the current bearer. Older backends only
// expose /api/users/me, so a 404 on the members path falls back to it.
func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	var u User
	err := c.Do(ctx, http.MethodGet, "/api/members/me", nil, nil, &u)
	if StatusOf(err) == http.StatusNotFound {
		u = User{}
		err = c.Do(ctx, http.MethodGet, "/api/users/me", nil, nil, &u)
	}
	if err != nil {
		return User{}, err
	}
	if len(u.Raw) == 0 {
		return User{}, fmt.Errorf("%w: empty profile", ErrMalformedResponse)
	}
	return u, nil
}

// Result is the {success, message} envelope used by account endpoints.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

// SignupRequest is the body of POST /api/auth/signup.
type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// Signup creates an account. The caller decides what a non-success Result means.
func (c *Client) Signup(ctx context.Context, req SignupRequest) (Result, error) {
	var res Result
	if err := c.Do(ctx, http.MethodPost, "/api/auth/signup", nil, req, &res); err != nil {
		return Result{}, err
	}
	return res, nil
}

// SendVerification asks the backend to email a verification code.
func (c *Client) SendVerification(ctx context.Context, email string) error {
	return c.Do(ctx, http.MethodPost, "/api/auth/send-verification", nil, map[string]string{"email": email}, nil)
}

// VerifyCode submits an emailed verification code. Any 2xx counts as success.
func (c *Client) VerifyCode(ctx context.Context, email, code string) error {
	return c.Do(ctx, http.MethodPost, "/api/auth/verify-code", nil, map[string]string{"email": email, "code": code}, nil)
}

// VerifyToken confirms an email-link token.
func (c *Client) VerifyToken(ctx context.Context, token string) (Result, error) {
	var res Result
	q := url.Values{"token": []string{token}}
	if err := c.Do(ctx, http.MethodGet, "/api/auth/verify", q, nil, &res); err != nil {
		return Result{}, err
	}
	return res, nil
}
