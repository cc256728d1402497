// Package authapi holds the typed calls for the authentication endpoints.
package authapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/utafrali/ExpenseGo/internal/domain"
	"github.com/utafrali/ExpenseGo/internal/gateway"
	apperrors "github.com/utafrali/ExpenseGo/pkg/errors"
)

// Doer dispatches a gateway request. *gateway.Gateway satisfies it.
type Doer interface {
	Do(ctx context.Context, req *gateway.Request) (*gateway.Response, error)
}

// Client calls /auth/* through the gateway.
type Client struct {
	gw Doer
}

// New creates a Client.
func New(gw Doer) *Client {
	return &Client{gw: gw}
}

type authResponse struct {
	Message      string       `json:"message"`
	User         *domain.User `json:"user"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
}

type registerRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	Password  string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

var errIncomplete = errors.New("auth response is missing tokens or user")

// Login exchanges email and password for a session.
func (c *Client) Login(ctx context.Context, in domain.LoginInput) (domain.Credentials, error) {
	return c.authenticate(ctx, "/auth/login", domain.LoginInput{Email: in.Email, Password: in.Password})
}

// Register creates an account and signs it in. The confirmation field is
// never sent.
func (c *Client) Register(ctx context.Context, in domain.RegisterInput) (domain.Credentials, error) {
	return c.authenticate(ctx, "/auth/register", registerRequest{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Username:  in.Username,
		Password:  in.Password,
	})
}

func (c *Client) authenticate(ctx context.Context, path string, body any) (domain.Credentials, error) {
	var out authResponse
	if err := c.do(ctx, &gateway.Request{
		Method:   http.MethodPost,
		Path:     path,
		Body:     body,
		SkipAuth: true,
	}, &out); err != nil {
		return domain.Credentials{}, err
	}

	creds := domain.Credentials{
		Tokens: domain.TokenPair{AccessToken: out.AccessToken, RefreshToken: out.RefreshToken},
		User:   out.User,
	}
	if !creds.Complete() {
		return domain.Credentials{}, apperrors.Internal(errIncomplete)
	}
	return creds, nil
}

// Refresh exchanges a refresh token for a new access token. The token goes
// in the body and as the bearer credential, since backends read either.
// RefreshToken in the result is empty unless the server rotated it.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	var out authResponse
	if err := c.do(ctx, &gateway.Request{
		Method:   http.MethodPost,
		Path:     "/auth/refresh",
		Body:     refreshRequest{RefreshToken: refreshToken},
		Bearer:   refreshToken,
		SkipAuth: true,
	}, &out); err != nil {
		return domain.TokenPair{}, err
	}
	if out.AccessToken == "" {
		return domain.TokenPair{}, apperrors.Internal(errors.New("refresh response has no access token"))
	}
	return domain.TokenPair{AccessToken: out.AccessToken, RefreshToken: out.RefreshToken}, nil
}

// Logout tells the server the access token is done with.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	return c.do(ctx, &gateway.Request{
		Method:   http.MethodPost,
		Path:     "/auth/logout",
		Bearer:   accessToken,
		SkipAuth: true,
	}, nil)
}

// Me fetches the signed-in profile with the session's token, so it takes
// part in refresh-and-retry.
func (c *Client) Me(ctx context.Context) (*domain.User, error) {
	var out struct {
		User *domain.User `json:"user"`
	}
	if err := c.do(ctx, &gateway.Request{Method: http.MethodGet, Path: "/auth/me"}, &out); err != nil {
		return nil, err
	}
	if out.User == nil {
		return nil, apperrors.Internal(errors.New("profile response has no user"))
	}
	return out.User, nil
}

func (c *Client) do(ctx context.Context, req *gateway.Request, out any) error {
	resp, err := c.gw.Do(ctx, req)
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.Decode(out)
}
