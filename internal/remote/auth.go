package remote

import (
	"context"
	"fmt"
	"net/http"

	"drive-go/internal/drive"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges credentials for an access token. It satisfies
// session.Authenticator.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var out struct {
		AccessToken string `json:"access_token"`
	}
	err := c.call(ctx, "login", http.MethodPost, "/auth/login", loginRequest{Email: email, Password: password}, &out, false)
	if err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", &drive.RemoteError{Op: "login", Status: http.StatusOK, Detail: "response has no access_token", Err: drive.ErrTransport}
	}
	return out.AccessToken, nil
}

// Register creates an account. The server answers with a message only; the
// user logs in separately.
func (c *Client) Register(ctx context.Context, name, email, password string) error {
	if email == "" || password == "" {
		return fmt.Errorf("%w: email and password are required", drive.ErrValidation)
	}
	return c.call(ctx, "register", http.MethodPost, "/auth/register",
		registerRequest{Name: name, Email: email, Password: password}, nil, false)
}
