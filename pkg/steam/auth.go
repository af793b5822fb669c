package steam

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vantigo/csfiles/internal/logger"
	"github.com/vantigo/csfiles/internal/request"
)

const communityURL = "https://steamcommunity.com"

// Client holds an authenticated Steam web session. It is the session
// collaborator injected into the CDN client; the download pipeline only
// ever asks it IsAuthenticated and for its access token.
type Client struct {
	client        *request.Client
	logger        zerolog.Logger
	loginTimeout  time.Duration
	authenticated bool
	steamID       string
	token         string
	prompt        func(label string) (string, error)
}

// NewClient creates an unauthenticated session client. loginTimeout bounds
// the whole login exchange including interactive guard-code entry.
func NewClient(loginTimeout time.Duration) *Client {
	_log := logger.New("steam-auth")
	return &Client{
		client: request.New(
			request.WithLogger(_log),
			request.WithTimeout(loginTimeout),
			request.WithHeaders(map[string]string{
				"User-Agent": "csfiles",
			}),
		),
		logger:       _log,
		loginTimeout: loginTimeout,
		prompt:       promptStdin,
	}
}

type rsaKeyResponse struct {
	Success   bool   `json:"success"`
	Modulus   string `json:"publickey_mod"`
	Exponent  string `json:"publickey_exp"`
	Timestamp string `json:"timestamp"`
}

type loginResponse struct {
	Success           bool   `json:"success"`
	RequiresTwoFactor bool   `json:"requires_twofactor"`
	EmailAuthNeeded   bool   `json:"emailauth_needed"`
	Message           string `json:"message"`
	TransferParams    struct {
		SteamID string `json:"steamid"`
		Token   string `json:"token_secure"`
	} `json:"transfer_parameters"`
}

// Login authenticates with Steam. The optional twoFactorCode is used first;
// when Steam asks for email-guard or mobile-authenticator confirmation and
// no code was supplied, the user is prompted interactively, mirroring a
// manual login.
func (c *Client) Login(ctx context.Context, username, password, twoFactorCode string) error {
	c.logger.Info().Str("username", username).Msg("logging into Steam")

	ctx, cancel := context.WithTimeout(ctx, c.loginTimeout)
	defer cancel()

	encrypted, timestamp, err := c.encryptPassword(ctx, username, password)
	if err != nil {
		return fmt.Errorf("password encryption: %w", err)
	}

	resp, err := c.doLogin(ctx, username, encrypted, timestamp, "", twoFactorCode)
	if err != nil {
		return err
	}

	if !resp.Success && resp.EmailAuthNeeded {
		c.logger.Info().Msg("Steam Guard email authentication required")
		code, err := c.prompt("Steam Guard email code")
		if err != nil {
			return err
		}
		resp, err = c.doLogin(ctx, username, encrypted, timestamp, code, "")
		if err != nil {
			return err
		}
	} else if !resp.Success && resp.RequiresTwoFactor && twoFactorCode == "" {
		c.logger.Info().Msg("mobile authenticator code required")
		code, err := c.prompt("mobile authenticator code")
		if err != nil {
			return err
		}
		resp, err = c.doLogin(ctx, username, encrypted, timestamp, "", code)
		if err != nil {
			return err
		}
	}

	if !resp.Success {
		return fmt.Errorf("login failed: %s", loginFailureReason(resp))
	}

	c.authenticated = true
	c.steamID = resp.TransferParams.SteamID
	c.token = resp.TransferParams.Token
	c.logger.Info().Msg("login successful")
	return nil
}

// IsAuthenticated reports whether a login has completed.
func (c *Client) IsAuthenticated() bool {
	return c.authenticated
}

// Token returns the session token for CDN requests.
func (c *Client) Token() string {
	return c.token
}

// Logout drops the session.
func (c *Client) Logout() {
	if !c.authenticated {
		return
	}
	c.authenticated = false
	c.token = ""
	c.logger.Info().Msg("logged out from Steam")
}

// encryptPassword fetches the account RSA key and encrypts the password
// with it, as the login endpoint requires.
func (c *Client) encryptPassword(ctx context.Context, username, password string) (string, string, error) {
	form := url.Values{"username": {username}}
	body, err := c.client.PostForm(ctx, communityURL+"/login/getrsakey/", form)
	if err != nil {
		return "", "", err
	}

	var key rsaKeyResponse
	if err := json.Unmarshal(body, &key); err != nil {
		return "", "", fmt.Errorf("decode rsa key: %w", err)
	}
	if !key.Success {
		return "", "", fmt.Errorf("rsa key request refused")
	}

	mod, ok := new(big.Int).SetString(key.Modulus, 16)
	if !ok {
		return "", "", fmt.Errorf("bad rsa modulus")
	}
	exp, ok := new(big.Int).SetString(key.Exponent, 16)
	if !ok {
		return "", "", fmt.Errorf("bad rsa exponent")
	}

	pub := &rsa.PublicKey{N: mod, E: int(exp.Int64())}
	cipher, err := rsa.EncryptPKCS1v15(rand.Reader, pub, []byte(password))
	if err != nil {
		return "", "", err
	}
	return base64.StdEncoding.EncodeToString(cipher), key.Timestamp, nil
}

func (c *Client) doLogin(ctx context.Context, username, encrypted, timestamp, emailCode, twoFactorCode string) (*loginResponse, error) {
	form := url.Values{
		"username":       {username},
		"password":       {encrypted},
		"rsatimestamp":   {timestamp},
		"emailauth":      {emailCode},
		"twofactorcode":  {twoFactorCode},
		"captchagid":     {"-1"},
		"captcha_text":   {""},
		"remember_login": {"false"},
		"donotcache":     {fmt.Sprintf("%d", time.Now().UnixMilli())},
	}
	body, err := c.client.PostForm(ctx, communityURL+"/login/dologin/", form)
	if err != nil {
		return nil, fmt.Errorf("login request: %w", err)
	}
	var resp loginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode login response: %w", err)
	}
	return &resp, nil
}

func loginFailureReason(resp *loginResponse) string {
	switch {
	case resp.Message != "":
		return resp.Message
	case resp.RequiresTwoFactor:
		return "invalid mobile authenticator code"
	case resp.EmailAuthNeeded:
		return "invalid Steam Guard email code"
	default:
		return "invalid username or password"
	}
}

func promptStdin(label string) (string, error) {
	fmt.Fprintf(os.Stderr, "Please enter your %s: ", label)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read %s: %w", label, err)
	}
	return strings.TrimSpace(line), nil
}
