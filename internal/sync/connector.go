package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/NicholasBarkolias/job-booking-expo/internal/config"
	"github.com/NicholasBarkolias/job-booking-expo/internal/domain"
	"github.com/NicholasBarkolias/job-booking-expo/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
)

// credentialSkew re-fetches credentials this long before the token expires.
const credentialSkew = 30 * time.Second

// HTTPConnector talks to the remote backend sync interface over HTTP. It is
// the only component that touches the network; every call is bounded by the
// client timeout, and a timeout is indistinguishable from any other
// transport failure to callers.
type HTTPConnector struct {
	credentialsURL string
	static         domain.Credentials
	client         *http.Client
	limiter        *rate.Limiter

	mu        sync.Mutex
	creds     domain.Credentials
	credsExp  time.Time
	haveCreds bool
}

func NewHTTPConnector(cfg config.RemoteConfig) *HTTPConnector {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = models.DefaultRemoteTimeoutSeconds * time.Second
	}
	pollRPS := cfg.PollRPS
	if pollRPS <= 0 {
		pollRPS = 1
	}
	return &HTTPConnector{
		credentialsURL: cfg.CredentialsURL,
		static:         domain.Credentials{Endpoint: cfg.Endpoint, Token: cfg.Token},
		client:         &http.Client{Timeout: timeout},
		limiter:        rate.NewLimiter(rate.Limit(pollRPS), 1),
	}
}

// FetchCredentials returns the endpoint/token pair authorizing this sync
// session. With no credentials URL configured the static pair is used as-is.
func (c *HTTPConnector) FetchCredentials(ctx context.Context) (domain.Credentials, error) {
	if c.credentialsURL == "" {
		return c.static, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.credentialsURL, nil)
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("build credentials request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return domain.Credentials{}, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Credentials{}, &TransportError{Err: fmt.Errorf("credentials endpoint returned %d", resp.StatusCode)}
	}

	var creds domain.Credentials
	if err := json.NewDecoder(resp.Body).Decode(&creds); err != nil {
		return domain.Credentials{}, &TransportError{Err: fmt.Errorf("decode credentials: %w", err)}
	}
	return creds, nil
}

// credentials returns cached credentials, re-fetching when the token is
// about to expire. The token stays opaque; only its exp claim is inspected.
func (c *HTTPConnector) credentials(ctx context.Context) (domain.Credentials, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.haveCreds && (c.credsExp.IsZero() || time.Until(c.credsExp) > credentialSkew) {
		return c.creds, nil
	}

	creds, err := c.FetchCredentials(ctx)
	if err != nil {
		return domain.Credentials{}, err
	}

	c.creds = creds
	c.credsExp = tokenExpiry(creds.Token)
	c.haveCreds = true
	return creds, nil
}

// tokenExpiry extracts the exp claim from a JWT without verifying it.
// A non-JWT token yields a zero time, meaning "never refresh proactively".
func tokenExpiry(token string) time.Time {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

type uploadRequest struct {
	Operations []models.PendingOperation `json:"operations"`
}

type uploadResponse struct {
	Results []domain.OpResult `json:"results"`
}

// Upload delivers queued local mutations and returns the remote's per-op
// verdicts. Any failure to complete the exchange is a transport error.
func (c *HTTPConnector) Upload(ctx context.Context, ops []models.PendingOperation) ([]domain.OpResult, error) {
	creds, err := c.credentials(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(uploadRequest{Operations: ops})
	if err != nil {
		return nil, fmt.Errorf("encode upload request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, creds.Endpoint+"/sync/upload", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+creds.Token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.invalidateCredentials()
		return nil, &TransportError{Err: fmt.Errorf("upload unauthorized")}
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &TransportError{Err: fmt.Errorf("upload returned %d: %s", resp.StatusCode, snippet)}
	}

	var decoded uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &TransportError{Err: fmt.Errorf("decode upload response: %w", err)}
	}
	return decoded.Results, nil
}

// PollChanges requests all remote changes after the given checkpoint, paced
// by the poll limiter.
func (c *HTTPConnector) PollChanges(ctx context.Context, after int64, limit int) (domain.ChangePage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.ChangePage{}, err
	}

	creds, err := c.credentials(ctx)
	if err != nil {
		return domain.ChangePage{}, err
	}

	query := url.Values{}
	query.Set("after", strconv.FormatInt(after, 10))
	query.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		creds.Endpoint+"/sync/changes?"+query.Encode(), nil)
	if err != nil {
		return domain.ChangePage{}, fmt.Errorf("build changes request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+creds.Token)

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.ChangePage{}, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.invalidateCredentials()
		return domain.ChangePage{}, &TransportError{Err: fmt.Errorf("poll unauthorized")}
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.ChangePage{}, &TransportError{Err: fmt.Errorf("poll returned %d: %s", resp.StatusCode, snippet)}
	}

	var page domain.ChangePage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return domain.ChangePage{}, &TransportError{Err: fmt.Errorf("decode changes response: %w", err)}
	}
	return page, nil
}

func (c *HTTPConnector) invalidateCredentials() {
	c.mu.Lock()
	c.haveCreds = false
	c.mu.Unlock()
}
