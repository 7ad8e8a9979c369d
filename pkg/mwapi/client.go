package mwapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dghubble/oauth1"

	"depictor/pkg/model"
	"depictor/pkg/request"
)

// Client talks to the MediaWiki Action API on Commons and Wikidata.
// Reads go through the shared request queue (cached, retried); writes are
// signed per user and executed directly, exactly once — a failed write is
// reported, never replayed.
type Client struct {
	request     *request.Client
	consumer    *oauth1.Config
	CommonsAPI  string
	WikidataAPI string
	Logger      *slog.Logger

	writeTimeout time.Duration
}

// NewClient creates a new Action API client. consumerKey/consumerSecret
// identify the application; per-user tokens come in on each write call.
func NewClient(r *request.Client, commonsAPI, wikidataAPI, consumerKey, consumerSecret string, logger *slog.Logger) *Client {
	return &Client{
		request:      r,
		consumer:     oauth1.NewConfig(consumerKey, consumerSecret),
		CommonsAPI:   commonsAPI,
		WikidataAPI:  wikidataAPI,
		Logger:       logger,
		writeTimeout: 60 * time.Second,
	}
}

// endpointFor picks the API endpoint from the entity ID prefix:
// MediaInfo entities (M...) live on Commons, items (Q...) on Wikidata.
func (c *Client) endpointFor(entityID string) string {
	if len(entityID) > 0 && entityID[0] == 'M' {
		return c.CommonsAPI
	}
	return c.WikidataAPI
}

// signedClient builds an HTTP client that signs requests with the user's
// OAuth token. Returns ErrNoCredential for logged-out users.
func (c *Client) signedClient(ctx context.Context, cred *model.Credential) (*http.Client, error) {
	if cred == nil || cred.Token == "" {
		return nil, ErrNoCredential
	}
	token := oauth1.NewToken(cred.Token, cred.Secret)
	client := c.consumer.Client(ctx, token)
	client.Timeout = c.writeTimeout
	return client, nil
}

// apiError is the JSON error envelope the Action API returns.
type apiError struct {
	Error *struct {
		Code string `json:"code"`
		Info string `json:"info"`
	} `json:"error"`
}

// checkAPIError maps Action API error codes onto the package sentinels.
func checkAPIError(body []byte) error {
	var e apiError
	if err := json.Unmarshal(body, &e); err != nil || e.Error == nil {
		return nil
	}

	switch e.Error.Code {
	case "no-such-entity", "missingtitle":
		return fmt.Errorf("%w: %s", ErrEntityNotFound, e.Error.Info)
	case "invalid-guid", "no-such-claim":
		return fmt.Errorf("%w: %s", ErrStatementNotFound, e.Error.Info)
	case "permissiondenied", "mwoauth-invalid-authorization", "badtoken", "assertuserfailed":
		return fmt.Errorf("%w: %s (%s)", ErrAuth, e.Error.Info, e.Error.Code)
	case "editconflict", "failed-save":
		return fmt.Errorf("%w: %s", ErrWriteConflict, e.Error.Info)
	default:
		return fmt.Errorf("api error %s: %s", e.Error.Code, e.Error.Info)
	}
}

// postSigned performs one signed POST and decodes the error envelope.
// No retries: a timeout here leaves the outcome unknown and replaying
// could duplicate an edit.
func (c *Client) postSigned(ctx context.Context, cred *model.Credential, endpoint string, form url.Values) ([]byte, error) {
	httpClient, err := c.signedClient(ctx, cred)
	if err != nil {
		return nil, err
	}

	form.Set("format", "json")
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.request.UserAgent())

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("write request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read error: %w", err)
	}
	if resp.StatusCode >= 400 {
		if apiErr := checkAPIError(body); apiErr != nil {
			return nil, apiErr
		}
		return nil, fmt.Errorf("api error: status %d", resp.StatusCode)
	}
	if apiErr := checkAPIError(body); apiErr != nil {
		return nil, apiErr
	}
	return body, nil
}

// postWithCSRF posts one write form with a fresh CSRF token. A badtoken
// rejection happens before the edit is applied, so refreshing the token
// and resending once is safe; every other failure is final.
func (c *Client) postWithCSRF(ctx context.Context, cred *model.Credential, endpoint string, form url.Values) ([]byte, error) {
	token, err := c.csrfToken(ctx, cred, endpoint)
	if err != nil {
		return nil, err
	}
	form.Set("token", token)

	body, err := c.postSigned(ctx, cred, endpoint, form)
	if err != nil && errors.Is(err, ErrAuth) && strings.Contains(err.Error(), "badtoken") {
		c.Logger.Warn("Stale CSRF token, refreshing", "endpoint", endpoint)
		token, terr := c.csrfToken(ctx, cred, endpoint)
		if terr != nil {
			return nil, err
		}
		form.Set("token", token)
		return c.postSigned(ctx, cred, endpoint, form)
	}
	return body, err
}

// csrfToken fetches a CSRF token under the user's identity.
func (c *Client) csrfToken(ctx context.Context, cred *model.Credential, endpoint string) (string, error) {
	httpClient, err := c.signedClient(ctx, cred)
	if err != nil {
		return "", err
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint: %w", err)
	}
	q := u.Query()
	q.Add("action", "query")
	q.Add("meta", "tokens")
	q.Add("type", "csrf")
	q.Add("format", "json")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), http.NoBody)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.request.UserAgent())

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read error: %w", err)
	}
	if apiErr := checkAPIError(body); apiErr != nil {
		return "", apiErr
	}

	var result struct {
		Query struct {
			Tokens struct {
				CSRFToken string `json:"csrftoken"`
			} `json:"tokens"`
		} `json:"query"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if result.Query.Tokens.CSRFToken == "" {
		return "", fmt.Errorf("%w: empty csrf token", ErrAuth)
	}
	return result.Query.Tokens.CSRFToken, nil
}
