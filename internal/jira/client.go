package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/caseforge/caseforge/internal/domain"
)

// MaxBulkIssues is Jira's per-call cap on bulk issue creation.
const MaxBulkIssues = 50

// Connection-polling parameters.
const (
	DefaultPollInterval = 5 * time.Second
	DefaultPollTimeout  = 5 * time.Minute
)

// User is the authenticated Jira account.
type User struct {
	AccountID   string `json:"accountId"`
	DisplayName string `json:"displayName"`
	Email       string `json:"emailAddress,omitempty"`
}

// IssueInput is one issue to create, correlated back to a test case.
type IssueInput struct {
	CaseID      string
	ProjectID   string
	IssueTypeID string
	Summary     string
	Description string
}

// CreatedIssue is one successfully created issue.
type CreatedIssue struct {
	CaseID  string `json:"case_id"`
	ID      string `json:"id"`
	Key     string `json:"key"`
	Summary string `json:"summary"`
}

// BulkResult is the outcome of one bulk creation call.
type BulkResult struct {
	Created []CreatedIssue `json:"created"`
	Errors  []string       `json:"errors"`
}

// Client is a Jira Cloud REST client bound to one user's token. A 401
// triggers a single token refresh and retry; a second 401 surfaces
// domain.ErrAuthExpired so the caller can prompt re-authentication.
type Client struct {
	http    *http.Client
	oauth   *oauth2.Config
	baseURL string

	mu      sync.Mutex
	token   *oauth2.Token
	cloudID string

	pollInterval time.Duration
	pollTimeout  time.Duration
}

// NewClient creates a client for one authenticated user.
func NewClient(oauthCfg *oauth2.Config, token *oauth2.Token) *Client {
	return &Client{
		http:         &http.Client{Timeout: 30 * time.Second},
		oauth:        oauthCfg,
		baseURL:      "https://api.atlassian.com",
		token:        token,
		pollInterval: DefaultPollInterval,
		pollTimeout:  DefaultPollTimeout,
	}
}

// Token returns the current token, which may have been refreshed since
// the client was created.
func (c *Client) Token() *oauth2.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

type accessibleResource struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// resolveCloudID looks up the first accessible Jira site for the token.
func (c *Client) resolveCloudID(ctx context.Context) (string, error) {
	c.mu.Lock()
	cached := c.cloudID
	c.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	var resources []accessibleResource
	if err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/oauth/token/accessible-resources", nil, &resources); err != nil {
		return "", err
	}
	if len(resources) == 0 {
		return "", fmt.Errorf("no accessible jira sites for this token")
	}

	c.mu.Lock()
	c.cloudID = resources[0].ID
	c.mu.Unlock()
	return resources[0].ID, nil
}

func (c *Client) apiURL(ctx context.Context, path string) (string, error) {
	cloudID, err := c.resolveCloudID(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/ex/jira/%s/rest/api/3%s", c.baseURL, cloudID, path), nil
}

// Me returns the authenticated user, or domain.ErrAuthExpired when the
// token is no longer usable. Also the probe used by connection polling.
func (c *Client) Me(ctx context.Context) (*User, error) {
	url, err := c.apiURL(ctx, "/myself")
	if err != nil {
		return nil, err
	}
	var user User
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Projects lists the projects visible to the user.
func (c *Client) Projects(ctx context.Context) ([]domain.JiraProject, error) {
	url, err := c.apiURL(ctx, "/project/search")
	if err != nil {
		return nil, err
	}
	var resp struct {
		Values []domain.JiraProject `json:"values"`
	}
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Values, nil
}

// IssueTypes lists the issue types available in a project.
func (c *Client) IssueTypes(ctx context.Context, projectID string) ([]domain.JiraIssueType, error) {
	url, err := c.apiURL(ctx, "/issuetype/project?projectId="+projectID)
	if err != nil {
		return nil, err
	}
	var types []domain.JiraIssueType
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &types); err != nil {
		return nil, err
	}
	return types, nil
}

// BulkCreate creates up to MaxBulkIssues issues in one call. Larger
// batches are rejected before any network traffic.
func (c *Client) BulkCreate(ctx context.Context, issues []IssueInput) (*BulkResult, error) {
	if len(issues) == 0 {
		return nil, domain.ErrEmptyExportSet
	}
	if len(issues) > MaxBulkIssues {
		return nil, fmt.Errorf("%w: %d > %d", domain.ErrBatchTooLarge, len(issues), MaxBulkIssues)
	}

	type issueUpdate struct {
		Fields map[string]any `json:"fields"`
	}
	body := struct {
		IssueUpdates []issueUpdate `json:"issueUpdates"`
	}{}
	for _, in := range issues {
		body.IssueUpdates = append(body.IssueUpdates, issueUpdate{
			Fields: map[string]any{
				"project":     map[string]string{"id": in.ProjectID},
				"issuetype":   map[string]string{"id": in.IssueTypeID},
				"summary":     in.Summary,
				"description": adfParagraph(in.Description),
			},
		})
	}

	url, err := c.apiURL(ctx, "/issue/bulk")
	if err != nil {
		return nil, err
	}

	var resp struct {
		Issues []struct {
			ID  string `json:"id"`
			Key string `json:"key"`
		} `json:"issues"`
		Errors []struct {
			FailedElementNumber int `json:"failedElementNumber"`
			ElementErrors       struct {
				ErrorMessages []string `json:"errorMessages"`
			} `json:"elementErrors"`
		} `json:"errors"`
	}
	if err := c.doJSON(ctx, http.MethodPost, url, body, &resp); err != nil {
		return nil, err
	}

	result := &BulkResult{}
	failed := make(map[int]bool)
	for _, e := range resp.Errors {
		failed[e.FailedElementNumber] = true
		msg := fmt.Sprintf("issue %d failed", e.FailedElementNumber)
		if len(e.ElementErrors.ErrorMessages) > 0 {
			msg = e.ElementErrors.ErrorMessages[0]
		}
		result.Errors = append(result.Errors, msg)
	}

	// Created issues come back in input order, minus the failed elements.
	created := 0
	for i, in := range issues {
		if failed[i] {
			continue
		}
		if created >= len(resp.Issues) {
			break
		}
		result.Created = append(result.Created, CreatedIssue{
			CaseID:  in.CaseID,
			ID:      resp.Issues[created].ID,
			Key:     resp.Issues[created].Key,
			Summary: in.Summary,
		})
		created++
	}
	return result, nil
}

// WaitForConnection polls Me until the token works, the timeout elapses
// or the context is canceled. Returns the connected user.
func (c *Client) WaitForConnection(ctx context.Context) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		user, err := c.Me(ctx)
		if err == nil {
			return user, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("jira connection not established: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// doJSON performs one authenticated request, refreshing the token once on
// a 401 and retrying. Non-2xx responses after the retry become errors.
func (c *Client) doJSON(ctx context.Context, method, url string, body, out any) error {
	status, data, err := c.roundTrip(ctx, method, url, body)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		if err := c.refreshToken(ctx); err != nil {
			return domain.ErrAuthExpired
		}
		status, data, err = c.roundTrip(ctx, method, url, body)
		if err != nil {
			return err
		}
		if status == http.StatusUnauthorized {
			return domain.ErrAuthExpired
		}
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("jira request failed: %s %s: status %d: %s", method, url, status, truncate(string(data), 200))
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode jira response: %w", err)
		}
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, url string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	c.mu.Lock()
	req.Header.Set("Authorization", "Bearer "+c.token.AccessToken)
	c.mu.Unlock()
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("jira request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, data, nil
}

// refreshToken exchanges the refresh token for a new access token.
func (c *Client) refreshToken(ctx context.Context) error {
	c.mu.Lock()
	refresh := c.token.RefreshToken
	c.mu.Unlock()
	if refresh == "" {
		return domain.ErrAuthExpired
	}

	src := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refresh})
	tok, err := src.Token()
	if err != nil {
		return fmt.Errorf("token refresh failed: %w", err)
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = refresh
	}

	c.mu.Lock()
	c.token = tok
	c.mu.Unlock()
	return nil
}

func adfParagraph(text string) map[string]any {
	return map[string]any{
		"type":    "doc",
		"version": 1,
		"content": []any{
			map[string]any{
				"type": "paragraph",
				"content": []any{
					map[string]any{"type": "text", "text": text},
				},
			},
		},
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
