// Package history provides the REST client for the remote conversation
// persistence service.
//
// It handles account login (registering the user on first contact) with JWT
// caching, posts turn batches with an idempotency key so the backend can
// deduplicate resends, and fetches recent history to seed a new session.
package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/voxaid/voxaid/internal/agent/session"
	"github.com/voxaid/voxaid/internal/logging"
)

// tokenLifetime is how long a cached login token is trusted before
// re-authenticating. The backend does not report expiry.
const tokenLifetime = time.Hour

// Client communicates with the persistence backend.
type Client struct {
	baseURL  string
	username string
	http     *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewClient creates a client for the given backend and account.
func NewClient(baseURL, username string) *Client {
	return &Client{
		baseURL:  baseURL,
		username: username,
		http:     &http.Client{Timeout: 15 * time.Second},
	}
}

// --------------------------------------------------------------------------
// Authentication
// --------------------------------------------------------------------------

type loginRequest struct {
	Username string `json:"username"`
}

type loginResponse struct {
	User struct {
		Username string `json:"username"`
		Token    string `json:"token"`
	} `json:"user"`
}

// login authenticates and caches the token. A 401 means the account does not
// exist yet; it is registered and login retried once.
func (c *Client) login(ctx context.Context) error {
	resp, err := c.postJSON(ctx, "/api/account/login", loginRequest{Username: c.username}, "")
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		logging.Infof("[history] user %q not found, registering", c.username)
		reg, err := c.postJSON(ctx, "/api/account/register", loginRequest{Username: c.username}, "")
		if err != nil {
			return err
		}
		io.Copy(io.Discard, reg.Body)
		reg.Body.Close()
		if reg.StatusCode < 200 || reg.StatusCode >= 300 {
			return fmt.Errorf("register returned %d", reg.StatusCode)
		}
		resp, err = c.postJSON(ctx, "/api/account/login", loginRequest{Username: c.username}, "")
		if err != nil {
			return err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("login returned %d: %s", resp.StatusCode, string(b))
	}
	var result loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode login response: %w", err)
	}
	if result.User.Token == "" {
		return fmt.Errorf("login did not return a token")
	}

	c.mu.Lock()
	c.token = result.User.Token
	c.expiresAt = time.Now().Add(tokenLifetime)
	c.mu.Unlock()
	return nil
}

// currentToken returns a valid token, logging in if needed.
func (c *Client) currentToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	valid := c.token != "" && time.Now().Before(c.expiresAt)
	token := c.token
	c.mu.Unlock()

	if valid {
		return token, nil
	}
	if err := c.login(ctx); err != nil {
		return "", fmt.Errorf("authenticate: %w", err)
	}
	c.mu.Lock()
	token = c.token
	c.mu.Unlock()
	return token, nil
}

// --------------------------------------------------------------------------
// Messages
// --------------------------------------------------------------------------

// wireMessage is the backend's message DTO.
type wireMessage struct {
	SenderType int    `json:"senderType"` // 0 = user, 1 = bot
	Content    string `json:"content"`
	CreatedAt  string `json:"createdAt"` // RFC 3339
}

type historyResponse struct {
	Messages []wireMessage `json:"messages"`
}

// PostBatch sends a turn batch to the backend. The batch's UUID travels as an
// Idempotency-Key header so a resend of an already-accepted batch does not
// create duplicate history. Any non-2xx status is an error; the caller
// requeues and retries.
func (c *Client) PostBatch(ctx context.Context, batch *session.Batch) error {
	if batch == nil || len(batch.Turns) == 0 {
		return nil
	}
	token, err := c.currentToken(ctx)
	if err != nil {
		return err
	}

	messages := make([]wireMessage, len(batch.Turns))
	for i, turn := range batch.Turns {
		messages[i] = wireMessage{
			SenderType: int(turn.Speaker),
			Content:    turn.Content,
			CreatedAt:  turn.CreatedAt.Format(time.RFC3339Nano),
		}
	}

	resp, err := c.postJSONWithHeaders(ctx, "/api/messages", messages, token, map[string]string{
		"Idempotency-Key": batch.ID,
	})
	if err != nil {
		return fmt.Errorf("post messages: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusUnauthorized {
		// Token went stale server-side; drop it so the retry re-authenticates.
		c.mu.Lock()
		c.token = ""
		c.mu.Unlock()
		return fmt.Errorf("post messages: unauthorized")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("post messages returned %d", resp.StatusCode)
	}
	return nil
}

// GetHistory fetches up to limit recent messages, oldest first.
func (c *Client) GetHistory(ctx context.Context, limit int) ([]session.Turn, error) {
	token, err := c.currentToken(ctx)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/api/conversation-history?limit=%d", c.baseURL, limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("get history returned %d: %s", resp.StatusCode, string(b))
	}
	var result historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}

	turns := make([]session.Turn, 0, len(result.Messages))
	for _, msg := range result.Messages {
		createdAt, err := time.Parse(time.RFC3339Nano, msg.CreatedAt)
		if err != nil {
			createdAt = time.Time{}
		}
		turns = append(turns, session.Turn{
			Speaker:   session.Speaker(msg.SenderType),
			Content:   msg.Content,
			CreatedAt: createdAt,
		})
	}
	sort.SliceStable(turns, func(i, j int) bool {
		return turns[i].CreatedAt.Before(turns[j].CreatedAt)
	})
	return turns, nil
}

// LastPairs fetches recent history and folds it into complete pairs.
func (c *Client) LastPairs(ctx context.Context, n int) ([]session.Pair, error) {
	turns, err := c.GetHistory(ctx, 2*n)
	if err != nil {
		return nil, err
	}
	pairs := session.PairsFromTurns(turns)
	if len(pairs) > n {
		pairs = pairs[len(pairs)-n:]
	}
	return pairs, nil
}

// --------------------------------------------------------------------------
// HTTP helpers
// --------------------------------------------------------------------------

func (c *Client) postJSON(ctx context.Context, path string, body any, token string) (*http.Response, error) {
	return c.postJSONWithHeaders(ctx, path, body, token, nil)
}

func (c *Client) postJSONWithHeaders(ctx context.Context, path string, body any, token string, headers map[string]string) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.http.Do(req)
}
