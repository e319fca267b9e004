package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mrshanahan/notes-sync/pkg/notes"
)

// StatusError is returned for any response outside the 2xx range. It unwraps
// to the matching sentinel in pkg/notes when there is one.
type StatusError struct {
	StatusCode int
	Response   string
	kind       error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("invalid status code: %d (response: %s)", e.StatusCode, e.Response)
}

func (e *StatusError) Unwrap() error {
	return e.kind
}

// Client is the facade over the notes API. It holds at most one session and
// is safe for concurrent use.
type Client struct {
	URL string

	httpClient *http.Client
	sessions   SessionStore
	now        func() time.Time

	mu      sync.RWMutex
	session *notes.SessionToken
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithSessionStore(store SessionStore) Option {
	return func(c *Client) {
		c.sessions = store
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient builds a client for the API at url, picking up any session the
// session store already holds.
func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		URL:        url,
		httpClient: http.DefaultClient,
		sessions:   NewMemorySessionStore(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	session, err := c.sessions.Load()
	if err != nil {
		slog.Warn("failed to load stored session; continuing without one",
			"err", err)
	} else {
		c.session = session
	}
	return c
}

// Session returns the held session, or nil.
func (c *Client) Session() *notes.SessionToken {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// HasSession reports whether a usable session is held locally. It issues no
// request.
func (c *Client) HasSession() bool {
	return c.accessToken() != ""
}

// CheckSession asks the API whether the held session is still valid. Any
// failure counts as signed out.
func (c *Client) CheckSession(ctx context.Context) bool {
	_, err := c.CurrentUser(ctx)
	if err != nil {
		slog.Debug("session check failed", "err", err)
		return false
	}
	return true
}

func (c *Client) CurrentUser(ctx context.Context) (*notes.Principal, error) {
	respBytes, err := c.invoke(ctx, http.MethodGet, "/auth/user", nil, nil, "")
	if err != nil {
		return nil, err
	}

	var principal *notes.Principal
	if err := json.Unmarshal(respBytes, &principal); err != nil {
		return nil, fmt.Errorf("error JSON-decoding response body: %w", err)
	}
	return principal, nil
}

// Auth operations

func (c *Client) SignIn(ctx context.Context, email string, password string) (*notes.Principal, error) {
	creds := notes.Credentials{Email: email, Password: password}
	if strings.TrimSpace(creds.Email) == "" || creds.Password == "" {
		return nil, notes.ErrInvalidCredentials
	}

	respBytes, err := c.invokeAnonymous(ctx, http.MethodPost, "/auth/signin", creds)
	if err != nil {
		if errors.Is(err, notes.ErrUnauthenticated) {
			return nil, notes.ErrInvalidCredentials
		}
		return nil, err
	}

	session := &notes.SessionToken{}
	if err := json.Unmarshal(respBytes, session); err != nil {
		return nil, fmt.Errorf("error JSON-decoding response body: %w", err)
	}
	if session.AccessToken == "" {
		return nil, fmt.Errorf("sign-in response carried no access token")
	}
	c.setSession(session)
	return session.User, nil
}

// SignUp registers a principal and signs it in.
func (c *Client) SignUp(ctx context.Context, email string, password string) (*notes.Principal, error) {
	creds := notes.Credentials{Email: email, Password: password}
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	if _, err := c.invokeAnonymous(ctx, http.MethodPost, "/auth/signup", creds); err != nil {
		return nil, err
	}
	return c.SignIn(ctx, email, password)
}

// SignOut revokes the session on the API and always drops it locally. A
// failed revocation is reported after the local session is gone.
func (c *Client) SignOut(ctx context.Context) error {
	var revokeErr error
	if c.HasSession() {
		_, revokeErr = c.invoke(ctx, http.MethodPost, "/auth/signout", nil, nil, "")
		if errors.Is(revokeErr, notes.ErrUnauthenticated) {
			revokeErr = nil
		}
	}
	c.setSession(nil)
	return revokeErr
}

// Note operations

func (c *Client) ListNotes(ctx context.Context) ([]*notes.Note, error) {
	respBytes, err := c.invoke(ctx, http.MethodGet, "/notes/", nil, nil, "")
	if err != nil {
		return nil, err
	}

	notes := []*notes.Note{}
	if err := json.Unmarshal(respBytes, &notes); err != nil {
		return nil, fmt.Errorf("error JSON-decoding response body: %w", err)
	}
	return notes, nil
}

func (c *Client) GetNote(ctx context.Context, id string) (*notes.Note, error) {
	if !c.HasSession() {
		return nil, notes.ErrUnauthenticated
	}
	if err := validateID(id); err != nil {
		return nil, err
	}

	respBytes, err := c.invoke(ctx, http.MethodGet, notePath(id), nil, nil, "")
	if err != nil {
		return nil, err
	}
	return decodeNote(respBytes)
}

func (c *Client) CreateNote(ctx context.Context, input notes.NoteInput) (*notes.Note, error) {
	if !c.HasSession() {
		return nil, notes.ErrUnauthenticated
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("error JSON-encoding note: %w", err)
	}
	respBytes, err := c.invoke(ctx, http.MethodPost, "/notes/", nil, bytes.NewReader(payload), "application/json")
	if err != nil {
		return nil, err
	}
	return decodeNote(respBytes)
}

// UpdateNote changes only the fields present in update and returns the note
// as stored afterwards.
func (c *Client) UpdateNote(ctx context.Context, id string, update notes.NoteUpdate) (*notes.Note, error) {
	if !c.HasSession() {
		return nil, notes.ErrUnauthenticated
	}
	if err := validateID(id); err != nil {
		return nil, err
	}
	if err := update.Validate(); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(update)
	if err != nil {
		return nil, fmt.Errorf("error JSON-encoding note update: %w", err)
	}
	respBytes, err := c.invoke(ctx, http.MethodPatch, notePath(id), nil, bytes.NewReader(payload), "application/json")
	if err != nil {
		return nil, err
	}
	return decodeNote(respBytes)
}

// DeleteNote removes the note if the principal owns it. Deleting a note that
// does not exist is not an error.
func (c *Client) DeleteNote(ctx context.Context, id string) error {
	if !c.HasSession() {
		return notes.ErrUnauthenticated
	}
	if err := validateID(id); err != nil {
		return err
	}

	_, err := c.invoke(ctx, http.MethodDelete, notePath(id), nil, nil, "")
	if errors.Is(err, notes.ErrNotFound) {
		return nil
	}
	return err
}

// GetNoteContent returns the raw content, or rendered HTML when format is
// "html".
func (c *Client) GetNoteContent(ctx context.Context, id string, format string) (string, error) {
	if !c.HasSession() {
		return "", notes.ErrUnauthenticated
	}
	if err := validateID(id); err != nil {
		return "", err
	}

	var query url.Values
	if format != "" {
		query = url.Values{"format": []string{format}}
	}
	respBytes, err := c.invoke(ctx, http.MethodGet, notePath(id)+"/content", query, nil, "")
	if err != nil {
		return "", err
	}
	return string(respBytes), nil
}

// SetNoteContent replaces the content, uploaded as a form file so empty and
// large content go through the same path.
func (c *Client) SetNoteContent(ctx context.Context, id string, content string) error {
	if !c.HasSession() {
		return notes.ErrUnauthenticated
	}
	if err := validateID(id); err != nil {
		return err
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("content", "content.md")
	if err != nil {
		return fmt.Errorf("error building form: %w", err)
	}
	if _, err := io.WriteString(part, content); err != nil {
		return fmt.Errorf("error building form: %w", err)
	}
	if err := form.Close(); err != nil {
		return fmt.Errorf("error building form: %w", err)
	}

	_, err = c.invoke(ctx, http.MethodPost, notePath(id)+"/content", nil, &body, form.FormDataContentType())
	return err
}

// Private functions

func (c *Client) accessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil || c.session.AccessToken == "" {
		return ""
	}
	if !c.session.ExpiresAt.IsZero() && !c.now().Before(c.session.ExpiresAt) {
		return ""
	}
	return c.session.AccessToken
}

func (c *Client) setSession(session *notes.SessionToken) {
	c.mu.Lock()
	c.session = session
	c.mu.Unlock()

	var err error
	if session == nil {
		err = c.sessions.Clear()
	} else {
		err = c.sessions.Save(session)
	}
	if err != nil {
		slog.Warn("failed to persist session", "err", err)
	}
}

// invoke issues an authenticated request. Without a session it fails before
// anything is sent.
func (c *Client) invoke(ctx context.Context, method string, path string, query url.Values, body io.Reader, contentType string) ([]byte, error) {
	token := c.accessToken()
	if token == "" {
		return nil, notes.ErrUnauthenticated
	}

	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return c.do(req)
}

func (c *Client) invokeAnonymous(ctx context.Context, method string, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("error JSON-encoding request: %w", err)
	}
	req, err := c.newRequest(ctx, method, path, nil, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) newRequest(ctx context.Context, method string, path string, query url.Values, body io.Reader) (*http.Request, error) {
	requestUrl, err := url.JoinPath(c.URL, path)
	if err != nil {
		return nil, fmt.Errorf("error building URL path: %w", err)
	}
	if len(query) > 0 {
		requestUrl += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, requestUrl, body)
	if err != nil {
		return nil, fmt.Errorf("error building API request: %w", err)
	}
	return req, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error invoking API: %w", err)
	}
	defer resp.Body.Close()
	return validateResponse(resp)
}

func validateResponse(resp *http.Response) ([]byte, error) {
	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		statusErr := &StatusError{
			StatusCode: resp.StatusCode,
			Response:   strings.TrimSpace(string(respBytes)),
		}
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			statusErr.kind = notes.ErrUnauthenticated
		case http.StatusNotFound:
			statusErr.kind = notes.ErrNotFound
		case http.StatusBadRequest:
			statusErr.kind = notes.ErrValidation
		case http.StatusConflict:
			statusErr.kind = notes.ErrPrincipalExists
		}
		return nil, statusErr
	}

	return respBytes, nil
}

func validateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: note id is required", notes.ErrValidation)
	}
	return nil
}

func notePath(id string) string {
	return "/notes/" + url.PathEscape(id)
}

func decodeNote(respBytes []byte) (*notes.Note, error) {
	var note *notes.Note
	if err := json.Unmarshal(respBytes, &note); err != nil {
		return nil, fmt.Errorf("error JSON-decoding response body: %w", err)
	}
	return note, nil
}
