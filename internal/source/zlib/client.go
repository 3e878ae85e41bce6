// Package zlib wraps the authenticated Z-Library backend: a thin eapi client
// plus the session management and retry behavior the backend itself lacks.
package zlib

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"bookferry/internal/fetch"
)

// Book is one Z-Library record as the eapi returns it.
type Book struct {
	ID          json.Number `json:"id"`
	Hash        string      `json:"hash"`
	Title       string      `json:"title"`
	Author      string      `json:"author"`
	Year        json.Number `json:"year"`
	Publisher   string      `json:"publisher"`
	Language    string      `json:"language"`
	Description string      `json:"description"`
	Cover       string      `json:"cover"`
	Extension   string      `json:"extension"`
	Filesize    json.Number `json:"filesizeString"`
}

// Client is the capability surface the adapter needs from the backend SDK.
// The session guard and retries live in the adapter, not here.
type Client interface {
	Login(ctx context.Context, email, password string) error
	IsLoggedIn() bool
	Search(ctx context.Context, query string, limit int) ([]Book, error)
	GetBookInfo(ctx context.Context, id, hash string) (*Book, error)
	// DownloadBook returns the served filename and content.
	DownloadBook(ctx context.Context, id, hash string) (string, []byte, error)
}

// apiClient talks to the Z-Library eapi over HTTP. Session identity is the
// (remix_userid, remix_userkey) cookie pair issued at login.
type apiClient struct {
	baseURL string
	client  *http.Client

	userID  string
	userKey string
}

// NewClient builds the production eapi client.
func NewClient(baseURL string) Client {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  fetch.NewClient(fetch.APITimeout),
	}
}

func (c *apiClient) Login(ctx context.Context, email, password string) error {
	form := url.Values{}
	form.Set("email", email)
	form.Set("password", password)

	var parsed struct {
		User struct {
			ID           json.Number `json:"id"`
			RemixUserkey string      `json:"remix_userkey"`
		} `json:"user"`
	}
	if err := c.call(ctx, http.MethodPost, "/eapi/user/login", form, &parsed); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if parsed.User.RemixUserkey == "" {
		return fmt.Errorf("login rejected for %s", email)
	}
	c.userID = parsed.User.ID.String()
	c.userKey = parsed.User.RemixUserkey
	return nil
}

func (c *apiClient) IsLoggedIn() bool {
	return c.userKey != ""
}

func (c *apiClient) Search(ctx context.Context, query string, limit int) ([]Book, error) {
	form := url.Values{}
	form.Set("message", query)
	form.Set("limit", strconv.Itoa(limit))

	var parsed struct {
		Books []Book `json:"books"`
	}
	if err := c.call(ctx, http.MethodPost, "/eapi/book/search", form, &parsed); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return parsed.Books, nil
}

func (c *apiClient) GetBookInfo(ctx context.Context, id, hash string) (*Book, error) {
	var parsed struct {
		Book *Book `json:"book"`
	}
	path := fmt.Sprintf("/eapi/book/%s/%s", url.PathEscape(id), url.PathEscape(hash))
	if err := c.call(ctx, http.MethodGet, path, nil, &parsed); err != nil {
		return nil, fmt.Errorf("book info: %w", err)
	}
	if parsed.Book == nil {
		return nil, fmt.Errorf("book %s/%s not found", id, hash)
	}
	return parsed.Book, nil
}

func (c *apiClient) DownloadBook(ctx context.Context, id, hash string) (string, []byte, error) {
	var parsed struct {
		File struct {
			DownloadLink string `json:"downloadLink"`
		} `json:"file"`
	}
	path := fmt.Sprintf("/eapi/book/%s/%s/file", url.PathEscape(id), url.PathEscape(hash))
	if err := c.call(ctx, http.MethodGet, path, nil, &parsed); err != nil {
		return "", nil, fmt.Errorf("file link: %w", err)
	}
	if parsed.File.DownloadLink == "" {
		return "", nil, fmt.Errorf("no download link for %s/%s", id, hash)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.File.DownloadLink, nil)
	if err != nil {
		return "", nil, fmt.Errorf("building file request: %w", err)
	}
	c.authenticate(req)
	resp, err := fetch.NewClient(fetch.DownloadTimeout).Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("file download: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("file download status %d", resp.StatusCode)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("reading file: %w", err)
	}
	name := fetch.FilenameFromDisposition(resp.Header.Get("Content-Disposition"))
	if name == "" {
		name = fetch.FilenameFromURL(resp.Request.URL.String(), "book")
	}
	return name, content, nil
}

func (c *apiClient) call(ctx context.Context, method, path string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	c.authenticate(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *apiClient) authenticate(req *http.Request) {
	if c.userKey == "" {
		return
	}
	req.AddCookie(&http.Cookie{Name: "remix_userid", Value: c.userID})
	req.AddCookie(&http.Cookie{Name: "remix_userkey", Value: c.userKey})
}
