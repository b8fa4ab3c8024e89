// Package coach talks to the AI insights and bulk import backend.
package coach

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coocood/freecache"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultCacheTTL           = 5 * 24 * time.Hour
	DefaultMinRequestInterval = 30 * time.Second

	analysisPath = "/ai-coaching/workout-analysis"
	importPath   = "/import-data"
	cacheSize    = 10 * 1024 * 1024
)

var (
	ErrRateLimited  = errors.New("insights were requested too recently")
	ErrUpstream     = errors.New("coaching service request failed")
	ErrImportFailed = errors.New("import failed")
	ErrEmptyImport  = errors.New("import file is empty")
)

// Analysis is the workout-analysis payload. Both parts are passed through
// unchanged; their shape belongs to the coaching service.
type Analysis struct {
	Analytics  json.RawMessage `json:"analytics"`
	AIInsights json.RawMessage `json:"ai_insights"`
}

type AnalysisResult struct {
	Analysis  Analysis      `json:"data"`
	FromCache bool          `json:"fromCache"`
	CacheAge  time.Duration `json:"-"`
}

type ImportedTable struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Date string `json:"date"`
}

type ImportResult struct {
	Message    string          `json:"message"`
	Tables     []ImportedTable `json:"tables"`
	TotalFound int             `json:"total_found"`
	Successful int             `json:"successful"`
}

// Caller identifies the user a request is made for. The coaching service
// reads the user's logs with Token, so it must be the user's own bearer token.
type Caller struct {
	UserID string
	Token  string
}

// RateLimitError tells the caller how long to wait.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: retry in %ds", ErrRateLimited, int(e.RetryAfter.Round(time.Second).Seconds()))
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

type Options struct {
	CacheTTL           time.Duration
	MinRequestInterval time.Duration
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      *freecache.Cache
	ttl        time.Duration
	minGap     time.Duration
	now        func() time.Time

	mu          sync.Mutex
	lastRequest map[string]time.Time
}

func NewClient(baseURL string, httpClient *http.Client, opts Options) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.MinRequestInterval <= 0 {
		opts.MinRequestInterval = DefaultMinRequestInterval
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  httpClient,
		cache:       freecache.NewCache(cacheSize),
		ttl:         opts.CacheTTL,
		minGap:      opts.MinRequestInterval,
		now:         time.Now,
		lastRequest: make(map[string]time.Time),
	}
}

type cachedAnalysis struct {
	Analysis Analysis  `json:"analysis"`
	StoredAt time.Time `json:"storedAt"`
}

// WorkoutAnalysis returns the user's insights, from cache when available.
// forceRefresh skips both the cache and the request rate limit.
func (c *Client) WorkoutAnalysis(ctx context.Context, caller Caller, forceRefresh bool) (*AnalysisResult, error) {
	cacheKey := []byte(analysisPath + ":" + caller.UserID)

	if !forceRefresh {
		if raw, err := c.cache.Get(cacheKey); err == nil {
			var entry cachedAnalysis
			if err = json.Unmarshal(raw, &entry); err == nil {
				return &AnalysisResult{Analysis: entry.Analysis, FromCache: true, CacheAge: c.now().Sub(entry.StoredAt)}, nil
			}
			log.WithError(err).Error("failed to unmarshal cached workout analysis")
		}

		if wait := c.retryAfter(string(cacheKey)); wait > 0 {
			return nil, &RateLimitError{RetryAfter: wait}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+analysisPath, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	caller.authorize(req)

	respBytes, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var analysis Analysis
	if err := json.Unmarshal(respBytes, &analysis); err != nil {
		return nil, fmt.Errorf("%w: decode analysis: %v", ErrUpstream, err)
	}

	now := c.now()
	entry, _ := json.Marshal(cachedAnalysis{Analysis: analysis, StoredAt: now})
	if err := c.cache.Set(cacheKey, entry, int(c.ttl.Seconds())); err != nil {
		log.WithError(err).Error("failed to cache workout analysis")
	}
	c.mu.Lock()
	c.lastRequest[string(cacheKey)] = now
	c.mu.Unlock()

	return &AnalysisResult{Analysis: analysis}, nil
}

// ForgetAnalysis drops the cached insights of a user.
func (c *Client) ForgetAnalysis(userID string) {
	key := analysisPath + ":" + userID
	c.cache.Del([]byte(key))
	c.mu.Lock()
	delete(c.lastRequest, key)
	c.mu.Unlock()
}

func (c *Client) retryAfter(key string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	last, ok := c.lastRequest[key]
	if !ok {
		return 0
	}
	return c.minGap - c.now().Sub(last)
}

// Import uploads a workout export for server-side parsing. note is passed as
// the optional "context" form field.
func (c *Client) Import(ctx context.Context, caller Caller, filename string, file io.Reader, note string) (*ImportResult, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	n, err := io.Copy(part, file)
	if err != nil {
		return nil, fmt.Errorf("read import file: %w", err)
	}
	if n == 0 {
		return nil, ErrEmptyImport
	}
	if note != "" {
		if err := form.WriteField("context", note); err != nil {
			return nil, err
		}
	}
	if err := form.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+importPath, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	caller.authorize(req)

	respBytes, err := c.do(req)
	if err != nil {
		var upstream *upstreamError
		if errors.As(err, &upstream) && upstream.detail != "" {
			return nil, fmt.Errorf("%w: %s", ErrImportFailed, upstream.detail)
		}
		return nil, fmt.Errorf("%w: %w", ErrImportFailed, err)
	}

	result := &ImportResult{}
	if err := json.Unmarshal(respBytes, result); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrImportFailed, err)
	}
	if result.Tables == nil {
		result.Tables = []ImportedTable{}
	}
	return result, nil
}

func (caller Caller) authorize(req *http.Request) {
	if caller.Token != "" {
		req.Header.Set("Authorization", "Bearer "+caller.Token)
	}
	if caller.UserID != "" {
		req.Header.Set("X-User-ID", caller.UserID)
	}
}

type upstreamError struct {
	status int
	detail string
}

func (e *upstreamError) Error() string {
	if e.detail != "" {
		return fmt.Sprintf("%s: status %d: %s", ErrUpstream, e.status, e.detail)
	}
	return fmt.Sprintf("%s: status %d", ErrUpstream, e.status)
}

func (e *upstreamError) Unwrap() error { return ErrUpstream }

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var payload struct {
			Detail string `json:"detail"`
		}
		_ = json.Unmarshal(respBytes, &payload)
		return nil, &upstreamError{status: resp.StatusCode, detail: payload.Detail}
	}
	return respBytes, nil
}
