package ingest

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tum-esm/em27-metadata/internal/httputil"
	"github.com/tum-esm/em27-metadata/internal/metrics"
)

const RawGitHubURL = "https://raw.githubusercontent.com"

const maxErrorBody = 512

// GitHubClient fetches metadata documents from the data/ directory of a
// GitHub repository.
type GitHubClient struct {
	baseURL     string
	repository  string // "owner/name"
	branch      string
	accessToken string
	client      *http.Client

	initialInterval time.Duration
	maxElapsedTime  time.Duration
}

func NewGitHubClient(baseURL, repository, branch, accessToken string) *GitHubClient {
	if branch == "" {
		branch = "main"
	}
	return &GitHubClient{
		baseURL:         baseURL,
		repository:      repository,
		branch:          branch,
		accessToken:     accessToken,
		client:          httputil.NewClient(),
		initialInterval: 500 * time.Millisecond,
		maxElapsedTime:  time.Minute,
	}
}

func (g *GitHubClient) Name() string {
	return fmt.Sprintf("github:%s@%s", g.repository, g.branch)
}

func (g *GitHubClient) documentURL(name string) string {
	return fmt.Sprintf("%s/%s/%s/data/%s.json", g.baseURL, g.repository, g.branch, name)
}

// FetchDocument downloads one document. Transport errors, 429 and 5xx
// responses are retried with exponential backoff; any other non-200 status
// fails immediately.
func (g *GitHubClient) FetchDocument(ctx context.Context, name string) ([]byte, error) {
	url := g.documentURL(name)
	start := time.Now()
	defer func() {
		metrics.DocumentFetchLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()

	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Accept", "application/text")
		if g.accessToken != "" {
			req.Header.Set("Authorization", "token "+g.accessToken)
		}

		resp, err := g.client.Do(req)
		if err != nil {
			metrics.DocumentFetchesTotal.WithLabelValues(name, "error").Inc()
			return fmt.Errorf("fetch %s: %w", name, err)
		}
		defer resp.Body.Close()
		metrics.DocumentFetchesTotal.WithLabelValues(name, strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("fetch %s: status %d", name, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody+1))
			return backoff.Permanent(fmt.Errorf("fetch %s: status %d: %s", name, resp.StatusCode, truncateBody(b)))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read %s body: %w", name, err)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = g.initialInterval
	bo.MaxElapsedTime = g.maxElapsedTime
	notify := func(err error, wait time.Duration) {
		log.Printf("github: %v, retrying in %s", err, wait.Round(time.Millisecond))
	}
	if err := backoff.RetryNotify(operation, backoff.WithContext(bo, ctx), notify); err != nil {
		return nil, err
	}

	if err := CheckDocument(body); err != nil {
		return nil, fmt.Errorf("file at %s %w", url, err)
	}
	return body, nil
}

func truncateBody(b []byte) string {
	if len(b) <= maxErrorBody {
		return string(b)
	}
	return string(b[:maxErrorBody]) + "...(truncated)"
}
