package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/vnvoice-dev/govoxsync/src/pkg/models"
)

// ProgressFunc reports downloaded and total bytes during a transfer.
// Total is negative when the remote does not declare a length.
type ProgressFunc func(downloaded, total int64)

// Client queries the remote release feed and model manifest source and
// fetches artifacts. All calls carry a bounded timeout and transient
// failures are retried with exponential backoff; HTTP 404 and malformed
// responses are permanent within a cycle.
type Client struct {
	repository  string
	feedURL     string
	manifestURL string
	token       string
	httpClient  *http.Client
	timeout     time.Duration
	maxRetries  uint64
}

// NewClient creates a client from the release and network configuration.
func NewClient(cfg *models.Config) *Client {
	return &Client{
		repository:  cfg.Release.Repository,
		feedURL:     cfg.Release.FeedURL,
		manifestURL: cfg.Models.ManifestURL,
		token:       cfg.Release.Token,
		httpClient: &http.Client{
			Timeout: cfg.Network.Timeout,
		},
		timeout:    cfg.Network.Timeout,
		maxRetries: uint64(cfg.Network.MaxRetries),
	}
}

// githubRelease represents a GitHub release response
type githubRelease struct {
	TagName     string    `json:"tag_name"`
	Prerelease  bool      `json:"prerelease"`
	PublishedAt time.Time `json:"published_at"`
	Assets      []struct {
		Name               string `json:"name"`
		BrowserDownloadURL string `json:"browser_download_url"`
		Size               int64  `json:"size"`
		Digest             string `json:"digest"`
	} `json:"assets"`
}

// manifestWire is the JSON shape of the remote model manifest.
type manifestWire struct {
	Version     string    `json:"version"`
	PublishedAt time.Time `json:"published_at"`
	Entries     []struct {
		Name      string `json:"name"`
		URL       string `json:"url"`
		Checksum  string `json:"checksum"`
		Size      int64  `json:"size"`
		Encrypted bool   `json:"encrypted"`
	} `json:"entries"`
}

// FetchLatestRelease fetches the latest application release descriptor.
func (c *Client) FetchLatestRelease(ctx context.Context) (*models.ReleaseDescriptor, error) {
	url := c.feedURL
	if url == "" {
		url = fmt.Sprintf("https://api.github.com/repos/%s/releases/latest", c.repository)
	}

	var desc *models.ReleaseDescriptor
	err := c.retry(ctx, func() error {
		body, err := c.get(ctx, url, "application/vnd.github.v3+json")
		if err != nil {
			return err
		}

		var release githubRelease
		if err := json.Unmarshal(body, &release); err != nil {
			return backoff.Permanent(fmt.Errorf("%w: %v", models.ErrRemoteMalformed, err))
		}

		d, err := convertRelease(&release)
		if err != nil {
			return backoff.Permanent(err)
		}
		desc = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return desc, nil
}

// FetchManifest fetches the current model manifest.
func (c *Client) FetchManifest(ctx context.Context) (*models.ModelManifest, error) {
	var manifest *models.ModelManifest
	err := c.retry(ctx, func() error {
		body, err := c.get(ctx, c.manifestURL, "application/json")
		if err != nil {
			return err
		}

		var wire manifestWire
		if err := json.Unmarshal(body, &wire); err != nil {
			return backoff.Permanent(fmt.Errorf("%w: %v", models.ErrRemoteMalformed, err))
		}

		m, err := convertManifest(&wire)
		if err != nil {
			return backoff.Permanent(err)
		}
		manifest = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return manifest, nil
}

// Download streams an artifact to destPath. The transfer goes to a
// temporary file first and is only renamed into place after the full
// byte count arrived; short or truncated transfers are deleted.
func (c *Client) Download(ctx context.Context, url, destPath string, expectedSize int64, progress ProgressFunc) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}

	return c.retry(ctx, func() error {
		return c.downloadOnce(ctx, url, destPath, expectedSize, progress)
	})
}

func (c *Client) downloadOnce(ctx context.Context, url, destPath string, expectedSize int64, progress ProgressFunc) error {
	// Artifact transfers can outlive a flat metadata timeout, so they are
	// bounded by a stall watchdog instead: the request is canceled when no
	// bytes arrive for the configured network timeout.
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	watchdog := time.AfterFunc(c.timeout, cancel)
	defer watchdog.Stop()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	c.authorize(req)
	req.Header.Set("Accept", "application/octet-stream")

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return backoff.Permanent(fmt.Errorf("%w: %s", models.ErrRemoteNotFound, url))
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: download failed: %s", models.ErrNetworkUnavailable, resp.Status)
	}

	tmpPath := destPath + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create staging file: %w", err))
	}

	total := expectedSize
	if total <= 0 {
		total = resp.ContentLength
	}

	reader := io.Reader(&idleReader{r: resp.Body, watchdog: watchdog, timeout: c.timeout})
	if progress != nil {
		reader = &progressReader{r: reader, total: total, report: progress}
	}

	written, copyErr := io.Copy(out, reader)
	closeErr := out.Close()

	if copyErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: transfer interrupted: %v", models.ErrNetworkUnavailable, copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return backoff.Permanent(fmt.Errorf("failed to finalize staging file: %w", closeErr))
	}
	if expectedSize > 0 && written != expectedSize {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: short transfer: got %d bytes, want %d", models.ErrNetworkUnavailable, written, expectedSize)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return backoff.Permanent(fmt.Errorf("failed to move download into place: %w", err))
	}
	return nil
}

// get performs one GET and returns the response body, mapping HTTP
// failures onto the shared error taxonomy.
func (c *Client) get(ctx context.Context, url, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	c.authorize(req)
	req.Header.Set("Accept", accept)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, backoff.Permanent(fmt.Errorf("%w: %s", models.ErrRemoteNotFound, url))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: remote returned %s", models.ErrNetworkUnavailable, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrNetworkUnavailable, err)
	}
	return body, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("token %s", c.token))
	}
}

func (c *Client) retry(ctx context.Context, op backoff.Operation) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	return backoff.Retry(op, policy)
}

// convertRelease converts a GitHub release to a release descriptor.
func convertRelease(release *githubRelease) (*models.ReleaseDescriptor, error) {
	version, err := models.ParseVersion(release.TagName)
	if err != nil {
		return nil, fmt.Errorf("%w: bad tag %q", models.ErrRemoteMalformed, release.TagName)
	}

	desc := &models.ReleaseDescriptor{
		Version:     version,
		PublishedAt: release.PublishedAt,
	}

	// The release pipeline publishes exactly one binary asset per platform;
	// take the first one carrying a content digest.
	for _, asset := range release.Assets {
		if asset.BrowserDownloadURL == "" {
			continue
		}
		desc.ArtifactURL = asset.BrowserDownloadURL
		desc.Checksum = strings.TrimPrefix(asset.Digest, "sha256:")
		desc.Size = asset.Size
		break
	}

	if desc.ArtifactURL == "" {
		return nil, fmt.Errorf("%w: release %s has no downloadable asset", models.ErrRemoteNotFound, release.TagName)
	}
	if desc.Checksum == "" {
		return nil, fmt.Errorf("%w: release %s declares no checksum", models.ErrRemoteMalformed, release.TagName)
	}
	return desc, nil
}

func convertManifest(wire *manifestWire) (*models.ModelManifest, error) {
	version, err := models.ParseVersion(wire.Version)
	if err != nil {
		return nil, fmt.Errorf("%w: bad manifest version %q", models.ErrRemoteMalformed, wire.Version)
	}

	manifest := &models.ModelManifest{
		Version:     version,
		PublishedAt: wire.PublishedAt,
	}
	for _, e := range wire.Entries {
		if e.Name == "" || e.URL == "" {
			return nil, fmt.Errorf("%w: manifest entry missing name or url", models.ErrRemoteMalformed)
		}
		// Entry names become paths under the model directory; a name that
		// escapes it is an attack, not a model.
		if !filepath.IsLocal(e.Name) {
			return nil, fmt.Errorf("%w: manifest entry name %q escapes the model directory", models.ErrRemoteMalformed, e.Name)
		}
		if e.Checksum == "" {
			return nil, fmt.Errorf("%w: manifest entry %s declares no checksum", models.ErrRemoteMalformed, e.Name)
		}
		manifest.Entries = append(manifest.Entries, models.ModelEntry{
			Name:      e.Name,
			URL:       e.URL,
			Checksum:  e.Checksum,
			Size:      e.Size,
			Encrypted: e.Encrypted,
		})
	}
	return manifest, nil
}

// idleReader feeds the stall watchdog: every chunk of received bytes
// pushes the cancellation deadline out by the configured timeout, so a
// slow but moving transfer survives while a silent one is cut off.
type idleReader struct {
	r        io.Reader
	watchdog *time.Timer
	timeout  time.Duration
}

func (r *idleReader) Read(b []byte) (int, error) {
	n, err := r.r.Read(b)
	if n > 0 {
		r.watchdog.Reset(r.timeout)
	}
	return n, err
}

type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	report ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.read += int64(n)
		p.report(p.read, p.total)
	}
	return n, err
}
