package acquire

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"scribe/internal/config"
	"scribe/internal/queue"
	"scribe/internal/services"
)

const userAgent = "Scribe/0.1.0"

// Acquired describes the staged media file a fetch produced.
type Acquired struct {
	Path      string
	Name      string
	SizeBytes int64
}

// Client fetches source media into a local staging file.
type Client interface {
	Fetch(ctx context.Context, source queue.Source, destDir string) (*Acquired, error)
}

var driveIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`drive\.google\.com/file/d/([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`drive\.google\.com/open\?id=([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`drive\.google\.com/uc\?id=([a-zA-Z0-9_-]+)`),
}

// ExtractDriveID pulls the file id out of a Google Drive share link. Links
// that are not Drive URLs return an empty id.
func ExtractDriveID(rawURL string) string {
	for _, pattern := range driveIDPatterns {
		if match := pattern.FindStringSubmatch(rawURL); match != nil {
			return match[1]
		}
	}
	return ""
}

type httpClient struct {
	client       *http.Client
	driveBaseURL string
}

// NewClient builds the default HTTP fetcher.
func NewClient(cfg *config.Config) Client {
	timeout := time.Duration(cfg.Acquisition.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &httpClient{
		client:       &http.Client{Timeout: timeout},
		driveBaseURL: strings.TrimRight(cfg.Acquisition.DriveBaseURL, "/"),
	}
}

func (c *httpClient) Fetch(ctx context.Context, source queue.Source, destDir string) (*Acquired, error) {
	downloadURL, err := c.resolveURL(source)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrAcquisition, "acquire", "build request", "", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrAcquisition, "acquire", "download",
			fmt.Sprintf("fetch %s", downloadURL), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, services.Wrap(services.ErrAcquisition, "acquire", "download",
			fmt.Sprintf("source returned %d for %s", resp.StatusCode, downloadURL), nil)
	}

	name := fileName(source, downloadURL)
	destPath := filepath.Join(destDir, name)
	out, err := os.Create(destPath)
	if err != nil {
		return nil, services.Wrap(services.ErrAcquisition, "acquire", "stage file",
			fmt.Sprintf("create %s", destPath), err)
	}

	written, copyErr := io.Copy(out, resp.Body)
	closeErr := out.Close()
	if copyErr != nil {
		_ = os.Remove(destPath)
		return nil, services.Wrap(services.ErrAcquisition, "acquire", "stage file",
			fmt.Sprintf("write %s", destPath), copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(destPath)
		return nil, services.Wrap(services.ErrAcquisition, "acquire", "stage file",
			fmt.Sprintf("close %s", destPath), closeErr)
	}
	if written == 0 {
		_ = os.Remove(destPath)
		return nil, services.Wrap(services.ErrAcquisition, "acquire", "stage file",
			fmt.Sprintf("source %s produced an empty file", downloadURL), nil)
	}

	return &Acquired{Path: destPath, Name: name, SizeBytes: written}, nil
}

func (c *httpClient) resolveURL(source queue.Source) (string, error) {
	if id := strings.TrimSpace(source.DriveID); id != "" {
		return fmt.Sprintf("%s/uc?id=%s", c.driveBaseURL, url.QueryEscape(id)), nil
	}
	raw := strings.TrimSpace(source.URL)
	if raw == "" {
		return "", services.Wrap(services.ErrValidation, "acquire", "resolve source",
			"task source has neither url nor drive id", nil)
	}
	// Share links get rewritten to the direct download endpoint.
	if id := ExtractDriveID(raw); id != "" {
		return fmt.Sprintf("%s/uc?id=%s", c.driveBaseURL, url.QueryEscape(id)), nil
	}
	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", services.Wrap(services.ErrValidation, "acquire", "resolve source",
			fmt.Sprintf("unsupported source url %q", raw), err)
	}
	return raw, nil
}

func fileName(source queue.Source, downloadURL string) string {
	if name := strings.TrimSpace(source.Filename); name != "" {
		return sanitizeName(name)
	}
	if parsed, err := url.Parse(downloadURL); err == nil {
		if base := path.Base(parsed.Path); base != "" && base != "/" && base != "." && strings.Contains(base, ".") {
			return sanitizeName(base)
		}
		if id := parsed.Query().Get("id"); id != "" {
			return sanitizeName(id + ".mp4")
		}
	}
	return "download.mp4"
}

func sanitizeName(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	replacer := strings.NewReplacer("\x00", "", string(os.PathSeparator), "_")
	name = replacer.Replace(name)
	if name == "" || name == "." {
		return "download.mp4"
	}
	return name
}
