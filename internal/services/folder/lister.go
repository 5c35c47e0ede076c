package folder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"scribe/internal/config"
	"scribe/internal/services"
)

const userAgent = "Scribe/0.1.0"

// RemoteFile is one entry in a watched remote folder.
type RemoteFile struct {
	ID         string
	Name       string
	SizeBytes  int64
	ModifiedAt time.Time
}

// Lister enumerates the files in a remote folder.
type Lister interface {
	List(ctx context.Context, folderID string) ([]RemoteFile, error)
}

type httpLister struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewLister builds the default Drive-style folder lister.
func NewLister(cfg *config.Config) Lister {
	return &httpLister{
		baseURL: strings.TrimRight(cfg.Acquisition.DriveBaseURL, "/"),
		token:   strings.TrimSpace(cfg.Acquisition.DriveToken),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type listResponse struct {
	Files []struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		Size         string `json:"size"`
		ModifiedTime string `json:"modifiedTime"`
	} `json:"files"`
	NextPageToken string `json:"nextPageToken"`
}

func (l *httpLister) List(ctx context.Context, folderID string) ([]RemoteFile, error) {
	folderID = strings.TrimSpace(folderID)
	if folderID == "" {
		return nil, services.Wrap(services.ErrValidation, "folder", "list files",
			"no folder id configured", nil)
	}

	var files []RemoteFile
	pageToken := ""
	for {
		page, next, err := l.listPage(ctx, folderID, pageToken)
		if err != nil {
			return nil, err
		}
		files = append(files, page...)
		if next == "" {
			return files, nil
		}
		pageToken = next
	}
}

func (l *httpLister) listPage(ctx context.Context, folderID, pageToken string) ([]RemoteFile, string, error) {
	params := url.Values{}
	params.Set("q", fmt.Sprintf("'%s' in parents and trashed=false", folderID))
	params.Set("pageSize", "100")
	params.Set("fields", "nextPageToken, files(id, name, size, modifiedTime)")
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/drive/v3/files?"+params.Encode(), nil)
	if err != nil {
		return nil, "", services.Wrap(services.ErrAcquisition, "folder", "list files", "", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if l.token != "" {
		req.Header.Set("Authorization", "Bearer "+l.token)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, "", services.Wrap(services.ErrAcquisition, "folder", "list files",
			fmt.Sprintf("folder %s", folderID), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, "", services.Wrap(services.ErrAcquisition, "folder", "list files", "", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", services.Wrap(services.ErrAcquisition, "folder", "list files",
			fmt.Sprintf("folder %s: listing returned %d", folderID, resp.StatusCode), nil)
	}

	var parsed listResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, "", services.Wrap(services.ErrAcquisition, "folder", "list files",
			"malformed listing response", err)
	}

	files := make([]RemoteFile, 0, len(parsed.Files))
	for _, f := range parsed.Files {
		file := RemoteFile{ID: f.ID, Name: f.Name}
		// Drive reports size as a decimal string; folders omit it.
		if f.Size != "" {
			if size, err := strconv.ParseInt(f.Size, 10, 64); err == nil {
				file.SizeBytes = size
			}
		}
		if f.ModifiedTime != "" {
			if modified, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
				file.ModifiedAt = modified
			}
		}
		files = append(files, file)
	}
	return files, parsed.NextPageToken, nil
}
