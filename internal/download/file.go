package download

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"slices"
	"time"
)

var ErrDownloadFailed = errors.New("Download failed")

type File struct {
	URLBase  string
	FileID   string // base64 of the real ID, reversed
	Ext      string
	Filename string
}

// ObfuscateFileID is the inverse of the decoding done by URL.
func ObfuscateFileID(id string) string {
	encoded := []byte(base64.StdEncoding.EncodeToString([]byte(id)))
	slices.Reverse(encoded)
	return string(encoded)
}

func (f File) URL() (string, error) {
	reversed := []byte(f.FileID)
	slices.Reverse(reversed)

	id, err := base64.StdEncoding.DecodeString(string(reversed))
	if err != nil {
		return "", fmt.Errorf("Verification failed: %w", err)
	}

	return f.URLBase + string(id) + f.Ext, nil
}

// Fetcher streams the file from its host so the real URL never reaches
// the browser.
type Fetcher struct {
	file File
	http *http.Client
}

func NewFetcher(file File, client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}
	return &Fetcher{file: file, http: client}
}

func (f *Fetcher) Filename() string {
	return f.file.Filename
}

// Stream copies the file to w. Headers are only written once the upstream
// answered, so a failure before that can still be reported as an error.
func (f *Fetcher) Stream(ctx context.Context, w http.ResponseWriter) error {
	fileURL, err := f.file.URL()
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return err
	}

	res, err := f.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: upstream status %d", ErrDownloadFailed, res.StatusCode)
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": f.file.Filename}))
	if res.ContentLength > 0 {
		w.Header().Set("Content-Length", fmt.Sprint(res.ContentLength))
	}
	w.WriteHeader(http.StatusOK)

	_, err = io.Copy(w, res.Body)
	return err
}
