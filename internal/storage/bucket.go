// Package storage keeps uploaded pictures on disk under public/<bucket>/,
// named after the sha256 of their content.
package storage

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/gabriel-vasile/mimetype"
)

const MaxPictureSize = 8 << 20

var ErrUnsupportedType = errors.New("unsupported picture type")

var allowedTypes = []string{"image/png", "image/jpeg", "image/gif", "image/webp"}

type Bucket struct {
	Name    string
	dir     string
	convert bool
	mutex   sync.Mutex
}

// New returns a bucket stored in publicDir/name. With convert set pictures
// are cropped to a 256x256 webp with ffmpeg, which must be on PATH.
func New(publicDir string, name string, convert bool) *Bucket {
	return &Bucket{Name: name, dir: filepath.Join(publicDir, name), convert: convert}
}

// SaveFormFile stores the multipart file in field. It returns
// http.ErrMissingFile when the request has none.
func (b *Bucket) SaveFormFile(r *http.Request, field string) (string, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, MaxPictureSize+1<<20)

	picFormFile, _, err := r.FormFile(field)
	if err != nil {
		return "", err
	}
	defer picFormFile.Close()

	inputBytes, err := io.ReadAll(io.LimitReader(picFormFile, MaxPictureSize+1))
	if err != nil {
		return "", err
	}
	if len(inputBytes) > MaxPictureSize {
		return "", fmt.Errorf("picture is larger than %d bytes", MaxPictureSize)
	}

	return b.Save(inputBytes)
}

func (b *Bucket) Save(inputBytes []byte) (string, error) {
	mtype := mimetype.Detect(inputBytes)
	if !mimetype.EqualsAny(mtype.String(), allowedTypes...) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, mtype.String())
	}

	resultBytes := inputBytes
	extension := mtype.Extension()

	if b.convert {
		var err error
		resultBytes, err = convertToWebp(inputBytes)
		if err != nil {
			return "", err
		}
		extension = ".webp"
	}

	// use the hash for filename
	hash := sha256.Sum256(resultBytes)
	fileName := hex.EncodeToString(hash[:]) + extension
	fullPath := filepath.Join(b.dir, fileName)

	b.mutex.Lock()
	defer b.mutex.Unlock()

	err := os.MkdirAll(b.dir, os.ModePerm)
	if err != nil {
		return "", err
	}

	// same content was uploaded before
	_, err = os.Stat(fullPath)
	if os.IsNotExist(err) {
		err = os.WriteFile(fullPath, resultBytes, 0644)
		if err != nil {
			return "", err
		}
	} else if err != nil {
		return "", err
	}

	return fileName, nil
}

func convertToWebp(inputBytes []byte) ([]byte, error) {
	cmd := exec.Command(
		"ffmpeg",
		"-i", "pipe:0",
		"-vf", "crop=min(iw\\,ih):min(iw\\,ih):(iw-min(iw\\,ih))/2:(ih-min(iw\\,ih))/2,scale=256:256",
		"-vframes", "1",
		"-c:v", "libwebp",
		"-quality", "50",
		"-preset", "default",
		"-f", "webp",
		"pipe:1",
	)

	cmd.Stdin = bytes.NewReader(inputBytes)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	err := cmd.Run()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %w", err)
	}

	return stdout.Bytes(), nil
}
