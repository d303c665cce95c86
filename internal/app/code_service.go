package app

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DownloadStore is the object-storage surface the code service needs.
type DownloadStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}

type CodeService struct {
	store       DownloadStore
	downloadTTL time.Duration
}

type CodeDownloadInput struct {
	UserID   uint
	Code     string
	Language string
	Filename string
}

func NewCodeService(store DownloadStore, downloadTTL time.Duration) *CodeService {
	if downloadTTL <= 0 {
		downloadTTL = time.Hour
	}
	return &CodeService{store: store, downloadTTL: downloadTTL}
}

// CreateDownload stores the snippet as an object and returns a time-limited
// download URL.
func (s *CodeService) CreateDownload(ctx context.Context, input CodeDownloadInput) (string, error) {
	code := input.Code
	if strings.TrimSpace(code) == "" {
		return "", ErrInvalidInput
	}

	filename := sanitizeFilename(input.Filename)
	if filename == "" {
		filename = "snippet" + extensionFor(input.Language)
	}

	key := fmt.Sprintf("code/%d/%s/%s", input.UserID, uuid.NewString(), filename)
	reader := strings.NewReader(code)
	if err := s.store.Put(ctx, key, reader, int64(len(code)), "text/plain; charset=utf-8"); err != nil {
		return "", err
	}

	url, err := s.store.PresignGet(ctx, key, s.downloadTTL)
	if err != nil {
		return "", err
	}
	return url, nil
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(path.Base(name))
	if name == "." || name == "/" {
		return ""
	}
	return name
}

func extensionFor(language string) string {
	switch strings.ToLower(strings.TrimSpace(language)) {
	case "go", "golang":
		return ".go"
	case "python":
		return ".py"
	case "javascript":
		return ".js"
	case "typescript":
		return ".ts"
	case "rust":
		return ".rs"
	case "java":
		return ".java"
	case "c":
		return ".c"
	case "cpp", "c++":
		return ".cpp"
	case "shell", "bash", "sh":
		return ".sh"
	case "html":
		return ".html"
	case "css":
		return ".css"
	case "sql":
		return ".sql"
	default:
		return ".txt"
	}
}
