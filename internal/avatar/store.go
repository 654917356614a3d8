package avatar

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// URLPrefix is where the router serves stored files from.
const URLPrefix = "/avatars"

const MaxFileSize = 5 << 20 // 5 MiB

var (
	ErrInvalidFile  = errors.New("invalid avatar file type")
	ErrFileTooLarge = errors.New("avatar file too large")
	ErrEmptyFile    = errors.New("avatar file is empty")
)

// extensions the store accepts, compared case-insensitively
var allowedExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".webp": {},
}

// Store keeps one avatar image file per user under a single managed
// directory. Filenames are namespaced by user id plus a random component so
// concurrent uploads from different users cannot collide.
type Store struct {
	dir     string
	log     *slog.Logger
	observe func(op string, err error)
}

func NewStore(dir string, log *slog.Logger) *Store {
	return &Store{
		dir: dir,
		log: log,
	}
}

// WithMetrics installs a per-operation hook, normally Prom.ObserveAvatarOp.
func (s *Store) WithMetrics(observe func(op string, err error)) *Store {
	s.observe = observe
	return s
}

func (s *Store) record(op string, err error) {
	if s.observe != nil {
		s.observe(op, err)
	}
}

// Dir returns the managed directory, for the router's static file mount.
func (s *Store) Dir() string {
	return s.dir
}

// Save validates and persists an uploaded image, returning its relative
// path ("/avatars/<name>"). Validation failures are client errors; only
// filesystem trouble is returned as-is.
func (s *Store) Save(userID int64, fileName string, size int64, r io.Reader) (relPath string, err error) {
	defer func() { s.record("save", err) }()

	if size <= 0 {
		return "", ErrEmptyFile
	}

	if size > MaxFileSize {
		return "", ErrFileTooLarge
	}

	ext := strings.ToLower(filepath.Ext(fileName))

	if _, ok := allowedExtensions[ext]; !ok {
		return "", ErrInvalidFile
	}

	// size is re-checked while reading: the declared size is client input
	data, err := io.ReadAll(io.LimitReader(r, MaxFileSize+1))

	if err != nil {
		return "", err
	}

	if len(data) == 0 {
		return "", ErrEmptyFile
	}

	if len(data) > MaxFileSize {
		return "", ErrFileTooLarge
	}

	// the extension check trusts the client; the content sniff does not
	if !strings.HasPrefix(mimetype.Detect(data).String(), "image/") {
		return "", ErrInvalidFile
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", err
	}

	// extension comes from the allow-list above, never raw user input, so
	// the stored name cannot traverse out of the managed directory
	name := fmt.Sprintf("%d_%s%s", userID, uuid.NewString(), ext)

	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", err
	}

	return URLPrefix + "/" + name, nil
}

// Remove deletes the file behind a stored relative path. A file that is
// already gone is not an error.
func (s *Store) Remove(relPath string) (err error) {
	defer func() { s.record("remove", err) }()

	fp, ok := s.filePath(relPath)

	if !ok {
		return nil
	}

	rmErr := os.Remove(fp)

	if rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		return rmErr
	}

	return nil
}

// RemoveQuietly is the best-effort flavor used when replacing an avatar:
// a leftover old file must never fail the upload, only get logged.
func (s *Store) RemoveQuietly(relPath string) {
	if err := s.Remove(relPath); err != nil && s.log != nil {
		s.log.Warn("failed to remove previous avatar", "path", relPath, "err", err)
	}
}

// Exists reports whether the file behind a stored relative path is present.
func (s *Store) Exists(relPath string) bool {
	fp, ok := s.filePath(relPath)

	if !ok {
		return false
	}

	_, err := os.Stat(fp)
	return err == nil
}

// PublicURL turns a stored relative path into an absolute URL under the
// requesting origin. Recomputed per request, never persisted, so a domain
// or scheme change transparently moves every returned URL.
func (s *Store) PublicURL(ctx *gin.Context, relPath *string) *string {
	if relPath == nil || *relPath == "" {
		return nil
	}

	scheme := "http"

	if ctx.Request.TLS != nil || ctx.GetHeader("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}

	url := scheme + "://" + ctx.Request.Host + *relPath
	return &url
}

// filePath maps a stored relative path back onto the managed directory.
// Only the base name is used, so a mangled stored value cannot reach
// outside the directory.
func (s *Store) filePath(relPath string) (string, bool) {
	if relPath == "" {
		return "", false
	}

	name := path.Base(relPath)

	if name == "." || name == "/" || name == ".." {
		return "", false
	}

	return filepath.Join(s.dir, name), true
}
