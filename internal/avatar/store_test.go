package avatar_test

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/geocoder89/authhub/internal/avatar"
)

// the PNG magic bytes are enough for content sniffing
var pngBytes = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

func newStore(t *testing.T) *avatar.Store {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	return avatar.NewStore(t.TempDir(), log)
}

func saveSample(t *testing.T, s *avatar.Store, userID int64, fileName string) string {
	t.Helper()

	rel, err := s.Save(userID, fileName, int64(len(pngBytes)), bytes.NewReader(pngBytes))

	if err != nil {
		t.Fatalf("Save(%q) returned error: %v", fileName, err)
	}
	return rel
}

func TestSave_Success(t *testing.T) {
	s := newStore(t)

	rel := saveSample(t, s, 7, "me.PNG")

	if !strings.HasPrefix(rel, "/avatars/7_") {
		t.Fatalf("expected path namespaced by user id, got %q", rel)
	}

	if !strings.HasSuffix(rel, ".png") {
		t.Fatalf("expected lowercased allow-list extension, got %q", rel)
	}

	if !s.Exists(rel) {
		t.Fatalf("expected saved file to exist")
	}

	data, err := os.ReadFile(filepath.Join(s.Dir(), filepath.Base(rel)))
	if err != nil {
		t.Fatalf("failed to read stored file: %v", err)
	}
	if !bytes.Equal(data, pngBytes) {
		t.Fatalf("stored bytes differ from upload")
	}
}

func TestSave_UniqueNames(t *testing.T) {
	s := newStore(t)

	a := saveSample(t, s, 7, "one.png")
	b := saveSample(t, s, 7, "two.png")

	if a == b {
		t.Fatalf("expected distinct stored names, got %q twice", a)
	}
}

func TestSave_Validation(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		size     int64
		data     []byte
		wantErr  error
	}{
		{
			name:     "disallowed_extension",
			fileName: "payload.exe",
			size:     int64(len(pngBytes)),
			data:     pngBytes,
			wantErr:  avatar.ErrInvalidFile,
		},
		{
			name:     "no_extension",
			fileName: "avatar",
			size:     int64(len(pngBytes)),
			data:     pngBytes,
			wantErr:  avatar.ErrInvalidFile,
		},
		{
			name:     "declared_size_too_large",
			fileName: "me.png",
			size:     avatar.MaxFileSize + 1,
			data:     pngBytes,
			wantErr:  avatar.ErrFileTooLarge,
		},
		{
			name:     "empty_file",
			fileName: "me.png",
			size:     0,
			data:     nil,
			wantErr:  avatar.ErrEmptyFile,
		},
		{
			name:     "content_not_an_image",
			fileName: "me.png",
			size:     4,
			data:     []byte("MZ\x90\x00"),
			wantErr:  avatar.ErrInvalidFile,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)

			_, err := s.Save(7, tt.fileName, tt.size, bytes.NewReader(tt.data))

			if err != tt.wantErr {
				t.Fatalf("got err %v, want %v", err, tt.wantErr)
			}

			entries, readErr := os.ReadDir(s.Dir())
			if readErr == nil && len(entries) != 0 {
				t.Fatalf("expected no file persisted on validation failure")
			}
		})
	}
}

func TestSave_ActualBytesOverDeclaredSize(t *testing.T) {
	s := newStore(t)

	// declared size lies; the reader carries more than the cap
	big := bytes.NewReader(append(append([]byte{}, pngBytes...), make([]byte, avatar.MaxFileSize)...))

	_, err := s.Save(7, "me.png", 100, big)

	if err != avatar.ErrFileTooLarge {
		t.Fatalf("got err %v, want ErrFileTooLarge", err)
	}
}

func TestRemove(t *testing.T) {
	s := newStore(t)

	rel := saveSample(t, s, 7, "me.png")

	if err := s.Remove(rel); err != nil {
		t.Fatalf("Remove returned error: %v", err)
	}

	if s.Exists(rel) {
		t.Fatalf("expected file to be gone after Remove")
	}

	// absence is not an error
	if err := s.Remove(rel); err != nil {
		t.Fatalf("Remove of missing file returned error: %v", err)
	}

	if err := s.Remove(""); err != nil {
		t.Fatalf("Remove of empty path returned error: %v", err)
	}
}

func TestReplaceLeavesNoOrphans(t *testing.T) {
	s := newStore(t)

	var current string

	for i := 0; i < 5; i++ {
		if current != "" {
			s.RemoveQuietly(current)
		}
		current = saveSample(t, s, 7, "me.png")
	}

	entries, err := os.ReadDir(s.Dir())
	if err != nil {
		t.Fatalf("failed to read avatar dir: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("expected exactly one stored file after replacements, got %d", len(entries))
	}
}
