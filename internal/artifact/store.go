// Package artifact persists generated images and prunes stale ones.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Op names the producing operation; it becomes the filename prefix the
// sweeper keys on.
type Op string

const (
	OpGenerate Op = "generate"
	OpEdit     Op = "edit"
	OpTemp     Op = "temp"
)

const captionMaxRunes = 30

// Store writes image blobs under a single directory using the
// {op}_{unixSeconds}_{8-hex}_{caption}.png naming scheme.
type Store struct {
	dir string
	now func() time.Time
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &Store{dir: dir, now: time.Now}, nil
}

func (s *Store) Dir() string { return s.dir }

// Save persists data and returns the full path of the new file.
func (s *Store) Save(op Op, caption string, data []byte) (string, error) {
	name := fmt.Sprintf("%s_%d_%s_%s.png",
		op, s.now().Unix(), randomHex8(), SanitizeCaption(caption))
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return path, nil
}

func (s *Store) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return data, nil
}

func (s *Store) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// SanitizeCaption strips path-unsafe characters from a caption and bounds
// its length so it can be embedded in a filename.
func SanitizeCaption(caption string) string {
	caption = strings.TrimSpace(caption)
	if caption == "" {
		return "generated_image"
	}
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "*", "_", "\n", "_", "\r", "_", " ", "_")
	caption = replacer.Replace(caption)
	runes := []rune(caption)
	if len(runes) > captionMaxRunes {
		caption = string(runes[:captionMaxRunes]) + "..."
	}
	return caption
}

func randomHex8() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
