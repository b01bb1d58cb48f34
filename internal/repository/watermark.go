package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	domrepo "github.com/carolinacraus/market-state-api/internal/domain/repository"
	"github.com/carolinacraus/market-state-api/pkg/util"
)

// FileWatermark keeps a single trading day in a text file.
type FileWatermark struct {
	path string
}

var _ domrepo.Watermark = (*FileWatermark)(nil)

func NewFileWatermark(path string) *FileWatermark {
	return &FileWatermark{path: path}
}

// Get reports ok=false when no day has been recorded yet.
func (w *FileWatermark) Get(ctx context.Context) (time.Time, bool, error) {
	b, err := os.ReadFile(w.path)
	if errors.Is(err, os.ErrNotExist) {
		return time.Time{}, false, ctx.Err()
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read watermark %s: %w", filepath.Base(w.path), err)
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return time.Time{}, false, ctx.Err()
	}
	day, ok := util.ParseDay(s)
	if !ok {
		return time.Time{}, false, fmt.Errorf("watermark %s: invalid day %q", filepath.Base(w.path), s)
	}
	return day, true, ctx.Err()
}

func (w *FileWatermark) Set(ctx context.Context, day time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return writeFileAtomic(w.path, util.FormatDay(day)+"\n")
}
