package sink

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/rangeget/internal/utils"
)

// FileSink writes through a temporary file in the target directory and renames
// it into place. An existing file is never overwritten; the payload goes to
// the next free "name-(n).ext" instead. Names are claimed with O_EXCL so
// concurrent writers never land on the same path.
type FileSink struct {
	Path string
}

func (s *FileSink) Write(ctx context.Context, p Payload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("error creating output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.Path)+".*.part")
	if err != nil {
		return "", fmt.Errorf("error creating temporary file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}
	if _, err := tmp.Write(p.Data); err != nil {
		cleanup()
		return "", fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return "", fmt.Errorf("error syncing temporary file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("error closing temporary file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("error setting file mode: %w", err)
	}
	outputPath, err := claim(s.Path)
	if err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("error reserving output path: %w", err)
	}
	if outputPath != s.Path {
		log.Warn().Str("op", "sink/file").Msgf("%s exists, writing to %s", s.Path, outputPath)
	}
	// replaces only the empty placeholder claim created
	if err := os.Rename(tmpPath, outputPath); err != nil {
		os.Remove(tmpPath)
		os.Remove(outputPath)
		return "", fmt.Errorf("error moving file into place: %w", err)
	}
	log.Debug().Str("op", "sink/file").Str("session", p.SessionID).Msgf("wrote %d bytes to %s", len(p.Data), outputPath)
	return outputPath, nil
}

// claim creates an empty placeholder at the first free name among path,
// name-(1).ext, name-(2).ext and so on.
func claim(path string) (string, error) {
	candidate := path
	for n := 1; ; n++ {
		f, err := os.OpenFile(candidate, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			return candidate, f.Close()
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", err
		}
		candidate = utils.NumberedPath(path, n)
	}
}
