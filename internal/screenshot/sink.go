// Package screenshot writes debug captures of the chat page to disk, keeping
// only the most recent ones.
package screenshot

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/logging"
)

// DefaultLimit is the number of screenshots kept when no limit is given.
const DefaultLimit = 20

var fileName = regexp.MustCompile(`^(.+)-(\d+)\.png$`)

// Sink stores PNG screenshots as <name>-<unixmillis>.png.
type Sink struct {
	dir    string
	limit  int
	now    func() time.Time
	logger *zap.Logger
	mu     sync.Mutex
}

// NewSink creates dir and returns a sink that keeps at most limit files.
func NewSink(dir string, limit int, logger *zap.Logger) (*Sink, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	return &Sink{dir: dir, limit: limit, now: time.Now, logger: logging.OrNop(logger)}, nil
}

// Save writes data and prunes the oldest files beyond the limit.
func (s *Sink) Save(name string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, fmt.Sprintf("%s-%d.png", name, s.now().UnixMilli()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write screenshot: %w", err)
	}
	s.logger.Debug("screenshot saved", zap.String("path", path))

	if err := s.prune(); err != nil {
		s.logger.Warn("failed to prune screenshots", zap.Error(err))
	}
	return path, nil
}

type shot struct {
	path  string
	stamp int64
}

func (s *Sink) scan() ([]shot, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	var shots []shot
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := fileName.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		stamp, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			continue
		}
		shots = append(shots, shot{path: filepath.Join(s.dir, e.Name()), stamp: stamp})
	}

	sort.SliceStable(shots, func(i, j int) bool {
		return shots[i].stamp < shots[j].stamp
	})
	return shots, nil
}

func (s *Sink) prune() error {
	shots, err := s.scan()
	if err != nil {
		return err
	}
	for len(shots) > s.limit {
		if err := os.Remove(shots[0].path); err != nil && !os.IsNotExist(err) {
			return err
		}
		shots = shots[1:]
	}
	return nil
}
