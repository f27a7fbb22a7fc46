package logx

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const archiveStamp = "20060102-150405.000000000"

type RotateOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	// MaxAgeDays removes archives older than this many days. Zero keeps them.
	MaxAgeDays int
	Compress   bool
	Now        func() time.Time
}

// RotatingWriter is an io.WriteCloser for access logs. The active file is
// archived as <path>.<stamp>[.gz] when it would exceed MaxSizeMB or when the
// local day changes.
type RotatingWriter struct {
	opts  RotateOptions
	limit int64

	mu     sync.Mutex
	f      *os.File
	size   int64
	day    string
	closed bool
}

func NewRotatingWriter(opts RotateOptions) (*RotatingWriter, error) {
	opts.Path = strings.TrimSpace(opts.Path)
	switch {
	case opts.Path == "":
		return nil, errors.New("access log path is empty")
	case opts.MaxSizeMB <= 0:
		return nil, errors.New("max_size_mb must be > 0")
	case opts.MaxBackups <= 0:
		return nil, errors.New("max_backups must be > 0")
	case opts.MaxAgeDays < 0:
		return nil, errors.New("max_age_days must be >= 0")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if dir := filepath.Dir(opts.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, err
		}
	}
	w := &RotatingWriter{opts: opts, limit: int64(opts.MaxSizeMB) << 20}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, os.ErrClosed
	}
	now := w.opts.Now()
	if dayOf(now) != w.day || (w.size > 0 && w.size+int64(len(p)) > w.limit) {
		if err := w.rotate(now); err != nil {
			return 0, err
		}
	}
	n, err := w.f.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.f.Close()
}

func (w *RotatingWriter) open() error {
	f, err := os.OpenFile(w.opts.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f, w.size, w.day = f, st.Size(), dayOf(w.opts.Now())
	return nil
}

func (w *RotatingWriter) rotate(now time.Time) error {
	if err := w.f.Close(); err != nil {
		return err
	}
	archive := fmt.Sprintf("%s.%s", w.opts.Path, now.In(time.Local).Format(archiveStamp))
	renameErr := os.Rename(w.opts.Path, archive)
	if err := w.open(); err != nil {
		return err
	}
	if renameErr != nil {
		if errors.Is(renameErr, os.ErrNotExist) {
			return nil
		}
		return renameErr
	}
	if w.opts.Compress {
		if err := gzipFile(archive); err != nil {
			return err
		}
	}
	w.prune(now)
	return nil
}

// prune keeps the newest MaxBackups archives and drops expired ones.
func (w *RotatingWriter) prune(now time.Time) {
	dir, base := filepath.Dir(w.opts.Path), filepath.Base(w.opts.Path)+"."
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	type archived struct {
		path string
		when time.Time
	}
	var found []archived
	for _, ent := range entries {
		name := ent.Name()
		if ent.IsDir() || !strings.HasPrefix(name, base) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, base), ".gz")
		when, err := time.ParseInLocation(archiveStamp, stamp, time.Local)
		if err != nil {
			continue
		}
		found = append(found, archived{path: filepath.Join(dir, name), when: when})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].when.After(found[j].when) })

	var cutoff time.Time
	if w.opts.MaxAgeDays > 0 {
		cutoff = now.AddDate(0, 0, -w.opts.MaxAgeDays)
	}
	for i, a := range found {
		if i >= w.opts.MaxBackups || (!cutoff.IsZero() && a.when.Before(cutoff)) {
			_ = os.Remove(a.path)
		}
	}
}

func gzipFile(path string) (err error) {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close() //nolint:errcheck

	tmp := path + ".gz.tmp"
	dst, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	gz := gzip.NewWriter(dst)
	if _, err = io.Copy(gz, src); err != nil {
		_ = gz.Close()
		_ = dst.Close()
		return err
	}
	if err = gz.Close(); err != nil {
		_ = dst.Close()
		return err
	}
	if err = dst.Close(); err != nil {
		return err
	}
	if err = os.Rename(tmp, path+".gz"); err != nil {
		return err
	}
	return os.Remove(path)
}

func dayOf(t time.Time) string {
	return t.In(time.Local).Format("20060102")
}
