// Package snapshot keeps named baselines of window screenshots on disk and
// compares fresh captures against them.
package snapshot

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// ErrNotFound is returned for an unknown baseline name.
var ErrNotFound = errors.New("baseline not found")

const metadataFile = "metadata.json"

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Store persists baselines, one directory each, under a root directory.
type Store struct {
	root      string
	threshold float64
	now       func() time.Time
}

// NewStore opens (creating if needed) a store rooted at dir. An empty dir
// means ~/.tauri-mcp/baselines; threshold <= 0 means DefaultThreshold.
func NewStore(dir string, threshold float64) (*Store, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		dir = filepath.Join(home, ".tauri-mcp", "baselines")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create baselines dir: %w", err)
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Store{root: dir, threshold: threshold, now: time.Now}, nil
}

// Root returns the store directory.
func (s *Store) Root() string { return s.root }

func (s *Store) dir(name string) (string, error) {
	if !validName.MatchString(name) {
		return "", fmt.Errorf("invalid baseline name %q", name)
	}
	return filepath.Join(s.root, name), nil
}

// Create saves captures as baseline name, replacing any previous one.
func (s *Store) Create(name string, captures []Capture) (*Baseline, error) {
	dir, err := s.dir(name)
	if err != nil {
		return nil, err
	}
	if len(captures) == 0 {
		return nil, errors.New("nothing captured")
	}
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("remove old baseline: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create baseline dir: %w", err)
	}

	b := &Baseline{Name: name, Created: s.now(), Threshold: s.threshold}
	for _, c := range captures {
		cfg, err := png.DecodeConfig(bytes.NewReader(c.PNG))
		if err != nil {
			return nil, fmt.Errorf("window %s: %w", c.Label, err)
		}
		file := fileName(c.Label)
		if err := os.WriteFile(filepath.Join(dir, file), c.PNG, 0o644); err != nil {
			return nil, fmt.Errorf("write screenshot: %w", err)
		}
		b.Windows = append(b.Windows, WindowShot{
			Label:  c.Label,
			Title:  c.Title,
			URL:    c.URL,
			Width:  cfg.Width,
			Height: cfg.Height,
			File:   file,
		})
	}

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, metadataFile), data, 0o644); err != nil {
		return nil, fmt.Errorf("write metadata: %w", err)
	}
	return b, nil
}

// Get loads a baseline's metadata.
func (s *Store) Get(name string) (*Baseline, error) {
	dir, err := s.dir(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	var b Baseline
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}
	return &b, nil
}

// List returns every readable baseline, newest first.
func (s *Store) List() ([]*Baseline, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read baselines dir: %w", err)
	}
	var out []*Baseline
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		b, err := s.Get(e.Name())
		if err != nil {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.After(out[j].Created) })
	return out, nil
}

// Delete removes a baseline.
func (s *Store) Delete(name string) error {
	if _, err := s.Get(name); err != nil {
		return err
	}
	dir, _ := s.dir(name)
	return os.RemoveAll(dir)
}

// Compare diffs captures against baseline name. Windows missing from
// captures count as changed; extra captures are ignored. Diff images for
// changed windows are written next to the baseline.
func (s *Store) Compare(name string, captures []Capture) (*Report, error) {
	b, err := s.Get(name)
	if err != nil {
		return nil, err
	}
	dir, _ := s.dir(name)

	byLabel := make(map[string]Capture, len(captures))
	for _, c := range captures {
		byLabel[c.Label] = c
	}

	r := &Report{Baseline: name, Created: s.now()}
	total := 0.0
	for _, w := range b.Windows {
		cmp := Comparison{Label: w.Label}
		c, ok := byLabel[w.Label]
		if !ok {
			cmp.Changed = true
			cmp.DiffPercent = 100
			cmp.Description = "Window not present in current capture"
			r.add(cmp)
			total += 1
			continue
		}

		base, err := os.ReadFile(filepath.Join(dir, w.File))
		if err != nil {
			return nil, fmt.Errorf("read baseline screenshot: %w", err)
		}
		fraction, diff, err := DiffPNG(base, c.PNG)
		if err != nil {
			cmp.Changed = true
			cmp.DiffPercent = 100
			cmp.Description = err.Error()
			r.add(cmp)
			total += 1
			continue
		}

		cmp.DiffPercent = fraction * 100
		cmp.Changed = fraction > b.Threshold
		cmp.Description = describe(fraction)
		if cmp.Changed {
			cmp.DiffFile = filepath.Join(dir, "diff_"+w.File)
			if err := writePNG(cmp.DiffFile, diff); err != nil {
				return nil, err
			}
		}
		r.add(cmp)
		total += fraction
	}
	if len(b.Windows) > 0 {
		r.AverageDiff = total / float64(len(b.Windows)) * 100
	}
	r.Regressions = r.Changed > 0
	return r, nil
}

func (r *Report) add(c Comparison) {
	r.Windows = append(r.Windows, c)
	if c.Changed {
		r.Changed++
	} else {
		r.Unchanged++
	}
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// fileName derives a stable, filesystem-safe name from a window label.
func fileName(label string) string {
	sum := sha256.Sum256([]byte(label))
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, label)
	if len(clean) > 30 {
		clean = clean[:30]
	}
	return fmt.Sprintf("%s_%s.png", clean, hex.EncodeToString(sum[:])[:8])
}
