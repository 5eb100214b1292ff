package snapshot

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(t *testing.T, w, h int, c color.Color, paint ...image.Point) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	for _, p := range paint {
		img.Set(p.X, p.Y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

var blue = color.RGBA{B: 200, A: 255}

func TestDiffPNG(t *testing.T) {
	base := solid(t, 10, 10, blue)

	fraction, _, err := DiffPNG(base, solid(t, 10, 10, blue))
	require.NoError(t, err)
	assert.Zero(t, fraction)

	fraction, diff, err := DiffPNG(base, solid(t, 10, 10, blue, image.Pt(0, 0), image.Pt(5, 5)))
	require.NoError(t, err)
	assert.InDelta(t, 0.02, fraction, 1e-9)
	assert.Equal(t, color.RGBA{R: 255, A: 255}, diff.At(5, 5))

	_, _, err = DiffPNG(base, solid(t, 12, 10, blue))
	assert.ErrorContains(t, err, "size changed")

	_, _, err = DiffPNG([]byte("nope"), base)
	assert.Error(t, err)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "No visual changes", describe(0))
	assert.Equal(t, "Minimal changes (< 0.1%)", describe(0.0005))
	assert.Equal(t, "Minor changes (0.50%)", describe(0.005))
	assert.Equal(t, "Moderate changes (2.00%)", describe(0.02))
	assert.Equal(t, "Significant changes (50.00%)", describe(0.5))
}

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), 0)
	require.NoError(t, err)
	return s
}

func TestStore_CreateGetListDelete(t *testing.T) {
	s := newStore(t)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { clock = clock.Add(time.Minute); return clock }

	b, err := s.Create("home", []Capture{{Label: "main", URL: "app://index", PNG: solid(t, 4, 3, blue)}})
	require.NoError(t, err)
	require.Len(t, b.Windows, 1)
	assert.Equal(t, 4, b.Windows[0].Width)
	assert.Equal(t, 3, b.Windows[0].Height)
	assert.Equal(t, DefaultThreshold, b.Threshold)

	_, err = s.Create("settings", []Capture{{Label: "main", PNG: solid(t, 4, 3, blue)}})
	require.NoError(t, err)

	got, err := s.Get("home")
	require.NoError(t, err)
	assert.Equal(t, "app://index", got.Windows[0].URL)

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "settings", list[0].Name)

	require.NoError(t, s.Delete("home"))
	_, err = s.Get("home")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete("home"), ErrNotFound)
}

func TestStore_InvalidInput(t *testing.T) {
	s := newStore(t)

	for _, name := range []string{"", "../up", "a/b", ".hidden"} {
		_, err := s.Create(name, []Capture{{Label: "main", PNG: solid(t, 1, 1, blue)}})
		assert.Error(t, err, name)
	}
	_, err := s.Create("empty", nil)
	assert.Error(t, err)
	_, err = s.Create("garbage", []Capture{{Label: "main", PNG: []byte("not a png")}})
	assert.Error(t, err)
}

func TestStore_Compare(t *testing.T) {
	s := newStore(t)
	_, err := s.Create("home", []Capture{
		{Label: "main", PNG: solid(t, 10, 10, blue)},
		{Label: "settings", PNG: solid(t, 10, 10, blue)},
		{Label: "about", PNG: solid(t, 10, 10, blue)},
	})
	require.NoError(t, err)

	r, err := s.Compare("home", []Capture{
		{Label: "main", PNG: solid(t, 10, 10, blue)},
		{Label: "settings", PNG: solid(t, 10, 10, blue, image.Pt(1, 1), image.Pt(2, 2))},
		{Label: "extra", PNG: solid(t, 10, 10, blue)},
	})
	require.NoError(t, err)
	require.Len(t, r.Windows, 3)
	assert.Equal(t, 1, r.Unchanged)
	assert.Equal(t, 2, r.Changed)
	assert.True(t, r.Regressions)

	byLabel := map[string]Comparison{}
	for _, c := range r.Windows {
		byLabel[c.Label] = c
	}
	assert.False(t, byLabel["main"].Changed)
	assert.Empty(t, byLabel["main"].DiffFile)

	settings := byLabel["settings"]
	assert.True(t, settings.Changed)
	assert.InDelta(t, 2.0, settings.DiffPercent, 1e-9)
	_, err = os.Stat(settings.DiffFile)
	assert.NoError(t, err)

	assert.True(t, byLabel["about"].Changed)
	assert.Contains(t, byLabel["about"].Description, "not present")

	_, err = s.Compare("missing", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileName(t *testing.T) {
	a := fileName("main window/1")
	assert.Regexp(t, `^main_window_1_[0-9a-f]{8}\.png$`, a)
	assert.Equal(t, a, fileName("main window/1"))
	assert.NotEqual(t, fileName("a/b"), fileName("a:b"))
}
