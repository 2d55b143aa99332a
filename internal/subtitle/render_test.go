package subtitle

import (
	"context"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/basicfont"
)

func testRenderer(style Style) *Renderer {
	return &Renderer{face: basicfont.Face7x13, style: style}
}

func TestParseColor(t *testing.T) {
	cases := []struct {
		in   string
		want color.RGBA
	}{
		{"white", color.RGBA{255, 255, 255, 255}},
		{"", color.RGBA{255, 255, 255, 255}},
		{"black", color.RGBA{0, 0, 0, 255}},
		{"#ff0000", color.RGBA{255, 0, 0, 255}},
		{"#00ff0080", color.RGBA{0, 255, 0, 128}},
		{"#fff", color.RGBA{255, 255, 255, 255}},
	}
	for _, tc := range cases {
		got, err := ParseColor(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	_, err := ParseColor("#12345")
	assert.Error(t, err)
	_, err = ParseColor("#zzzzzz")
	assert.Error(t, err)
}

func TestDisplayWidth(t *testing.T) {
	assert.Equal(t, 5, DisplayWidth("hello"))
	assert.Equal(t, 4, DisplayWidth("日本"))
	assert.Equal(t, 7, DisplayWidth("abc日本"))
	assert.Zero(t, DisplayWidth(""))
}

func TestRenderProducesOpaquePixels(t *testing.T) {
	r := testRenderer(Style{
		FontSize: 13,
		Color:    color.RGBA{255, 255, 255, 255},
	})

	img, err := r.Render("hello")
	require.NoError(t, err)

	found := false
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y && !found; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a > 0 {
				found = true
				break
			}
		}
	}
	assert.True(t, found, "rendered text must produce visible pixels")
}

func TestRenderEmptyFails(t *testing.T) {
	r := testRenderer(Style{FontSize: 13})
	_, err := r.Render("")
	assert.Error(t, err)
}

func TestWrap(t *testing.T) {
	t.Run("explicit newlines split", func(t *testing.T) {
		r := testRenderer(Style{FontSize: 13})
		lines := r.wrap("one\ntwo")
		assert.Equal(t, []string{"one", "two"}, lines)
	})

	t.Run("long line breaks at max width", func(t *testing.T) {
		// Face7x13 glyphs are 7px wide, so 35px fits five runes.
		r := testRenderer(Style{FontSize: 13, MaxWidth: 35})
		lines := r.wrap(strings.Repeat("a", 12))
		require.Len(t, lines, 3)
		assert.Equal(t, "aaaaa", lines[0])
		assert.Equal(t, "aaaaa", lines[1])
		assert.Equal(t, "aa", lines[2])
	})

	t.Run("no limit keeps the line whole", func(t *testing.T) {
		r := testRenderer(Style{FontSize: 13})
		lines := r.wrap(strings.Repeat("a", 100))
		require.Len(t, lines, 1)
	})
}

func TestOutlineGrowsImage(t *testing.T) {
	plain := testRenderer(Style{FontSize: 13, Color: color.RGBA{255, 255, 255, 255}})
	outlined := testRenderer(Style{
		FontSize:     13,
		Color:        color.RGBA{255, 255, 255, 255},
		OutlineColor: color.RGBA{0, 0, 0, 255},
		OutlineWidth: 3,
	})

	p, err := plain.Render("hi")
	require.NoError(t, err)
	o, err := outlined.Render("hi")
	require.NoError(t, err)

	assert.Equal(t, p.Bounds().Dx()+6, o.Bounds().Dx())
	assert.Equal(t, p.Bounds().Dy()+6, o.Bounds().Dy())
}

func TestWritePNG(t *testing.T) {
	r := testRenderer(Style{FontSize: 13, Color: color.RGBA{255, 255, 255, 255}})
	img, err := r.Render("x")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "sub.png")
	require.NoError(t, WritePNG(img, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG", string(data[:4]))
}

func TestRenderAllMissingFont(t *testing.T) {
	err := RenderAll(context.Background(), Style{FontPath: "/nonexistent.ttf", FontSize: 20},
		[]Job{{Text: "hi", OutPath: filepath.Join(t.TempDir(), "a.png")}}, 2)
	assert.Error(t, err)
}
