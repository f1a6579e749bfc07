package ui

import (
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"github.com/elsadiq7/chestnet/internal/fixed"
	"github.com/elsadiq7/chestnet/internal/stream"
)

// Theme defines the color scheme for the viewer.
type Theme struct {
	Background  color.RGBA
	TileBorder  color.RGBA
	PendingTile color.RGBA
	TextColor   color.RGBA
	TitleColor  color.RGBA
	DoneColor   color.RGBA
	ForcedColor color.RGBA
}

// DefaultTheme returns the default color theme.
func DefaultTheme() *Theme {
	return &Theme{
		Background:  color.RGBA{40, 44, 52, 255},    // Dark gray
		TileBorder:  color.RGBA{80, 84, 92, 255},    // Medium gray
		PendingTile: color.RGBA{52, 56, 64, 255},    // Slightly lighter than bg
		TextColor:   color.RGBA{220, 220, 220, 255}, // Light gray
		TitleColor:  color.RGBA{240, 217, 181, 255}, // Tan
		DoneColor:   color.RGBA{130, 180, 105, 255}, // Green
		ForcedColor: color.RGBA{255, 150, 100, 255}, // Orange
	}
}

// Renderer draws feature-map planes as grayscale channel tiles.
type Renderer struct {
	theme *Theme

	// One cached image per plane, rebuilt when the plane changes.
	tiles  []*ebiten.Image
	pixels []byte
}

// NewRenderer creates a new renderer.
func NewRenderer() *Renderer {
	return &Renderer{theme: DefaultTheme()}
}

// gray maps a Q8.8 value to a display level: 0 sits mid-gray and the
// range [-2, 2] spans the full scale, clipped beyond.
func gray(v fixed.Q88) byte {
	g := 128 + int(v)/4
	if g < 0 {
		g = 0
	}
	if g > 255 {
		g = 255
	}
	return byte(g)
}

// DrawPlanes draws one tile per channel at (x, y), each plane scaled up to
// tile x tile pixels. Planes with fewer filled samples than the full extent
// still draw; unwritten positions read as their zero value.
func (r *Renderer) DrawPlanes(screen *ebiten.Image, shape stream.Shape, planes [][]fixed.Q88, x, y, tile, gap int) {
	if len(r.tiles) != len(planes) {
		r.tiles = make([]*ebiten.Image, len(planes))
	}
	for c, plane := range planes {
		if r.tiles[c] == nil {
			r.tiles[c] = ebiten.NewImage(shape.Width, shape.Height)
		}
		r.blit(r.tiles[c], shape, plane)

		tx := x + c*(tile+gap)
		op := &ebiten.DrawImageOptions{}
		op.GeoM.Scale(float64(tile)/float64(shape.Width), float64(tile)/float64(shape.Height))
		op.GeoM.Translate(float64(tx), float64(y))
		screen.DrawImage(r.tiles[c], op)

		vector.StrokeRect(screen, float32(tx), float32(y), float32(tile), float32(tile),
			1, r.theme.TileBorder, false)
	}
}

func (r *Renderer) blit(img *ebiten.Image, shape stream.Shape, plane []fixed.Q88) {
	n := shape.Width * shape.Height
	if cap(r.pixels) < 4*n {
		r.pixels = make([]byte, 4*n)
	}
	px := r.pixels[:4*n]
	for i := 0; i < n; i++ {
		var g byte
		if i < len(plane) {
			g = gray(plane[i])
		}
		px[4*i+0] = g
		px[4*i+1] = g
		px[4*i+2] = g
		px[4*i+3] = 255
	}
	img.WritePixels(px)
}

// DrawLabel draws a small caption.
func (r *Renderer) DrawLabel(screen *ebiten.Image, s string, x, y int, c color.RGBA) {
	face := GetRegularFace()
	if face == nil {
		return
	}
	op := &text.DrawOptions{}
	op.GeoM.Translate(float64(x), float64(y))
	op.ColorScale.ScaleWithColor(c)
	text.Draw(screen, s, face, op)
}

// DrawTitle draws a bold heading.
func (r *Renderer) DrawTitle(screen *ebiten.Image, s string, x, y int) {
	face := GetBoldFace()
	if face == nil {
		return
	}
	op := &text.DrawOptions{}
	op.GeoM.Translate(float64(x), float64(y))
	op.ColorScale.ScaleWithColor(r.theme.TitleColor)
	text.Draw(screen, s, face, op)
}

// Theme exposes the active theme.
func (r *Renderer) Theme() *Theme { return r.theme }
