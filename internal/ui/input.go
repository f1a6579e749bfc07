package ui

import (
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

// handleInput processes the viewer's keyboard controls.
func (g *Game) handleInput() {
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		g.paused = !g.paused
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyN) {
		g.seed++
		g.restart()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowUp) {
		g.speed *= 2
		if g.speed > 4096 {
			g.speed = 4096
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowDown) {
		g.speed /= 2
		if g.speed < 1 {
			g.speed = 1
		}
	}
}
