// ChestNet viewer - watch the bottleneck pipeline fill, cycle by cycle.
package main

import (
	"log"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/elsadiq7/chestnet/internal/ui"
)

func main() {
	game := ui.NewGame()
	defer game.Close()

	ebiten.SetWindowSize(ui.ScreenWidth, ui.ScreenHeight)
	ebiten.SetWindowTitle("ChestNet")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)

	if err := ebiten.RunGame(game); err != nil {
		log.Fatal(err)
	}
}
