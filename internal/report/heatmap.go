package report

import (
	"fmt"
	"os"
	"path/filepath"

	"player-reid-go/internal/reid"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// similarityGrid адаптирует матрицу сходства к plotter.GridXYZ.
// Столбцы - идентификаторы камеры трансляции, строки - тактической камеры.
type similarityGrid struct {
	res *reid.Resolution
}

func (g similarityGrid) Dims() (c, r int) {
	r, c = g.res.Similarity.Dims()
	return c, r
}

func (g similarityGrid) Z(c, r int) float64 { return g.res.Similarity.At(r, c) }
func (g similarityGrid) X(c int) float64    { return float64(c) }
func (g similarityGrid) Y(r int) float64    { return float64(r) }

// WriteHeatMap сохраняет тепловую карту косинусного сходства |B| x |A|.
// Формат определяется расширением path (png, svg, pdf).
func WriteHeatMap(path string, res *reid.Resolution) error {
	if res == nil || res.Similarity == nil {
		return fmt.Errorf("no similarity matrix to plot")
	}
	rows, cols := res.Similarity.Dims()

	p := plot.New()
	p.Title.Text = "Cross-camera cosine similarity"
	p.X.Label.Text = "broadcast identity index"
	p.Y.Label.Text = "tacticam identity index"

	h := plotter.NewHeatMap(similarityGrid{res: res}, palette.Heat(16, 1))
	h.Min, h.Max = -1, 1
	p.Add(h)

	// Отмечаем выбранное соответствие в каждой строке
	best := make(plotter.XYs, 0, rows)
	colIndex := make(map[int]int, cols)
	for j, id := range res.AIDs {
		colIndex[id] = j
	}
	for i, m := range res.Matches {
		best = append(best, plotter.XY{X: float64(colIndex[m.AIdentity]), Y: float64(i)})
	}
	scatter, err := plotter.NewScatter(best)
	if err != nil {
		return fmt.Errorf("failed to build match markers: %w", err)
	}
	p.Add(scatter)

	width := vg.Length(cols)*vg.Centimeter + 6*vg.Centimeter
	height := vg.Length(rows)*vg.Centimeter + 4*vg.Centimeter

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	if err := p.Save(width, height, path); err != nil {
		return fmt.Errorf("failed to save heat map: %w", err)
	}
	return nil
}
