package render

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"

	"player-reid-go/internal/reid"
	"player-reid-go/internal/store"
	"player-reid-go/pkg/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	boxThickness = 2
	labelOffset  = 10
)

var boxColor = color.RGBA{0, 255, 0, 255}

// Annotator рисует рамки и идентификаторы игроков на кадрах
type Annotator struct {
	logger *logrus.Logger
}

// NewAnnotator создает новый аннотатор
func NewAnnotator(logger *logrus.Logger) *Annotator {
	return &Annotator{logger: logger}
}

// AnnotateStream рисует детекции на каждом кадре из indices и сохраняет
// кадры в outDir как frame_NNNNNN.jpg. Возвращает количество записанных кадров.
func (a *Annotator) AnnotateStream(ctx context.Context, frames reid.FrameSource, indices []int, detections []models.Detection, outDir string) (int, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", outDir, err)
	}

	byFrame := store.ByFrame(detections)
	written := 0
	for _, index := range indices {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		img, err := frames.Frame(ctx, index)
		if err != nil {
			return written, fmt.Errorf("failed to read frame %d: %w", index, err)
		}

		out := Annotate(img, byFrame[index])
		path := filepath.Join(outDir, fmt.Sprintf("frame_%06d.jpg", index))
		if err := writeJPEG(path, out); err != nil {
			return written, err
		}
		written++
	}

	a.logger.Infof("Сохранено %d размеченных кадров в %s", written, outDir)
	return written, nil
}

// Annotate возвращает копию кадра с рамками и подписями "ID:n".
// Детекции без идентификатора подписываются как ID:-1.
func Annotate(img image.Image, detections []models.Detection) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)

	for _, d := range detections {
		x1 := b.Min.X + int(d.BBox[0])
		y1 := b.Min.Y + int(d.BBox[1])
		x2 := b.Min.X + int(d.BBox[2])
		y2 := b.Min.Y + int(d.BBox[3])

		drawRect(dst, x1, y1, x2, y2, boxColor)
		drawLabel(dst, x1, y1-labelOffset, fmt.Sprintf("ID:%d", d.IdentityOr(-1)), boxColor)
	}
	return dst
}

func drawRect(img *image.RGBA, x1, y1, x2, y2 int, col color.Color) {
	bounds := img.Bounds()

	setPixel := func(x, y int) {
		if x >= bounds.Min.X && x < bounds.Max.X && y >= bounds.Min.Y && y < bounds.Max.Y {
			img.Set(x, y, col)
		}
	}

	for t := 0; t < boxThickness; t++ {
		for x := x1; x <= x2; x++ {
			setPixel(x, y1+t)
			setPixel(x, y2-t)
		}
		for y := y1; y <= y2; y++ {
			setPixel(x1+t, y)
			setPixel(x2-t, y)
		}
	}
}

// drawLabel пишет текст так, что базовая линия проходит через y
func drawLabel(img *image.RGBA, x, y int, label string, col color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(label)
}

func writeJPEG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 90}); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}
