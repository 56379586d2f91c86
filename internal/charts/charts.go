// Package charts renders run plots to PNG files.
package charts

import (
	"fmt"
	"io"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/imishinist/runboard/internal/store"
)

const (
	LossCurvesName = "loss_curves"

	width  = 10 * vg.Inch
	height = 6 * vg.Inch
)

// LossCurves builds a line chart with one line per named series, indexed by
// epoch starting at 1. It returns nil when no series has data.
func LossCurves(series map[string][]float64) (*plot.Plot, error) {
	names := make([]string, 0, len(series))
	for name, values := range series {
		if len(values) > 0 {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, nil
	}
	sort.Strings(names)

	p := plot.New()
	p.Title.Text = "Training Loss Curves"
	p.X.Label.Text = "Epoch"
	p.Y.Label.Text = "Loss"
	p.Add(plotter.NewGrid())

	for i, name := range names {
		// Diverged epochs (NaN or infinite loss) leave a gap in the line.
		values := series[name]
		pts := make(plotter.XYs, 0, len(values))
		for j, v := range values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			pts = append(pts, plotter.XY{X: float64(j + 1), Y: v})
		}
		if len(pts) == 0 {
			continue
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("failed to build line %s: %w", name, err)
		}
		line.Width = vg.Points(2)
		line.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(DisplayName(name), line)
	}
	return p, nil
}

// SavePNG renders p into <dir>/<name>.png atomically and returns the path.
func SavePNG(p *plot.Plot, dir, name string) (string, error) {
	path := filepath.Join(dir, name+".png")
	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}

	err = store.AtomicWrite(path, func(w io.Writer) error {
		_, err := wt.WriteTo(w)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to save plot %s: %w", path, err)
	}
	return path, nil
}

// IsIntermediate reports whether a plot file is a per-epoch snapshot such as
// loss_curves_epoch_3.png.
func IsIntermediate(name string) bool {
	return strings.Contains(name, "_epoch_")
}

// DisplayName turns "val_loss" into "Val Loss".
func DisplayName(name string) string {
	words := strings.Fields(strings.ReplaceAll(name, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}
