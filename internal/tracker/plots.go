package tracker

import (
	"fmt"

	"gonum.org/v1/plot"

	"github.com/imishinist/runboard/internal/charts"
)

// SaveLossPlot renders loss curves into plots/loss_curves.png. With epoch > 0
// a loss_curves_epoch_<n>.png snapshot is written too. Empty series are a no-op.
func (r *Run) SaveLossPlot(series map[string][]float64, epoch int) error {
	p, err := charts.LossCurves(series)
	if err != nil {
		return err
	}
	if p == nil {
		return nil
	}

	if epoch > 0 {
		if _, err := charts.SavePNG(p, r.Dirs.Plots, fmt.Sprintf("%s_epoch_%d", charts.LossCurvesName, epoch)); err != nil {
			return err
		}
	}
	if _, err := charts.SavePNG(p, r.Dirs.Plots, charts.LossCurvesName); err != nil {
		return err
	}

	fmt.Fprintf(r.out, "PLOT_SAVED | Loss curves saved to %s\n", r.Dirs.Plots)
	return nil
}

// SaveCustomPlot writes a caller-built chart to plots/<name>.png. The title
// is applied when the chart has none.
func (r *Run) SaveCustomPlot(p *plot.Plot, name, title string) error {
	if title == "" {
		title = "Custom Plot"
	}
	if p.Title.Text == "" {
		p.Title.Text = title
	}

	path, err := charts.SavePNG(p, r.Dirs.Plots, name)
	if err != nil {
		return err
	}

	fmt.Fprintf(r.out, "PLOT_SAVED | %s saved to %s\n", title, path)
	return nil
}
