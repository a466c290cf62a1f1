package navmon

import (
	"fmt"
	"image/color"
	"io"
	"net/http"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/duckietown/duckietown-intnav/internal/monitoring"
	"github.com/duckietown/duckietown-intnav/internal/nav/pipeline"
)

// handleTrajectoryPNG renders the pose trail as a static PNG. Same query
// params as the echarts view.
func (ws *WebServer) handleTrajectoryPNG(w http.ResponseWriter, r *http.Request) {
	points, source, err := ws.trailPoints(r)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(points) == 0 {
		ws.writeJSONError(w, http.StatusNotFound, "no trajectory points available")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if err := renderTrajectoryPNG(w, points, source); err != nil {
		monitoring.Logf("navmon: trajectory png: %v", err)
	}
}

// renderTrajectoryPNG draws the trail as a connected line with start and
// end markers.
func renderTrajectoryPNG(w io.Writer, points []pipeline.TrailPoint, source string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Estimated Trajectory (%s)", source)
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"
	p.Add(plotter.NewGrid())

	xys := make(plotter.XYs, len(points))
	for i, pt := range points {
		xys[i].X = pt.X
		xys[i].Y = pt.Y
	}

	line, err := plotter.NewLine(xys)
	if err != nil {
		return fmt.Errorf("trajectory line: %w", err)
	}
	line.Width = vg.Points(1)
	line.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	p.Add(line)

	ends, err := plotter.NewScatter(plotter.XYs{xys[0], xys[len(xys)-1]})
	if err != nil {
		return fmt.Errorf("trajectory markers: %w", err)
	}
	ends.GlyphStyle.Radius = vg.Points(3)
	ends.GlyphStyle.Color = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	p.Add(ends)

	wt, err := p.WriterTo(8*vg.Inch, 8*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("trajectory render: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("trajectory write: %w", err)
	}
	return nil
}
