package navmon

import (
	"bytes"
	"fmt"
	"math"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// handleTrajectory renders the pose trail as an interactive scatter plot
// (HTML) using go-echarts. This is a debugging-only endpoint. Query params:
//
//	run_id (optional; defaults to the live trail)
//	limit (optional; caps recorded rows)
func (ws *WebServer) handleTrajectory(w http.ResponseWriter, r *http.Request) {
	points, source, err := ws.trailPoints(r)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(points) == 0 {
		ws.writeJSONError(w, http.StatusNotFound, "no trajectory points available")
		return
	}

	data := make([]opts.ScatterData, 0, len(points))
	maxAbs := 0.0
	start := points[0].Stamp
	for _, p := range points {
		if math.Abs(p.X) > maxAbs {
			maxAbs = math.Abs(p.X)
		}
		if math.Abs(p.Y) > maxAbs {
			maxAbs = math.Abs(p.Y)
		}
		elapsed := p.Stamp.Sub(start).Seconds()
		data = append(data, opts.ScatterData{Value: []interface{}{p.X, p.Y, elapsed}})
	}

	var pathData []opts.ScatterData
	if ws.loop != nil {
		for _, wp := range ws.loop.Path().Waypoints {
			if math.Abs(wp.X) > maxAbs {
				maxAbs = math.Abs(wp.X)
			}
			if math.Abs(wp.Y) > maxAbs {
				maxAbs = math.Abs(wp.Y)
			}
			pathData = append(pathData, opts.ScatterData{
				Value:      []interface{}{wp.X, wp.Y, 0.0},
				Symbol:     "diamond",
				SymbolSize: 10,
			})
		}
	}

	// Square plot with symmetric axes so the geometry is not distorted.
	pad := maxAbs * 1.05
	if pad == 0 {
		pad = 1.0
	}
	maxElapsed := points[len(points)-1].Stamp.Sub(start).Seconds()
	if maxElapsed == 0 {
		maxElapsed = 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Trajectory", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Estimated Trajectory", Subtitle: fmt.Sprintf("source=%s points=%d", source, len(data))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxElapsed),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#31688e", "#35b779", "#fde725"}},
		}),
	)
	scatter.AddSeries("trajectory", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	if len(pathData) > 0 {
		scatter.AddSeries("path", pathData)
	}

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
