// Command trajectory-report renders a recorded run from the navigation
// database into a standalone HTML report: the driven trajectory and the
// speed profile over time.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/duckietown/duckietown-intnav/internal/navdb"
	"github.com/duckietown/duckietown-intnav/internal/units"
)

var (
	dbFile     = flag.String("db", "intnav.db", "Path to the run database")
	runID      = flag.String("run", "", "Run id to render (defaults to the most recent run)")
	outFile    = flag.String("out", "trajectory-report.html", "Output HTML file")
	speedUnits = flag.String("units", units.MPS, "Speed units for the profile (mps, cmps, kmph)")
	listRuns   = flag.Bool("list", false, "List recorded runs and exit")
)

func main() {
	flag.Parse()

	if !units.IsValidSpeedUnit(*speedUnits) {
		log.Fatalf("invalid units %q, expected one of: %s", *speedUnits, units.ValidSpeedUnitsString())
	}

	db, err := navdb.Open(*dbFile)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	runs, err := db.Runs()
	if err != nil {
		log.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) == 0 {
		log.Fatal("no recorded runs")
	}

	if *listRuns {
		for _, r := range runs {
			end := "running"
			if r.EndedAt.Valid {
				end = r.EndedAt.Time.Format("2006-01-02 15:04:05")
			}
			fmt.Printf("%s  started %s  ended %s  estimates=%d commands=%d anomalies=%d\n",
				r.RunID, r.StartedAt.Format("2006-01-02 15:04:05"), end,
				r.Estimates, r.Commands, r.Anomalies)
		}
		return
	}

	target := *runID
	if target == "" {
		target = runs[0].RunID
	}

	trail, err := db.Trail(target, 0)
	if err != nil {
		log.Fatalf("failed to load trail: %v", err)
	}
	if len(trail) == 0 {
		log.Fatalf("run %s has no estimates", target)
	}

	page := components.NewPage()
	page.SetPageTitle("Trajectory Report")
	page.AddCharts(trajectoryChart(target, trail), speedChart(target, trail, *speedUnits))

	f, err := os.Create(*outFile)
	if err != nil {
		log.Fatalf("failed to create output file: %v", err)
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		log.Fatalf("failed to render report: %v", err)
	}
	log.Printf("wrote %s (%d estimates from run %s)", *outFile, len(trail), target)
}

func trajectoryChart(runID string, trail []navdb.TrailPoint) *charts.Scatter {
	data := make([]opts.ScatterData, 0, len(trail))
	start := trail[0].Stamp
	for _, p := range trail {
		elapsed := p.Stamp.Sub(start).Seconds()
		data = append(data, opts.ScatterData{Value: []interface{}{p.X, p.Y, elapsed}})
	}
	maxElapsed := trail[len(trail)-1].Stamp.Sub(start).Seconds()
	if maxElapsed == 0 {
		maxElapsed = 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "800px", Height: "800px"}),
		charts.WithTitleOpts(opts.Title{Title: "Trajectory", Subtitle: fmt.Sprintf("run=%s points=%d", runID, len(data))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
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
	return scatter
}

func speedChart(runID string, trail []navdb.TrailPoint, speedUnit string) *charts.Line {
	start := trail[0].Stamp
	xAxis := make([]string, 0, len(trail))
	linear := make([]opts.LineData, 0, len(trail))
	for _, p := range trail {
		xAxis = append(xAxis, fmt.Sprintf("%.1f", p.Stamp.Sub(start).Seconds()))
		linear = append(linear, opts.LineData{Value: units.ConvertSpeed(p.Linear, speedUnit)})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "800px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: "Speed Profile", Subtitle: fmt.Sprintf("run=%s units=%s", runID, speedUnit)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: fmt.Sprintf("speed (%s)", speedUnit)}),
	)
	line.SetXAxis(xAxis)
	line.AddSeries("linear", linear, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))
	return line
}
