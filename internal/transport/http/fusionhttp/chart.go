package fusionhttp

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/WilliamsMiao/Quant-Banana/internal/fusion"
	"github.com/WilliamsMiao/Quant-Banana/internal/logger"
	"github.com/WilliamsMiao/Quant-Banana/internal/performance"
)

const (
	colorStrategy = "#3b82f6"
	colorAI       = "#f472b6"
)

// handleWeightChart renders the source weight history as an HTML line chart.
func (r *Router) handleWeightChart(c *gin.Context) {
	if r.cfg.Tracker == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "performance tracker unavailable"})
		return
	}
	history := r.cfg.Tracker.WeightHistory()
	line := buildWeightLine(history)

	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := line.Render(c.Writer); err != nil {
		logger.Errorf("[api] weight chart render failed ip=%s err=%v", c.ClientIP(), err)
	}
}

func buildWeightLine(history []performance.WeightPoint) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Width:  "1200px",
			Height: "480px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Source weights",
			Subtitle: "fusion weight evolution per recompute cycle",
			Left:     "left",
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1}),
	)
	line.SetSeriesOptions(
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)

	xAxis := make([]string, 0, len(history))
	series := map[fusion.Source][]opts.LineData{}
	for _, point := range history {
		xAxis = append(xAxis, point.At.Format("01-02 15:04"))
		for src, w := range point.Weights {
			series[src] = append(series[src], opts.LineData{Value: w})
		}
	}
	line.SetXAxis(xAxis)

	sources := make([]fusion.Source, 0, len(series))
	for src := range series {
		sources = append(sources, src)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })
	for _, src := range sources {
		color := colorAI
		if src == fusion.SourceStrategy {
			color = colorStrategy
		}
		line.AddSeries(string(src), series[src],
			charts.WithLineStyleOpts(opts.LineStyle{Color: color, Width: 2}))
	}
	return line
}
