// Package render draws chart query results as PNG images.
//
// It only consumes the plain values produced by the engine; scales, axes
// and path generation come from go-chart.
package render

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"healthatlas/internal/models"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// ErrNoData is returned when there is nothing to draw.
var ErrNoData = errors.New("no data to render")

// Surface is the drawing capability the HTTP layer hands query results to.
type Surface interface {
	Line(w io.Writer, cmp models.Comparison) error
	Bars(w io.Writer, b models.Breakdown) error
	Area(w io.Writer, d models.DeathRateComparison) error
}

var countryColors = map[string]drawing.Color{
	"AUS": drawing.ColorBlue,
	"CAN": drawing.ColorGreen,
	"GBR": drawing.ColorRed,
}

var fallbackColor = drawing.ColorFromHex("888888")

// CountryColor returns the fixed colour of a country's series.
func CountryColor(code string) drawing.Color {
	if c, ok := countryColors[code]; ok {
		return c
	}
	return fallbackColor
}

// PNG renders with go-chart's raster backend.
type PNG struct {
	Width  int
	Height int
}

var _ Surface = PNG{}

func NewPNG() PNG { return PNG{Width: 960, Height: 500} }

// Line draws one line per country. Each series only carries its own years,
// so a year one country lacks shows as a gap rather than a zero.
func (p PNG) Line(w io.Writer, cmp models.Comparison) error {
	var series []chart.Series
	for i, sr := range []models.Series{cmp.A, cmp.B} {
		if len(sr.Points) == 0 {
			continue
		}
		col := CountryColor(sr.Country)
		if i == 1 && sr.Country == cmp.A.Country {
			col = fallbackColor
		}
		xs := make([]float64, len(sr.Points))
		ys := make([]float64, len(sr.Points))
		for j, pt := range sr.Points {
			xs[j] = float64(pt.Year)
			ys[j] = pt.Value
		}
		series = append(series, chart.ContinuousSeries{
			Name:    sr.Country,
			XValues: xs,
			YValues: ys,
			Style:   chart.Style{StrokeColor: col, StrokeWidth: 2, DotColor: col, DotWidth: 3},
		})
	}
	if len(series) == 0 || len(cmp.Years) == 0 {
		return ErrNoData
	}

	xMin, xMax := float64(cmp.Years[0]), float64(cmp.Years[len(cmp.Years)-1])
	if xMin == xMax {
		xMin, xMax = xMin-1, xMax+1
	}

	graph := chart.Chart{
		Title:  fmt.Sprintf("%s: %s vs %s", cmp.Category, cmp.A.Country, cmp.B.Country),
		Width:  p.Width,
		Height: p.Height,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20},
		},
		XAxis: chart.XAxis{
			Name:           "Year",
			Range:          &chart.ContinuousRange{Min: xMin, Max: xMax},
			ValueFormatter: yearFormatter,
		},
		YAxis: chart.YAxis{
			Range:          &chart.ContinuousRange{Min: 0, Max: axisMax(cmp.MaxValue)},
			ValueFormatter: siFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}
	return graph.Render(chart.PNG, w)
}

// Bars draws the doctors and nurses values of one country and year.
func (p PNG) Bars(w io.Writer, b models.Breakdown) error {
	var bars []chart.Value
	var top float64
	add := func(label string, vals []float64, col drawing.Color) {
		for i, v := range vals {
			l := label
			if i > 0 {
				l = fmt.Sprintf("%s #%d", label, i+1)
			}
			bars = append(bars, chart.Value{
				Label: l,
				Value: v,
				Style: chart.Style{FillColor: col, StrokeColor: col},
			})
			top = max(top, v)
		}
	}
	add("Doctors", b.Doctors, drawing.ColorBlue)
	add("Nurses", b.Nurses, drawing.ColorGreen)
	if len(bars) == 0 {
		return ErrNoData
	}

	graph := chart.BarChart{
		Title:    fmt.Sprintf("%s %d", b.Country, b.Year),
		Width:    p.Width,
		Height:   p.Height,
		BarWidth: 80,
		Background: chart.Style{
			Padding: chart.Box{Top: 40},
		},
		YAxis: chart.YAxis{
			Range:          &chart.ContinuousRange{Min: 0, Max: axisMax(top)},
			ValueFormatter: siFormatter,
		},
		Bars: bars,
	}
	return graph.Render(chart.PNG, w)
}

// Area draws the rescaled death rate next to the workforce total as a
// filled two-point series.
func (p PNG) Area(w io.Writer, d models.DeathRateComparison) error {
	if len(d.Points) == 0 {
		return ErrNoData
	}
	col := CountryColor(d.Country)
	xs := make([]float64, len(d.Points))
	ys := make([]float64, len(d.Points))
	ticks := make([]chart.Tick, len(d.Points))
	var top float64
	for i, pt := range d.Points {
		xs[i] = float64(i)
		ys[i] = pt.Value
		ticks[i] = chart.Tick{Value: float64(i), Label: pt.Label}
		top = max(top, pt.Value)
	}

	graph := chart.Chart{
		Title:  fmt.Sprintf("%s %d", d.Country, d.Year),
		Width:  p.Width,
		Height: p.Height,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 20, Right: 40, Bottom: 20},
		},
		XAxis: chart.XAxis{
			Range: &chart.ContinuousRange{Min: -0.5, Max: float64(len(d.Points)) - 0.5},
			Ticks: ticks,
		},
		YAxis: chart.YAxis{
			Range:          &chart.ContinuousRange{Min: 0, Max: axisMax(top)},
			ValueFormatter: siFormatter,
		},
		Series: []chart.Series{chart.ContinuousSeries{
			Name:    d.Country,
			XValues: xs,
			YValues: ys,
			Style: chart.Style{
				StrokeColor: col,
				StrokeWidth: 2.5,
				FillColor:   col.WithAlpha(76),
				DotColor:    col,
				DotWidth:    5,
			},
		}},
	}
	return graph.Render(chart.PNG, w)
}

// axisMax pads the top of a value axis; a zero maximum still yields a
// drawable range.
func axisMax(v float64) float64 {
	if v <= 0 {
		return 1
	}
	return v * 1.1
}

func yearFormatter(v interface{}) string {
	if f, ok := v.(float64); ok {
		return strconv.Itoa(int(math.Round(f)))
	}
	return ""
}

// siFormatter abbreviates large values: 1500 -> 1.5k, 2300000 -> 2.3M.
func siFormatter(v interface{}) string {
	f, ok := v.(float64)
	if !ok {
		return ""
	}
	return FormatSI(f)
}

func FormatSI(f float64) string {
	abs := math.Abs(f)
	switch {
	case abs >= 1e9:
		return strconv.FormatFloat(math.Round(f/1e8)/10, 'f', -1, 64) + "G"
	case abs >= 1e6:
		return strconv.FormatFloat(math.Round(f/1e5)/10, 'f', -1, 64) + "M"
	case abs >= 1e3:
		return strconv.FormatFloat(math.Round(f/1e2)/10, 'f', -1, 64) + "k"
	default:
		return strconv.FormatFloat(math.Round(f*100)/100, 'f', -1, 64)
	}
}
