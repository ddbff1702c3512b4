// Package mapview renders map snapshots as images and interactive charts.
package mapview

import (
	"bytes"
	"fmt"
	"image/color"
	"io"

	"github.com/banshee-data/rangemap/internal/grid"
	"github.com/banshee-data/rangemap/internal/mapper"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// PNGSize is the edge length of images produced by RenderPNG.
const PNGSize = 6 * vg.Inch

// occupiedXYs returns the centre of every occupied cell.
func occupiedXYs(snap mapper.Snapshot) plotter.XYs {
	pts := make(plotter.XYs, 0, snap.Occupied)
	for row, cells := range snap.Rows {
		for col, c := range cells {
			if c == grid.Occupied {
				pts = append(pts, plotter.XY{X: float64(col) + 0.5, Y: float64(row) + 0.5})
			}
		}
	}
	return pts
}

// RenderPNG draws occupied cells as squares and the origin as a red dot.
func RenderPNG(w io.Writer, snap mapper.Snapshot) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Occupancy %dx%d (%d occupied)", snap.Width, snap.Height, snap.Occupied)
	p.X.Label.Text = "column"
	p.Y.Label.Text = "row"
	p.X.Min, p.X.Max = 0, float64(snap.Width)
	p.Y.Min, p.Y.Max = 0, float64(snap.Height)
	p.Add(plotter.NewGrid())

	if pts := occupiedXYs(snap); len(pts) > 0 {
		cells, err := plotter.NewScatter(pts)
		if err != nil {
			return fmt.Errorf("occupied scatter: %w", err)
		}
		cells.GlyphStyle.Shape = draw.BoxGlyph{}
		cells.GlyphStyle.Radius = vg.Points(3)
		cells.GlyphStyle.Color = color.Black
		p.Add(cells)
		p.Legend.Add("occupied", cells)
	}

	origin, err := plotter.NewScatter(plotter.XYs{{X: float64(snap.OriginX) + 0.5, Y: float64(snap.OriginY) + 0.5}})
	if err != nil {
		return fmt.Errorf("origin scatter: %w", err)
	}
	origin.GlyphStyle.Shape = draw.CircleGlyph{}
	origin.GlyphStyle.Radius = vg.Points(4)
	origin.GlyphStyle.Color = color.RGBA{R: 220, A: 255}
	p.Add(origin)
	p.Legend.Add("robot", origin)

	wt, err := p.WriterTo(PNGSize, PNGSize, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// RenderHTML writes a standalone go-echarts page plotting the snapshot.
func RenderHTML(w io.Writer, snap mapper.Snapshot) error {
	pts := occupiedXYs(snap)
	data := make([]opts.ScatterData, 0, len(pts))
	for _, pt := range pts {
		data = append(data, opts.ScatterData{Value: []interface{}{pt.X, pt.Y}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Occupancy map", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Occupancy map", Subtitle: fmt.Sprintf("%dx%d occupied=%d origin=(%d,%d)", snap.Width, snap.Height, snap.Occupied, snap.OriginX, snap.OriginY)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: snap.Width, Name: "column", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: snap.Height, Name: "row", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("occupied", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}))
	scatter.AddSeries("robot", []opts.ScatterData{
		{Value: []interface{}{float64(snap.OriginX) + 0.5, float64(snap.OriginY) + 0.5}, Symbol: "triangle", SymbolSize: 16},
	})

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}
