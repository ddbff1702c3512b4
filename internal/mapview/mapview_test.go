package mapview

import (
	"bytes"
	"image/png"
	"strings"
	"testing"

	"github.com/banshee-data/rangemap/internal/mapper"
	"github.com/banshee-data/rangemap/internal/sensor"
)

func sampleSnapshot() mapper.Snapshot {
	m := mapper.New(10, 8, mapper.WithOrigin(4, 4))
	m.UpdateMap([]sensor.Reading{{Distance: 3, Bearing: 0}, {Distance: 3, Bearing: 90}, {Distance: 2, Bearing: 180}})
	return m.Snapshot()
}

func TestOccupiedXYs(t *testing.T) {
	pts := occupiedXYs(sampleSnapshot())
	if len(pts) != 3 {
		t.Fatalf("got %d points, want 3", len(pts))
	}
	want := map[[2]float64]bool{{7.5, 4.5}: true, {4.5, 7.5}: true, {2.5, 4.5}: true}
	for _, p := range pts {
		if !want[[2]float64{p.X, p.Y}] {
			t.Errorf("unexpected point %+v", p)
		}
	}
}

func TestRenderPNG(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderPNG(&buf, sampleSnapshot()); err != nil {
		t.Fatalf("RenderPNG: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		t.Errorf("empty image bounds %v", b)
	}
}

func TestRenderPNG_EmptyMap(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderPNG(&buf, mapper.New(3, 3).Snapshot()); err != nil {
		t.Fatalf("RenderPNG empty: %v", err)
	}
	if buf.Len() == 0 {
		t.Error("no image written")
	}
}

func TestRenderHTML(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderHTML(&buf, sampleSnapshot()); err != nil {
		t.Fatalf("RenderHTML: %v", err)
	}
	html := buf.String()
	for _, want := range []string{"<html", "Occupancy map", "occupied=3", "robot", `"type":"scatter"`} {
		if !strings.Contains(html, want) {
			t.Errorf("HTML missing %q", want)
		}
	}
	if strings.Contains(html, "heatmap") {
		t.Error("map should render as a scatter of cells, not a heatmap")
	}
}
