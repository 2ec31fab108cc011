// fit-plot renders stored vertex fits from a fits database as PNG plots:
// a transverse (x-y) scatter of fitted positions and a longitudinal (z)
// profile, both with reduced chi2 available for eyeballing fit quality.
package main

import (
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/vertexfit/internal/vertexdb"
)

var (
	dbFile    = flag.String("db", "vertex_fits.db", "Path to the SQLite database file")
	outputDir = flag.String("out", "plots", "Output directory for PNG files")
	limit     = flag.Int("limit", 500, "Maximum number of fits to plot (newest first)")
)

func main() {
	flag.Parse()

	db, err := vertexdb.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	fits, err := db.ListFits(*limit)
	if err != nil {
		log.Fatalf("failed to list fits: %v", err)
	}
	if len(fits) == 0 {
		log.Println("no fits to plot")
		return
	}

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("failed to create output dir: %v", err)
	}

	if err := plotTransverse(fits, filepath.Join(*outputDir, "vertices_xy.png")); err != nil {
		log.Fatalf("transverse plot: %v", err)
	}
	if err := plotLongitudinal(fits, filepath.Join(*outputDir, "vertices_z.png")); err != nil {
		log.Fatalf("longitudinal plot: %v", err)
	}

	log.Printf("wrote plots for %d fits to %s", len(fits), *outputDir)
}

// plotTransverse draws fitted x-y positions. Good fits (reduced chi2 < 3)
// plot in blue, the rest in red.
func plotTransverse(fits []vertexdb.FitSummary, path string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Fitted Vertices (%d fits)", len(fits))
	p.X.Label.Text = "x (mm)"
	p.Y.Label.Text = "y (mm)"

	good := make(plotter.XYs, 0, len(fits))
	poor := make(plotter.XYs, 0)
	for _, f := range fits {
		pt := plotter.XY{X: f.X, Y: f.Y}
		if f.NDF > 0 && f.Chi2/float64(f.NDF) < 3 {
			good = append(good, pt)
		} else {
			poor = append(poor, pt)
		}
	}

	if len(good) > 0 {
		s, err := plotter.NewScatter(good)
		if err != nil {
			return err
		}
		s.GlyphStyle.Color = color.RGBA{B: 200, A: 255}
		s.GlyphStyle.Radius = vg.Points(2)
		p.Add(s)
		p.Legend.Add("chi2/ndf < 3", s)
	}
	if len(poor) > 0 {
		s, err := plotter.NewScatter(poor)
		if err != nil {
			return err
		}
		s.GlyphStyle.Color = color.RGBA{R: 200, A: 255}
		s.GlyphStyle.Radius = vg.Points(2)
		p.Add(s)
		p.Legend.Add("chi2/ndf >= 3", s)
	}

	p.Legend.Top = true
	return p.Save(8*vg.Inch, 8*vg.Inch, path)
}

// plotLongitudinal draws fitted z against fit index, newest first.
func plotLongitudinal(fits []vertexdb.FitSummary, path string) error {
	p := plot.New()
	p.Title.Text = "Fitted Vertex z Positions"
	p.X.Label.Text = "Fit index (newest first)"
	p.Y.Label.Text = "z (mm)"

	pts := make(plotter.XYs, 0, len(fits))
	for i, f := range fits {
		pts = append(pts, plotter.XY{X: float64(i), Y: f.Z})
	}

	s, err := plotter.NewScatter(pts)
	if err != nil {
		return err
	}
	s.GlyphStyle.Color = color.RGBA{B: 200, A: 255}
	s.GlyphStyle.Radius = vg.Points(2)
	p.Add(s)

	return p.Save(14*vg.Inch, 6*vg.Inch, path)
}
