package report

import (
	"fmt"
	"io"
	"math"

	"github.com/jung-kurt/gofpdf"

	"github.com/skylane-labs/hubgraph/engine/domain"
	"github.com/skylane-labs/hubgraph/pkg/fn"
)

// Page geometry, landscape A4 in mm.
const (
	pageW, pageH = 297.0, 210.0
	marginL      = 30.0
	marginT      = 30.0
	plotW        = pageW - 2*marginL
	plotH        = pageH - 2*marginT - 10
	histBins     = 12
	topN         = 10
)

// frame maps data coordinates onto a rectangle of the page. The data origin
// is bottom-left.
type frame struct {
	*gofpdf.Fpdf
	u0, v0, w, h           float64
	minX, maxX, minY, maxY float64
}

func newFrame(pdf *gofpdf.Fpdf, minX, maxX, minY, maxY float64) frame {
	if maxX <= minX {
		minX, maxX = minX-1, minX+1
	}
	if maxY <= minY {
		minY, maxY = minY-1, minY+1
	}
	return frame{Fpdf: pdf, u0: marginL, v0: marginT, w: plotW, h: plotH,
		minX: minX, maxX: maxX, minY: minY, maxY: maxY}
}

func (f frame) U(x float64) float64 { return f.u0 + (x-f.minX)/(f.maxX-f.minX)*f.w }
func (f frame) V(y float64) float64 { return f.v0 + f.h - (y-f.minY)/(f.maxY-f.minY)*f.h }

// axes draws the frame border, horizontal gridlines and five ticks per axis.
func (f frame) axes(xLabel, yLabel, xFmt, yFmt string) {
	f.SetDrawColor(60, 60, 60)
	f.SetLineWidth(0.3)
	f.Line(f.u0, f.v0+f.h, f.u0+f.w, f.v0+f.h)
	f.Line(f.u0, f.v0, f.u0, f.v0+f.h)

	f.SetFont("Helvetica", "", 8)
	f.SetDrawColor(220, 220, 220)
	f.SetLineWidth(0.1)
	for i := 0; i <= 4; i++ {
		y := f.minY + float64(i)/4*(f.maxY-f.minY)
		v := f.V(y)
		if i > 0 {
			f.Line(f.u0, v, f.u0+f.w, v)
		}
		label := fmt.Sprintf(yFmt, y)
		f.Text(f.u0-2-f.GetStringWidth(label), v+1, label)
	}
	if xFmt != "" {
		for i := 0; i <= 4; i++ {
			x := f.minX + float64(i)/4*(f.maxX-f.minX)
			label := fmt.Sprintf(xFmt, x)
			f.Text(f.U(x)-f.GetStringWidth(label)/2, f.v0+f.h+5, label)
		}
	}
	f.SetFont("Helvetica", "", 10)
	f.Text(f.u0+f.w/2-f.GetStringWidth(xLabel)/2, f.v0+f.h+12, xLabel)
	f.Text(f.u0, f.v0-4, yLabel)
}

func title(pdf *gofpdf.Fpdf, s string) {
	pdf.SetFont("Helvetica", "B", 14)
	pdf.SetTextColor(0, 0, 0)
	pdf.Text(marginL, 15, s)
}

func noData(pdf *gofpdf.Fpdf) {
	pdf.SetFont("Helvetica", "I", 11)
	pdf.Text(marginL, marginT+10, "No data.")
}

// WriteCharts renders four pages: ATC delay histogram, top hub scores,
// passengers vs delay and flights vs delay.
func WriteCharts(w io.Writer, ds Dataset, ranking []AirportRow) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetTitle("hubgraph report", false)
	pdf.SetCreator("hubgraph", false)

	delay := fn.Map(ds.Delay, func(r domain.DelayRecord) float64 { return r.AvgATCDelay })
	histogram(pdf, "Average ATC delay per airport", "minutes", delay)
	bars(pdf, fmt.Sprintf("Top %d hub potential scores", topN), ranking)
	scatter(pdf, "Annual passengers vs average ATC delay", "passengers (millions)", "ATC delay (min)",
		fn.Map(ds.Delay, func(r domain.DelayRecord) float64 { return float64(r.Passengers) / 1e6 }), delay)
	scatter(pdf, "Annual flights vs average ATC delay", "flights (thousands)", "ATC delay (min)",
		fn.Map(ds.Delay, func(r domain.DelayRecord) float64 { return float64(r.Flights) / 1e3 }), delay)

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("report: charts: %w", err)
	}
	return nil
}

func histogram(pdf *gofpdf.Fpdf, name, xLabel string, xs []float64) {
	pdf.AddPage()
	title(pdf, name)
	if len(xs) == 0 {
		noData(pdf)
		return
	}
	lo, hi := minMax(xs)
	if hi == lo {
		hi = lo + 1
	}
	width := (hi - lo) / histBins
	counts := make([]int, histBins)
	for _, x := range xs {
		i := min(int((x-lo)/width), histBins-1)
		counts[i]++
	}
	peak := 0
	for _, c := range counts {
		peak = max(peak, c)
	}
	f := newFrame(pdf, lo, hi, 0, float64(peak))
	f.axes(xLabel, "airports", "%.1f", "%.0f")
	pdf.SetFillColor(70, 130, 180)
	pdf.SetDrawColor(255, 255, 255)
	for i, c := range counts {
		if c == 0 {
			continue
		}
		x0 := lo + float64(i)*width
		u, v := f.U(x0), f.V(float64(c))
		pdf.Rect(u, v, f.U(x0+width)-u, f.V(0)-v, "FD")
	}
}

func bars(pdf *gofpdf.Fpdf, name string, ranking []AirportRow) {
	pdf.AddPage()
	title(pdf, name)
	top := ranking[:min(topN, len(ranking))]
	if len(top) == 0 {
		noData(pdf)
		return
	}
	peak := 0.0
	for _, a := range top {
		peak = math.Max(peak, a.HubScore)
	}
	f := newFrame(pdf, 0, float64(len(top)), 0, peak)
	f.axes("airport", "hub potential score", "", "%.2f")
	slot := f.w / float64(len(top))
	pdf.SetFont("Helvetica", "", 9)
	for i, a := range top {
		if a.Potential {
			pdf.SetFillColor(214, 96, 77)
		} else {
			pdf.SetFillColor(70, 130, 180)
		}
		u, v := f.U(float64(i))+slot*0.15, f.V(a.HubScore)
		pdf.Rect(u, v, slot*0.7, f.V(0)-v, "F")
		pdf.Text(u+slot*0.35-pdf.GetStringWidth(a.Code)/2, f.V(0)+5, a.Code)
	}
}

func scatter(pdf *gofpdf.Fpdf, name, xLabel, yLabel string, xs, ys []float64) {
	pdf.AddPage()
	title(pdf, name)
	n := min(len(xs), len(ys))
	if n == 0 {
		noData(pdf)
		return
	}
	minX, maxX := minMax(xs[:n])
	minY, maxY := minMax(ys[:n])
	f := newFrame(pdf, minX, maxX, math.Min(0, minY), maxY)
	f.axes(xLabel, yLabel, "%.1f", "%.1f")
	pdf.SetFillColor(70, 130, 180)
	for i := 0; i < n; i++ {
		pdf.Circle(f.U(xs[i]), f.V(ys[i]), 1.2, "F")
	}
	if c := Correlate(xLabel, yLabel, xs[:n], ys[:n]); !math.IsNaN(c.Pearson) {
		pdf.SetFont("Helvetica", "", 9)
		pdf.Text(f.u0+f.w-45, f.v0+4, fmt.Sprintf("Pearson r = %.2f (p = %.3f)", c.Pearson, c.PearsonP))
	}
}

func minMax(xs []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, x := range xs {
		lo, hi = math.Min(lo, x), math.Max(hi, x)
	}
	return lo, hi
}
