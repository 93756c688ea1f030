package server

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/claude/posereps/internal/models"
)

const (
	goodRepColor  = "#2e7d32"
	badRepColor   = "#c62828"
	goodSpanColor = "#81c784"
	badSpanColor  = "#e57373"
)

func (s *Server) handleSessionChart(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := renderSessionChart(&buf, rec); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": fmt.Sprintf("render error: %v", err)})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// renderSessionChart draws rep duration and range of motion per rep, colouring
// each bar by its verdict.
func renderSessionChart(w io.Writer, rec *models.SessionRecord) error {
	sum := rec.Summary
	labels := make([]string, 0, len(rec.Reps))
	durations := make([]opts.BarData, 0, len(rec.Reps))
	spans := make([]opts.BarData, 0, len(rec.Reps))
	for _, rep := range rec.Reps {
		color, spanColor := badRepColor, badSpanColor
		if rep.Good {
			color, spanColor = goodRepColor, goodSpanColor
		}
		labels = append(labels, "#"+strconv.Itoa(rep.Number))
		durations = append(durations, opts.BarData{
			Name:      rep.Feedback,
			Value:     rep.Duration.Seconds(),
			ItemStyle: &opts.ItemStyle{Color: color},
		})
		spans = append(spans, opts.BarData{
			Name:      rep.Feedback,
			Value:     rep.Metrics.ROMSpan,
			ItemStyle: &opts.ItemStyle{Color: spanColor},
		})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Session " + sum.SessionID.String(),
			Width:     "100%",
			Height:    "600px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title: fmt.Sprintf("%s: %d/%d good reps (score %.0f)", sum.ExerciseID, sum.GoodReps, sum.TotalReps, sum.Score),
			Subtitle: fmt.Sprintf("patient=%s started=%s ended=%s cause=%s",
				sum.PatientID, sum.StartedAt.Format(time.RFC3339), sum.EndedAt.Format(time.RFC3339), sum.EndCause),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
	)
	bar.SetXAxis(labels).
		AddSeries("Duration (s)", durations,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		).
		AddSeries("Range of motion", spans)

	return bar.Render(w)
}
