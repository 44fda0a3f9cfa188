// Package charts renders aggregate expense statistics as PNG images.
package charts

import (
	"bytes"
	"fmt"

	"github.com/wcharczuk/go-chart/v2"

	"pocketledger/internal/core"
)

type Renderer struct{}

func NewRenderer() *Renderer {
	return &Renderer{}
}

// CategoryBreakdown renders a pie chart of spending per category.
// Categories below 1% of the total are dropped to keep labels legible.
// Returns nil when there is nothing to draw.
func (r *Renderer) CategoryBreakdown(stats core.Stats) ([]byte, error) {
	if len(stats.ByCategory) == 0 || stats.Total.Cents == 0 {
		return nil, nil
	}

	total := stats.Total.Float()
	values := make([]chart.Value, 0, len(stats.ByCategory))
	for _, c := range stats.ByCategory {
		amount := c.Amount.Float()
		percentage := amount / total * 100
		if percentage <= 1.0 {
			continue
		}
		values = append(values, chart.Value{
			Label: fmt.Sprintf("%s: %s (%.1f%%)", c.Category, c.Amount, percentage),
			Value: amount,
		})
	}
	if len(values) == 0 {
		return nil, nil
	}

	pie := chart.PieChart{
		Title:  "Spending by category",
		Width:  800,
		Height: 800,
		Values: values,
		Background: chart.Style{
			Padding: chart.Box{
				Top:    50,
				Left:   50,
				Right:  50,
				Bottom: 50,
			},
			FillColor: chart.ColorWhite,
		},
	}

	buffer := bytes.NewBuffer([]byte{})
	if err := pie.Render(chart.PNG, buffer); err != nil {
		return nil, fmt.Errorf("render category breakdown: %w", err)
	}
	return buffer.Bytes(), nil
}

// MonthlySpending renders a bar chart of total spending per month,
// oldest month on the left. Returns nil when there is nothing to draw.
func (r *Renderer) MonthlySpending(stats core.Stats) ([]byte, error) {
	if len(stats.ByMonth) == 0 {
		return nil, nil
	}

	// ByMonth arrives most recent first; bars read left to right.
	bars := make([]chart.Value, 0, len(stats.ByMonth))
	for i := len(stats.ByMonth) - 1; i >= 0; i-- {
		m := stats.ByMonth[i]
		bars = append(bars, chart.Value{
			Label: m.Month,
			Value: m.Amount.Float(),
			Style: chart.Style{
				StrokeColor: chart.ColorBlue,
				FillColor:   chart.ColorBlue.WithAlpha(180),
			},
		})
	}

	graph := chart.BarChart{
		Title:    "Monthly spending",
		Width:    1200,
		Height:   600,
		BarWidth: 60,
		Background: chart.Style{
			Padding: chart.Box{
				Top:    50,
				Left:   50,
				Right:  50,
				Bottom: 50,
			},
			FillColor: chart.ColorWhite,
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				return fmt.Sprintf("%.2f", v.(float64))
			},
		},
		Bars: bars,
	}

	buffer := bytes.NewBuffer([]byte{})
	if err := graph.Render(chart.PNG, buffer); err != nil {
		return nil, fmt.Errorf("render monthly spending: %w", err)
	}
	return buffer.Bytes(), nil
}
