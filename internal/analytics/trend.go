package analytics

import (
	"sort"
	"time"

	"github.com/talent-forge/collab-server/internal/models"
)

// invertedModules marks metrics where a higher value is semantically
// worse, so "up" always reads as improving on the dashboard.
var invertedModules = map[models.AnalyticsModule]bool{
	models.ModuleTurnoverRisk: true,
}

type trendPoint struct {
	at    time.Time
	value float64
}

// classifyTrend compares the mean of the newer half of a time-ordered
// series against the older half. Fewer than two points is stable; a
// difference within threshold is stable; otherwise the direction of the
// difference, flipped for higher-is-worse metrics.
func classifyTrend(points []trendPoint, threshold float64, inverted bool) models.Trend {
	if len(points) < 2 {
		return models.TrendStable
	}

	sorted := make([]trendPoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].at.Before(sorted[j].at)
	})

	mid := len(sorted) / 2
	older := sorted[:mid]
	newer := sorted[mid:]

	diff := mean(newer) - mean(older)

	if diff > -threshold && diff < threshold {
		return models.TrendStable
	}

	rising := diff > 0
	if inverted {
		rising = !rising
	}

	if rising {
		return models.TrendUp
	}
	return models.TrendDown
}

func mean(points []trendPoint) float64 {
	if len(points) == 0 {
		return 0
	}

	var sum float64
	for _, p := range points {
		sum += p.value
	}
	return sum / float64(len(points))
}
