package ml

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/solterm/trading-core/pkg/types"
)

// ZScoreDetector flags returns and volumes that sit far outside the series'
// own distribution.
type ZScoreDetector struct {
	logger *zap.Logger

	// Z thresholds. Moves beyond severeZ are reported as high severity.
	warnZ   float64
	severeZ float64
}

func NewZScoreDetector(logger *zap.Logger) *ZScoreDetector {
	return &ZScoreDetector{
		logger:  logger.Named("anomaly"),
		warnZ:   2.5,
		severeZ: 4,
	}
}

func (d *ZScoreDetector) Detect(ctx context.Context, symbol string, history []types.HistoricalPoint) (*AnomalyReport, error) {
	if len(history) < 10 {
		return nil, fmt.Errorf("need at least 10 points, got %d", len(history))
	}

	report := &AnomalyReport{Symbol: symbol, GeneratedAt: time.Now().UTC()}

	rets := returns(history)
	if len(rets) > 2 {
		m, sd := mean(rets[:len(rets)-1]), stddev(rets[:len(rets)-1])
		last := rets[len(rets)-1]
		if sd > 0 {
			z := math.Abs(last-m) / sd
			if z >= d.warnZ {
				report.Anomalies = append(report.Anomalies, Anomaly{
					Type:        "price_spike",
					Severity:    d.severity(z),
					Description: fmt.Sprintf("last return %.2f%% is %.1f sigma from the mean", last*100, z),
					Value:       z,
					Threshold:   d.warnZ,
				})
			}
		} else if last != m {
			// Any move off a perfectly flat return series has no finite
			// z-score but is still a spike.
			report.Anomalies = append(report.Anomalies, Anomaly{
				Type:        "price_spike",
				Severity:    "high",
				Description: fmt.Sprintf("return %.2f%% broke a flat baseline", last*100),
				Value:       math.Abs(last - m),
				Threshold:   d.warnZ,
			})
		}
	}

	vols := make([]float64, len(history))
	for i, h := range history {
		vols[i] = h.Volume
	}
	m, sd := mean(vols[:len(vols)-1]), stddev(vols[:len(vols)-1])
	last := vols[len(vols)-1]
	if sd > 0 {
		z := (last - m) / sd
		if z >= d.warnZ {
			report.Anomalies = append(report.Anomalies, Anomaly{
				Type:        "volume_spike",
				Severity:    d.severity(z),
				Description: fmt.Sprintf("volume %.0f is %.1f sigma above the mean", last, z),
				Value:       z,
				Threshold:   d.warnZ,
			})
		}
	} else if last != m {
		report.Anomalies = append(report.Anomalies, Anomaly{
			Type:        "volume_spike",
			Severity:    "high",
			Description: fmt.Sprintf("volume %.0f broke a flat baseline of %.0f", last, m),
			Value:       math.Abs(last - m),
			Threshold:   d.warnZ,
		})
	}

	// Rolling volatility regime shift: recent window vs the full series.
	if len(rets) >= 10 {
		recent := stddev(rets[len(rets)-5:])
		overall := stddev(rets)
		if overall > 0 && recent/overall >= 3 {
			report.Anomalies = append(report.Anomalies, Anomaly{
				Type:        "volatility",
				Severity:    "medium",
				Description: fmt.Sprintf("recent volatility %.1fx the series baseline", recent/overall),
				Value:       recent / overall,
				Threshold:   3,
			})
		}
	}

	report.Total = len(report.Anomalies)
	return report, nil
}

func (d *ZScoreDetector) severity(z float64) string {
	if z >= d.severeZ {
		return "high"
	}
	return "medium"
}
