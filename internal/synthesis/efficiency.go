package synthesis

import (
	"math"

	"github.com/pavelanni/essayeval/internal/model"
)

// Efficiency thresholds.
const (
	LongPauseMs         = 5000
	CharsPerWord        = 5
	excellentKeyRatio   = 1.2
	goodKeyRatio        = 1.5
	hesitantLongPauses  = 10
	thoughtfulLongPause = 5
)

// Labels used when a measure cannot be computed.
const Unknown = "unknown"

// ComputeEfficiency derives writing pace, keystroke economy and pause
// patterns from telemetry alone. Missing inputs yield Unknown labels and
// zero numbers.
func ComputeEfficiency(meta *model.Metadata) model.WritingEfficiency {
	eff := model.WritingEfficiency{Efficiency: Unknown, TypingPattern: Unknown}
	if meta == nil {
		return eff
	}

	if meta.WordCount > 0 && meta.TimeSpent > 0 {
		eff.WPM = math.Round(float64(meta.WordCount)/meta.TimeSpent*10) / 10
	}

	if meta.WordCount > 0 && meta.Keystrokes > 0 {
		ratio := float64(meta.Keystrokes) / float64(CharsPerWord*meta.WordCount)
		switch {
		case ratio <= excellentKeyRatio:
			eff.Efficiency = "excellent"
		case ratio <= goodKeyRatio:
			eff.Efficiency = "good"
		default:
			eff.Efficiency = "needs-improvement"
		}
	}

	if len(meta.Pauses) > 0 {
		pa := model.PauseAnalysis{TotalPauses: len(meta.Pauses)}
		var sum float64
		for _, p := range meta.Pauses {
			sum += p
			if p > LongPauseMs {
				pa.LongPauses++
			}
			pa.LongestPauseMs = math.Max(pa.LongestPauseMs, p)
		}
		pa.AveragePauseMs = math.Round(sum / float64(len(meta.Pauses)))
		eff.PauseAnalysis = pa

		switch {
		case pa.LongPauses > hesitantLongPauses:
			eff.TypingPattern = "hesitant"
		case pa.LongPauses > thoughtfulLongPause:
			eff.TypingPattern = "thoughtful"
		default:
			eff.TypingPattern = "fluent"
		}
	}
	return eff
}
