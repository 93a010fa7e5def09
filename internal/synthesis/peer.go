package synthesis

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/pavelanni/essayeval/internal/model"
)

// ComparatorConfig parameterizes the peer estimate.
type ComparatorConfig struct {
	Band             int     `mapstructure:"band"`
	Floor            int     `mapstructure:"floor"`
	Ceiling          int     `mapstructure:"ceiling"`
	ReferenceAverage float64 `mapstructure:"reference-average"`
	TopMark          int     `mapstructure:"top-mark"`
	MinSamples       int     `mapstructure:"min-samples"`
}

// DefaultComparatorConfig returns the stock peer estimate parameters.
func DefaultComparatorConfig() ComparatorConfig {
	return ComparatorConfig{
		Band:             10,
		Floor:            5,
		Ceiling:          95,
		ReferenceAverage: 65,
		TopMark:          90,
		MinSamples:       20,
	}
}

// Population reports the mean overall score and sample size of stored
// results for an exam type. An empty exam type means all results.
type Population interface {
	AverageScore(ctx context.Context, examType string) (float64, int, error)
}

// Comparator places an overall score against peers. The percentile is a
// noisy estimate, not a lookup over real results.
type Comparator struct {
	cfg ComparatorConfig
	pop Population

	mu  sync.Mutex
	rng *rand.Rand
}

// NewComparator creates a comparator drawing noise from src. A nil src uses
// a randomly seeded PCG. pop may be nil.
func NewComparator(cfg ComparatorConfig, src rand.Source, pop Population) *Comparator {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	if cfg.Ceiling < cfg.Floor {
		cfg.Floor, cfg.Ceiling = cfg.Ceiling, cfg.Floor
	}
	return &Comparator{cfg: cfg, pop: pop, rng: rand.New(src)}
}

// Estimate compares overall with the fixed reference average.
func (c *Comparator) Estimate(overall int) model.Comparison {
	return c.estimate(overall, c.cfg.ReferenceAverage)
}

// EstimateFor compares overall with the population of examType when the
// population has enough samples, otherwise with the reference average.
func (c *Comparator) EstimateFor(ctx context.Context, examType string, overall int) model.Comparison {
	avg := c.cfg.ReferenceAverage
	if c.pop != nil {
		mean, n, err := c.pop.AverageScore(ctx, examType)
		switch {
		case err != nil:
			slog.Warn("population average unavailable", "exam_type", examType, "error", err)
		case n >= c.cfg.MinSamples && n > 0:
			avg = math.Round(mean*10) / 10
		}
	}
	return c.estimate(overall, avg)
}

func (c *Comparator) estimate(overall int, avg float64) model.Comparison {
	band := float64(c.cfg.Band)
	c.mu.Lock()
	noise := c.rng.Float64()*2*band - band
	c.mu.Unlock()

	pct := int(math.Round(float64(overall) + noise))
	pct = max(c.cfg.Floor, min(c.cfg.Ceiling, pct))

	return model.Comparison{
		PeerPercentile:  pct,
		AverageScore:    avg,
		TopPerformerGap: max(0, c.cfg.TopMark-overall),
	}
}
