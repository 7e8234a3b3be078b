package systems

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/signalsfoundry/rf-propagation-sim/core"
)

// Summary aggregates one tick of link results.
type Summary struct {
	Pairs  int
	Viable int

	MeanPathLossDb   float64
	StdPathLossDb    float64
	MedianPathLossDb float64

	MeanReceivedDbm float64
	StdReceivedDbm  float64

	MinMarginDb float64
	MaxMarginDb float64
}

// ViableFraction is Viable/Pairs, or 0 with no pairs.
func (s Summary) ViableFraction() float64 {
	if s.Pairs == 0 {
		return 0
	}
	return float64(s.Viable) / float64(s.Pairs)
}

// Summarize computes the aggregate for results. Standard deviations use
// the unbiased estimator and are 0 below two samples.
func Summarize(results []core.LinkResult) Summary {
	s := Summary{Pairs: len(results)}
	if len(results) == 0 {
		return s
	}

	loss := make([]float64, len(results))
	received := make([]float64, len(results))
	s.MinMarginDb = results[0].MarginDb
	s.MaxMarginDb = results[0].MarginDb
	for i, r := range results {
		loss[i] = r.PathLossDb
		received[i] = r.ReceivedPowerDbm
		if r.Viable {
			s.Viable++
		}
		s.MinMarginDb = min(s.MinMarginDb, r.MarginDb)
		s.MaxMarginDb = max(s.MaxMarginDb, r.MarginDb)
	}

	s.MeanPathLossDb, s.StdPathLossDb = meanStdDev(loss)
	s.MeanReceivedDbm, s.StdReceivedDbm = meanStdDev(received)

	sort.Float64s(loss)
	s.MedianPathLossDb = stat.Quantile(0.5, stat.Empirical, loss, nil)
	return s
}

func meanStdDev(x []float64) (mean, std float64) {
	if len(x) < 2 {
		return stat.Mean(x, nil), 0
	}
	return stat.MeanStdDev(x, nil)
}
