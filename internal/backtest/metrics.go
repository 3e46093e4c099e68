package backtest

import (
	"math"

	"tradelab/internal/domain"
)

// ComputeMetrics reduces a completed trade list into aggregate
// performance metrics. Trades must already be in chronological order,
// as produced by Simulate. The reduction is deterministic and has no
// side effects.
func ComputeMetrics(jobID string, exec domain.ExecutionParams, trades []*domain.Trade) *domain.BacktestMetrics {
	m := &domain.BacktestMetrics{
		JobID:          jobID,
		InitialBalance: exec.InitialBalance,
		FinalBalance:   exec.InitialBalance,
		GrossBalance:   exec.InitialBalance,
	}
	n := len(trades)
	if n == 0 {
		return m
	}

	var wins, losses int
	var sumWinNet, sumLossNet float64
	var sumWinPct, sumLossPct float64
	var totalCommission, totalNet, totalGross float64
	var streakWins, streakLosses int

	perTradePct := make([]float64, n)
	equity := make([]float64, 0, n+1)
	equity = append(equity, exec.InitialBalance)

	for i, t := range trades {
		totalNet += t.NetProfit
		totalGross += t.GrossProfit
		totalCommission += t.Commission
		perTradePct[i] = t.ProfitPct
		equity = append(equity, t.BalanceAfter)

		if t.NetProfit > 0 {
			wins++
			sumWinNet += t.NetProfit
			sumWinPct += t.ProfitPct
			streakWins++
			streakLosses = 0
			if streakWins > m.MaxConsecutiveWins {
				m.MaxConsecutiveWins = streakWins
			}
		} else {
			losses++
			sumLossNet += t.NetProfit
			sumLossPct += t.ProfitPct
			streakLosses++
			streakWins = 0
			if streakLosses > m.MaxConsecutiveLosses {
				m.MaxConsecutiveLosses = streakLosses
			}
		}
	}

	m.TotalTrades = n
	m.WinningTrades = wins
	m.LosingTrades = losses
	m.WinRatePct = float64(wins) / float64(n) * 100

	m.FinalBalance = exec.InitialBalance + totalNet
	m.GrossBalance = exec.InitialBalance + totalGross
	m.NetProfit = totalNet
	m.NetProfitPct = totalNet / exec.InitialBalance * 100
	m.TotalCommission = totalCommission

	m.ProfitFactor = profitFactor(sumWinNet, sumLossNet)
	m.MaxDrawdownPct = maxDrawdownPct(equity)
	m.SharpeRatio = sharpeRatio(perTradePct)

	if wins > 0 {
		m.AvgWinPct = sumWinPct / float64(wins)
	}
	if losses > 0 {
		m.AvgLossPct = sumLossPct / float64(losses)
	}

	m.StabilityScore = stabilityScore(equity)

	return m
}

// profitFactor is the ratio of summed winning net profit to the
// absolute summed losing net profit. With wins and no losses it is
// +Inf; with no wins it is 0.
func profitFactor(sumWins, sumLosses float64) float64 {
	if sumLosses == 0 {
		if sumWins > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return sumWins / math.Abs(sumLosses)
}

// maxDrawdownPct walks the equity curve and returns the worst
// peak-to-trough decline as a positive percentage of the peak.
func maxDrawdownPct(equity []float64) float64 {
	var maxDD float64
	peak := math.Inf(-1)
	for _, e := range equity {
		if e > peak {
			peak = e
		}
		if peak > 0 {
			dd := (peak - e) / peak * 100
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// sharpeRatio is the mean over the sample standard deviation of
// per-trade net profit percentages. Zero when fewer than two trades or
// when returns have no variance.
func sharpeRatio(returns []float64) float64 {
	n := len(returns)
	if n < 2 {
		return 0
	}
	mean := computeMean(returns)
	stddev := computeStddev(returns, mean)
	if stddev == 0 {
		return 0
	}
	return mean / stddev
}

// stabilityScore grades how evenly the equity curve accrued, as the
// coefficient of determination of a linear fit over the curve, clamped
// to [0, 1]. A perfectly linear curve scores 1.
func stabilityScore(equity []float64) float64 {
	n := len(equity)
	if n < 3 {
		return 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, y := range equity {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	slope := (fn*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / fn

	meanY := sumY / fn
	var ssRes, ssTot float64
	for i, y := range equity {
		fit := slope*float64(i) + intercept
		ssRes += (y - fit) * (y - fit)
		ssTot += (y - meanY) * (y - meanY)
	}
	if ssTot == 0 {
		return 1
	}
	r2 := 1 - ssRes/ssTot
	if r2 < 0 {
		return 0
	}
	if r2 > 1 {
		return 1
	}
	return r2
}

func computeMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// computeStddev is the sample standard deviation (n-1 denominator).
func computeStddev(values []float64, mean float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	var sumSq float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(n-1))
}
