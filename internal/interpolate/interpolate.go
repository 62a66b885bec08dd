// Package interpolate synthesizes a PriceRecord from stored neighbors when
// neither the cache, the durable store, nor the oracle has a direct
// answer. No teacher file does this — it is grounded directly in the
// resolution algorithm this system needs, using decimal.Decimal for USD
// values and plain float64 for ratios and confidence scores.
package interpolate

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Abhii8084/token-price-storage-system/internal/domain"
	"github.com/Abhii8084/token-price-storage-system/internal/perrors"
	"github.com/Abhii8084/token-price-storage-system/internal/store"
)

// Config holds the thresholds spec §4.4 names.
type Config struct {
	MaxDataPoints             int
	MaxTimeGapHours           float64
	MinConfidenceThreshold    float64
	ExtrapolationMaxChangePct float64
}

// minUSDFloor is the price extrapolation is never allowed to cross,
// preventing a runaway rate from producing a non-positive price.
const minUSDFloor = "0.0001"

// Interpolate implements steps 1-9 of the interpolation algorithm exactly:
// query neighbors, filter by time gap, decline below two points, partition
// around the target, interpolate or extrapolate, score confidence, and
// gate on the threshold.
func Interpolate(ctx context.Context, st store.Store, token string, network domain.Network, target time.Time, cfg Config) (*domain.PriceRecord, error) {
	maxPoints := cfg.MaxDataPoints
	if maxPoints <= 0 {
		maxPoints = 20
	}
	neighbors, err := st.GetNearestPrices(ctx, token, network, target, maxPoints)
	if err != nil {
		return nil, perrors.Store(err, "interpolate: get nearest prices")
	}

	maxGap := time.Duration(cfg.MaxTimeGapHours * float64(time.Hour))
	filtered := make([]domain.PriceRecord, 0, len(neighbors))
	for _, n := range neighbors {
		if n.Timestamp == nil {
			continue
		}
		gap := n.Timestamp.Sub(target)
		if gap < 0 {
			gap = -gap
		}
		if maxGap <= 0 || gap <= maxGap {
			filtered = append(filtered, n)
		}
	}
	if len(filtered) < 2 {
		return nil, perrors.ErrInterpolationDeclined
	}

	var before, after []domain.PriceRecord
	for _, n := range filtered {
		if n.Timestamp.Before(target) {
			before = append(before, n)
		} else if n.Timestamp.After(target) {
			after = append(after, n)
		}
	}

	var rec *domain.PriceRecord
	switch {
	case len(before) > 0 && len(after) > 0:
		rec, err = linear(before, after, target)
	case len(before) > 0:
		rec, err = extrapolate(before, target, cfg.ExtrapolationMaxChangePct)
	case len(after) > 0:
		rec, err = extrapolate(after, target, cfg.ExtrapolationMaxChangePct)
	default:
		return nil, perrors.ErrInterpolationDeclined
	}
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, perrors.ErrInterpolationDeclined
	}

	threshold := cfg.MinConfidenceThreshold
	if rec.Confidence < threshold || rec.USD.LessThanOrEqual(decimal.Zero) {
		return nil, perrors.ErrInterpolationDeclined
	}

	rec.Token = token
	rec.Network = network
	ttarget := target
	rec.Timestamp = &ttarget
	rec.Provenance = domain.Interpolated
	rec.InterpolatedFlag = true
	rec.LastUpdated = time.Now().UTC()
	return rec, nil
}

func latest(recs []domain.PriceRecord) domain.PriceRecord {
	best := recs[0]
	for _, r := range recs[1:] {
		if r.Timestamp.After(*best.Timestamp) {
			best = r
		}
	}
	return best
}

func earliest(recs []domain.PriceRecord) domain.PriceRecord {
	best := recs[0]
	for _, r := range recs[1:] {
		if r.Timestamp.Before(*best.Timestamp) {
			best = r
		}
	}
	return best
}

// linear implements step 5-7 (linear branch): ratio-weighted interpolation
// between the latest-before and earliest-after neighbor.
func linear(beforeSet, afterSet []domain.PriceRecord, target time.Time) (*domain.PriceRecord, error) {
	before := latest(beforeSet)
	after := earliest(afterSet)

	span := after.Timestamp.Sub(*before.Timestamp)
	var ratio float64
	if span > 0 {
		ratio = float64(target.Sub(*before.Timestamp)) / float64(span)
	}

	usdF, _ := before.USD.Add(after.USD.Sub(before.USD).Mul(decimal.NewFromFloat(ratio))).Float64()
	usd := decimal.NewFromFloat(usdF)

	timeConfidence := 1 - 2*absFloat(0.5-ratio)
	volConfidence := volatilityConfidence(before.USD, after.USD)
	confidence := (timeConfidence + volConfidence) / 2
	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0 {
		confidence = 0
	}

	return &domain.PriceRecord{
		USD:            usd,
		Method:         domain.MethodLinear,
		Confidence:     confidence,
		DataPointsUsed: []domain.PriceRecord{before, after},
	}, nil
}

// extrapolate implements step 6-7 (extrapolation branch): a linear rate
// derived from the two points on the known side nearest the target,
// applied across the gap from the nearest of the two to target, clamped
// to ±k% of that nearest price and floored.
func extrapolate(side []domain.PriceRecord, target time.Time, maxChangePct float64) (*domain.PriceRecord, error) {
	if len(side) < 2 {
		return nil, perrors.ErrInterpolationDeclined
	}
	sorted := append([]domain.PriceRecord(nil), side...)
	sortByTimestamp(sorted)

	// The nearest point to target is whichever end of the sorted slice is
	// closer to target; the adjacent point supplies the rate.
	var near, adjacent domain.PriceRecord
	if absDuration(sorted[0].Timestamp.Sub(target)) <= absDuration(sorted[len(sorted)-1].Timestamp.Sub(target)) {
		near, adjacent = sorted[0], sorted[1]
	} else {
		near, adjacent = sorted[len(sorted)-1], sorted[len(sorted)-2]
	}

	timeDiff := near.Timestamp.Sub(*adjacent.Timestamp)
	if timeDiff == 0 {
		return nil, perrors.ErrInterpolationDeclined
	}
	priceDiffF, _ := near.USD.Sub(adjacent.USD).Float64()
	rate := priceDiffF / float64(timeDiff)

	last := near
	extrapDistance := target.Sub(*last.Timestamp)
	if extrapDistance < 0 {
		extrapDistance = -extrapDistance
	}

	lastF, _ := last.USD.Float64()
	rawUSD := lastF + rate*float64(target.Sub(*last.Timestamp))

	k := maxChangePct / 100
	lo := lastF * (1 - k)
	hi := lastF * (1 + k)
	if lo > hi {
		lo, hi = hi, lo
	}
	clamped := rawUSD
	if clamped < lo {
		clamped = lo
	}
	if clamped > hi {
		clamped = hi
	}
	floor := 0.0001
	if clamped < floor {
		clamped = floor
	}

	knownSpan := timeDiff
	if knownSpan < 0 {
		knownSpan = -knownSpan
	}
	var timeConfidence float64
	if knownSpan == 0 {
		timeConfidence = 0.1
	} else {
		timeConfidence = 1 - float64(extrapDistance)/float64(knownSpan)
		if timeConfidence < 0.1 {
			timeConfidence = 0.1
		}
	}
	volConfidence := volatilityConfidence(adjacent.USD, last.USD)
	confidence := (timeConfidence + volConfidence) / 2
	if confidence > 1 {
		confidence = 1
	}

	return &domain.PriceRecord{
		USD:            decimal.NewFromFloat(clamped),
		Method:         domain.MethodExtrapolation,
		Confidence:     confidence,
		DataPointsUsed: []domain.PriceRecord{adjacent, last},
	}, nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// volatilityConfidence scores how close two neighboring prices are,
// relative to their mean; a zero mean (both prices zero) yields zero
// confidence rather than dividing by zero.
func volatilityConfidence(a, b decimal.Decimal) float64 {
	mean := a.Add(b).Div(decimal.NewFromInt(2))
	if mean.IsZero() {
		return 0
	}
	diff := b.Sub(a).Abs()
	ratio, _ := diff.Div(mean).Float64()
	v := 1 - ratio
	if v < 0 {
		v = 0
	}
	return v
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func sortByTimestamp(recs []domain.PriceRecord) {
	for i := 1; i < len(recs); i++ {
		for j := i; j > 0 && recs[j].Timestamp.Before(*recs[j-1].Timestamp); j-- {
			recs[j], recs[j-1] = recs[j-1], recs[j]
		}
	}
}
