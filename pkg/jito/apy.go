package jito

import (
	"math"
	"sort"
)

// EpochsPerYear is the number of epochs compounded into an annual yield.
const EpochsPerYear = 177

// BpsDenominator converts basis points to a fraction.
const BpsDenominator = 10_000

// APYPlaces is the precision every APY is rounded to.
const APYPlaces = 4

// APY compounds a per-epoch reward on stake over a year. It is zero when
// stake is not positive.
func APY(reward, stake float64) float64 {
	if stake <= 0 {
		return 0
	}
	return round(math.Pow(1+reward/stake, EpochsPerYear)-1, APYPlaces)
}

// TrueAPY is the APY stakers see after the validator's MEV commission.
func TrueAPY(reward, stake, commissionBps float64) float64 {
	if stake <= 0 || commissionBps >= BpsDenominator {
		return 0
	}
	stakers := reward - reward*commissionBps/BpsDenominator
	return APY(stakers, stake)
}

// NetworkAPY compounds the median per-lamport reward. The median is rounded
// to 5 places before compounding.
func NetworkAPY(rewardPerLamport []float64) (float64, bool) {
	if len(rewardPerLamport) == 0 {
		return 0, false
	}
	m := round(Median(rewardPerLamport), 5)
	return math.Pow(1+m, EpochsPerYear) - 1, true
}

// Median returns the middle value of vs, averaging the two middle values for
// an even count. It returns zero for an empty slice.
func Median(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	s := append([]float64(nil), vs...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

// EpochAPY is a validator's yield for one epoch.
type EpochAPY struct {
	Epoch         uint64
	ActiveStake   float64
	MEVRewards    float64
	CommissionBps float64
	APY           float64
	TrueAPY       float64
}

// ForValidator computes the yield of v in epoch.
func ForValidator(epoch uint64, v ValidatorRewards) EpochAPY {
	return EpochAPY{
		Epoch:         epoch,
		ActiveStake:   v.ActiveStake,
		MEVRewards:    v.MEVRewards,
		CommissionBps: v.MEVCommissionBps,
		APY:           APY(v.MEVRewards, v.ActiveStake),
		TrueAPY:       TrueAPY(v.MEVRewards, v.ActiveStake, v.MEVCommissionBps),
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
