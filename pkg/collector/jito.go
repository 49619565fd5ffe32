package collector

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fortiblox/stratus-reports/pkg/jito"
	"github.com/fortiblox/stratus-reports/pkg/report"
	"github.com/fortiblox/stratus-reports/pkg/retry"
)

// DefaultJitoEpochs is how many past epochs the APY medians cover.
const DefaultJitoEpochs = 10

// JitoHeader is the column row of the jito report.
var JitoHeader = []string{
	"epoch", "active_stake", "mev_rewards", "mev_commission_bps",
	"apy", "true_apy", "network_reward_per_lamport", "status",
}

// JitoEpoch is one epoch of the jito report.
type JitoEpoch struct {
	jito.EpochAPY
	// RewardPerLamport is the network median input, nil when unavailable.
	RewardPerLamport *float64
	Status           string
}

// Record renders the row in JitoHeader order.
func (e JitoEpoch) Record() []string {
	rec := []string{report.Uint(e.Epoch), "", "", "", "", "", "", e.Status}
	if e.Status == StatusOK {
		rec[1] = report.Float(e.ActiveStake)
		rec[2] = report.Float(e.MEVRewards)
		rec[3] = report.Float(e.CommissionBps)
		rec[4] = report.Fixed(e.APY, jito.APYPlaces)
		rec[5] = report.Fixed(e.TrueAPY, jito.APYPlaces)
	}
	if e.RewardPerLamport != nil {
		rec[6] = report.Float(*e.RewardPerLamport)
	}
	return rec
}

// JitoReport summarises a validator's MEV yield over recent epochs.
type JitoReport struct {
	VoteAccount   string
	CurrentEpoch  uint64
	Epochs        []JitoEpoch
	MedianAPY     float64
	MedianTrueAPY float64
	NetworkAPY    float64
	HaveNetwork   bool
	// Found is false when the validator appears in none of the epochs.
	Found bool
}

// CollectJitoAPY reads the epochs before the API's latest epoch and computes
// the validator's and the network's APY medians.
func CollectJitoAPY(ctx context.Context, src *Sources, voteAccount string, epochs int, w report.RowWriter) (*JitoReport, error) {
	if src.Jito == nil || src.API == nil {
		return nil, ErrNotConfigured
	}
	if epochs <= 0 {
		epochs = DefaultJitoEpochs
	}
	log := src.logger()

	latest := retry.Do(ctx, src.API, "kobeLatest", func(ctx context.Context) (*jito.NetworkRewards, error) {
		return src.Jito.LatestRewards(ctx)
	}, nil)
	if !latest.OK() {
		return nil, fmt.Errorf("get current epoch: %w", latest.Err)
	}

	rep := &JitoReport{VoteAccount: voteAccount, CurrentEpoch: latest.Value.Epoch}
	start := uint64(0)
	if rep.CurrentEpoch > uint64(epochs) {
		start = rep.CurrentEpoch - uint64(epochs)
	}

	var apys, trueAPYs, perLamport []float64
	for epoch := start; epoch < rep.CurrentEpoch; epoch++ {
		e := jitoEpoch(ctx, src, voteAccount, epoch)
		rep.Epochs = append(rep.Epochs, e)
		src.rowDone(e.Status)
		if w != nil {
			if err := w.Write(e.Record()); err != nil {
				return rep, fmt.Errorf("jito report: %w", err)
			}
		}
		if e.Status == StatusOK {
			apys = append(apys, e.APY)
			trueAPYs = append(trueAPYs, e.TrueAPY)
		}
		if e.RewardPerLamport != nil {
			perLamport = append(perLamport, *e.RewardPerLamport)
		}
	}

	rep.Found = len(apys) > 0
	rep.MedianAPY = jito.Median(apys)
	rep.MedianTrueAPY = jito.Median(trueAPYs)
	rep.NetworkAPY, rep.HaveNetwork = jito.NetworkAPY(perLamport)

	if !rep.Found {
		log.Warn("no data for vote account", zap.String("vote_account", voteAccount))
	}
	if !rep.HaveNetwork {
		log.Warn("no network MEV rewards in range",
			zap.Uint64("from_epoch", start),
			zap.Uint64("to_epoch", rep.CurrentEpoch))
	}
	return rep, ctx.Err()
}

func jitoEpoch(ctx context.Context, src *Sources, voteAccount string, epoch uint64) JitoEpoch {
	e := JitoEpoch{EpochAPY: jito.EpochAPY{Epoch: epoch}, Status: StatusMissing}

	network := retry.Do(ctx, src.API, "kobeMevRewards", func(ctx context.Context) (*jito.NetworkRewards, error) {
		return src.Jito.NetworkRewards(ctx, epoch)
	}, nil)
	if network.OK() {
		e.RewardPerLamport = network.Value.MEVRewardPerLamport
	}

	validators := retry.Do(ctx, src.API, "kobeValidators", func(ctx context.Context) ([]jito.ValidatorRewards, error) {
		return src.Jito.Validators(ctx, epoch)
	}, nil)
	if !validators.OK() {
		e.Status = StatusFailed
		return e
	}
	for _, v := range validators.Value {
		if v.VoteAccount == voteAccount {
			e.EpochAPY = jito.ForValidator(epoch, v)
			e.Status = StatusOK
			break
		}
	}
	return e
}

// Table renders the report for the console, APYs as percentages.
func (r *JitoReport) Table() report.Table {
	t := report.Table{
		Title:  fmt.Sprintf("Jito MEV APY %s (current epoch %d)", r.VoteAccount, r.CurrentEpoch),
		Header: []string{"epoch", "active_stake", "mev_rewards", "mev_commission_bps", "apy_%", "true_apy_%"},
	}
	for _, e := range r.Epochs {
		if e.Status != StatusOK {
			t.Rows = append(t.Rows, []string{report.Uint(e.Epoch), "", "", "", "", e.Status})
			continue
		}
		t.Rows = append(t.Rows, []string{
			report.Uint(e.Epoch),
			report.Float(e.ActiveStake),
			report.Float(e.MEVRewards),
			report.Float(e.CommissionBps),
			percent(e.APY),
			percent(e.TrueAPY),
		})
	}
	network := ""
	if r.HaveNetwork {
		network = "network " + percent(r.NetworkAPY) + "%"
	}
	t.Footer = []string{"median", "", "", network, percent(r.MedianAPY), percent(r.MedianTrueAPY)}
	return t
}

func percent(v float64) string {
	return report.Fixed(v*100, jito.APYPlaces)
}
