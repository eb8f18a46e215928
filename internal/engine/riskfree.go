package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"mt5-signal-bot/internal/ledger"
	"mt5-signal-bot/internal/venue"
)

// ErrMixedSides is returned when a group's filled legs disagree on
// direction. A single protective stop cannot serve both sides, so the
// calculation refuses rather than guessing.
var ErrMixedSides = errors.New("group has filled legs on both sides")

// RiskFreeReport describes what one risk-free pass actually did. A pass
// with nothing to do is a valid terminal state, not an error.
type RiskFreeReport struct {
	GroupKey       string
	Cancelled      []int64
	CancelFailures map[int64]string
	FilledCount    int
	WeightedAvg    float64
	NewStop        float64
	Modified       []int64
	Skipped        []int64 // stops already at or past the target
	ModifyFailures map[int64]string
}

// Changed reports whether the pass touched the venue at all.
func (r *RiskFreeReport) Changed() bool {
	return len(r.Cancelled) > 0 || len(r.Modified) > 0
}

// fill is one filled leg, from live venue state or the ledger fallback.
type fill struct {
	ticket int64
	side   ledger.Side
	volume float64
	price  float64
	stop   float64
	target float64
}

// Calculator moves a group to risk-free: cancel the unfilled pendings,
// then raise (BUY) or lower (SELL) the stop of every fill to the
// volume-weighted average entry plus a pip offset.
type Calculator struct {
	repo   ledger.Repository
	pips   *PipTable
	offset float64 // in pips
	log    zerolog.Logger
}

func NewCalculator(repo ledger.Repository, pips *PipTable, pipOffset float64, logger zerolog.Logger) *Calculator {
	return &Calculator{repo: repo, pips: pips, offset: pipOffset, log: logger}
}

// Apply runs one risk-free pass for a group against the given venue
// client. Per-ticket failures are isolated: one rejected cancel or modify
// never aborts the rest of the pass.
func (c *Calculator) Apply(ctx context.Context, client venue.Client, group *ledger.Group) (*RiskFreeReport, error) {
	report := &RiskFreeReport{
		GroupKey:       group.Key,
		CancelFailures: make(map[int64]string),
		ModifyFailures: make(map[int64]string),
	}

	c.cancelPendings(ctx, client, group, report)

	fills, err := c.collectFills(ctx, client, group)
	if err != nil {
		return report, err
	}
	report.FilledCount = len(fills)
	if len(fills) == 0 {
		c.log.Info().Str("group", group.Key).Msg("Risk-free pass found no fills, nothing to protect")
		return report, nil
	}

	side := fills[0].side
	var sumPV, sumV float64
	for _, f := range fills {
		if f.side != side {
			return report, fmt.Errorf("%w: %s", ErrMixedSides, group.Key)
		}
		sumPV += f.price * f.volume
		sumV += f.volume
	}
	if sumV == 0 {
		return report, nil
	}

	avg := sumPV / sumV
	offset := c.pips.Offset(group.Symbol, c.offset)
	newStop := avg + offset
	if side == ledger.SideSell {
		newStop = avg - offset
	}
	report.WeightedAvg = avg
	report.NewStop = newStop

	for _, f := range fills {
		if !improves(side, f.stop, newStop) {
			report.Skipped = append(report.Skipped, f.ticket)
			continue
		}
		if err := client.ModifyPosition(ctx, f.ticket, newStop, f.target); err != nil {
			report.ModifyFailures[f.ticket] = err.Error()
			c.log.Error().Err(err).Int64("ticket", f.ticket).Str("group", group.Key).
				Msg("Failed to move stop on fill")
			continue
		}
		report.Modified = append(report.Modified, f.ticket)
		c.recordStop(ctx, group, f.ticket, newStop)
	}

	c.log.Info().
		Str("group", group.Key).
		Float64("weighted_avg", avg).
		Float64("new_stop", newStop).
		Int("modified", len(report.Modified)).
		Int("cancelled", len(report.Cancelled)).
		Msg("Risk-free pass completed")
	return report, nil
}

// cancelPendings cancels every pending order tagged with the group's
// source message. Failures are collected, never fatal.
func (c *Calculator) cancelPendings(ctx context.Context, client venue.Client, group *ledger.Group, report *RiskFreeReport) {
	orders, err := client.Orders(ctx, group.Symbol)
	if err != nil {
		c.log.Warn().Err(err).Str("group", group.Key).Msg("Venue order query failed, using ledger pendings")
		orders = nil
		for _, leg := range group.PendingLegs() {
			if leg.Ticket != 0 {
				orders = append(orders, venue.Order{Ticket: leg.Ticket, Comment: venue.EncodeComment(group.SourceMsgID, leg.Index, group.Symbol)})
			}
		}
	}

	for _, o := range orders {
		tag, ok := venue.ParseOrderComment(o.Comment)
		if !ok || tag.SourceMsgID != group.SourceMsgID {
			continue
		}
		if err := client.CancelOrder(ctx, o.Ticket); err != nil {
			report.CancelFailures[o.Ticket] = err.Error()
			c.log.Error().Err(err).Int64("ticket", o.Ticket).Str("group", group.Key).
				Msg("Failed to cancel pending order")
			continue
		}
		report.Cancelled = append(report.Cancelled, o.Ticket)
		if err := c.repo.SetLegStatus(ctx, group.Key, tag.LegIndex, ledger.LegCancelled); err != nil && !errors.Is(err, ledger.ErrLegNotFound) {
			c.log.Warn().Err(err).Str("group", group.Key).Int("leg", tag.LegIndex).Msg("Ledger cancel update failed")
		}
	}
}

// collectFills prefers live venue positions; when the venue cannot be
// queried it falls back to the ledger's filled legs.
func (c *Calculator) collectFills(ctx context.Context, client venue.Client, group *ledger.Group) ([]fill, error) {
	positions, err := client.Positions(ctx, group.Symbol)
	if err != nil {
		c.log.Warn().Err(err).Str("group", group.Key).Msg("Venue position query failed, using ledger fills")
		var fills []fill
		for _, leg := range group.FilledLegs() {
			fills = append(fills, fill{
				ticket: leg.Ticket,
				side:   leg.Side,
				volume: leg.Volume,
				price:  leg.Entry,
				stop:   leg.StopLoss,
				target: leg.TakeProfit,
			})
		}
		return fills, nil
	}

	var fills []fill
	for _, p := range positions {
		tag, ok := venue.ParsePositionComment(p.Comment)
		if !ok || tag.SourceMsgID != group.SourceMsgID {
			continue
		}
		fills = append(fills, fill{
			ticket: p.Ticket,
			side:   p.Side,
			volume: p.Volume,
			price:  p.OpenPrice,
			stop:   p.StopLoss,
			target: p.TakeProfit,
		})
	}
	return fills, nil
}

func (c *Calculator) recordStop(ctx context.Context, group *ledger.Group, ticket int64, stop float64) {
	for _, leg := range group.Legs {
		if leg.Ticket == ticket {
			if err := c.repo.SetLegStops(ctx, group.Key, leg.Index, stop, leg.TakeProfit); err != nil {
				c.log.Warn().Err(err).Str("group", group.Key).Int("leg", leg.Index).Msg("Ledger stop update failed")
			}
			return
		}
	}
}

// improves reports whether newStop is strictly better protection than the
// current stop. A zero current stop always improves.
func improves(side ledger.Side, current, newStop float64) bool {
	if current == 0 {
		return true
	}
	if side == ledger.SideBuy {
		return newStop > current
	}
	return newStop < current
}
