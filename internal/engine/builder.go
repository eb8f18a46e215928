package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"mt5-signal-bot/config"
	"mt5-signal-bot/internal/ledger"
	"mt5-signal-bot/internal/review"
	"mt5-signal-bot/internal/rules"
	"mt5-signal-bot/internal/venue"
)

// Inbound is one message handed to the builder after classification.
type Inbound struct {
	ChatID       int64
	MsgID        int64
	ReplyToMsgID int64
	Text         string
	Edited       bool
}

// Rejection explains why no action was produced.
type Rejection struct {
	Reason review.Reason
	Detail string
}

// Result is the outcome of building actions from one classified message.
type Result struct {
	Actions           []Action
	RiskFreeScheduled bool
	Rejection         *Rejection
}

// RiskFreeScheduler hands a risk-free pass to the worker pool. The
// builder never blocks on venue calls itself.
type RiskFreeScheduler interface {
	Schedule(groupKey string, sourceMsgID int64) bool
}

// Builder converts classified, slot-extracted messages into trade
// actions, consulting and updating the group ledger.
type Builder struct {
	repo     ledger.Repository
	cfg      config.EngineConfig
	riskFree RiskFreeScheduler
	log      zerolog.Logger
}

func NewBuilder(repo ledger.Repository, cfg config.EngineConfig, riskFree RiskFreeScheduler, logger zerolog.Logger) *Builder {
	return &Builder{repo: repo, cfg: cfg, riskFree: riskFree, log: logger}
}

// Build runs the state machine for one classified message.
func (b *Builder) Build(ctx context.Context, msg Inbound, match *rules.Match, slots rules.SlotSet) Result {
	switch match.Rule.Intent {
	case rules.IntentOpen:
		return b.buildOpen(ctx, msg, slots)
	case rules.IntentModify:
		return b.buildModify(ctx, msg, match.Rule, slots)
	case rules.IntentCancel:
		return b.buildCancel(ctx, msg, match.Rule)
	case rules.IntentClosePartial:
		return b.buildClose(ctx, msg, match.Rule, slots, false)
	case rules.IntentCloseAll:
		return b.buildClose(ctx, msg, match.Rule, nil, true)
	}
	return reject(review.ReasonNoMatch, fmt.Sprintf("no handler for intent %s", match.Rule.Intent))
}

func reject(reason review.Reason, detail string) Result {
	return Result{Rejection: &Rejection{Reason: reason, Detail: detail}}
}

func (b *Builder) buildOpen(ctx context.Context, msg Inbound, slots rules.SlotSet) Result {
	sideStr := slots.Enum("side")
	pair, hasPair := slots.Pair("entry")
	if sideStr != "" && !hasPair {
		return reject(review.ReasonMissingAt, "entry side without a price token")
	}
	if sideStr == "" || !hasPair {
		return reject(review.ReasonNoPrice, "entry signal without side or price")
	}
	side := ledger.Side(sideStr)
	symbol := b.cfg.DefaultSymbol

	key := ledger.GroupKey(msg.MsgID)
	if msg.Edited {
		if group, err := b.repo.Get(ctx, key); err == nil {
			return b.buildOpenEdit(ctx, msg, group, slots)
		}
	}

	sl, _ := slots.Price("sl")
	if sl == 0 && b.cfg.RequirePrice {
		// entry price exists; a missing stop is allowed, the signal
		// provider often sends it in a follow-up edit
		b.log.Debug().Int64("msg", msg.MsgID).Msg("Entry signal without stop loss")
	}

	legs, err := PlanLegs(EntrySignal{
		Symbol:    symbol,
		Side:      side,
		Entry:     pair,
		TPs:       slots.List("tps"),
		StopLoss:  sl,
		LegVolume: b.cfg.DefaultLegVolume,
	})
	if err != nil {
		var rangeErr *ErrInvalidRange
		if errors.As(err, &rangeErr) {
			return reject(review.ReasonInvalidRange, rangeErr.Error())
		}
		return reject(review.ReasonNoPrice, err.Error())
	}
	if len(legs) > b.cfg.MaxLegs {
		legs = legs[:b.cfg.MaxLegs]
	}

	group := &ledger.Group{
		Key:         key,
		SourceMsgID: msg.MsgID,
		ChatID:      msg.ChatID,
		Symbol:      symbol,
		Side:        side,
		Legs:        legs,
	}
	if err := b.repo.Save(ctx, group); err != nil {
		b.log.Error().Err(err).Str("group", key).Msg("Failed to persist new group")
	}

	deltas := make([]LegDelta, 0, len(legs))
	for _, leg := range legs {
		deltas = append(deltas, LegDelta{
			LegIndex:   leg.Index,
			Symbol:     leg.Symbol,
			Side:       leg.Side,
			Volume:     leg.Volume,
			Entry:      leg.Entry,
			StopLoss:   leg.StopLoss,
			TakeProfit: leg.TakeProfit,
			Comment:    venue.EncodeComment(msg.MsgID, leg.Index, symbol),
		})
	}
	return Result{Actions: []Action{NewAction(ActionOpen, msg.MsgID, key, symbol, deltas)}}
}

// buildOpenEdit handles an edited entry signal whose group already
// exists: the new protective levels are applied to the surviving legs
// instead of opening a second group.
func (b *Builder) buildOpenEdit(ctx context.Context, msg Inbound, group *ledger.Group, slots rules.SlotSet) Result {
	sl, _ := slots.Price("sl")
	tps := slots.List("tps")
	block := tpBlock(tps)

	var deltas []LegDelta
	for _, leg := range group.ActiveLegs() {
		newSL := leg.StopLoss
		if sl > 0 {
			newSL = sl
		}
		newTP := leg.TakeProfit
		if len(tps) > 0 {
			newTP = block[leg.Index%legsPerLayer]
		}
		if newSL == leg.StopLoss && newTP == leg.TakeProfit {
			continue
		}
		deltas = append(deltas, LegDelta{
			LegIndex:   leg.Index,
			Ticket:     leg.Ticket,
			Symbol:     leg.Symbol,
			Side:       leg.Side,
			StopLoss:   newSL,
			TakeProfit: newTP,
		})
		if err := b.repo.SetLegStops(ctx, group.Key, leg.Index, newSL, newTP); err != nil {
			b.log.Warn().Err(err).Str("group", group.Key).Int("leg", leg.Index).Msg("Ledger stop update failed")
		}
	}
	if len(deltas) == 0 {
		return Result{}
	}
	return Result{Actions: []Action{NewAction(ActionModify, msg.MsgID, group.Key, group.Symbol, deltas)}}
}

func (b *Builder) buildModify(ctx context.Context, msg Inbound, rule *rules.RuleDefinition, slots rules.SlotSet) Result {
	variant := rule.Variant
	group, res := b.targetGroup(ctx, msg, rule.RequiresReference)
	if group == nil {
		return res
	}

	switch variant {
	case rules.VariantRiskFree, rules.VariantTP2Hit:
		// Venue reads and writes happen on the worker pool; the dispatch
		// loop only schedules.
		if b.riskFree == nil || !b.riskFree.Schedule(group.Key, msg.MsgID) {
			return reject(review.ReasonVenueRejected, "risk-free worker pool saturated")
		}
		return Result{RiskFreeScheduled: true}

	case rules.VariantBreakEven:
		var deltas []LegDelta
		for _, leg := range group.FilledLegs() {
			if !improves(leg.Side, leg.StopLoss, leg.Entry) {
				continue
			}
			deltas = append(deltas, b.stopDelta(ctx, group, leg, leg.Entry, leg.TakeProfit))
		}
		return b.modifyResult(msg, group, deltas)

	case rules.VariantMoveSL:
		price, ok := slots.Price("sl_price")
		if !ok {
			return reject(review.ReasonSlotInvalid, "move-SL without a price")
		}
		var deltas []LegDelta
		for _, leg := range group.ActiveLegs() {
			if leg.StopLoss == price {
				continue
			}
			deltas = append(deltas, b.stopDelta(ctx, group, leg, price, leg.TakeProfit))
		}
		return b.modifyResult(msg, group, deltas)

	case rules.VariantSetTP:
		price, ok := slots.Price("tp_price")
		if !ok {
			return reject(review.ReasonSlotInvalid, "set-TP without a price")
		}
		var deltas []LegDelta
		for _, leg := range group.ActiveLegs() {
			if leg.TakeProfit == price {
				continue
			}
			deltas = append(deltas, b.stopDelta(ctx, group, leg, leg.StopLoss, price))
		}
		return b.modifyResult(msg, group, deltas)
	}

	return reject(review.ReasonNoMatch, fmt.Sprintf("unknown modify variant %q", variant))
}

func (b *Builder) stopDelta(ctx context.Context, group *ledger.Group, leg ledger.Leg, sl, tp float64) LegDelta {
	if err := b.repo.SetLegStops(ctx, group.Key, leg.Index, sl, tp); err != nil {
		b.log.Warn().Err(err).Str("group", group.Key).Int("leg", leg.Index).Msg("Ledger stop update failed")
	}
	return LegDelta{
		LegIndex:   leg.Index,
		Ticket:     leg.Ticket,
		Symbol:     leg.Symbol,
		Side:       leg.Side,
		StopLoss:   sl,
		TakeProfit: tp,
	}
}

func (b *Builder) modifyResult(msg Inbound, group *ledger.Group, deltas []LegDelta) Result {
	if len(deltas) == 0 {
		// nothing to change is a valid terminal state
		return Result{}
	}
	return Result{Actions: []Action{NewAction(ActionModify, msg.MsgID, group.Key, group.Symbol, deltas)}}
}

func (b *Builder) buildCancel(ctx context.Context, msg Inbound, rule *rules.RuleDefinition) Result {
	group, res := b.targetGroup(ctx, msg, rule.RequiresReference)
	if group == nil {
		return res
	}

	// Cancel touches pendings only, filled positions are never closed here.
	var deltas []LegDelta
	for _, leg := range group.PendingLegs() {
		deltas = append(deltas, LegDelta{
			LegIndex: leg.Index,
			Ticket:   leg.Ticket,
			Symbol:   leg.Symbol,
			Side:     leg.Side,
		})
	}
	if len(deltas) == 0 {
		return Result{}
	}
	return Result{Actions: []Action{NewAction(ActionCancel, msg.MsgID, group.Key, group.Symbol, deltas)}}
}

func (b *Builder) buildClose(ctx context.Context, msg Inbound, rule *rules.RuleDefinition, slots rules.SlotSet, closeAll bool) Result {
	group, res := b.targetGroup(ctx, msg, rule.RequiresReference)
	if group == nil {
		return res
	}

	var actions []Action

	if closeAll {
		var cancels []LegDelta
		for _, leg := range group.PendingLegs() {
			cancels = append(cancels, LegDelta{
				LegIndex: leg.Index,
				Ticket:   leg.Ticket,
				Symbol:   leg.Symbol,
				Side:     leg.Side,
			})
		}
		if len(cancels) > 0 {
			actions = append(actions, NewAction(ActionCancel, msg.MsgID, group.Key, group.Symbol, cancels))
		}
	}

	percent := 100.0
	typ := ActionCloseAll
	if !closeAll {
		typ = ActionClosePartial
		percent = b.cfg.DefaultClosePercent
		if p, ok := slots.Percent("percent"); ok {
			percent = p
		}
	}

	var closes []LegDelta
	for _, leg := range group.FilledLegs() {
		closes = append(closes, LegDelta{
			LegIndex: leg.Index,
			Ticket:   leg.Ticket,
			Symbol:   leg.Symbol,
			Side:     leg.Side,
			Volume:   leg.Volume * percent / 100,
		})
	}
	if len(closes) > 0 {
		actions = append(actions, NewAction(typ, msg.MsgID, group.Key, group.Symbol, closes))
	}

	if len(actions) == 0 {
		return Result{}
	}
	return Result{Actions: actions}
}

// targetGroup resolves and loads the group a management message acts
// on. On failure it returns a nil group plus the rejection result. Rules
// declaring requires_reference false may fall back to the only active
// group; with several groups open the message is still too ambiguous to
// act on.
func (b *Builder) targetGroup(ctx context.Context, msg Inbound, requiresRef bool) (*ledger.Group, Result) {
	key, ok := ResolveGroupKey(msg.ReplyToMsgID, msg.Text)
	if !ok {
		if !requiresRef {
			active, err := b.repo.ListActive(ctx)
			if err == nil && len(active) == 1 {
				return active[0], Result{}
			}
			return nil, reject(review.ReasonMgmtNoQuoted,
				fmt.Sprintf("no target group and %d groups active", len(active)))
		}
		return nil, reject(review.ReasonMgmtNoQuoted, "management message names no target group")
	}
	group, err := b.repo.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ledger.ErrGroupNotFound) {
			return nil, reject(review.ReasonMgmtNoGroup, fmt.Sprintf("group %s not in ledger", key))
		}
		return nil, reject(review.ReasonMgmtNoGroup, err.Error())
	}
	return group, Result{}
}
