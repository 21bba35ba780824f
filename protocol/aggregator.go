package protocol

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/flashbots/maskagg/masking"
)

// soloPeer labels mask tags of solo channels, which have no peer.
const soloPeer = "-"

// GroupSum is the aggregate an Aggregator recovers from collected reports.
type GroupSum struct {
	// Count is the number of Members summed.
	Count int `json:"count"`
	// Sum is the sum of blinded values minus their combined masks.
	Sum int64 `json:"sum"`
	// Remasked is set when reports carry a second-stage re-mask.
	Remasked bool `json:"remasked"`
	// Estimate is Sum with the expected re-mask noise removed.
	Estimate float64 `json:"estimate"`
}

// UplinkBatch is the set of collected blinded values an Aggregator forwards.
type UplinkBatch struct {
	// Members lists the reporting Members in ascending order.
	Members []MemberID `json:"members"`
	// Payload holds their blinded values in the same order, wire encoded.
	Payload string `json:"payload"`
}

// AggregatorOutcome summarizes an Aggregator's round.
type AggregatorOutcome struct {
	Aggregator NodeID             `json:"aggregator"`
	Channel    string             `json:"channel"`
	Assigned   []MemberID         `json:"assigned"`
	Collected  map[MemberID]int64 `json:"-"`
	Batch      UplinkBatch        `json:"batch"`
	Sum        GroupSum           `json:"sum"`
}

type retainedMask struct {
	round    int
	combined masking.Vector
}

// AggregatorService runs the Aggregator role for one channel: it exchanges
// mask halves with its peer, distributes combined-mask offsets to its Members
// and collects their blinded reports.
// It is driven by a single-threaded scheduler and is not safe for concurrent use.
type AggregatorService struct {
	config    *SessionConfig
	id        NodeID
	channel   *Channel
	peer      NodeID
	assigned  []MemberID
	transport Transport
	logger    *slog.Logger
	counters  Counters
	ledger    *masking.Ledger

	round        Round
	source       masking.Source
	ownHalf      masking.Vector
	peerHalf     masking.Vector
	combined     masking.Vector
	exchangeOpen bool
	distributed  bool
	collectOpen  bool
	collectEnded bool
	collected    map[MemberID]int64
	masks        map[MemberID]int64

	// retained keeps the combined mask of the latest distribute-only round
	// for the following collect-only round.
	retained *retainedMask
}

// NewAggregatorService creates the Aggregator id serving assigned on channel.
func NewAggregatorService(config *SessionConfig, id NodeID, assigned []MemberID, channel *Channel, transport Transport, logger *slog.Logger) *AggregatorService {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("node", id, "channel", channel.ID)

	peer, ok := channel.Peer(id)
	if !ok {
		peer = ""
		logger.Warn("solo channel, masking with a single mask half")
	}

	return &AggregatorService{
		config:    config,
		id:        id,
		channel:   channel,
		peer:      peer,
		assigned:  slices.Clone(assigned),
		transport: transport,
		logger:    logger,
		ledger:    masking.NewLedger(id),
		collected: make(map[MemberID]int64),
		masks:     make(map[MemberID]int64),
	}
}

// ID returns the Aggregator's transport address.
func (a *AggregatorService) ID() NodeID { return a.id }

// Channel returns the channel the Aggregator belongs to.
func (a *AggregatorService) Channel() *Channel { return a.channel }

// Assigned returns the Members served by the Aggregator.
func (a *AggregatorService) Assigned() []MemberID { return slices.Clone(a.assigned) }

// Counters returns the Aggregator's message counters.
func (a *AggregatorService) Counters() *Counters { return &a.counters }

// HasRetainedMask reports whether a distribute-only mask is waiting for its
// collect-only round.
func (a *AggregatorService) HasRetainedMask() bool { return a.retained != nil }

// Ledger returns the record of mask halves issued by the Aggregator.
func (a *AggregatorService) Ledger() *masking.Ledger { return a.ledger }

func (a *AggregatorService) peerLabel() string {
	if a.peer == "" {
		return soloPeer
	}
	return a.peer
}

// BeginRound resets per-round state. The exchange window opens immediately
// so that a peer half arriving before StartExchange is kept.
func (a *AggregatorService) BeginRound(round Round, source masking.Source) {
	a.round = round
	a.source = source
	a.ownHalf, a.peerHalf, a.combined = nil, nil, nil
	a.exchangeOpen = round.Type.Includes(ExchangePhase)
	a.distributed = false
	a.collectOpen = false
	a.collectEnded = false
	a.collected = make(map[MemberID]int64)
	a.masks = make(map[MemberID]int64)

	keepFrom := round.Number
	if a.retained != nil {
		keepFrom = a.retained.round
	}
	a.ledger.Forget(keepFrom)
}

// StartExchange draws the Aggregator's mask half, records it in the ledger
// and sends it to the peer. Solo channels use the half as the combined mask.
func (a *AggregatorService) StartExchange() error {
	if !a.exchangeOpen || a.ownHalf != nil {
		return fmt.Errorf("exchange not open for %s", a.round)
	}

	n := a.channel.Size()
	if err := a.ledger.IssueVector(a.round.Number, a.peerLabel(), n); err != nil {
		return fmt.Errorf("issuing mask half: %w", err)
	}
	a.ownHalf = a.source.DrawVector(n, a.config.PeerMaskRange)

	if a.peer == "" {
		a.combined = a.ownHalf.Clone()
		return nil
	}

	data, err := MarshalEnvelope(&Envelope{
		Kind:    KindMaskExchange,
		Round:   a.round.Number,
		Channel: a.channel.ID,
		From:    a.id,
		Payload: EncodeVector(a.ownHalf),
	})
	if err != nil {
		return err
	}
	if err := a.transport.Send(a.id, a.peer, data); err != nil {
		a.counters.Dropped.Inc()
		return fmt.Errorf("sending mask half: %w", err)
	}
	a.counters.Sent.Inc()

	a.combine()
	return nil
}

func (a *AggregatorService) combine() {
	if a.ownHalf == nil || a.peerHalf == nil {
		return
	}
	combined, err := masking.Add(a.ownHalf, a.peerHalf)
	if err != nil {
		// Lengths are checked on receipt.
		a.logger.Error("combining mask halves", "err", err)
		return
	}
	a.combined = combined
}

// CloseExchange is called at the exchange deadline.
func (a *AggregatorService) CloseExchange() {
	a.exchangeOpen = false
	if a.combined == nil && len(a.assigned) > 0 {
		a.logger.Warn("no combined mask, offsets will not be distributed", "round", a.round.Number)
	}
}

// HandleMessage processes an envelope delivered by the transport.
func (a *AggregatorService) HandleMessage(payload []byte, from NodeID) {
	a.counters.Received.Inc()

	env, err := UnmarshalEnvelope(payload)
	if err != nil {
		a.counters.countError(err)
		a.logger.Debug("discarding malformed message", "from", from, "err", err)
		return
	}

	if env.Channel != a.channel.ID {
		a.counters.Dropped.Inc()
		return
	}

	switch env.Kind {
	case KindMaskExchange:
		err = a.receivePeerHalf(env, from)
	case KindReport:
		err = a.receiveReport(env, from)
	default:
		a.counters.Dropped.Inc()
		return
	}
	if err != nil {
		a.counters.countError(err)
		a.logger.Debug("discarding message", "from", from, "kind", env.Kind, "err", err)
	}
}

func (a *AggregatorService) receivePeerHalf(env *Envelope, from NodeID) error {
	if a.peer == "" || from != a.peer || a.peerHalf != nil {
		a.counters.Dropped.Inc()
		return nil
	}
	if env.Round < a.round.Number || (env.Round == a.round.Number && !a.exchangeOpen) {
		a.counters.Late.Inc()
		return nil
	}
	if env.Round != a.round.Number {
		a.counters.Dropped.Inc()
		return nil
	}

	half, err := DecodeVector(env.Payload)
	if err != nil {
		return err
	}
	if len(half) != a.channel.Size() {
		return &FormatError{Payload: env.Payload, Reason: fmt.Sprintf("mask half has %d values, channel has %d members", len(half), a.channel.Size())}
	}
	for _, x := range half {
		if err := checkRange("peer mask", x, a.config.PeerMaskRange); err != nil {
			return err
		}
	}

	a.peerHalf = half
	a.combine()
	return nil
}

// Distribute sends every assigned Member its combined-mask entry. Without a
// combined mask nothing is sent.
func (a *AggregatorService) Distribute() error {
	if a.distributed {
		return fmt.Errorf("offsets already distributed for %s", a.round)
	}
	a.distributed = true

	if a.combined == nil {
		return nil
	}

	if a.round.Type == DistributeOnly {
		a.retained = &retainedMask{round: a.round.Number, combined: a.combined.Clone()}
	}

	for _, m := range a.assigned {
		idx, _ := a.channel.IndexOf(m)
		offset, err := a.combined.At(idx)
		if err != nil {
			a.counters.Dropped.Inc()
			a.logger.Warn("no combined mask entry for member", "member", m, "err", err)
			continue
		}
		tag := masking.Tag{Owner: a.id, Round: a.round.Number, Peer: a.peerLabel(), Index: idx}
		if err := a.ledger.Consume(tag, a.channel.ID); err != nil {
			return fmt.Errorf("offset for member %d: %w", m, err)
		}

		data, err := MarshalEnvelope(&Envelope{
			Kind:    KindOffset,
			Round:   a.round.Number,
			Channel: a.channel.ID,
			From:    a.id,
			Member:  m,
			Payload: EncodeVector(masking.Vector{offset}),
		})
		if err != nil {
			return err
		}
		if err := a.transport.Send(a.id, MemberNode(m), data); err != nil {
			a.counters.Dropped.Inc()
			a.logger.Warn("could not send offset", "member", m, "err", err)
			continue
		}
		a.counters.Sent.Inc()
	}
	return nil
}

// OpenCollect is called when the collect window opens.
func (a *AggregatorService) OpenCollect() {
	a.collectOpen = true
}

// CloseCollect is called at the collect deadline.
func (a *AggregatorService) CloseCollect() {
	a.collectOpen = false
	a.collectEnded = true
}

// maskFor returns the combined mask a report blinded in maskRound was built on.
func (a *AggregatorService) maskFor(maskRound int) (masking.Vector, bool) {
	if a.round.Type.Includes(DistributePhase) {
		return a.combined, maskRound == a.round.Number && a.combined != nil
	}
	if a.retained == nil || a.retained.round != maskRound {
		return nil, false
	}
	return a.retained.combined, true
}

func (a *AggregatorService) receiveReport(env *Envelope, from NodeID) error {
	idx, inChannel := a.channel.IndexOf(env.Member)
	if !inChannel || !slices.Contains(a.assigned, env.Member) || from != MemberNode(env.Member) {
		a.counters.Dropped.Inc()
		return nil
	}
	if env.Round < a.round.Number || (env.Round == a.round.Number && a.collectEnded) {
		a.counters.Late.Inc()
		return nil
	}
	if env.Round != a.round.Number || !a.collectOpen {
		a.counters.Dropped.Inc()
		return nil
	}
	if _, dup := a.collected[env.Member]; dup {
		a.counters.Dropped.Inc()
		return nil
	}

	mask, ok := a.maskFor(env.MaskRound)
	if !ok {
		a.counters.Dropped.Inc()
		a.logger.Debug("report blinded with unknown mask", "member", env.Member, "mask_round", env.MaskRound)
		return nil
	}
	memberMask, err := mask.At(idx)
	if err != nil {
		a.counters.Dropped.Inc()
		a.logger.Warn("combined mask does not cover member", "member", env.Member, "err", err)
		return nil
	}

	value, err := DecodeScalar(env.Payload)
	if err != nil {
		return err
	}
	if err := checkRange("blinded value", value, a.config.ReportRange(a.channel.Solo(), a.round.Remask)); err != nil {
		return err
	}

	a.collected[env.Member] = value
	a.masks[env.Member] = memberMask
	return nil
}

// OwnHalf returns a copy of the mask half drawn this round.
func (a *AggregatorService) OwnHalf() masking.Vector { return a.ownHalf.Clone() }

// PeerHalf returns a copy of the mask half received from the peer.
func (a *AggregatorService) PeerHalf() masking.Vector { return a.peerHalf.Clone() }

// CombinedMask returns a copy of the combined mask, or nil if the exchange
// has not completed.
func (a *AggregatorService) CombinedMask() masking.Vector { return a.combined.Clone() }

// Collected returns the blinded values received this round.
func (a *AggregatorService) Collected() map[MemberID]int64 {
	return maps.Clone(a.collected)
}

// UplinkBatch encodes the collected values in ascending Member order.
func (a *AggregatorService) UplinkBatch() UplinkBatch {
	members := slices.Sorted(maps.Keys(a.collected))
	values := make(masking.Vector, len(members))
	for i, m := range members {
		values[i] = a.collected[m]
	}
	if members == nil {
		members = []MemberID{}
	}
	return UplinkBatch{Members: members, Payload: EncodeVector(values)}
}

// GroupSum removes the combined masks from the collected values.
func (a *AggregatorService) GroupSum() GroupSum {
	sum := GroupSum{Count: len(a.collected), Remasked: a.round.Remask}
	for m, v := range a.collected {
		sum.Sum += v - a.masks[m]
	}
	sum.Estimate = float64(sum.Sum)
	if sum.Remasked {
		sum.Estimate -= float64(sum.Count) * a.config.RemaskRange.Mean()
	}
	return sum
}

// EndRound returns the round outcome and discards per-round masks and values.
func (a *AggregatorService) EndRound() AggregatorOutcome {
	outcome := AggregatorOutcome{
		Aggregator: a.id,
		Channel:    a.channel.ID,
		Assigned:   slices.Clone(a.assigned),
		Collected:  maps.Clone(a.collected),
		Batch:      a.UplinkBatch(),
		Sum:        a.GroupSum(),
	}
	a.ownHalf, a.peerHalf, a.combined = nil, nil, nil
	a.exchangeOpen, a.collectOpen = false, false
	a.collected = make(map[MemberID]int64)
	a.masks = make(map[MemberID]int64)
	// A retained mask serves a single collect-only round.
	if a.round.Type == CollectOnly {
		a.retained = nil
	}
	return outcome
}
