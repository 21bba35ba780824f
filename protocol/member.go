package protocol

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/flashbots/maskagg/masking"
)

// MemberState is the position of a Member within a round.
type MemberState int

const (
	MemberIdle MemberState = iota
	MemberAwaitingOffset
	MemberBlinded
	MemberSent
)

func (s MemberState) String() string {
	switch s {
	case MemberIdle:
		return "idle"
	case MemberAwaitingOffset:
		return "awaiting-offset"
	case MemberBlinded:
		return "blinded"
	case MemberSent:
		return "sent"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// GapReason explains why a Member did not contribute to a round.
type GapReason string

const (
	GapNone              GapReason = ""
	GapReadingOutOfRange GapReason = "reading-out-of-range"
	GapNoOffset          GapReason = "no-offset"
	GapNotSent           GapReason = "not-sent"
	GapNotReceived       GapReason = "not-received"
	GapTornDown          GapReason = "torn-down"
)

// ErrNothingToSend is returned by SendReport when the Member holds no blinded value.
var ErrNothingToSend = errors.New("member has no blinded value to send")

type heldOffset struct {
	round int
	value int64
}

// MemberOutcome summarizes a Member's round.
type MemberOutcome struct {
	Member MemberID
	State  MemberState
	Gap    GapReason
}

// MemberService runs the Member role: it blinds one reading per round with the
// offset received from its Aggregator and reports the blinded value.
// It is driven by a single-threaded scheduler and is not safe for concurrent use.
type MemberService struct {
	config     *SessionConfig
	id         MemberID
	node       NodeID
	aggregator NodeID
	channel    *Channel
	transport  Transport
	logger     *slog.Logger
	counters   Counters

	round        Round
	source       masking.Source
	state        MemberState
	gap          GapReason
	reading      int64
	blinded      int64
	maskRound    int
	offsetClosed bool
	collectOpen  bool

	// retained holds the offset of the latest distribute-only round until a
	// collect-only round uses it.
	retained *heldOffset
}

// NewMemberService creates a Member reporting to aggregator on channel.
func NewMemberService(config *SessionConfig, id MemberID, aggregator NodeID, channel *Channel, transport Transport, logger *slog.Logger) *MemberService {
	if logger == nil {
		logger = slog.Default()
	}
	node := MemberNode(id)
	return &MemberService{
		config:     config,
		id:         id,
		node:       node,
		aggregator: aggregator,
		channel:    channel,
		transport:  transport,
		logger:     logger.With("node", node),
	}
}

// Node returns the Member's transport address.
func (m *MemberService) Node() NodeID { return m.node }

// ID returns the Member id.
func (m *MemberService) ID() MemberID { return m.id }

// State returns the Member's current state.
func (m *MemberService) State() MemberState { return m.state }

// Counters returns the Member's message counters.
func (m *MemberService) Counters() *Counters { return &m.counters }

// HasRetainedOffset reports whether an offset is held for a later collect-only round.
func (m *MemberService) HasRetainedOffset() bool { return m.retained != nil }

// BeginRound captures the reading for a new round. A reading outside the
// configured range returns a *RangeError and the Member sits the round out.
// In collect-only rounds the retained offset, if any, is applied immediately.
func (m *MemberService) BeginRound(round Round, reading int64, source masking.Source) error {
	m.round = round
	m.source = source
	m.state = MemberIdle
	m.gap = GapNone
	m.reading, m.blinded = 0, 0
	m.offsetClosed = false
	m.collectOpen = false

	if err := checkRange("reading", reading, m.config.ReadingRange); err != nil {
		m.counters.RangeErrors.Inc()
		m.gap = GapReadingOutOfRange
		m.logger.Warn("reading rejected", "round", round.Number, "err", err)
		return err
	}
	m.reading = reading

	if round.Type.Includes(DistributePhase) {
		m.state = MemberAwaitingOffset
		return nil
	}

	if m.retained == nil {
		m.gap = GapNoOffset
		m.logger.Debug("no retained offset for collect round", "round", round.Number)
		return nil
	}
	offset := *m.retained
	m.retained = nil
	m.blind(offset)
	return nil
}

// HandleMessage processes an envelope delivered by the transport.
func (m *MemberService) HandleMessage(payload []byte, from NodeID) {
	m.counters.Received.Inc()

	env, err := UnmarshalEnvelope(payload)
	if err != nil {
		m.counters.countError(err)
		m.logger.Debug("discarding malformed message", "from", from, "err", err)
		return
	}

	if env.Kind != KindOffset || from != m.aggregator || env.Channel != m.channel.ID || env.Member != m.id {
		m.counters.Dropped.Inc()
		m.logger.Debug("discarding unexpected message", "from", from, "kind", env.Kind)
		return
	}

	switch {
	case env.Round < m.round.Number, env.Round == m.round.Number && m.offsetClosed:
		m.counters.Late.Inc()
		m.logger.Debug("discarding late offset", "round", env.Round)
		return
	case env.Round > m.round.Number, m.state != MemberAwaitingOffset:
		m.counters.Dropped.Inc()
		return
	}

	value, err := DecodeScalar(env.Payload)
	if err != nil {
		m.counters.countError(err)
		return
	}
	if err := checkRange("offset", value, m.config.OffsetRange(m.channel.Solo())); err != nil {
		m.counters.RangeErrors.Inc()
		m.logger.Warn("offset rejected", "round", env.Round, "err", err)
		return
	}

	offset := heldOffset{round: env.Round, value: value}
	if m.round.Type == DistributeOnly {
		m.retained = &offset
	}
	m.blind(offset)

	if m.collectOpen {
		m.sendOrLog()
	}
}

func (m *MemberService) blind(offset heldOffset) {
	m.blinded = m.reading + offset.value
	if m.round.Remask {
		m.blinded += m.source.Draw(m.config.RemaskRange)
	}
	m.maskRound = offset.round
	m.state = MemberBlinded
}

// CloseOffsetWindow is called at the distribution deadline. A Member still
// waiting for its offset records a gap; later offsets are counted as late.
func (m *MemberService) CloseOffsetWindow() {
	m.offsetClosed = true
	if m.state == MemberAwaitingOffset {
		m.state = MemberIdle
		m.gap = GapNoOffset
		m.logger.Debug("offset window closed without offset", "round", m.round.Number)
	}
}

// OpenCollect is called at the Member's send time within the collect window.
// A blinded Member reports immediately, otherwise it reports as soon as its
// offset arrives.
func (m *MemberService) OpenCollect() {
	m.collectOpen = true
	if m.state == MemberBlinded {
		m.sendOrLog()
	}
}

// CloseCollect is called at the collect deadline.
func (m *MemberService) CloseCollect() {
	m.collectOpen = false
	if m.state == MemberBlinded && m.gap == GapNone {
		m.gap = GapNotSent
	}
}

func (m *MemberService) sendOrLog() {
	if err := m.SendReport(); err != nil {
		m.logger.Warn("could not send report", "round", m.round.Number, "err", err)
	}
}

// SendReport encodes the blinded value and sends it to the Aggregator.
func (m *MemberService) SendReport() error {
	if m.state != MemberBlinded {
		return ErrNothingToSend
	}

	data, err := MarshalEnvelope(&Envelope{
		Kind:      KindReport,
		Round:     m.round.Number,
		Channel:   m.channel.ID,
		From:      m.node,
		Member:    m.id,
		MaskRound: m.maskRound,
		Payload:   EncodeVector(masking.Vector{m.blinded}),
	})
	if err != nil {
		return err
	}

	if err := m.transport.Send(m.node, m.aggregator, data); err != nil {
		m.counters.Dropped.Inc()
		return fmt.Errorf("sending report: %w", err)
	}

	m.counters.Sent.Inc()
	m.state = MemberSent
	return nil
}

// EndRound discards the reading and blinded value and returns the outcome.
func (m *MemberService) EndRound() MemberOutcome {
	outcome := MemberOutcome{Member: m.id, State: m.state, Gap: m.gap}
	m.state = MemberIdle
	m.gap = GapNone
	m.reading, m.blinded = 0, 0
	m.collectOpen = false
	m.offsetClosed = false
	return outcome
}
