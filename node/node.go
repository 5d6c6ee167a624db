// Package node wires a Datalink, a tsm.Manager, an address.Table, and an
// apdu.Dispatcher into a single-threaded BACnet device, generalizing a
// server's Option func(*Server)-style functional-options pattern and
// ListenAndServe shape from a per-connection TCP accept loop into a
// single connectionless receive loop serialized behind one mutex, so
// exactly one goroutine ever drives the node's state machines.
package node

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/caio-sobreiro/bacnetstack/address"
	"github.com/caio-sobreiro/bacnetstack/apdu"
	"github.com/caio-sobreiro/bacnetstack/bnerror"
	"github.com/caio-sobreiro/bacnetstack/datalink"
	"github.com/caio-sobreiro/bacnetstack/metrics"
	"github.com/caio-sobreiro/bacnetstack/segment"
	"github.com/caio-sobreiro/bacnetstack/service"
	"github.com/caio-sobreiro/bacnetstack/tsm"
	"github.com/caio-sobreiro/bacnetstack/types"
)

// Option configures a Node, per server.Option's pattern.
type Option func(*Node)

// WithLogger overrides the node's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Node) { n.logger = logger }
}

// WithMetrics attaches a metrics.Metrics collector set.
func WithMetrics(m *metrics.Metrics) Option {
	return func(n *Node) { n.metrics = m }
}

// WithTSMConfig overrides the transaction timing parameters (defaults
// to tsm.DefaultConfig()).
func WithTSMConfig(cfg tsm.Config) Option {
	return func(n *Node) { n.tsmConfig = cfg }
}

// WithBindRequestRetryInterval overrides the Who-Is throttling interval
// used by the address table (default 30s).
func WithBindRequestRetryInterval(d time.Duration) Option {
	return func(n *Node) { n.bindRetryInterval = d }
}

// WithLocalMaxAPDU overrides this node's own max-APDU-length-accepted
// (default 1476, the largest BACnet/IP size code).
func WithLocalMaxAPDU(v uint16) Option {
	return func(n *Node) { n.localMaxAPDU = v }
}

// WithSegmentationSupport enables accepting and reassembling segmented
// requests (default: disabled, segmented requests Abort).
func WithSegmentationSupport(windowSize uint8) Option {
	return func(n *Node) { n.segmentationSupported = true; n.localWindowSize = windowSize }
}

// reassemblyKey identifies one segmented transfer. outgoing transfers
// key by (peer, invoke ID), since an invoke ID this node allocated is
// only unique per peer. Incoming reassembly (see Deliver) keys by
// invoke ID alone, leaving peer at its zero value: the
// apdu.SegmentReassembler interface's Deliver signature has no peer
// parameter to thread through, which matches the TSM's own
// invoke-ID-only correlation for inbound confirmed requests. Two
// distinct peers reusing the same invoke ID mid-transfer concurrently
// could collide; accepted for a single-device core.
type reassemblyKey struct {
	peer address.Address
	invokeID uint8
}

// Node is the single-device runtime: it owns the
// datalink, the TSM, the address binding table, and the service
// dispatch registry, and drives them from one receive loop plus a
// periodic timer tick, so no two goroutines ever touch TSM/segment
// state concurrently.
type Node struct {
	mu sync.Mutex

	dl datalink.Datalink
	TSM *tsm.Manager
	Addresses *address.Table
	Registry *apdu.Registry
	dispatcher *apdu.Dispatcher

	deviceInstance uint32
	localMaxAPDU uint16

	segmentationSupported bool
	localWindowSize uint8
	reassembly map[reassemblyKey]*segment.IncomingReassembly
	outgoing map[reassemblyKey]*outgoingTransfer

	logger *slog.Logger
	metrics *metrics.Metrics
	tsmConfig tsm.Config
	bindRetryInterval time.Duration
}

// New builds a Node around dl for deviceInstance, wiring the TSM,
// address table, and dispatcher registry together. registry must have
// its service handlers set before Run is called (cmd/bacnetd shows the
// wiring with the service package's codecs).
func New(dl datalink.Datalink, deviceInstance uint32, registry *apdu.Registry, opts ...Option) *Node {
	n := &Node{
		dl: dl,
		Registry: registry,
		deviceInstance: deviceInstance,
		localMaxAPDU: 1476,
		tsmConfig: tsm.DefaultConfig(),
		bindRetryInterval: 30 * time.Second,
		reassembly: make(map[reassemblyKey]*segment.IncomingReassembly),
		outgoing: make(map[reassemblyKey]*outgoingTransfer),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}

	n.Addresses = address.NewTable(int64(n.bindRetryInterval / time.Second))
	if n.metrics != nil {
		n.Addresses.OnInsert = n.metrics.AddressCacheInserts.Inc
		n.Addresses.OnEvict = n.metrics.AddressCacheEvictions.Inc
	}
	n.Addresses.OnWhoIs = n.sendWhoIs

	send := func(peer address.Address, apduBytes []byte) (int, error) {
		return n.sendFrame(peer, apduBytes)
	}
	n.TSM = tsm.NewManager(n.tsmConfig, send)
	n.TSM.OnRetry = func(invokeID uint8) {
		if n.metrics != nil {
			n.metrics.Retransmissions.Inc()
		}
	}
	n.TSM.OnFailure = func(invokeID uint8) {
		if n.metrics != nil {
			n.metrics.TransactionTimeouts.Inc()
		}
	}
	n.TSM.OnExhausted = func() {
		if n.metrics != nil {
			n.metrics.InvokeIDExhaustion.Inc()
		}
	}

	n.dispatcher = &apdu.Dispatcher{
		Registry: n.Registry,
		TSM: n.TSM,
		Send: n.sendFrame,
	}
	if n.segmentationSupported {
		n.dispatcher.Reassembler = n
	}
	return n
}

// ErrNoFreeInvokeID is returned by SendConfirmedRequest when the TSM
// slot table is full.
var ErrNoFreeInvokeID = errors.New("node: no free invoke id")

// SendConfirmedRequest originates a Confirmed-Request to peer: allocates
// an invoke ID, splits servicePayload
// across segments if it exceeds peerMaxAPDU, and arms the TSM timeout.
// Returns the allocated invoke ID so callers can correlate the eventual
// ack/error/reject/abort via the Registry's ack/error handlers.
func (n *Node) SendConfirmedRequest(peer address.Address, serviceChoice uint8, servicePayload []byte, peerMaxAPDU uint16, peerSegmentationOK bool) (uint8, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	invokeID, ok := n.TSM.NextFreeInvokeID()
	if !ok {
		return 0, ErrNoFreeInvokeID
	}

	segSize := segment.SegmentSize(peerMaxAPDU, n.localMaxAPDU)
	needsSegmentation := peerSegmentationOK && segSize > 0 && len(servicePayload) > int(segSize)

	if !needsSegmentation {
		hdr := apdu.ConfirmedHeader{
			MaxSegments: 0, MaxAPDU: n.localMaxAPDU, InvokeID: invokeID, ServiceChoice: serviceChoice,
		}
		frame := append(apdu.EncodeConfirmedHeader(hdr), servicePayload...)
		if _, err := n.TSM.SetConfirmedTransaction(invokeID, peer, frame); err != nil {
			return invokeID, err
		}
		return invokeID, nil
	}

	segments := segment.Split(servicePayload, segSize)
	transfer := &outgoingTransfer{
		window: segment.NewOutgoingWindow(segments, n.localWindowSize),
		serviceChoice: serviceChoice,
	}
	n.TSM.MarkSegmented(invokeID, segSize, n.localWindowSize)
	key := reassemblyKey{peer: peer, invokeID: invokeID}
	n.outgoing[key] = transfer
	n.sendNextWindow(peer, key, transfer)
	return invokeID, nil
}

// outgoingTransfer pairs a segmentation window with the service choice
// every continuation segment's header must repeat, per ASHRAE 135
// clause 20.1.2.4.
type outgoingTransfer struct {
	window *segment.OutgoingWindow
	serviceChoice uint8
}

// sendFrame prepends the unrouted NPDU header and writes apdu to dst.
func (n *Node) sendFrame(dst address.Address, apduBytes []byte) error {
	frame := append(apdu.EncodeNPDU(apdu.NPDUData{}), apduBytes...)
	_, err := n.dl.SendPDU(dst, frame)
	return err
}

// sendWhoIs is wired as the address table's bind_request hook: it
// broadcasts a Who-Is restricted to [low, high] (here always a single
// device instance).
func (n *Node) sendWhoIs(low, high uint32) {
	if n.metrics != nil {
		n.metrics.WhoIsEmitted.Inc()
	}
	body := service.EncodeWhoIsRequest(service.WhoIsRequest{HasLimits: true, Low: low, High: high})
	hdr := apdu.EncodeUnconfirmedHeader(apdu.UnconfirmedHeader{ServiceChoice: types.ServiceWhoIs})
	n.sendFrame(n.dl.GetBroadcastAddress(), append(hdr, body...))
}

// WhoIsBroadcast sends an unrestricted (or, when hasLimits is true,
// [low, high] range-restricted) Who-Is, for tools that want to
// discover devices without waiting on the address table's own
// bind-request throttling.
func (n *Node) WhoIsBroadcast(hasLimits bool, low, high uint32) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.metrics != nil {
		n.metrics.WhoIsEmitted.Inc()
	}
	body := service.EncodeWhoIsRequest(service.WhoIsRequest{HasLimits: hasLimits, Low: low, High: high})
	hdr := apdu.EncodeUnconfirmedHeader(apdu.UnconfirmedHeader{ServiceChoice: types.ServiceWhoIs})
	n.sendFrame(n.dl.GetBroadcastAddress(), append(hdr, body...))
}

// AnnounceIAm broadcasts an I-Am for this device, per ASHRAE 135 clause
// 16.10 — callers invoke this on startup and whenever replying to a
// received Who-Is (the latter wiring lives in the caller's registered
// Who-Is handler, which has the requesting segment-matching logic this
// package deliberately does not own).
func (n *Node) AnnounceIAm(maxAPDU uint32, seg types.Segmentation, vendorID uint32) {
	body := service.EncodeIAmRequest(service.IAmRequest{
		DeviceInstance: n.deviceInstance, MaxAPDU: maxAPDU, Segmentation: seg, VendorID: vendorID,
	})
	hdr := apdu.EncodeUnconfirmedHeader(apdu.UnconfirmedHeader{ServiceChoice: types.ServiceIAm})
	n.sendFrame(n.dl.GetBroadcastAddress(), append(hdr, body...))
}

// Run drives the receive loop until ctx is cancelled.
// Incoming frames and the timer tick are handled on this goroutine;
// SendConfirmedRequest and WhoIsBroadcast run on their callers'
// goroutines and take the same n.mu that guards TSM, address-table,
// and segment state.
func (n *Node) Run(ctx context.Context) error {
	frames := make(chan frame, 16)
	errCh := make(chan error, 1)
	go n.receiveLoop(ctx, frames, errCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	last := time.Now()
	var addrMillis int64

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case f := <-frames:
			n.handleFrame(f.src, f.payload)
		case now := <-ticker.C:
			elapsed := now.Sub(last)
			last = now
			n.mu.Lock()
			n.TSM.TimerMilliseconds(uint32(elapsed.Milliseconds()))
			addrMillis += elapsed.Milliseconds()
			secs := addrMillis / 1000
			addrMillis -= secs * 1000
			n.Addresses.Timer(int32(secs))
			n.mu.Unlock()
		}
	}
}

type frame struct {
	src address.Address
	payload []byte
}

func (n *Node) receiveLoop(ctx context.Context, out chan<- frame, errCh chan<- error) {
	for {
		src, payload, err := n.dl.Receive()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			select {
			case errCh <- err:
			default:
			}
			return
		}
		select {
		case out <- frame{src: src, payload: payload}:
		case <-ctx.Done():
			return
		}
	}
}

func (n *Node) handleFrame(src address.Address, raw []byte) {
	consumed, _, err := apdu.DecodeNPDU(raw)
	if err != nil {
		n.logger.Warn("node: dropping malformed NPDU", "error", err)
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(raw) > consumed && apdu.PDUType(raw[consumed]) == types.PDUSegmentAck {
		n.handleSegmentAck(src, raw[consumed:])
		return
	}
	n.dispatcher.Dispatch(src, raw[consumed:])
}

func (n *Node) handleSegmentAck(src address.Address, buf []byte) {
	_, hdr, err := apdu.DecodeSegmentAckHeader(buf)
	if err != nil {
		return
	}
	key := reassemblyKey{peer: src, invokeID: hdr.InvokeID}
	transfer, ok := n.outgoing[key]
	if !ok {
		return
	}
	if hdr.NegativeAck && n.metrics != nil {
		n.metrics.SegmentRetransmissions.Inc()
	}
	transfer.window.Ack(hdr.SequenceNumber, hdr.NegativeAck)
	n.sendNextWindow(src, key, transfer)
}

func (n *Node) sendNextWindow(peer address.Address, key reassemblyKey, transfer *outgoingTransfer) {
	batch := transfer.window.NextWindow()
	for _, seg := range batch {
		hdr := apdu.ConfirmedHeader{
			Segmented: true, MoreFollows: seg.MoreFollows,
			SegmentedAccepted: true, MaxSegments: 7, MaxAPDU: n.localMaxAPDU,
			InvokeID: key.invokeID, SequenceNumber: seg.SequenceNumber,
			WindowSize: n.localWindowSize, ServiceChoice: transfer.serviceChoice,
		}
		frame := append(apdu.EncodeConfirmedHeader(hdr), seg.Payload...)
		n.sendFrame(peer, frame)
	}
	if transfer.window.Done() {
		n.TSM.MarkAwaitingConfirmation(key.invokeID)
		delete(n.outgoing, key)
	}
}

// Deliver implements apdu.SegmentReassembler, called by the dispatcher
// under n.mu (held by handleFrame's caller chain).
func (n *Node) Deliver(invokeID uint8, sequenceNumber uint8, moreFollows bool, payload []byte) (complete bool, assembled []byte, ackRequired bool, ackSeq uint8, ackNegative bool, abortReason bnerror.AbortReason, aborted bool) {
	key := reassemblyKey{invokeID: invokeID}
	r, ok := n.reassembly[key]
	if !ok {
		r = segment.NewIncomingReassembly(n.localWindowSize)
		n.reassembly[key] = r
	}
	result := r.Deliver(segment.Segment{SequenceNumber: sequenceNumber, MoreFollows: moreFollows, Payload: payload})
	if result.Abort != nil {
		delete(n.reassembly, key)
		return false, nil, false, 0, false, result.Abort.Reason, true
	}
	if result.AckNegative && n.metrics != nil {
		n.metrics.SegmentNegativeAcks.Inc()
	}
	if result.Complete {
		delete(n.reassembly, key)
	}
	return result.Complete, result.Assembled, result.AckRequired, result.AckSequence, result.AckNegative, 0, false
}

