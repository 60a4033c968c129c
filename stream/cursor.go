package stream

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/Neumenon/dson/dson"
)

// StreamCursor tracks per-SID state for stream processing.
// It maintains sequence numbers, state digests, and provides
// helpers for patch verification and acknowledgement.
type StreamCursor struct {
	mu      sync.RWMutex
	cursors map[uint64]*SIDState
}

// SIDState holds state for a single stream ID.
type SIDState struct {
	SID       uint64
	LastSeq   uint64     // Last sequence number seen
	LastAcked uint64     // Last sequence number acknowledged
	StateHash [32]byte   // Digest of State, for patch verification
	HasState  bool       // Whether StateHash is valid
	State     dson.Value // Current state document (optional)
	Final     bool       // Whether stream has ended
}

// NewStreamCursor creates a new stream cursor.
func NewStreamCursor() *StreamCursor {
	return &StreamCursor{
		cursors: make(map[uint64]*SIDState),
	}
}

// Get returns the state for a SID, creating it if needed.
func (sc *StreamCursor) Get(sid uint64) *SIDState {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	state, ok := sc.cursors[sid]
	if !ok {
		state = &SIDState{SID: sid}
		sc.cursors[sid] = state
	}
	return state
}

// GetReadOnly returns the state for a SID without creating it.
func (sc *StreamCursor) GetReadOnly(sid uint64) *SIDState {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.cursors[sid]
}

// Delete removes state for a SID.
func (sc *StreamCursor) Delete(sid uint64) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	delete(sc.cursors, sid)
}

// AllSIDs returns all tracked SIDs.
func (sc *StreamCursor) AllSIDs() []uint64 {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	sids := make([]uint64, 0, len(sc.cursors))
	for sid := range sc.cursors {
		sids = append(sids, sid)
	}
	return sids
}

// isControl reports whether frames of kind k are outside the sequence.
func isControl(k FrameKind) bool {
	return k == KindAck || k == KindPing || k == KindPong
}

// ProcessFrame checks a frame against the cursor and advances LastSeq.
// Returns an error if:
//   - Sequence number is not monotonic (gap or duplicate)
//   - Base digest mismatch for patch frames
//
// Ack, ping and pong frames are not sequenced; an ack records the
// acknowledged sequence instead.
func (sc *StreamCursor) ProcessFrame(frame *Frame) error {
	state := sc.Get(frame.SID)
	if isControl(frame.Kind) {
		if frame.Kind == KindAck {
			sc.Ack(frame.SID, frame.Seq)
		}
		return nil
	}

	if frame.Seq != 0 && frame.Seq <= state.LastSeq {
		return fmt.Errorf("sequence not monotonic: got %d, last was %d", frame.Seq, state.LastSeq)
	}
	if state.LastSeq > 0 && frame.Seq != state.LastSeq+1 {
		return fmt.Errorf("sequence gap: expected %d, got %d", state.LastSeq+1, frame.Seq)
	}

	if frame.Kind == KindPatch && frame.Base != nil {
		if !state.HasState {
			return fmt.Errorf("cannot verify base: no state hash for SID %d", frame.SID)
		}
		if !VerifyBase(state.StateHash, *frame.Base) {
			return &BaseMismatchError{Expected: *frame.Base, Got: state.StateHash}
		}
	}

	state.LastSeq = frame.Seq
	if frame.IsFinal() {
		state.Final = true
	}
	return nil
}

// Apply processes a frame and, for doc and patch frames, decodes the
// payload and updates the SID's state.
func (sc *StreamCursor) Apply(frame *Frame) error {
	if err := sc.ProcessFrame(frame); err != nil {
		return err
	}
	if frame.Kind != KindDoc && frame.Kind != KindPatch {
		return nil
	}
	v, err := frame.Value()
	if err != nil {
		return fmt.Errorf("sid %d seq %d: %w", frame.SID, frame.Seq, err)
	}
	if frame.Kind == KindPatch {
		v, err = MergePatch(sc.Get(frame.SID).State, v)
		if err != nil {
			return fmt.Errorf("sid %d seq %d: %w", frame.SID, frame.Seq, err)
		}
	}
	return sc.SetState(frame.SID, v)
}

// SetState sets the current state and computes its digest.
// Use this after applying a doc snapshot or patch.
func (sc *StreamCursor) SetState(sid uint64, value dson.Value) error {
	hash, err := StateHash(value)
	if err != nil {
		return fmt.Errorf("hash state of sid %d: %w", sid, err)
	}
	state := sc.Get(sid)
	sc.mu.Lock()
	state.State = value
	state.StateHash = hash
	state.HasState = true
	sc.mu.Unlock()
	return nil
}

// SetStateHash sets the state digest directly.
// Use this when you have pre-computed the hash.
func (sc *StreamCursor) SetStateHash(sid uint64, hash [32]byte) {
	state := sc.Get(sid)
	sc.mu.Lock()
	state.StateHash = hash
	state.HasState = true
	sc.mu.Unlock()
}

// Ack marks a sequence as acknowledged.
func (sc *StreamCursor) Ack(sid, seq uint64) {
	state := sc.Get(sid)
	sc.mu.Lock()
	if seq > state.LastAcked {
		state.LastAcked = seq
	}
	sc.mu.Unlock()
}

// PendingAcks returns sequences that have been seen but not acked.
func (sc *StreamCursor) PendingAcks(sid uint64) []uint64 {
	state := sc.GetReadOnly(sid)
	if state == nil {
		return nil
	}
	if state.LastSeq <= state.LastAcked {
		return nil
	}

	pending := make([]uint64, 0, state.LastSeq-state.LastAcked)
	for seq := state.LastAcked + 1; seq <= state.LastSeq; seq++ {
		pending = append(pending, seq)
	}
	return pending
}

// NeedsResync returns true if the SID has no verified state.
func (sc *StreamCursor) NeedsResync(sid uint64) bool {
	state := sc.GetReadOnly(sid)
	if state == nil {
		return true
	}
	return !state.HasState
}

// MergePatch returns state with the members of patch applied: a member set
// to null is removed, any other member replaces or appends. Both values
// must be string-keyed objects; a nil state is treated as empty. The
// state's header is kept unless the patch carries one.
func MergePatch(state, patch dson.Value) (dson.Value, error) {
	p, ok := patch.(*dson.Object[string])
	if !ok {
		return nil, fmt.Errorf("patch must be an object, got %T", patch)
	}
	var s *dson.Object[string]
	switch x := state.(type) {
	case nil:
		s = dson.NewObject[string](dson.Header{})
	case *dson.Object[string]:
		s = x
	default:
		return nil, fmt.Errorf("cannot patch a %T state", state)
	}

	h := s.Header
	if !p.Header.IsZero() {
		h = p.Header
	}
	out := dson.NewObject[string](h)
	s.Range(func(k string, v dson.Value) bool {
		if pv, ok := p.Get(k); ok {
			v = pv
		}
		if _, isNull := v.(dson.Null); !isNull {
			out.Set(k, v)
		}
		return true
	})
	p.Range(func(k string, v dson.Value) bool {
		if _, inState := s.Get(k); inState {
			return true
		}
		if _, isNull := v.(dson.Null); !isNull {
			out.Set(k, v)
		}
		return true
	})
	return out, nil
}

// ============================================================
// Frame Handler - functional processing helper
// ============================================================

// FrameHandler dispatches decoded frames to callbacks while tracking
// per-SID state.
type FrameHandler struct {
	Cursor *StreamCursor
	// Logger receives dropped-frame and gap events. Nil discards them.
	Logger *slog.Logger

	// Callbacks (optional). Doc and patch callbacks run after the state
	// has been updated.
	OnDoc   func(sid, seq uint64, state *SIDState) error
	OnPatch func(sid, seq uint64, patch dson.Value, state *SIDState) error
	OnRow   func(sid, seq uint64, row dson.Value) error
	OnEvent func(sid, seq uint64, event *dson.Object[string]) error
	OnAck   func(sid, seq uint64, state *SIDState) error
	OnErr   func(sid, seq uint64, event *dson.Object[string]) error
	OnFinal func(sid uint64, state *SIDState) error

	OnSeqGap       func(sid uint64, expected, got uint64) error
	OnBaseMismatch func(sid uint64, frame *Frame) error
}

// NewFrameHandler creates a handler with a fresh cursor.
func NewFrameHandler() *FrameHandler {
	return &FrameHandler{
		Cursor: NewStreamCursor(),
		Logger: slog.New(slog.DiscardHandler),
	}
}

// Handle processes a frame and calls the matching callback. Duplicate or
// out of order frames are dropped. A gap is reported to OnSeqGap and then
// accepted.
func (h *FrameHandler) Handle(frame *Frame) error {
	log := h.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	state := h.Cursor.Get(frame.SID)

	switch frame.Kind {
	case KindPing, KindPong:
		return nil
	case KindAck:
		h.Cursor.Ack(frame.SID, frame.Seq)
		if h.OnAck != nil {
			return h.OnAck(frame.SID, frame.Seq, state)
		}
		return nil
	}

	if frame.Seq != 0 && state.LastSeq > 0 {
		if frame.Seq <= state.LastSeq {
			log.Debug("dropping stale frame", "sid", frame.SID, "seq", frame.Seq, "last", state.LastSeq)
			return nil
		}
		if frame.Seq != state.LastSeq+1 {
			log.Warn("sequence gap", "sid", frame.SID, "expected", state.LastSeq+1, "got", frame.Seq)
			if h.OnSeqGap != nil {
				if err := h.OnSeqGap(frame.SID, state.LastSeq+1, frame.Seq); err != nil {
					return err
				}
			}
		}
	}

	if frame.Kind == KindPatch && frame.Base != nil && state.HasState {
		if !VerifyBase(state.StateHash, *frame.Base) {
			if h.OnBaseMismatch != nil {
				return h.OnBaseMismatch(frame.SID, frame)
			}
			return &BaseMismatchError{Expected: *frame.Base, Got: state.StateHash}
		}
	}
	state.LastSeq = frame.Seq

	v, err := frame.Value()
	if err != nil {
		return fmt.Errorf("sid %d seq %d: decode %s payload: %w", frame.SID, frame.Seq, frame.Kind, err)
	}

	switch frame.Kind {
	case KindDoc:
		if err = h.Cursor.SetState(frame.SID, v); err == nil && h.OnDoc != nil {
			err = h.OnDoc(frame.SID, frame.Seq, state)
		}
	case KindPatch:
		var merged dson.Value
		if merged, err = MergePatch(state.State, v); err == nil {
			if err = h.Cursor.SetState(frame.SID, merged); err == nil && h.OnPatch != nil {
				err = h.OnPatch(frame.SID, frame.Seq, v, state)
			}
		}
	case KindRow:
		if h.OnRow != nil {
			err = h.OnRow(frame.SID, frame.Seq, v)
		}
	case KindEvent, KindErr:
		obj, ok := v.(*dson.Object[string])
		if !ok {
			return fmt.Errorf("sid %d seq %d: %s payload must be an object, got %T", frame.SID, frame.Seq, frame.Kind, v)
		}
		if frame.Kind == KindEvent && h.OnEvent != nil {
			err = h.OnEvent(frame.SID, frame.Seq, obj)
		} else if frame.Kind == KindErr && h.OnErr != nil {
			err = h.OnErr(frame.SID, frame.Seq, obj)
		}
	default:
		log.Debug("ignoring frame of unknown kind", "sid", frame.SID, "kind", frame.Kind)
	}
	if err != nil {
		return err
	}

	if frame.IsFinal() {
		state.Final = true
		if h.OnFinal != nil {
			return h.OnFinal(frame.SID, state)
		}
	}
	return nil
}
