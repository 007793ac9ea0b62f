package lacore

/*------------------------------------------------------------------
 *
 * Purpose:	The contract this core consumes from, and produces to,
 *		the host instrument framework.  See spec.md section 6
 *		("Framework contract").
 *
 * Description:	Device discovery, the framework's CLI/config surface and
 *		generic USB enumeration are all external collaborators
 *		(spec.md section 1); this file only defines the narrow
 *		seam this core actually touches.
 *
 *------------------------------------------------------------------*/

// MatchKind is one trigger condition on one channel.
type MatchKind int

const (
	MatchZero MatchKind = iota
	MatchOne
	MatchRising
	MatchFalling
)

// Match pairs a channel index with the condition it must satisfy.
type Match struct {
	Channel int
	Kind    MatchKind
}

// Stage is an ordered group of matches; spec.md 4.4 admits only one stage.
type Stage struct {
	Matches []Match
}

// TriggerDescription is the framework's trigger specification, consumed
// by TriggerBuilder.
type TriggerDescription struct {
	Stages []Stage
}

// Feed is the session feed the framework exposes for delivering decoded
// samples and markers, spec.md section 6 ("Framework contract (produced)").
// The df-logic packet's unit_size is 2 bytes in the 16-channel modes and
// 1 byte in the 8/4-channel modes (one sample per byte); no 4-byte units
// are produced.
type Feed interface {
	DFHeader()
	DFLogic(unitSize int, payload []byte)
	DFTrigger()
	DFFrameBegin()
	DFFrameEnd()
	DFEnd()
}

// PollRegistrar lets AcqCoordinator register/unregister the periodic
// poll callback the framework drives acquisition progress with,
// spec.md section 5 ("the poll tick is expected to bound its work").
type PollRegistrar interface {
	RegisterPoll(period uint32, fn func())
	UnregisterPoll()
}
