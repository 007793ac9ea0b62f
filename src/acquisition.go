package lacore

/*------------------------------------------------------------------
 *
 * Purpose:	AcqCoordinator: the single-threaded cooperative state
 *		machine driving acquisition start, the periodic poll tick,
 *		stop/cancellation and the handoff into SampleDecoder.  See
 *		spec.md section 4.5.
 *
 *------------------------------------------------------------------*/

import (
	"time"
)

// acqPhase is one state of the Uninitialized -> Config -> Idle ->
// Capture -> (Stopping ->) Download -> Idle machine, spec.md 4.5.
type acqPhase int

const (
	phaseUninitialized acqPhase = iota
	phaseConfig
	phaseIdle
	phaseCapture
	phaseStopping
	phaseDownload
)

func (p acqPhase) String() string {
	switch p {
	case phaseUninitialized:
		return "uninitialized"
	case phaseConfig:
		return "config"
	case phaseIdle:
		return "idle"
	case phaseCapture:
		return "capture"
	case phaseStopping:
		return "stopping"
	case phaseDownload:
		return "download"
	default:
		return "unknown"
	}
}

// acqPollPeriodMs is the periodic callback period requested from the
// framework, spec.md 4.5 step 9.
const acqPollPeriodMs = 50

// stoppingPollBudget bounds the busy-poll backoff in phaseStopping,
// spec.md 4.5's poll tick description ("bounded wait with backoff").
const stoppingPollBudget = 40

// acqState is DeviceContext's acquisition run state.
type acqState struct {
	phase acqPhase

	feed      Feed
	registrar PollRegistrar

	trig       triggerDescriptor
	hasTrigger bool

	timeoutStarted bool
	hasLimit       bool
	limitDuration  time.Duration
	deadline       time.Time
	slack          time.Duration

	triggeredSeen bool // hardware-reported triggered bit observed set
	stopRequested bool
	aborted       bool

	stoppingPolls int

	decoder   *sampleDecoder
	streaming *streamingDecoder
	regs      decoderRegs
}

const (
	triggerIOTrigOutEnable byte = 0x01
)

// StartAcquisition implements spec.md 4.5's ten-step acquisition-start
// sequence.
func StartAcquisition(dc *DeviceContext, td TriggerDescription, feed Feed, registrar PollRegistrar, sampleLimit uint64, msecLimit uint64) error {
	if dc.state.phase != phaseIdle {
		return bugErr("acquisition.start", "cannot start acquisition from phase %v", dc.state.phase)
	}
	if dc.SamplerateHz == 0 {
		return argErr("acquisition.start", "samplerate has not been configured")
	}

	// step 1: convert the framework trigger to the internal descriptor.
	var fastMode bool
	var effectiveHz = dc.SamplerateHz
	if dc.Model.Family == FamilySigma {
		fastMode = effectiveHz >= 100_000_000
	}
	var d, derr = toDescriptor(td, dc.effectiveChannelCount, dc.enabledChannelMask, fastMode)
	if derr != nil {
		return derr
	}

	// step 2 is already folded into SetSamplerate: the variant/divider was
	// selected and, for SIGMA, uploaded there. Recompute the divider here
	// for LA2016 since it depends only on the already-configured rate.
	var upload func(Transport) error
	var uerr error
	upload, uerr = BuildTrigger(dc.Model.Family, effectiveHz, dc.effectiveChannelCount, dc.enabledChannelMask, td)
	if uerr != nil {
		return uerr
	}

	var rio any
	switch dc.Model.Family {
	case FamilySigma:
		rio = NewSigmaRegisterIO(dc.Transport)
	default:
		rio = NewLA2016RegisterIO(dc.Transport)
	}

	// step 3: program the clock divider.
	if dc.Model.Family == FamilySigma {
		var sr = rio.(*SigmaRegisterIO)
		if err := sr.WriteReg(sigmaRegClockSelect, []byte{byte(dc.sigmaVariant)}); err != nil {
			return err
		}
	} else {
		var lr = rio.(*LA2016RegisterIO)
		var divider = la2016ClockDivider(dc.Model.BaseClockHz, effectiveHz)
		if err := lr.WriteReg32(laRegSampling, divider); err != nil {
			return err
		}
	}

	// step 4: build and upload the trigger representation.
	if err := upload(dc.Transport); err != nil {
		return err
	}

	// step 5: default trigger-in/out configuration (no external trigger
	// input pin, trigger-out pin enabled). The concrete register for this
	// is not enumerated for either family in the source this core was
	// built from; both families reuse their pin-view/capture-mode
	// register for it, spec.md section 9.
	if dc.Model.Family == FamilySigma {
		var sr = rio.(*SigmaRegisterIO)
		if err := sr.WriteReg(sigmaRegPinView, []byte{triggerIOTrigOutEnable}); err != nil {
			return err
		}
	} else {
		var lr = rio.(*LA2016RegisterIO)
		if err := lr.WriteReg(laRegCaptMode, []byte{triggerIOTrigOutEnable}); err != nil {
			return err
		}
	}

	// step 6: post-trigger position register.
	var postTrigger = byte(dc.CaptureRatio * 255 / 100)
	if dc.Model.Family == FamilySigma {
		var sr = rio.(*SigmaRegisterIO)
		if err := sr.WriteReg(sigmaRegPostTrigger, []byte{postTrigger}); err != nil {
			return err
		}
	}

	// step 7: mode register TRG_RESET | SDRAM_WRITE_ENABLE [| TRG_ENABLE].
	var modeByte = modeTriggerReset | modeSDRAMWriteEnable
	if d.useTriggers {
		modeByte |= modeTriggerEnable
	}
	if dc.Model.Family == FamilySigma {
		var sr = rio.(*SigmaRegisterIO)
		if err := sr.WriteReg(sigmaRegMode, []byte{modeByte}); err != nil {
			return err
		}
	} else {
		var lr = rio.(*LA2016RegisterIO)
		if err := lr.WriteReg32(laRegRun, uint32(modeByte)); err != nil {
			return err
		}
	}

	// step 8: df-header.
	feed.DFHeader()

	// step 9: register the periodic poll callback.
	var st = &acqState{
		phase:      phaseCapture,
		feed:       feed,
		registrar:  registrar,
		trig:       d,
		hasTrigger: d.useTriggers,
	}
	dc.state = st
	registrar.RegisterPoll(acqPollPeriodMs, func() { pollTick(dc) })

	// step 10: acquisition timeout, plus the worst-case RLE-pipeline
	// flush slack.
	var limitMs uint64
	var haveLimit bool
	if sampleLimit != 0 {
		limitMs = sampleLimit * 1000 / dc.SamplerateHz
		haveLimit = true
	}
	if msecLimit != 0 && (!haveLimit || msecLimit < limitMs) {
		limitMs = msecLimit
		haveLimit = true
	}
	st.slack = time.Duration(2*tsRolloverPeriods*1000/dc.SamplerateHz) * time.Millisecond
	st.hasLimit = haveLimit
	if haveLimit {
		st.limitDuration = time.Duration(limitMs) * time.Millisecond
	}
	if !d.useTriggers {
		st.timeoutStarted = true
		if haveLimit {
			st.deadline = time.Now().Add(st.limitDuration)
		}
	}

	dc.Logger.Debug("acquisition started", "samplerate", dc.SamplerateHz, "triggers", d.useTriggers)
	return nil
}

// Stop requests a graceful stop, observed by the next poll tick, spec.md
// section 5 ("the framework's stop request is observed by the next poll
// tick").
func Stop(dc *DeviceContext) {
	if dc.state.phase == phaseCapture {
		dc.state.stopRequested = true
	}
}

// Abort cancels any in-flight transfer and frees decoder state without
// emitting df-end, spec.md section 5.
func Abort(dc *DeviceContext) {
	if dc.state.registrar != nil {
		dc.state.registrar.UnregisterPoll()
	}
	dc.state.aborted = true
	dc.state.decoder = nil
	dc.state.streaming = nil
	dc.state.phase = phaseIdle
}

// pollTick is the periodic callback, spec.md 4.5's "poll tick" rules.
func pollTick(dc *DeviceContext) {
	var st = dc.state
	switch st.phase {
	case phaseCapture:
		tickCapture(dc, st)
	case phaseStopping:
		tickStopping(dc, st)
	case phaseDownload:
		tickDownload(dc, st)
	case phaseIdle:
		return
	}
}

func tickCapture(dc *DeviceContext, st *acqState) {
	if st.stopRequested {
		st.phase = phaseStopping
		st.stoppingPolls = 0
		return
	}

	if st.hasTrigger {
		var modeByte, err = readModeByteFor(dc)
		if err != nil {
			dc.Logger.Error("acquisition poll: reading mode register failed", "err", err)
			return
		}
		var triggered = modeByte&modeReadTriggered != 0
		if triggered && !st.triggeredSeen {
			st.triggeredSeen = true
			st.timeoutStarted = true
			if st.hasLimit {
				st.deadline = time.Now().Add(st.limitDuration)
			}
		}
		var round = modeByte&modeReadRound != 0
		if round && !st.triggeredSeen {
			// the ring buffer has filled and no trigger was ever seen;
			// protect against an infinite wait, spec.md 4.5 poll tick.
			transitionToDownload(dc, st)
			return
		}
	}

	if st.timeoutStarted && st.hasLimit && time.Now().After(st.deadline.Add(st.slack)) {
		transitionToDownload(dc, st)
	}
}

func tickStopping(dc *DeviceContext, st *acqState) {
	var rio any
	if dc.Model.Family == FamilySigma {
		rio = NewSigmaRegisterIO(dc.Transport)
	} else {
		rio = NewLA2016RegisterIO(dc.Transport)
	}

	if st.stoppingPolls == 0 {
		var modeByte = modeForceStop | modeSDRAMWriteEnable
		var err error
		if sr, ok := rio.(*SigmaRegisterIO); ok {
			err = sr.WriteReg(sigmaRegMode, []byte{modeByte})
		} else {
			err = rio.(*LA2016RegisterIO).WriteReg32(laRegRun, uint32(modeByte))
		}
		if err != nil {
			dc.Logger.Error("acquisition stop: writing FORCESTOP failed", "err", err)
		}
	}

	var modeRead, err = readModeByteFor(dc)
	if err != nil {
		dc.Logger.Error("acquisition stop: reading mode register failed", "err", err)
		st.stoppingPolls++
		if st.stoppingPolls >= stoppingPollBudget {
			transitionToDownload(dc, st)
		}
		return
	}
	st.stoppingPolls++
	if modeRead&modeReadPostTriggered != 0 || st.stoppingPolls >= stoppingPollBudget {
		transitionToDownload(dc, st)
	}
}

func readModeByteFor(dc *DeviceContext) (byte, error) {
	if dc.Model.Family == FamilySigma {
		return newSigmaDecoderRegs(dc.Transport).ReadModeByte()
	}
	return newLA2016DecoderRegs(dc.Transport).ReadModeByte()
}

func transitionToDownload(dc *DeviceContext, st *acqState) {
	st.phase = phaseDownload

	if !dc.Model.HasSampleMemory {
		st.feed.DFFrameBegin()
		st.streaming = newStreamingDecoder(dc.Transport, st.feed, dc.enabledChannelMask, dc.SampleLimit, time.Now(), dc.Logger)
		return
	}

	if dc.Model.Family == FamilySigma {
		st.regs = newSigmaDecoderRegs(dc.Transport)
	} else {
		st.regs = newLA2016DecoderRegs(dc.Transport)
	}
	st.decoder = newSampleDecoder(st.regs, st.feed, dc.Model.Family, dc.samplesPerEvent, dc.effectiveChannelCount, dc.SampleLimit, st.trig, dc.Logger)
}

func tickDownload(dc *DeviceContext, st *acqState) {
	if st.streaming != nil {
		if err := st.streaming.step(time.Now()); err != nil {
			dc.Logger.Error("streaming download failed", "err", err)
			st.streaming.finish()
		}
		if st.stopRequested {
			st.streaming.finish()
		}
		if st.streaming.done {
			if st.registrar != nil {
				st.registrar.UnregisterPoll()
			}
			st.streaming = nil
			st.phase = phaseIdle
		}
		return
	}

	var finished, err = st.decoder.step()
	if err != nil {
		var ce *CoreError
		if asCoreError(err, &ce) && ce.Kind == KindTimeout {
			// no data this tick; the same batch is retried on the next tick.
			dc.Logger.Debug("download read timed out, retrying", "err", err)
			return
		}
		dc.Logger.Error("download failed", "err", err)
		finished = true
	}
	if finished {
		if st.registrar != nil {
			st.registrar.UnregisterPoll()
		}
		st.decoder = nil
		st.phase = phaseIdle
	}
}
