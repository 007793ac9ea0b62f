package lacore

/*------------------------------------------------------------------
 *
 * Purpose:	DeviceContext: per-device configuration and run state.
 *		Created at Open, destroyed at Close, mutated only by the
 *		poll callback's chain and the framework's configuration
 *		setters.  See spec.md section 3.
 *
 *------------------------------------------------------------------*/

import (
	"github.com/charmbracelet/log"
)

// DeviceContext owns everything spec.md section 3 lists: the model, the
// transport, configured acquisition parameters, PWM settings, the current
// firmware variant, the trigger descriptor, run state, the submit buffer
// and decoder state.
type DeviceContext struct {
	Model     *ModelDescriptor
	Transport Transport
	Loader    FirmwareLoader
	Logger    *log.Logger

	SamplerateHz  uint64
	SampleLimit   uint64 // 0 => unlimited up to device cap
	CaptureRatio  int    // 0..100
	ThresholdV    float64
	ExternalClock bool

	PWM [2]PWMChannel // LA2016 only

	sigmaVariant  SigmaVariant
	sigmaUploaded bool // elides a redundant re-upload when the variant hasn't changed

	effectiveChannelCount int
	samplesPerEvent       int

	enabledChannelMask uint16
	trigger            TriggerDescription

	state *acqState
}

// Open creates a DeviceContext bound to an already-opened transport and a
// resolved model descriptor. Device discovery and model resolution are
// external collaborators, spec.md section 1.
func Open(model *ModelDescriptor, t Transport, loader FirmwareLoader, logger *log.Logger) (*DeviceContext, error) {
	if model == nil {
		return nil, argErr("device.open", "model descriptor is required")
	}
	var dc = &DeviceContext{
		Model:              model,
		Transport:          t,
		Loader:             loader,
		Logger:             logOrDefault(logger),
		CaptureRatio:       50,
		enabledChannelMask: 0xffff,
		state:              &acqState{phase: phaseUninitialized},
	}
	dc.setEffectiveChannels(model.ChannelCount)

	if model.Family == FamilyLA2016 {
		if err := la2016Bringup(t, loader, model, dc.Logger); err != nil {
			return nil, err
		}
	} else {
		var bridge, ok = t.(SigmaBridge)
		if !ok {
			return nil, bugErr("device.open", "transport does not implement the SIGMA bitbang control surface")
		}
		if err := sigmaBringup(bridge, loader, SigmaVariant50MHz, dc.Logger); err != nil {
			return nil, err
		}
		dc.sigmaVariant = SigmaVariant50MHz
		dc.sigmaUploaded = true
	}

	dc.state.phase = phaseIdle
	return dc, nil
}

// Close tears down the transport. Any in-progress acquisition must have
// already been stopped; Close does not itself abort one.
func (dc *DeviceContext) Close() error {
	if dc.state != nil && dc.state.phase != phaseIdle && dc.state.phase != phaseUninitialized {
		return bugErr("device.close", "Close called while acquisition is in phase %v", dc.state.phase)
	}
	return dc.Transport.Close()
}

func (dc *DeviceContext) setEffectiveChannels(n int) {
	dc.effectiveChannelCount = n
	if n == 0 {
		dc.samplesPerEvent = 1
		return
	}
	dc.samplesPerEvent = 16 / n
}

// SetSamplerate validates the requested samplerate and, for SIGMA, moves
// through Idle->Config->Idle reuploading firmware if the required variant
// changed, spec.md section 4.5's transition table.
func (dc *DeviceContext) SetSamplerate(hz uint64) error {
	if hz == 0 || hz > dc.Model.MaxSamplerateHz {
		return argErr("device.samplerate", "samplerate %d out of range (0,%d]", hz, dc.Model.MaxSamplerateHz)
	}
	if dc.state.phase != phaseIdle {
		return bugErr("device.samplerate", "cannot change samplerate from phase %v", dc.state.phase)
	}
	dc.state.phase = phaseConfig

	if dc.Model.Family == FamilySigma {
		var variant, channelCount = selectSigmaVariant(hz)
		if !dc.sigmaUploaded || variant != dc.sigmaVariant {
			var bridge, ok = dc.Transport.(SigmaBridge)
			if !ok {
				dc.state.phase = phaseIdle
				return bugErr("device.samplerate", "transport does not implement the SIGMA bitbang control surface")
			}
			if err := sigmaBringup(bridge, dc.Loader, variant, dc.Logger); err != nil {
				dc.state.phase = phaseIdle
				return err
			}
			dc.sigmaVariant = variant
			dc.sigmaUploaded = true
		}
		dc.setEffectiveChannels(channelCount)
	} else {
		dc.setEffectiveChannels(dc.Model.ChannelCount)
	}

	dc.SamplerateHz = hz
	dc.state.phase = phaseIdle
	return nil
}

// SetSampleLimit stores the user sample-count limit, 0 meaning unlimited
// up to the device's cap.
func (dc *DeviceContext) SetSampleLimit(n uint64) {
	dc.SampleLimit = n
}

// SetCaptureRatio stores the pre-trigger percentage, spec.md section 3.
func (dc *DeviceContext) SetCaptureRatio(pct int) error {
	if pct < 0 || pct > 100 {
		return argErr("device.captureratio", "capture ratio %d out of range [0,100]", pct)
	}
	dc.CaptureRatio = pct
	return nil
}

// SetThreshold stores the device-specific threshold voltage.
func (dc *DeviceContext) SetThreshold(v float64) {
	dc.ThresholdV = v
}

// SetChannelEnabled toggles one logical channel.
func (dc *DeviceContext) SetChannelEnabled(ch int, enabled bool) error {
	if ch < 0 || ch >= 16 {
		return argErr("device.channel", "unknown channel index %d", ch)
	}
	var bit = uint16(1) << uint(ch)
	if enabled {
		dc.enabledChannelMask |= bit
	} else {
		dc.enabledChannelMask &^= bit
	}
	return nil
}

// SetTrigger stores the framework's trigger description. StartAcquisition
// does not read this stored value: it converts only the trigger
// description passed to it as an argument.
func (dc *DeviceContext) SetTrigger(td TriggerDescription) {
	dc.trigger = td
}

// selectSigmaVariant returns the firmware variant the requested samplerate
// requires and the resulting effective channel count, spec.md 4.5 step 2.
func selectSigmaVariant(hz uint64) (SigmaVariant, int) {
	switch {
	case hz > 100_000_000:
		return SigmaVariant200MHz, 4
	case hz > 50_000_000:
		return SigmaVariant100MHz, 8
	default:
		return SigmaVariant50MHz, 16
	}
}

// la2016ClockDivider returns the smallest 16-bit integer divider d such
// that base/d <= requested, clamped to [1, 65536], spec.md 4.5 step 2.
func la2016ClockDivider(baseHz uint64, requestedHz uint64) uint32 {
	if requestedHz == 0 {
		requestedHz = 1
	}
	var d = (baseHz + requestedHz - 1) / requestedHz
	if d < 1 {
		d = 1
	}
	if d > 65536 {
		d = 65536
	}
	return uint32(d)
}
