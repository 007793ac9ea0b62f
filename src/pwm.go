package lacore

/*------------------------------------------------------------------
 *
 * Purpose:	LA2016 analog PWM output configuration. A peripheral
 *		feature independent of the acquisition engine: the core
 *		exposes the configuration interface, and the acquisition
 *		path never uses PWM state.  See spec.md section 1 and 6 (PWM1/PWM2
 *		registers).
 *
 *------------------------------------------------------------------*/

// PWMChannel is one LA2016 PWM output's configuration, spec.md section 3.
type PWMChannel struct {
	Enabled     bool
	FrequencyHz uint32
	DutyPercent uint8
}

const pwmMaxFrequencyHz = 100_000_000

var pwmRegisters = [2]uint16{laRegPWM1, laRegPWM2}

// SetPWM validates and stores one PWM channel's configuration.
func (dc *DeviceContext) SetPWM(channel int, cfg PWMChannel) error {
	if dc.Model.Family != FamilyLA2016 {
		return unsupportedErr("device.pwm", "PWM is only available on the LA2016 family")
	}
	if channel < 0 || channel >= len(dc.PWM) {
		return argErr("device.pwm", "unknown PWM channel %d", channel)
	}
	if cfg.Enabled {
		if cfg.FrequencyHz == 0 || cfg.FrequencyHz > pwmMaxFrequencyHz {
			return argErr("device.pwm", "PWM frequency %d out of range (0,%d]", cfg.FrequencyHz, pwmMaxFrequencyHz)
		}
		if cfg.DutyPercent > 100 {
			return argErr("device.pwm", "PWM duty %d out of range [0,100]", cfg.DutyPercent)
		}
	}
	dc.PWM[channel] = cfg
	return nil
}

// uploadPWM writes the register encoding for one PWM channel: a 32-bit
// period/duty pair and an enable bit folded into PWM_EN, grounded on the
// same register-word shape as the LA2016 trigger words (spec.md 4.4).
func uploadPWM(t Transport, channel int, cfg PWMChannel, baseClockHz uint64) error {
	var rio = NewLA2016RegisterIO(t)
	var reg = pwmRegisters[channel]

	var period uint32
	if cfg.FrequencyHz != 0 {
		period = uint32(baseClockHz / uint64(cfg.FrequencyHz))
	}
	var high = uint32(uint64(period) * uint64(cfg.DutyPercent) / 100)

	var buf = make([]byte, 8)
	putLE32(buf[0:4], period)
	putLE32(buf[4:8], high)
	if err := rio.WriteReg(reg, buf); err != nil {
		return err
	}

	var en, err = rio.ReadReg32(laRegPWMEnable)
	if err != nil {
		return err
	}
	var bit = uint32(1) << uint(channel)
	if cfg.Enabled {
		en |= bit
	} else {
		en &^= bit
	}
	return rio.WriteReg32(laRegPWMEnable, en)
}
