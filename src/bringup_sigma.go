package lacore

/*------------------------------------------------------------------
 *
 * Purpose:	SIGMA power-on sequencing: suicide pulse, PROG pulse and
 *		INIT_B poll, firmware unscrambling, bitbang expansion,
 *		and the logic-analyzer-mode handshake.  See spec.md
 *		section 4.3.1.
 *
 *------------------------------------------------------------------*/

import (
	"time"

	"github.com/charmbracelet/log"
)

const (
	sigmaInitBBit   = 0x20 // bit 5 of the readback byte
	sigmaInitBPolls = 10
	sigmaInitBDelay = 10 * time.Millisecond
	sigmaBitbangBaud = 750000
	sigmaMaxBitbangRetries = 10

	sigmaDIN  byte = 0x01
	sigmaCCLK byte = 0x02
	sigmaPROG byte = 0x04
)

// suicidePattern is written four times to terminate any previously
// configured FPGA netlist, spec.md 4.3.1 step 1.
var suicidePattern = [8]byte{0x84, 0x84, 0x84, 0x84, 0x84, 0x84, 0x84, 0x84}

// progPattern asserts CCLK with a PROG pulse, spec.md 4.3.1 step 2.
var progPattern = [10]byte{0x40, 0x40, 0x40, 0x00, 0x40, 0x40, 0x40, 0x40, 0x40, 0x40}

// SigmaBridge is the combination of raw Transport and bitbang control the
// SIGMA bring-up sequence needs.
type SigmaBridge interface {
	Transport
	BitbangController
}

// sigmaBringup runs the full SIGMA power-on sequence for the requested
// firmware variant, spec.md 4.3.1 steps 1-7.
func sigmaBringup(t SigmaBridge, loader FirmwareLoader, variant SigmaVariant, logger *log.Logger) error {
	logger = logOrDefault(logger)
	logger.Debug("sigma bringup starting", "variant", variant.resourceName())

	if err := sigmaSuicide(t); err != nil {
		return err
	}

	var raw, loadErr = loadBounded(loader, variant.resourceName())
	if loadErr != nil {
		return loadErr
	}
	var unscrambled = sigmaUnscramble(raw)

	var err error
	for attempt := 0; attempt < sigmaMaxBitbangRetries; attempt++ {
		err = sigmaBitbangInit(t, unscrambled, logger)
		if err == nil {
			break
		}
		var ce *CoreError
		if !asCoreError(err, &ce) || ce.Kind != KindTimeout {
			return err // non-timeout errors abort immediately
		}
		logger.Debug("sigma bitbang init timed out, retrying", "attempt", attempt+1)
	}
	if err != nil {
		return err
	}

	return sigmaLAModeHandshake(t, logger)
}

// sigmaSuicide writes the fixed 8-byte pattern four times and sleeps,
// spec.md 4.3.1 step 1.
func sigmaSuicide(t Transport) error {
	for i := 0; i < 4; i++ {
		if _, err := t.Write(suicidePattern[:], DefaultTimeout); err != nil {
			return newErr(KindIO, "bringup.sigma.suicide", err)
		}
	}
	time.Sleep(10 * time.Millisecond)
	return nil
}

// sigmaBitbangInit performs one attempt of the PROG pulse / INIT_B poll /
// firmware-stream / FIFO-mode-restore sequence, spec.md 4.3.1 steps 2-5.
func sigmaBitbangInit(t SigmaBridge, firmware []byte, logger *log.Logger) error {
	if _, err := t.Write(progPattern[:], DefaultTimeout); err != nil {
		return newErr(KindIO, "bringup.sigma.prog", err)
	}
	if err := t.Drain(); err != nil {
		return newErr(KindIO, "bringup.sigma.prog", err)
	}

	var seenInitB = false
	var probe = make([]byte, 1)
	for i := 0; i < sigmaInitBPolls; i++ {
		var n, err = t.Read(probe, sigmaInitBDelay)
		if err == nil && n == 1 && probe[0]&sigmaInitBBit != 0 {
			seenInitB = true
			break
		}
		time.Sleep(sigmaInitBDelay)
	}
	if !seenInitB {
		return timeoutErr("bringup.sigma.prog", "never saw INIT_B asserted")
	}

	var expanded = sigmaExpandBitstream(firmware)

	// all pins output except INIT_B.
	if err := t.SetBitbangMode(^byte(0) &^ sigmaInitBBit); err != nil {
		return newErr(KindIO, "bringup.sigma.bitbang", err)
	}
	if err := t.SetBaudRate(sigmaBitbangBaud); err != nil {
		return newErr(KindIO, "bringup.sigma.bitbang", err)
	}
	if _, err := t.Write(expanded, 2*time.Second); err != nil {
		return newErr(KindIO, "bringup.sigma.bitbang", err)
	}
	if err := t.SetFIFOMode(); err != nil {
		return newErr(KindIO, "bringup.sigma.bitbang", err)
	}
	if err := t.Drain(); err != nil {
		return newErr(KindIO, "bringup.sigma.bitbang", err)
	}

	logger.Debug("sigma bitbang stream sent", "bytes", len(expanded))
	return nil
}

// sigmaExpandBitstream expands each bit of each firmware byte, MSB first,
// into the two-byte CCLK toggle sequence spec.md 4.3.1 step 4 describes:
// v|CCLK then v, where v = DIN if the bit is 1 else 0.
func sigmaExpandBitstream(firmware []byte) []byte {
	var out = make([]byte, 0, len(firmware)*8*2)
	for _, fb := range firmware {
		for bit := 7; bit >= 0; bit-- {
			var v byte
			if fb&(1<<uint(bit)) != 0 {
				v = sigmaDIN
			}
			out = append(out, v|sigmaCCLK, v)
		}
	}
	return out
}

// sigmaLAModeHandshake writes the fixed register sequence that proves the
// FPGA came up in logic-analyzer mode, spec.md 4.3.1 step 6.
func sigmaLAModeHandshake(t Transport, logger *log.Logger) error {
	var rio = NewSigmaRegisterIO(t)

	var idByte, idErr = rio.ReadReg(sigmaRegID, 1, false)
	if idErr != nil {
		return idErr
	}

	if err := rio.WriteReg(sigmaRegTest, []byte{0x55}); err != nil {
		return err
	}
	var echo1, err1 = rio.ReadReg(sigmaRegTest, 1, false)
	if err1 != nil {
		return err1
	}

	if err := rio.WriteReg(sigmaRegTest, []byte{0xaa}); err != nil {
		return err
	}
	var echo2, err2 = rio.ReadReg(sigmaRegTest, 1, false)
	if err2 != nil {
		return err2
	}

	if err := rio.WriteReg(sigmaRegMode, []byte{modeSDRAMInit}); err != nil {
		return err
	}

	var want = [3]byte{0xa6, 0x55, 0xaa}
	var got = [3]byte{idByte[0], echo1[0], echo2[0]}
	if got != want {
		return protocolErr("bringup.sigma.handshake", "expected %#v, got %#v", want, got)
	}

	logger.Debug("sigma LA-mode handshake ok")
	return nil
}

func asCoreError(err error, out **CoreError) bool {
	var ce, ok = err.(*CoreError)
	if ok {
		*out = ce
	}
	return ok
}
