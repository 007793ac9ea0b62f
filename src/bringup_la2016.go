package lacore

/*------------------------------------------------------------------
 *
 * Purpose:	LA2016 power-on sequencing: bitstream reuse check,
 *		bitstream upload, run-state sanity check.  See spec.md
 *		section 4.3.2.
 *
 *------------------------------------------------------------------*/

import (
	"time"

	"github.com/charmbracelet/log"
)

const (
	la2016BitstreamChunk     = 4 * 1024
	la2016BitstreamPad       = 2048
	la2016UploadSleep        = 30 * time.Millisecond
	la2016EnableSleep        = 40 * time.Millisecond
	la2016RunStateIdleMask   = 0x02 // bits indicating idle/consistent non-acquisition
	la2016PWMEnLowTwoBits    = 0x03
)

// LA2016Bridge is the combination of raw Transport and bitstream-endpoint
// bulk transfer the LA2016 bring-up sequence needs.
type LA2016Bridge interface {
	Transport
}

// la2016Bringup runs the LA2016 power-on sequence: reuse the currently
// loaded bitstream if it already matches, else upload, spec.md 4.3.2.
func la2016Bringup(t LA2016Bridge, loader FirmwareLoader, m *ModelDescriptor, logger *log.Logger) error {
	logger = logOrDefault(logger)
	var rio = NewLA2016RegisterIO(t)

	var reuse, reuseErr = la2016CanReuseBitstream(t, rio)
	if reuseErr != nil {
		return reuseErr
	}
	if reuse {
		logger.Debug("la2016 bitstream already loaded, skipping upload")
		return la2016RunStateSanity(rio)
	}

	var bitstream, loadErr = loadBounded(loader, m.BitstreamName)
	if loadErr != nil {
		return loadErr
	}
	if err := la2016UploadBitstream(t, bitstream, logger); err != nil {
		return err
	}
	return la2016RunStateSanity(rio)
}

// la2016CanReuseBitstream probes the FPGA init byte and two registers to
// decide whether the ~600ms upload can be skipped, spec.md 4.3.2 step 1.
func la2016CanReuseBitstream(t Transport, rio *LA2016RegisterIO) (bool, error) {
	var initByte = make([]byte, 1)
	var _, err = t.CtrlIn(laReqFPGAInit, 0, 1, initByte, DefaultTimeout)
	if err != nil {
		return false, err
	}
	if initByte[0] != 0 {
		return false, nil
	}

	var runState, runErr = rio.ReadReg32(laRegRun)
	if runErr != nil {
		return false, runErr
	}
	if runState&la2016RunStateIdleMask == 0 {
		return false, nil
	}

	var pwmEn, pwmErr = rio.ReadReg32(laRegPWMEnable)
	if pwmErr != nil {
		return false, pwmErr
	}
	if pwmEn&la2016PWMEnLowTwoBits != 0 {
		return false, nil
	}

	return true, nil
}

// la2016UploadBitstream writes the size, streams the bitstream in 4KiB
// chunks zero-padded to the next 2048-byte boundary, and enables the
// FPGA, spec.md 4.3.2 step 2.
func la2016UploadBitstream(t Transport, bitstream []byte, logger *log.Logger) error {
	var sizeBuf = make([]byte, 4)
	putLE32(sizeBuf, uint32(len(bitstream)))
	if _, err := t.CtrlOut(laReqFPGAInit, 0, 0, sizeBuf, DefaultTimeout); err != nil {
		return newErr(KindIO, "bringup.la2016.upload", err)
	}

	var padded = padTo(bitstream, la2016BitstreamPad)
	for off := 0; off < len(padded); off += la2016BitstreamChunk {
		var end = off + la2016BitstreamChunk
		if end > len(padded) {
			end = len(padded)
		}
		if _, err := t.Write(padded[off:end], DefaultTimeout); err != nil {
			return newErr(KindIO, "bringup.la2016.upload", err)
		}
	}

	var resp = make([]byte, 1)
	if _, err := t.Read(resp, DefaultTimeout); err != nil {
		return newErr(KindIO, "bringup.la2016.upload", err)
	}
	if resp[0] != 0 {
		return protocolErr("bringup.la2016.upload", "non-zero upload response byte %#x", resp[0])
	}
	time.Sleep(30 * time.Millisecond)

	if _, err := t.CtrlOut(laReqFPGAEnable, 1, 0, nil, DefaultTimeout); err != nil {
		return newErr(KindIO, "bringup.la2016.enable", err)
	}
	time.Sleep(40 * time.Millisecond)

	logger.Debug("la2016 bitstream uploaded", "bytes", len(bitstream), "padded", len(padded))
	return nil
}

// la2016RunStateSanity checks the run-state register's upper nibble
// pattern 0x85eX, spec.md 4.3.2 step 3.
func la2016RunStateSanity(rio *LA2016RegisterIO) error {
	var runState, err = rio.ReadReg32(laRegRun)
	if err != nil {
		return err
	}
	if (runState>>16)&0xfff0 != 0x85e0 {
		return protocolErr("bringup.la2016.sanity", "run-state register %#08x does not match 0x85eX pattern", runState)
	}
	return nil
}

func padTo(data []byte, multiple int) []byte {
	var rem = len(data) % multiple
	if rem == 0 {
		return data
	}
	var out = make([]byte, len(data)+multiple-rem)
	copy(out, data)
	return out
}
