package lacore

/*------------------------------------------------------------------
 *
 * Purpose:	FTDI bitbang/MPSSE mode control for the SIGMA bridge.
 *		See spec.md section 1 ("FTDI bitbang/MPSSE for SIGMA") and
 *		section 4.3.1 step 5.
 *
 *------------------------------------------------------------------*/

// FTDI SIO vendor request codes used to drive the bridge in and out of
// bitbang mode during bring-up.
const (
	ftdiReqSetBitMode  byte = 0x0b
	ftdiReqSetBaudRate byte = 0x03
	ftdiReqPurgeRx     byte = 0x00 // wValue selects which FIFO
	ftdiReqPurgeTx     byte = 0x01
)

const (
	ftdiBitModeReset   byte = 0x00
	ftdiBitModeBitbang byte = 0x01
)

// BitbangController is implemented by Transports that can switch an FTDI
// bridge between FIFO (UART-like) mode and synchronous bitbang mode.
type BitbangController interface {
	SetBitbangMode(directionMask byte) error
	SetFIFOMode() error
	SetBaudRate(bps int) error
	Drain() error
}

// SetBitbangMode switches the bridge into bitbang mode with the given
// pin-direction mask (1 = output), spec.md 4.3.1 step 5.
func (t *USBTransport) SetBitbangMode(directionMask byte) error {
	var value = uint16(directionMask)<<8 | uint16(ftdiBitModeBitbang)
	var _, err = t.CtrlOut(ftdiReqSetBitMode, value, 0, nil, DefaultTimeout)
	return err
}

// SetFIFOMode returns the bridge to ordinary FIFO mode.
func (t *USBTransport) SetFIFOMode() error {
	var value = uint16(ftdiBitModeReset) << 8
	var _, err = t.CtrlOut(ftdiReqSetBitMode, value, 0, nil, DefaultTimeout)
	return err
}

// SetBaudRate programs the bridge's bit clock; 750 kbps during bitbang
// expansion, spec.md 4.3.1 step 5.
func (t *USBTransport) SetBaudRate(bps int) error {
	// The FTDI divisor encoding is bridge-specific; callers of this core
	// only need the clock rate to be approximately honored so the bitbang
	// stream's timing matches what the FPGA's config port expects.
	var divisor = uint16(3000000 / bps)
	var _, err = t.CtrlOut(ftdiReqSetBaudRate, divisor, 0, nil, DefaultTimeout)
	return err
}

// Drain purges any stale bytes sitting in the bridge's receive FIFO,
// spec.md 4.3.1 step 2 ("flush the bridge's input") and step 5 ("drain
// any stale input").
func (t *USBTransport) Drain() error {
	if _, err := t.CtrlOut(ftdiReqPurgeRx, 0, 0, nil, DefaultTimeout); err != nil {
		return err
	}
	_, err := t.CtrlOut(ftdiReqPurgeTx, 0, 0, nil, DefaultTimeout)
	return err
}
