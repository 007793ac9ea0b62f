package lacore

/*------------------------------------------------------------------
 *
 * Purpose:	Raw read/write of a USB bridge: bulk and control
 *		transfers with a common timeout.  See spec.md section 4.1.
 *
 * Description:	Device discovery and generic USB enumeration are external
 *		collaborators (spec.md section 1); this file only needs an
 *		already-opened handle to talk to. The production backend is
 *		grounded on the pack's own on-domain USB drivers rather than
 *		the teacher: periph.io's FTDI MPSSE backend (other_examples/
 *		periph-extra, experimental/hostextra/d2xx/mpsse.go) and
 *		rveen/bitscope (a USB logic-analyzer/oscilloscope driver)
 *		both sit on top of a real USB transport for this same
 *		bulk/control-to-an-FTDI/FX2-bridge concern; periph-extra's
 *		go.mod pulls github.com/google/gousb for it, so this core
 *		does too, through gousb's Device.Control and
 *		In/OutEndpoint.ReadContext/WriteContext rather than
 *		hand-mirrored USBDEVFS ioctl structs. See SPEC_FULL.md's
 *		DOMAIN STACK section and DESIGN.md's Transport entry.
 *
 *------------------------------------------------------------------*/

import (
	"context"
	"time"

	"github.com/google/gousb"
)

// DefaultTimeout is the common read/write/control timeout, spec.md 4.1.
const DefaultTimeout = 200 * time.Millisecond

// Transport is the minimal interface the rest of the core needs from a USB
// bridge: blocking bulk read/write and, for the LA2016 family, control
// transfers. Implementations must treat a short control transfer as an
// error; a bulk Read may return fewer bytes than requested.
type Transport interface {
	// Read performs a blocking bulk read of up to len(buf) bytes, returning
	// the number of bytes actually read.
	Read(buf []byte, timeout time.Duration) (int, error)
	// Write performs a blocking bulk write of buf, returning the number of
	// bytes actually written.
	Write(buf []byte, timeout time.Duration) (int, error)
	// CtrlIn issues a control-in (device-to-host) vendor request.
	CtrlIn(request byte, value, index uint16, buf []byte, timeout time.Duration) (int, error)
	// CtrlOut issues a control-out (host-to-device) vendor request.
	CtrlOut(request byte, value, index uint16, buf []byte, timeout time.Duration) (int, error)
	// Close releases the underlying handle.
	Close() error
}

const (
	ctrlDirIn      = 0x80
	ctrlDirOut     = 0x00
	ctrlTypeVendor = 0x40
)

// USBTransport talks to a USB bridge through gousb/libusb: a vendor/FX2
// bridge (LA2016) or an FTDI FIFO bridge (SIGMA) opened by VID:PID, with
// one claimed interface exposing one bulk IN and one bulk OUT endpoint.
type USBTransport struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface

	in  *gousb.InEndpoint
	out *gousb.OutEndpoint
}

// OpenUSB opens the first device matching vid:pid, claims the given
// configuration/interface, and resolves the bulk IN/OUT endpoints at
// epIn/epOut. epIn/epOut are full endpoint addresses including the
// direction bit (e.g. 0x86, 0x02), masked down to endpoint number here
// since gousb's InEndpoint/OutEndpoint take the bare endpoint number and
// infer direction from the interface descriptor.
func OpenUSB(vid, pid uint16, cfgNum, ifNum int, epIn, epOut byte) (*USBTransport, error) {
	var ctx = gousb.NewContext()

	var dev, openErr = ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if openErr != nil {
		ctx.Close()
		return nil, newErr(KindIO, "transport.open", openErr)
	}
	if dev == nil {
		ctx.Close()
		return nil, newErr(KindIO, "transport.open", errNoSuchDevice{vid: vid, pid: pid})
	}
	dev.ControlTimeout = DefaultTimeout

	var cfg, cfgErr = dev.Config(cfgNum)
	if cfgErr != nil {
		dev.Close()
		ctx.Close()
		return nil, newErr(KindIO, "transport.config", cfgErr)
	}
	var intf, intfErr = cfg.Interface(ifNum, 0)
	if intfErr != nil {
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, newErr(KindIO, "transport.interface", intfErr)
	}
	var in, inErr = intf.InEndpoint(int(epIn & 0x0f))
	if inErr != nil {
		intf.Close()
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, newErr(KindIO, "transport.inep", inErr)
	}
	var out, outErr = intf.OutEndpoint(int(epOut & 0x0f))
	if outErr != nil {
		intf.Close()
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, newErr(KindIO, "transport.outep", outErr)
	}

	return &USBTransport{ctx: ctx, dev: dev, cfg: cfg, intf: intf, in: in, out: out}, nil
}

// errNoSuchDevice reports that no device matched the requested VID:PID;
// device discovery by identifier is otherwise an external collaborator
// (spec.md section 1), but OpenUSB still needs to fail cleanly when asked
// for one that is not plugged in.
type errNoSuchDevice struct {
	vid, pid uint16
}

func (e errNoSuchDevice) Error() string {
	return "no USB device matched the requested VID:PID"
}

// Read performs a bulk read bounded by timeout, spec.md section 4.1.
func (t *USBTransport) Read(buf []byte, timeout time.Duration) (int, error) {
	var ctx, cancel = context.WithTimeout(context.Background(), timeout)
	defer cancel()
	var n, err = t.in.ReadContext(ctx, buf)
	if err == context.DeadlineExceeded {
		return n, timeoutErr("transport.bulk.read", "bulk read timed out after %s", timeout)
	}
	if err != nil {
		return n, newErr(KindIO, "transport.bulk.read", err)
	}
	return n, nil
}

// Write performs a bulk write bounded by timeout.
func (t *USBTransport) Write(buf []byte, timeout time.Duration) (int, error) {
	var ctx, cancel = context.WithTimeout(context.Background(), timeout)
	defer cancel()
	var n, err = t.out.WriteContext(ctx, buf)
	if err == context.DeadlineExceeded {
		return n, timeoutErr("transport.bulk.write", "bulk write timed out after %s", timeout)
	}
	if err != nil {
		return n, newErr(KindIO, "transport.bulk.write", err)
	}
	return n, nil
}

func (t *USBTransport) ctrl(reqType, request byte, value, index uint16, buf []byte, timeout time.Duration) (int, error) {
	t.dev.ControlTimeout = timeout
	var n, err = t.dev.Control(reqType, request, value, index, buf)
	if err != nil {
		return n, newErr(KindIO, "transport.ctrl", err)
	}
	if n != len(buf) {
		return n, newErr(KindIO, "transport.ctrl", errShortControlTransfer{want: len(buf), got: n})
	}
	return n, nil
}

type errShortControlTransfer struct{ want, got int }

func (e errShortControlTransfer) Error() string { return "short control transfer" }

// CtrlIn issues a vendor control-in request (CMD_FPGA_SPI etc, spec.md 4.2).
func (t *USBTransport) CtrlIn(request byte, value, index uint16, buf []byte, timeout time.Duration) (int, error) {
	return t.ctrl(ctrlTypeVendor|ctrlDirIn, request, value, index, buf, timeout)
}

// CtrlOut issues a vendor control-out request.
func (t *USBTransport) CtrlOut(request byte, value, index uint16, buf []byte, timeout time.Duration) (int, error) {
	return t.ctrl(ctrlTypeVendor|ctrlDirOut, request, value, index, buf, timeout)
}

// Close releases the interface, configuration, device and context, in
// that order, as gousb requires.
func (t *USBTransport) Close() error {
	t.intf.Close()
	var cfgErr = t.cfg.Close()
	var devErr = t.dev.Close()
	var ctxErr = t.ctx.Close()
	if cfgErr != nil {
		return cfgErr
	}
	if devErr != nil {
		return devErr
	}
	return ctxErr
}
