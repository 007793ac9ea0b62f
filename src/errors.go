package lacore

/*------------------------------------------------------------------
 *
 * Purpose:	Typed error kinds surfaced by the acquisition core.
 *
 * Description:	Anything the caller needs to branch on (argument vs
 *		timeout vs protocol, etc.) is a tagged variant rather than
 *		a sentinel or a bare string, the same preference the
 *		teacher codebase shows for fec_type_t/retry_t.  Nothing in
 *		this package ever panics to report one of these; see
 *		spec.md section 7.
 *
 *------------------------------------------------------------------*/

import "fmt"

// ErrorKind tags a CoreError with the category the framework uses to decide
// how to react (retry, abort, surface to the user, ...).
type ErrorKind int

const (
	// KindArgument: bad samplerate, too high sample depth, out-of-range
	// PWM frequency/duty, unknown channel index, unknown trigger match kind.
	KindArgument ErrorKind = iota
	// KindUnsupported: two edges at >=100MHz, two trigger stages, edge+level
	// combinations forbidden by the trigger policy.
	KindUnsupported
	// KindIO: USB read/write failure outside the poll download path.
	KindIO
	// KindTimeout: bring-up bitbang init never saw INIT_B; download USB read
	// repeatedly empty while the device reports not-idle.
	KindTimeout
	// KindProtocol: bring-up handshake got the wrong ID bytes; FPGA-init byte
	// nonzero after upload; bitstream-check found implausible registers.
	KindProtocol
	// KindResource: firmware resource missing or exceeds its cap; allocation
	// failed.
	KindResource
	// KindBug: buffer too small for a burst of register writes -- a
	// programmer error, non-recoverable.
	KindBug
)

func (k ErrorKind) String() string {
	switch k {
	case KindArgument:
		return "argument"
	case KindUnsupported:
		return "unsupported"
	case KindIO:
		return "io"
	case KindTimeout:
		return "timeout"
	case KindProtocol:
		return "protocol"
	case KindResource:
		return "resource"
	case KindBug:
		return "bug"
	default:
		return "unknown"
	}
}

// CoreError is the concrete error type every exported operation returns.
type CoreError struct {
	Kind ErrorKind
	Op   string // e.g. "bringup.sigma.handshake", "trigger.build"
	Err  error  // wrapped cause, may be nil
}

func (e *CoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *CoreError) Unwrap() error { return e.Err }

func newErr(kind ErrorKind, op string, err error) *CoreError {
	return &CoreError{Kind: kind, Op: op, Err: err}
}

func argErr(op string, format string, args ...any) *CoreError {
	return newErr(KindArgument, op, fmt.Errorf(format, args...))
}

func unsupportedErr(op string, format string, args ...any) *CoreError {
	return newErr(KindUnsupported, op, fmt.Errorf(format, args...))
}

func protocolErr(op string, format string, args ...any) *CoreError {
	return newErr(KindProtocol, op, fmt.Errorf(format, args...))
}

func timeoutErr(op string, format string, args ...any) *CoreError {
	return newErr(KindTimeout, op, fmt.Errorf(format, args...))
}

func resourceErr(op string, format string, args ...any) *CoreError {
	return newErr(KindResource, op, fmt.Errorf(format, args...))
}

func bugErr(op string, format string, args ...any) *CoreError {
	return newErr(KindBug, op, fmt.Errorf(format, args...))
}
