package lacore

/*------------------------------------------------------------------
 *
 * Purpose:	Shared fakes for this package's test files: a fake
 *		Transport+BitbangController recording writes and replaying
 *		queued reads, a fake FirmwareLoader, a fake Feed collecting
 *		emitted packets, and a fake PollRegistrar driving the poll
 *		callback synchronously.
 *
 *------------------------------------------------------------------*/

import (
	"time"
)

type ctrlRec struct {
	request byte
	value   uint16
	index   uint16
	data    []byte
}

type queuedResp struct {
	data []byte
	err  error
}

// fakeTransport implements Transport and BitbangController. Writes and
// control-out calls are recorded verbatim; Read and CtrlIn replay queued
// responses in order, returning a timeout once the queue is drained.
type fakeTransport struct {
	writeLog   [][]byte
	ctrlOutLog []ctrlRec
	ctrlInLog  []ctrlRec

	readQueue   []queuedResp
	ctrlInQueue []queuedResp

	bitbangMode byte
	fifoMode    bool
	baud        int
	drains      int
	closed      bool
}

func (f *fakeTransport) Read(buf []byte, timeout time.Duration) (int, error) {
	if len(f.readQueue) == 0 {
		return 0, timeoutErr("test.transport.read", "read queue exhausted")
	}
	var r = f.readQueue[0]
	f.readQueue = f.readQueue[1:]
	if r.err != nil {
		return 0, r.err
	}
	var n = copy(buf, r.data)
	return n, nil
}

func (f *fakeTransport) Write(buf []byte, timeout time.Duration) (int, error) {
	f.writeLog = append(f.writeLog, append([]byte(nil), buf...))
	return len(buf), nil
}

func (f *fakeTransport) CtrlIn(request byte, value, index uint16, buf []byte, timeout time.Duration) (int, error) {
	f.ctrlInLog = append(f.ctrlInLog, ctrlRec{request, value, index, append([]byte(nil), buf...)})
	if len(f.ctrlInQueue) == 0 {
		return 0, timeoutErr("test.transport.ctrlin", "ctrlIn queue exhausted")
	}
	var r = f.ctrlInQueue[0]
	f.ctrlInQueue = f.ctrlInQueue[1:]
	if r.err != nil {
		return 0, r.err
	}
	var n = copy(buf, r.data)
	return n, nil
}

func (f *fakeTransport) CtrlOut(request byte, value, index uint16, buf []byte, timeout time.Duration) (int, error) {
	f.ctrlOutLog = append(f.ctrlOutLog, ctrlRec{request, value, index, append([]byte(nil), buf...)})
	return len(buf), nil
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

func (f *fakeTransport) SetBitbangMode(mask byte) error {
	f.bitbangMode = mask
	f.fifoMode = false
	return nil
}

func (f *fakeTransport) SetFIFOMode() error {
	f.fifoMode = true
	return nil
}

func (f *fakeTransport) SetBaudRate(bps int) error {
	f.baud = bps
	return nil
}

func (f *fakeTransport) Drain() error {
	f.drains++
	return nil
}

// fakeFirmwareLoader returns fixed bytes for every resource name, or a
// per-name error if one was registered.
type fakeFirmwareLoader struct {
	data map[string][]byte
	errs map[string]error
}

func newFakeLoader() *fakeFirmwareLoader {
	return &fakeFirmwareLoader{data: map[string][]byte{}, errs: map[string]error{}}
}

func (l *fakeFirmwareLoader) Load(name string) ([]byte, error) {
	if err, ok := l.errs[name]; ok {
		return nil, err
	}
	if d, ok := l.data[name]; ok {
		return d, nil
	}
	return []byte{0x01, 0x02, 0x03, 0x04}, nil
}

// fakeFeed records every call the framework contract makes.
type fakeFeed struct {
	headers     int
	triggers    int
	frameBegins int
	frameEnds   int
	ends        int
	logic       [][]byte
	unitSize    int
}

func (f *fakeFeed) DFHeader()     { f.headers++ }
func (f *fakeFeed) DFTrigger()    { f.triggers++ }
func (f *fakeFeed) DFFrameBegin() { f.frameBegins++ }
func (f *fakeFeed) DFFrameEnd()   { f.frameEnds++ }
func (f *fakeFeed) DFEnd()        { f.ends++ }

func (f *fakeFeed) DFLogic(unitSize int, payload []byte) {
	f.unitSize = unitSize
	f.logic = append(f.logic, append([]byte(nil), payload...))
}

func (f *fakeFeed) totalUnits() int {
	var n int
	for _, chunk := range f.logic {
		if f.unitSize > 0 {
			n += len(chunk) / f.unitSize
		}
	}
	return n
}

// fakeRegistrar is a PollRegistrar that runs the registered callback only
// when the test explicitly asks it to, mirroring the single-threaded
// cooperative model spec.md section 5 describes.
type fakeRegistrar struct {
	fn       func()
	period   uint32
	active   bool
	unregCnt int
}

func (r *fakeRegistrar) RegisterPoll(period uint32, fn func()) {
	r.fn = fn
	r.period = period
	r.active = true
}

func (r *fakeRegistrar) UnregisterPoll() {
	r.active = false
	r.unregCnt++
}

func (r *fakeRegistrar) tick(n int) {
	for i := 0; i < n && r.active; i++ {
		r.fn()
	}
}

// sigmaHandshakeResponses returns the queued Read() byte sequence the
// sigma bring-up happy path needs, in order: the INIT_B probe byte, the
// ID-register readback, and the two test-register echoes.
func sigmaHandshakeResponses() []queuedResp {
	return []queuedResp{
		{data: []byte{sigmaInitBBit}},
		{data: []byte{0xa6}},
		{data: []byte{0x55}},
		{data: []byte{0xaa}},
	}
}

func newHappySigmaTransport() *fakeTransport {
	return &fakeTransport{readQueue: sigmaHandshakeResponses()}
}

func le32Bytes(v uint32) []byte {
	var b = make([]byte, 4)
	putLE32(b, v)
	return b
}

// la2016GoodRunState satisfies la2016RunStateSanity's 0x85eX check.
const la2016GoodRunState uint32 = 0x85e00002

func newHappyLA2016ReuseTransport() *fakeTransport {
	return &fakeTransport{
		ctrlInQueue: []queuedResp{
			{data: []byte{0x00}},                  // FPGA init byte: already configured
			{data: le32Bytes(la2016GoodRunState)},  // run state: idle bit set
			{data: le32Bytes(0)},                   // PWM enable: both channels off
			{data: le32Bytes(la2016GoodRunState)},  // run-state sanity re-check
		},
	}
}

func newHappyLA2016UploadTransport() *fakeTransport {
	return &fakeTransport{
		ctrlInQueue: []queuedResp{
			{data: []byte{0x01}},                  // FPGA init byte: not configured, forces upload
			{data: le32Bytes(la2016GoodRunState)}, // run-state sanity after upload
		},
		readQueue: []queuedResp{
			{data: []byte{0x00}}, // upload ack byte
		},
	}
}
