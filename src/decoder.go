package lacore

/*------------------------------------------------------------------
 *
 * Purpose:	SampleDecoder: read-window selection, bounded chunked
 *		reads of sample memory, cluster decode with RLE gap
 *		expansion, and trigger-position refinement.  See spec.md
 *		section 4.6.
 *
 * Description:	This file carries the SIGMA cluster format (16-byte
 *		cluster: 2-byte timestamp + 7 events) and the scaffolding
 *		shared with the LA2016 cluster/streaming variants in
 *		decoder_la2016.go: read-window selection, the bounded
 *		32-row-batch read loop and trigger refinement are
 *		family-independent, spec.md 4.6(a,b,e,f,g).
 *
 *------------------------------------------------------------------*/

import "github.com/charmbracelet/log"

// maxBatchRows bounds a single chunked read, spec.md 4.6(b).
const maxBatchRows = 32

// sigmaDecoderRegs implements decoderRegs against SigmaRegisterIO and the
// bitbang DRAM_BLOCK/DRAM_BLOCK_DATA/DRAM_WAIT_ACK burst protocol,
// spec.md 4.6(b).
type sigmaDecoderRegs struct {
	t   Transport
	rio *SigmaRegisterIO
}

func newSigmaDecoderRegs(t Transport) *sigmaDecoderRegs {
	return &sigmaDecoderRegs{t: t, rio: NewSigmaRegisterIO(t)}
}

func (r *sigmaDecoderRegs) ReadStopPos() (uint32, error) {
	return r.rio.ReadPos24(sigmaRegStopPosLow)
}

func (r *sigmaDecoderRegs) ReadTriggerPos() (uint32, error) {
	return r.rio.ReadPos24(sigmaRegTriggerPosLow)
}

func (r *sigmaDecoderRegs) ReadModeByte() (byte, error) {
	var b, err = r.rio.ReadReg(sigmaRegModeRead, 1, false)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *sigmaDecoderRegs) WriteSDRAMReadEnable() error {
	return r.rio.WriteReg(sigmaRegMode, []byte{modeSDRAMReadEnable})
}

func (r *sigmaDecoderRegs) WriteMemRow(row uint32) error {
	var buf = make([]byte, 2)
	putLE16(buf, uint16(row))
	return r.rio.WriteReg(sigmaRegMemRow, buf)
}

// ReadBurst composes maxBatchRows-bounded interleaved DRAM_BLOCK (fetch
// DRAM->BRAM, alternating bank select) and DRAM_BLOCK_DATA (BRAM->USB)
// commands, each followed by a DRAM_WAIT_ACK token, then reads back
// rows*1024 bytes, spec.md 4.6(b).
func (r *sigmaDecoderRegs) ReadBurst(rows int) ([]byte, error) {
	var cmd = make([]byte, 0, rows*4)
	for i := 0; i < rows; i++ {
		var bank byte
		if i%2 == 1 {
			bank = 0x01
		}
		cmd = append(cmd, cmdDRAMBlock|bank, cmdDRAMWaitAck, cmdDRAMBlockData, cmdDRAMWaitAck)
	}
	if _, err := r.t.Write(cmd, DefaultTimeout); err != nil {
		return nil, newErr(KindIO, "decoder.sigma.burst", err)
	}
	var buf = make([]byte, rows*rowSizeBytes)
	var n, err = r.t.Read(buf, DefaultTimeout)
	if err != nil {
		return nil, err
	}
	if n != len(buf) {
		return nil, timeoutErr("decoder.sigma.burst", "short burst read: got %d of %d bytes", n, len(buf))
	}
	return buf, nil
}

// decoderRegs is the narrow register surface SampleDecoder needs from
// either family's RegisterIO, spec.md 4.6(a,b).
type decoderRegs interface {
	ReadStopPos() (uint32, error)
	ReadTriggerPos() (uint32, error)
	ReadModeByte() (byte, error)
	WriteSDRAMReadEnable() error
	WriteMemRow(row uint32) error
	ReadBurst(rows int) ([]byte, error)
}

// sampleDecoder is the per-download decoder state, scoped to one
// acquisition, spec.md section 5 ("the DRAM read buffer ... is scoped to
// one download").
type sampleDecoder struct {
	regs   decoderRegs
	feed   Feed
	submit *SubmitBuffer
	logger *log.Logger

	family                Family
	samplesPerEvent       int
	effectiveChannelCount int
	userLimit             uint64

	trig       triggerDescriptor
	hasTrigger bool

	windowRows []uint32 // absolute row indices to visit, in order
	rowCursor  int
	stopEvent  int // valid events on the last (possibly partial) row

	triggerRow     uint32
	triggerEvent   int
	triggerPending bool // never-triggered (hardware-reported trigger absent)
	triggerSeen    bool // this decoder has emitted df-trigger already

	lastTimestamp uint32
	lastSample    uint16
	started       bool
	initDone      bool

	frameBegun bool
	finished   bool
}

// newSampleDecoder allocates decoder state for a download; it does not
// itself perform I/O. Call selectWindow to do that, spec.md 4.6(a).
func newSampleDecoder(regs decoderRegs, feed Feed, family Family, samplesPerEvent, effectiveChannelCount int, userLimit uint64, trig triggerDescriptor, logger *log.Logger) *sampleDecoder {
	var unitSize = 2
	if samplesPerEvent > 1 {
		unitSize = 1
	}
	return &sampleDecoder{
		regs:                  regs,
		feed:                  feed,
		submit:                newSubmitBuffer(feed, unitSize, userLimit),
		logger:                logOrDefault(logger),
		family:                family,
		samplesPerEvent:       samplesPerEvent,
		effectiveChannelCount: effectiveChannelCount,
		userLimit:             userLimit,
		trig:                  trig,
		hasTrigger:            trig.useTriggers,
	}
}

// selectWindow implements spec.md 4.6(a): enables SDRAM read, reads stop
// position, trigger position and the mode register, and derives the
// ordered list of rows this download will visit.
func (d *sampleDecoder) selectWindow() error {
	if err := d.regs.WriteSDRAMReadEnable(); err != nil {
		return err
	}
	var stopPos, sErr = d.regs.ReadStopPos()
	if sErr != nil {
		return sErr
	}
	var triggerPos, tErr = d.regs.ReadTriggerPos()
	if tErr != nil {
		return tErr
	}
	var modeByte, mErr = d.regs.ReadModeByte()
	if mErr != nil {
		return mErr
	}

	var stopRow = stopPos / eventsPerRow
	d.stopEvent = int(stopPos % eventsPerRow & 0x1ff)

	var round = modeByte&modeReadRound != 0
	var triggered = modeByte&modeReadTriggered != 0

	if round {
		d.windowRows = make([]uint32, 0, rowCount-2)
		for i := uint32(0); i < rowCount-2; i++ {
			d.windowRows = append(d.windowRows, (stopRow+2+i)%rowCount)
		}
		d.stopEvent = eventsPerRow - 1
	} else {
		d.windowRows = make([]uint32, 0, stopRow+1)
		for i := uint32(0); i <= stopRow; i++ {
			d.windowRows = append(d.windowRows, i)
		}
	}

	if !triggered {
		d.triggerPending = true
	} else {
		d.triggerRow = triggerPos / eventsPerRow
		d.triggerEvent = int(triggerPos % eventsPerRow)
	}

	d.feed.DFFrameBegin()
	d.frameBegun = true
	d.started = true
	return nil
}

// step performs one bounded batch of download work, spec.md 4.6(b): up to
// maxBatchRows rows are fetched and decoded per call so the poll tick
// stays bounded. It returns true once the window is fully processed.
func (d *sampleDecoder) step() (bool, error) {
	if !d.started {
		if err := d.selectWindow(); err != nil {
			return false, err
		}
	}
	if d.rowCursor >= len(d.windowRows) {
		return d.finish()
	}

	var batchStart = d.rowCursor
	var batchEnd = batchStart + maxBatchRows
	if batchEnd > len(d.windowRows) {
		batchEnd = len(d.windowRows)
	}
	var batch = d.windowRows[batchStart:batchEnd]

	if err := d.regs.WriteMemRow(batch[0]); err != nil {
		return false, err
	}
	var raw, rErr = d.regs.ReadBurst(len(batch))
	if rErr != nil {
		return false, rErr
	}

	for i, row := range batch {
		var line = raw[i*rowSizeBytes : (i+1)*rowSizeBytes]
		var isLast = (batchStart + i) == len(d.windowRows)-1
		var eventsInLine = eventsPerRow
		if isLast {
			eventsInLine = d.stopEvent + 1
		}
		if err := d.decodeLine(row, line, eventsInLine); err != nil {
			return false, err
		}
	}
	d.rowCursor = batchEnd

	if d.rowCursor >= len(d.windowRows) {
		return d.finish()
	}
	return false, nil
}

// decodeLine dispatches to the family-specific cluster/packet decode,
// spec.md 4.6(d) and 4.6.1.
func (d *sampleDecoder) decodeLine(row uint32, line []byte, eventsInLine int) error {
	switch d.family {
	case FamilyLA2016:
		return d.decodeLA2016Line(row, line, eventsInLine)
	default:
		return d.decodeSigmaLine(row, line, eventsInLine)
	}
}

// decodeSigmaLine implements spec.md 4.6(c,d,e) for the SIGMA 16-byte
// cluster layout: a 2-byte timestamp followed by 7 little-endian 16-bit
// events.
func (d *sampleDecoder) decodeSigmaLine(row uint32, line []byte, eventsInLine int) error {
	var clusters = eventsInLine / eventsPerCluster
	if eventsInLine%eventsPerCluster != 0 {
		clusters++
	}
	if clusters > clustersPerRow {
		clusters = clustersPerRow
	}

	for c := 0; c < clusters; c++ {
		var clusterOff = c * clusterSizeBytes
		var clusterTS = uint32(le16(line[clusterOff : clusterOff+2]))

		if !d.initDone {
			d.lastTimestamp = clusterTS
			d.lastSample = 0
			d.initDone = true
		}

		var isTriggerCluster = !d.triggerPending && row == d.triggerRow && c == d.triggerEventCluster()

		if isTriggerCluster {
			if err := d.decodeTriggerCluster(line, clusterOff, clusterTS, eventsInLine-c*eventsPerCluster); err != nil {
				return err
			}
			continue
		}

		var tsdiff = clusterTS - d.lastTimestamp
		for i := uint32(0); i < tsdiff; i++ {
			for s := 0; s < d.samplesPerEvent; s++ {
				d.submit.PutSample(d.lastSample)
			}
		}

		var remaining = eventsInLine - c*eventsPerCluster
		if remaining > eventsPerCluster {
			remaining = eventsPerCluster
		}
		var last uint16
		for e := 0; e < remaining; e++ {
			var eventOff = clusterOff + 2 + e*2
			var raw = le16(line[eventOff : eventOff+2])
			last = emitEvent(raw, d.samplesPerEvent, d.submit)
		}
		d.lastTimestamp = clusterTS + eventsPerCluster
		d.lastSample = last
	}
	return nil
}

// triggerEventCluster computes trigger_cluster per spec.md 4.6(e),
// adjusting trigger_event for the <=50MHz case where the hardware offset
// is in event units of a 7-wide cluster rather than the raw position.
func (d *sampleDecoder) triggerEventCluster() int {
	var adjusted = d.triggerEvent
	if d.samplesPerEvent == 1 {
		if adjusted > 6 {
			adjusted -= 6
		} else {
			adjusted = 0
		}
	}
	return adjusted / eventsPerCluster
}

// decodeTriggerCluster implements spec.md 4.6(e): decode the trigger
// cluster into a scratch array, search for the exact sample transition,
// flush, emit df-trigger, and resume.
func (d *sampleDecoder) decodeTriggerCluster(line []byte, clusterOff int, clusterTS uint32, remainingInLine int) error {
	var remaining = remainingInLine
	if remaining > eventsPerCluster {
		remaining = eventsPerCluster
	}

	var tsdiff = clusterTS - d.lastTimestamp
	for i := uint32(0); i < tsdiff; i++ {
		for s := 0; s < d.samplesPerEvent; s++ {
			d.submit.PutSample(d.lastSample)
		}
	}

	var scratch = make([]uint16, 0, 1+remaining*d.samplesPerEvent)
	scratch = append(scratch, d.lastSample)
	for e := 0; e < remaining; e++ {
		var eventOff = clusterOff + 2 + e*2
		var raw = le16(line[eventOff : eventOff+2])
		scratch = appendExpanded(scratch, raw, d.samplesPerEvent)
	}

	var offset = findTriggerOffset(scratch, d.trig)
	if offset < 0 || offset >= len(scratch) {
		offset = boundOffset(d.triggerEvent, len(scratch)-1)
	}

	for i := 1; i <= offset; i++ {
		d.submit.PutSample(scratch[i])
	}
	if !d.triggerSeen {
		d.submit.Flush()
		d.feed.DFTrigger()
		d.triggerSeen = true
	}
	for i := offset + 1; i < len(scratch); i++ {
		d.submit.PutSample(scratch[i])
	}

	d.lastTimestamp = clusterTS + eventsPerCluster
	if len(scratch) > 0 {
		d.lastSample = scratch[len(scratch)-1]
	}
	return nil
}

func boundOffset(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

// appendExpanded decodes one raw event into 1/2/4 samples and appends
// them, used only by the trigger-cluster scratch path (the normal path
// uses emitEvent directly against the submit buffer).
func appendExpanded(scratch []uint16, raw uint16, samplesPerEvent int) []uint16 {
	switch samplesPerEvent {
	case 2:
		var first, second = deinterlace100(raw)
		return append(scratch, uint16(first), uint16(second))
	case 4:
		var s0, s1, s2, s3 = deinterlace200(raw)
		return append(scratch, uint16(s0), uint16(s1), uint16(s2), uint16(s3))
	default:
		return append(scratch, raw)
	}
}

// emitEvent decodes one raw event and submits its 1/2/4 samples in order,
// returning the last sample emitted (spec.md 4.6(d) step 3).
func emitEvent(raw uint16, samplesPerEvent int, submit *SubmitBuffer) uint16 {
	switch samplesPerEvent {
	case 2:
		var first, second = deinterlace100(raw)
		submit.PutSample(uint16(first))
		submit.PutSample(uint16(second))
		return uint16(second)
	case 4:
		var s0, s1, s2, s3 = deinterlace200(raw)
		submit.PutSample(uint16(s0))
		submit.PutSample(uint16(s1))
		submit.PutSample(uint16(s2))
		submit.PutSample(uint16(s3))
		return uint16(s3)
	default:
		submit.PutSample(raw)
		return raw
	}
}

// findTriggerOffset implements spec.md 4.6(e)'s exact-match search: the
// first index i (i>=1, comparing scratch[i-1] as prev) satisfying all of
// the simple/rising/falling conditions. Returns -1 if none match.
func findTriggerOffset(scratch []uint16, trig triggerDescriptor) int {
	for i := 1; i < len(scratch); i++ {
		var prev = scratch[i-1]
		var s = scratch[i]
		if trig.valueMask != 0 && (s&trig.valueMask) != (trig.valueBits&trig.valueMask) {
			continue
		}
		if trig.risingMask != 0 {
			if prev&trig.risingMask != 0 || s&trig.risingMask != trig.risingMask {
				continue
			}
		}
		if trig.fallingMask != 0 {
			if prev&trig.fallingMask != trig.fallingMask || s&trig.fallingMask != 0 {
				continue
			}
		}
		return i
	}
	return -1
}

// finish implements spec.md 4.6(g): flush, emit frame-end + df-end.
func (d *sampleDecoder) finish() (bool, error) {
	if d.finished {
		return true, nil
	}
	d.submit.Flush()
	if d.frameBegun {
		d.feed.DFFrameEnd()
	}
	d.feed.DFEnd()
	d.finished = true
	return true, nil
}
