package lacore

/*------------------------------------------------------------------
 *
 * Purpose:	LA2016-specific SampleDecoder variants: the 16-byte
 *		(value,repetitions) packet format used by models with
 *		sample memory, the bare register access decoderRegs needs,
 *		and the streaming-mode bit-accumulation path used by
 *		models without on-device compression.  See spec.md section
 *		4.6.1.
 *
 *------------------------------------------------------------------*/

import (
	"time"

	"github.com/charmbracelet/log"
)

// la2016PacketPairs is the number of (value, repetitions) pairs packed
// into one 16-byte transfer packet, spec.md 4.6.1.
const la2016PacketPairs = 5

// la2016DecoderRegs implements decoderRegs against LA2016RegisterIO. The
// three position/row registers are the inferred addresses noted in
// regmap.go; SDRAM enable and the burst sequence reuse the same
// CMD_FPGA_SPI / bulk-endpoint primitives as bring-up and register
// access.
type la2016DecoderRegs struct {
	t   Transport
	rio *LA2016RegisterIO
}

func newLA2016DecoderRegs(t Transport) *la2016DecoderRegs {
	return &la2016DecoderRegs{t: t, rio: NewLA2016RegisterIO(t)}
}

func (r *la2016DecoderRegs) ReadStopPos() (uint32, error) {
	return r.rio.ReadReg32(laRegStopPos)
}

func (r *la2016DecoderRegs) ReadTriggerPos() (uint32, error) {
	return r.rio.ReadReg32(laRegTriggerPos)
}

// ReadModeByte reads the low byte of the run-state register, reusing the
// same round/triggered bit layout the mode-read constants in regmap.go
// define: both FPGA cores expose the same generic SDRAM-controller IP,
// spec.md section 9.
func (r *la2016DecoderRegs) ReadModeByte() (byte, error) {
	var v, err = r.rio.ReadReg32(laRegRun)
	if err != nil {
		return 0, err
	}
	return byte(v), nil
}

func (r *la2016DecoderRegs) WriteSDRAMReadEnable() error {
	var v, err = r.rio.ReadReg32(laRegRun)
	if err != nil {
		return err
	}
	return r.rio.WriteReg32(laRegRun, v|uint32(modeSDRAMReadEnable))
}

func (r *la2016DecoderRegs) WriteMemRow(row uint32) error {
	return r.rio.WriteReg32(laRegMemRow, row)
}

// ReadBurst reads rows*rowSizeBytes bytes from the bulk endpoint, having
// already positioned the read row via WriteMemRow.
func (r *la2016DecoderRegs) ReadBurst(rows int) ([]byte, error) {
	var buf = make([]byte, rows*rowSizeBytes)
	var n, err = r.t.Read(buf, DefaultTimeout)
	if err != nil {
		return nil, err
	}
	if n != len(buf) {
		return nil, timeoutErr("decoder.la2016.burst", "short burst read: got %d of %d bytes", n, len(buf))
	}
	return buf, nil
}

// decodeLA2016Line implements spec.md 4.6.1's packet format in place of
// decodeSigmaLine's cluster format: each 16-byte packet holds five
// (value uint16, repetitions uint8) pairs and a trailing sequence byte,
// and repetition counts stand in for cluster timestamps.
func (d *sampleDecoder) decodeLA2016Line(row uint32, line []byte, eventsInLine int) error {
	var packets = (eventsInLine + la2016PacketPairs - 1) / la2016PacketPairs
	if packets > clustersPerRow {
		packets = clustersPerRow
	}

	for p := 0; p < packets; p++ {
		var packetOff = p * clusterSizeBytes
		var packet = line[packetOff : packetOff+clusterSizeBytes]

		var isTriggerPacket = !d.triggerPending && row == d.triggerRow && p == d.triggerEvent/la2016PacketPairs

		if isTriggerPacket {
			var within = d.triggerEvent % la2016PacketPairs
			if err := d.decodeLA2016TriggerPacket(packet, within); err != nil {
				return err
			}
			continue
		}

		for pair := 0; pair < la2016PacketPairs; pair++ {
			var off = pair * 3
			var value = le16(packet[off : off+2])
			var repetitions = int(packet[off+2])
			if !d.initDone {
				d.lastSample = value
				d.initDone = true
			}
			for i := 0; i < repetitions; i++ {
				d.submit.PutSample(d.lastSample)
			}
			d.submit.PutSample(value)
			d.lastSample = value
		}
	}
	return nil
}

// decodeLA2016TriggerPacket mirrors decodeTriggerCluster for the
// (value,repetitions) packet layout, spec.md 4.6(e) applied to 4.6.1.
func (d *sampleDecoder) decodeLA2016TriggerPacket(packet []byte, withinPacket int) error {
	var scratch = make([]uint16, 0, 1+la2016PacketPairs)
	scratch = append(scratch, d.lastSample)
	for pair := 0; pair < la2016PacketPairs; pair++ {
		var off = pair * 3
		var value = le16(packet[off : off+2])
		var repetitions = int(packet[off+2])
		for i := 0; i < repetitions; i++ {
			d.submit.PutSample(d.lastSample)
		}
		scratch = append(scratch, value)
	}

	var offset = findTriggerOffset(scratch, d.trig)
	if offset < 0 || offset >= len(scratch) {
		offset = boundOffset(withinPacket+1, len(scratch)-1)
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
	if len(scratch) > 0 {
		d.lastSample = scratch[len(scratch)-1]
	}
	return nil
}

// streamingDecoder drives the no-compression streaming-mode download
// path, spec.md 4.6.1 second half: enabled channels occupy consecutive
// 16-bit memory cells in a repeating cycle, and N successive
// multi-channel samples are reconstructed by accumulating per-bit.
type streamingDecoder struct {
	t      Transport
	feed   Feed
	submit *SubmitBuffer
	logger *log.Logger

	channelMasks []uint16 // bit position in the reconstructed sample for cell index c mod len
	cellIndex    int

	block     [16]uint16 // 16 successive multi-channel samples being accumulated
	lastFlush time.Time

	done bool
}

// streamingFlushInterval is the wall-clock period on which
// streamingDecoder.step flushes the submit buffer of completed blocks,
// even when no new block has filled it, spec.md 4.6.1 ("default ~200ms").
const streamingFlushInterval = 200 * time.Millisecond

// newStreamingDecoder builds the channel-to-cell-slot mapping from the
// enabled-channel mask: channelMasks[i] is the bit this core sets in the
// reconstructed sample when cell (i mod count) contributes.
func newStreamingDecoder(t Transport, feed Feed, enabledMask uint16, userLimit uint64, now time.Time, logger *log.Logger) *streamingDecoder {
	var masks []uint16
	for ch := 0; ch < 16; ch++ {
		var bit = uint16(1) << uint(ch)
		if enabledMask&bit != 0 {
			masks = append(masks, bit)
		}
	}
	if len(masks) == 0 {
		masks = []uint16{1}
	}
	return &streamingDecoder{
		t:            t,
		feed:         feed,
		submit:       newSubmitBuffer(feed, 2, userLimit),
		logger:       logOrDefault(logger),
		channelMasks: masks,
		lastFlush:    now,
	}
}

// step reads one bulk chunk and folds it into the reconstructed sample
// blocks, emitting a 16-sample block each time every enabled channel has
// contributed once, spec.md 4.6.1.
func (s *streamingDecoder) step(now time.Time) error {
	var buf = make([]byte, 4096)
	var n, err = s.t.Read(buf, DefaultTimeout)
	if err != nil {
		var ce *CoreError
		if asCoreError(err, &ce) && ce.Kind == KindTimeout {
			if now.Sub(s.lastFlush) >= streamingFlushInterval {
				s.submit.Flush()
				s.lastFlush = now
			}
			return nil
		}
		return err
	}

	for off := 0; off+1 < n; off += 2 {
		var cell = le16(buf[off : off+2])
		var slot = s.cellIndex % len(s.channelMasks)
		var chBit = s.channelMasks[slot]

		for b := 0; b < 16; b++ {
			if cell&(1<<uint(b)) != 0 {
				s.block[b] |= chBit
			}
		}
		s.cellIndex++

		if s.cellIndex%len(s.channelMasks) == 0 {
			for b := 0; b < 16; b++ {
				s.submit.PutSample(s.block[b])
				s.block[b] = 0
			}
		}
	}

	if now.Sub(s.lastFlush) >= streamingFlushInterval {
		s.submit.Flush()
		s.lastFlush = now
	}
	return nil
}

// finish flushes the submit buffer and emits the closing feed sequence; a
// block still being accumulated (not every enabled channel has
// contributed) is not emitted.
func (s *streamingDecoder) finish() {
	if s.done {
		return
	}
	s.submit.Flush()
	s.feed.DFFrameEnd()
	s.feed.DFEnd()
	s.done = true
}
