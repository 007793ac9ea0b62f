/*-------------------------------------------------------------------
 *
 * Name:	main
 *
 * Purpose:	Command-line harness driving one acquisition against a
 *		gousb-opened USB device, printing the decoded samples to
 *		stdout or a binary file.
 *
 * Inputs:	Command line arguments, see usage message for details.
 *
 * Outputs:	Logic-analyzer samples, little-endian units of 1 or 2
 *		bytes depending on the effective channel count at the
 *		configured samplerate.
 *
 *--------------------------------------------------------------------*/

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	lacore "github.com/n1kdo/lacore/src"
)

func main() {
	var vid = pflag.Uint16P("vid", "V", 0, "USB vendor ID, e.g. 0x0925")
	var pid = pflag.Uint16P("pid", "P", 0, "USB product ID, e.g. 0x3881")
	var modelName = pflag.StringP("model", "m", "", "model name from the embedded table (see --list-models)")
	var firmwareDir = pflag.StringP("firmware-dir", "f", ".", "directory containing firmware/bitstream resources")
	var cfgNum = pflag.IntP("usb-config", "C", 1, "USB configuration number to select")
	var ifNum = pflag.IntP("usb-interface", "I", 0, "USB interface number to claim")
	var bulkIn = pflag.UintP("bulk-in", "i", 0x86, "bulk IN endpoint address")
	var bulkOut = pflag.UintP("bulk-out", "o", 0x02, "bulk OUT endpoint address")
	var samplerate = pflag.Uint64P("samplerate", "r", 1_000_000, "requested samplerate in Hz")
	var sampleLimit = pflag.Uint64P("limit", "n", 0, "sample count limit, 0 for unlimited")
	var msecLimit = pflag.Uint64P("msec", "t", 2000, "acquisition time limit in milliseconds, 0 for unlimited")
	var captureRatio = pflag.IntP("capture-ratio", "c", 50, "pre-trigger percentage, 0-100")
	var outPath = pflag.StringP("out", "O", "", "output file for raw samples, default stdout")
	var listModels = pflag.Bool("list-models", false, "print the embedded model table and exit")
	var verbose = pflag.BoolP("verbose", "v", false, "enable debug logging")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - run one acquisition against a SIGMA/SIGMA2/LA2016/LA1016 device.\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nUsage: lareplay --vid 0xHHHH --pid 0xHHHH --model NAME [options]\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	var logger = lacore.NewLogger()
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}

	if *listModels {
		for name, m := range lacore.KnownModels {
			fmt.Printf("%-16s family=%-8s channels=%-3d max_samplerate=%d\n", name, m.Family, m.ChannelCount, m.MaxSamplerateHz)
		}
		return
	}

	if *vid == 0 || *pid == 0 || *modelName == "" {
		pflag.Usage()
		os.Exit(1)
	}

	var model, ok = lacore.KnownModels[*modelName]
	if !ok {
		logger.Error("unknown model", "model", *modelName)
		os.Exit(1)
	}

	var transport, openErr = lacore.OpenUSB(*vid, *pid, *cfgNum, *ifNum, byte(*bulkIn), byte(*bulkOut))
	if openErr != nil {
		logger.Error("opening device failed", "err", openErr)
		os.Exit(1)
	}
	defer transport.Close()

	var loader = fileFirmwareLoader{dir: *firmwareDir}

	var dc, openDevErr = lacore.Open(model, transport, loader, logger)
	if openDevErr != nil {
		logger.Error("device bring-up failed", "err", openDevErr)
		os.Exit(1)
	}

	if err := dc.SetCaptureRatio(*captureRatio); err != nil {
		logger.Error("invalid capture ratio", "err", err)
		os.Exit(1)
	}
	if err := dc.SetSamplerate(*samplerate); err != nil {
		logger.Error("invalid samplerate", "err", err)
		os.Exit(1)
	}

	var out = os.Stdout
	if *outPath != "" {
		var f, createErr = os.Create(*outPath)
		if createErr != nil {
			logger.Error("creating output file failed", "err", createErr)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}

	dc.SetSampleLimit(*sampleLimit)

	var feed = &fileFeed{out: out, logger: logger}
	var registrar = newTickerRegistrar()
	defer registrar.stop()

	if err := lacore.StartAcquisition(dc, lacore.TriggerDescription{}, feed, registrar, *sampleLimit, *msecLimit); err != nil {
		logger.Error("starting acquisition failed", "err", err)
		os.Exit(1)
	}

	registrar.runUntilIdle(dc)
	logger.Debug("acquisition complete", "samples", feed.samples)
}

// fileFirmwareLoader reads firmware/bitstream resources as files named
// "<name>.bin" under dir, the simplest external collaborator spec.md
// section 1 calls for.
type fileFirmwareLoader struct {
	dir string
}

func (l fileFirmwareLoader) Load(name string) ([]byte, error) {
	return os.ReadFile(l.dir + "/" + name + ".bin")
}

// fileFeed is a minimal framework Feed: df-logic payloads are appended to
// out verbatim, markers are logged.
type fileFeed struct {
	out     *os.File
	logger  *log.Logger
	samples uint64
}

func (f *fileFeed) DFHeader()     { f.logger.Debug("df-header") }
func (f *fileFeed) DFTrigger()    { f.logger.Debug("df-trigger") }
func (f *fileFeed) DFFrameBegin() { f.logger.Debug("df-frame-begin") }
func (f *fileFeed) DFFrameEnd()   { f.logger.Debug("df-frame-end") }
func (f *fileFeed) DFEnd()        { f.logger.Debug("df-end") }

func (f *fileFeed) DFLogic(unitSize int, payload []byte) {
	f.samples += uint64(len(payload) / unitSize)
	if _, err := f.out.Write(payload); err != nil {
		f.logger.Error("writing samples failed", "err", err)
	}
}

// tickerRegistrar is a PollRegistrar backed by a time.Ticker, standing in
// for the host framework's event-loop poll hook, spec.md section 5.
type tickerRegistrar struct {
	ticker *time.Ticker
	fn     func()
	active bool
}

func newTickerRegistrar() *tickerRegistrar {
	return &tickerRegistrar{}
}

func (r *tickerRegistrar) RegisterPoll(periodMs uint32, fn func()) {
	r.fn = fn
	r.ticker = time.NewTicker(time.Duration(periodMs) * time.Millisecond)
	r.active = true
}

func (r *tickerRegistrar) UnregisterPoll() {
	r.active = false
	if r.ticker != nil {
		r.ticker.Stop()
	}
}

func (r *tickerRegistrar) stop() {
	if r.ticker != nil {
		r.ticker.Stop()
	}
}

// runUntilIdle drives the ticker on this goroutine until the acquisition
// coordinator unregisters it, mirroring a single-threaded host event
// loop, spec.md section 5's concurrency model.
func (r *tickerRegistrar) runUntilIdle(dc *lacore.DeviceContext) {
	for r.active {
		<-r.ticker.C
		if r.fn != nil {
			r.fn()
		}
	}
}
