package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gregLibert/nfc-type4/pkg/hce"
	"github.com/gregLibert/nfc-type4/pkg/iso14443"
	"github.com/gregLibert/nfc-type4/pkg/iso7816"
	"github.com/gregLibert/nfc-type4/pkg/ndef"
	"github.com/gregLibert/nfc-type4/pkg/poller"
	"github.com/gregLibert/nfc-type4/pkg/reader/libnfc"
	"github.com/gregLibert/nfc-type4/pkg/reader/pcsc"
	"github.com/gregLibert/nfc-type4/pkg/type4"
	"github.com/rs/zerolog"
)

type config struct {
	reader       *string
	device       *string
	maxChunk     *int
	strict       *bool
	pollInterval *time.Duration
	timeout      *int
	logLevel     *string
	once         *bool
	trace        *bool
	text         *string
}

func parseFlags() *config {
	cfg := &config{
		reader:       flag.String("reader", "pcsc", "Reader backend: pcsc, libnfc or sim"),
		device:       flag.String("device", "", "PC/SC reader name fragment or libnfc connstring (e.g. pn532_uart:/dev/ttyUSB0). Empty picks the first one."),
		maxChunk:     flag.Int("max-chunk", 0, "Cap on READ BINARY lengths (1-255, 0 for the tag's MLe)"),
		strict:       flag.Bool("strict", false, "Reject NDEF messages larger than the file declared in the CC"),
		pollInterval: flag.Duration("poll-interval", 250*time.Millisecond, "Delay between detection cycles"),
		timeout:      flag.Int("timeout", 0, "libnfc exchange timeout in milliseconds (0 waits as long as the card asks)"),
		logLevel:     flag.String("log-level", "info", "Log level: debug, info, warn or error"),
		once:         flag.Bool("once", false, "Exit after the first card"),
		trace:        flag.Bool("trace", false, "Print the APDU exchange of every reported cycle"),
		text:         flag.String("text", "Hello from an emulated Type 4 Tag", "Text record served by the sim reader"),
	}
	flag.Parse()
	return cfg
}

func newLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
	}
	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

// device is what every backend provides.
type device interface {
	iso7816.Transmitter
	iso14443.Activator
	iso14443.Deselecter
	Close() error
}

type simDevice struct {
	*hce.Tag
}

func (simDevice) Close() error { return nil }

func openDevice(cfg *config, log zerolog.Logger) (device, error) {
	switch *cfg.reader {
	case "pcsc":
		r, err := pcsc.Open(*cfg.device, pcsc.WithLogger(log))
		if err != nil {
			return nil, err
		}
		log.Info().Str("reader", r.Name()).Msg("using PC/SC reader")
		return r, nil
	case "libnfc":
		r, err := libnfc.Open(*cfg.device, libnfc.WithLogger(log), libnfc.WithTimeout(*cfg.timeout))
		if err != nil {
			return nil, err
		}
		log.Info().Str("reader", r.Name()).Msg("using libnfc device")
		return r, nil
	case "sim":
		tag, err := hce.NewTextTag(*cfg.text, hce.WithLogger(log))
		if err != nil {
			return nil, err
		}
		log.Info().Msg("using emulated tag")
		return simDevice{tag}, nil
	default:
		return nil, fmt.Errorf("unknown reader backend %q", *cfg.reader)
	}
}

func main() {
	if err := run(parseFlags()); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(cfg *config) error {
	log, err := newLogger(*cfg.logLevel)
	if err != nil {
		return err
	}

	dev, err := openDevice(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := dev.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close reader")
		}
	}()

	opts := []type4.Option{type4.WithLogger(log)}
	if *cfg.maxChunk > 0 {
		opts = append(opts, type4.WithMaxChunk(*cfg.maxChunk))
	}
	if *cfg.strict {
		opts = append(opts, type4.WithStrictFileSize())
	}
	reader := type4.NewReader(dev, dev, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pcfg := poller.DefaultConfig()
	pcfg.Interval = *cfg.pollInterval
	pcfg.Once = *cfg.once

	h := poller.HandlerFuncs{
		OnTag: func(_ context.Context, cycle uuid.UUID, res *type4.Result) {
			printResult(cfg, cycle, res)
		},
		OnError: func(_ context.Context, cycle uuid.UUID, res *type4.Result, err error) {
			fmt.Printf("\n>> Cycle %s failed in state %s: %v\n", cycle, res.State, err)
			var se *type4.StatusError
			if errors.As(err, &se) {
				fmt.Printf("   Status: %s\n", se.Status.Verbose())
			}
			if *cfg.trace && len(res.Trace) > 0 {
				fmt.Println(res.Trace.Describe())
			}
		},
	}

	log.Info().Msg("waiting for a Type 4 Tag, Ctrl-C to stop")
	err = poller.New(reader, pcfg, poller.WithLogger(log)).Run(ctx, h)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func printResult(cfg *config, cycle uuid.UUID, res *type4.Result) {
	fmt.Println("\n=============================================")
	fmt.Printf(" Tag %s (cycle %s)\n", res.Activation, cycle)
	fmt.Println("=============================================")

	if *cfg.trace {
		fmt.Println(res.Trace.Describe())
	}
	if res.CC != nil {
		fmt.Println(res.CC.Describe())
	}

	if res.File.NLEN == 0 {
		fmt.Println(">> NDEF file is empty.")
		return
	}

	msg, err := ndef.Parse(res.File.Payload)
	if err != nil {
		fmt.Printf(">> %d byte payload is not a valid NDEF message (%v): %X\n", res.File.NLEN, err, res.File.Payload)
		return
	}
	fmt.Println(msg.Describe())
}
