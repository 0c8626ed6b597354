// Command gomux copies the streams of one media container into another
// without re-encoding.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ugparu/gomux"
	"github.com/ugparu/gomux/format/fmp4"
	_ "github.com/ugparu/gomux/format/mp4"
	_ "github.com/ugparu/gomux/format/mpegts"
	"github.com/ugparu/gomux/remuxer"
	"github.com/ugparu/gomux/utils/logger"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2

	logLevelEnv = "GOMUX_LOG_LEVEL"

	fragmentedFormat = "fmp4"
)

type config struct {
	input, output string
	inputFormat   string
	outputFormat  string
	logLevel      logrus.Level
	debugAddr     string
	fragment      time.Duration
}

func parseFlags(args []string, stderr io.Writer) (cfg config, err error) {
	fs := flag.NewFlagSet("gomux", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: gomux [flags] <input> <output>\n\n")
		fmt.Fprintf(stderr, "inputs:  %s\n", strings.Join(gomux.SourceFormats(), ", "))
		fmt.Fprintf(stderr, "outputs: %s\n\n", strings.Join(gomux.SinkFormats(), ", "))
		fs.PrintDefaults()
	}

	defaultLevel := os.Getenv(logLevelEnv)
	if defaultLevel == "" {
		defaultLevel = logrus.InfoLevel.String()
	}
	var level string
	fs.StringVar(&cfg.inputFormat, "i-format", "", "force input format")
	fs.StringVar(&cfg.outputFormat, "o-format", "", "force output format")
	fs.StringVar(&level, "log-level", defaultLevel, "log level, also read from "+logLevelEnv)
	fs.StringVar(&cfg.debugAddr, "debug-addr", "", "serve pprof and progress on this address")
	fs.DurationVar(&cfg.fragment, "fragment", 0, "write fragmented MP4 with fragments of this duration, whatever the output extension")

	if err = fs.Parse(args); err != nil {
		return
	}
	if fs.NArg() != 2 { //nolint:mnd // input and output
		fs.Usage()
		return cfg, errors.New("expected <input> and <output>")
	}
	cfg.input, cfg.output = fs.Arg(0), fs.Arg(1)

	if cfg.logLevel, err = logrus.ParseLevel(level); err != nil {
		return
	}
	if cfg.fragment < 0 {
		return cfg, fmt.Errorf("invalid fragment duration %s", cfg.fragment)
	}
	if cfg.fragment > 0 && cfg.outputFormat != "" && cfg.outputFormat != fragmentedFormat {
		return cfg, fmt.Errorf("-fragment writes %s, not -o-format %s", fragmentedFormat, cfg.outputFormat)
	}
	return cfg, nil
}

func (cfg config) options() []remuxer.Option {
	opts := []remuxer.Option{
		remuxer.WithInputFormat(cfg.inputFormat),
		remuxer.WithOutputFormat(cfg.outputFormat),
	}
	if cfg.fragment > 0 {
		d := cfg.fragment
		opts = append(opts, remuxer.WithSinkOpener(func(locator string) (gomux.Sink, error) {
			return fmp4.Create(locator, fmp4.WithFragmentDuration(d))
		}))
	}
	return opts
}

func run(args []string, stderr io.Writer) int {
	cfg, err := parseFlags(args, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(stderr, "gomux:", err)
		}
		return exitUsage
	}

	logger.Init(cfg.logLevel)
	defer logger.Flush()

	r := remuxer.New(cfg.input, cfg.output, cfg.options()...)

	if cfg.debugAddr != "" {
		srv := newDebugServer(cfg.debugAddr, r)
		go srv.Start()
		defer srv.Close()
	}

	start := time.Now()
	frames, err := r.Remux()
	if err != nil {
		logger.Errorf(r, "%s -> %s: %v", cfg.input, cfg.output, err)
		return exitError
	}
	logger.Infof(r, "%s -> %s: %d frames in %s", cfg.input, cfg.output, frames, time.Since(start).Round(time.Millisecond))
	return exitOK
}

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}
