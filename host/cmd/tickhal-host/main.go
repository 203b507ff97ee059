// Command tickhal-host queries and sets device time, requests sleeps and
// triggers calibration over the serial link.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/jedisct1/dlog"
	"github.com/spf13/pflag"

	"tickhal/host/link"
	"tickhal/host/serial"
)

func main() {
	dlog.Init("tickhal-host", dlog.SeverityNotice, "USER")

	configFile := pflag.StringP("config", "c", "", "TOML configuration file")
	device := pflag.StringP("device", "d", "", "serial device path")
	baud := pflag.Int("baud", 0, "baud rate (ignored for USB CDC)")
	timeout := pflag.Duration("timeout", 0, "per-command timeout")
	driftFile := pflag.String("drift-log", "", "append watch samples to this file")
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] [command [args...]]\n\n", os.Args[0])
		pflag.PrintDefaults()
		fmt.Fprintln(os.Stderr)
		printHelp(os.Stderr)
	}
	pflag.Parse()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		dlog.Fatal(err)
	}
	if cfg.LogLevel != nil && !pflag.CommandLine.Changed("loglevel") {
		dlog.SetLogLevel(dlog.Severity(*cfg.LogLevel))
	}
	if *device != "" {
		cfg.Device = *device
	}
	if *baud > 0 {
		cfg.Baud = *baud
	}
	if *timeout > 0 {
		cfg.CallTimeoutS = int((*timeout + time.Second - 1) / time.Second)
	}
	if *driftFile != "" {
		cfg.Drift.File = *driftFile
	}

	portCfg := serial.DefaultConfig(cfg.Device)
	portCfg.Baud = cfg.Baud
	portCfg.ReadTimeout = time.Duration(cfg.ReadTimeoutMs) * time.Millisecond
	port, err := serial.Open(portCfg)
	if err != nil {
		dlog.Fatal(err)
	}
	if err := port.Flush(); err != nil {
		dlog.Warnf("flush %s: %v", cfg.Device, err)
	}
	client := link.New(port)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.callTimeout())
	err = client.Identify(ctx)
	cancel()
	if err != nil {
		dlog.Fatalf("identify: %v", err)
	}
	dlog.Noticef("connected to %s", cfg.Device)

	sh := &shell{client: client, cfg: cfg, out: os.Stdout}
	if args := pflag.Args(); len(args) > 0 {
		if err := sh.run(args); err != nil {
			dlog.Error(err)
			os.Exit(1)
		}
		return
	}
	if err := sh.repl(os.Stdin); err != nil {
		dlog.Fatal(err)
	}
}

// repl reads commands until EOF or quit.
func (sh *shell) repl(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(sh.out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		args, err := shlex.Split(line)
		if err != nil {
			fmt.Fprintf(sh.out, "parse error: %v\n", err)
			continue
		}
		if len(args) == 0 {
			continue
		}
		if args[0] == "quit" || args[0] == "exit" || args[0] == "q" {
			return nil
		}
		if err := sh.run(args); err != nil {
			fmt.Fprintf(sh.out, "error: %v\n", err)
		}
	}
	return scanner.Err()
}
