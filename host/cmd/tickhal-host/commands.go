package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"tickhal/host/link"
)

// device is the subset of *link.Client the shell drives.
type device interface {
	Dictionary() *link.Dictionary
	Uptime(ctx context.Context) (uint32, error)
	Clock(ctx context.Context) (uint32, error)
	Wallclock(ctx context.Context) (time.Time, error)
	SetWallclock(ctx context.Context, t time.Time) (time.Time, error)
	DateTime(ctx context.Context) (link.DateTime, error)
	SetDateTime(ctx context.Context, d link.DateTime) (link.DateTime, error)
	SleepMs(ctx context.Context, ms uint32) (link.Outcome, error)
	Hibernate(ctx context.Context, seconds uint32, mode link.Mode, flags uint8) (link.Outcome, error)
	Calibrate(ctx context.Context) (link.Calibration, error)
	Stats(ctx context.Context) (link.Stats, error)
	ConfigSleep(ctx context.Context, ceiling link.Mode, interval time.Duration) error
}

type shell struct {
	client device
	cfg    fileConfig
	out    io.Writer
	now    func() time.Time
}

type command struct {
	usage string
	help  string
	run   func(sh *shell, ctx context.Context, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"help":      {"help", "show this help", (*shell).help},
		"dict":      {"dict", "print the device dictionary", (*shell).dict},
		"uptime":    {"uptime", "seconds since boot", (*shell).uptime},
		"clock":     {"clock", "monotonic milliseconds", (*shell).clock},
		"time":      {"time", "device wall time and offset from this host", (*shell).wallclock},
		"settime":   {"settime <RFC3339|unix seconds|now>", "set the device wall time", (*shell).setTime},
		"sync":      {"sync", "set the device wall time from this host", (*shell).sync},
		"date":      {"date", "device calendar time", (*shell).date},
		"setdate":   {"setdate [YYYY-MM-DD] [HH:MM:SS]", "set calendar fields; omitted parts are kept", (*shell).setDate},
		"sleep":     {"sleep <ms>", "light, uninterruptible pause", (*shell).sleep},
		"hibernate": {"hibernate <seconds> [light|deep|max] [irq]", "low-power sleep; irq lets an external event end it", (*shell).hibernate},
		"calibrate": {"calibrate", "measure the reference oscillator now", (*shell).calibrate},
		"stats":     {"stats", "sleep and calibration counters", (*shell).stats},
		"config":    {"config <light|deep|max> [interval]", "set the mode ceiling and calibration interval", (*shell).config},
		"watch":     {"watch <interval> [count]", "sample clock drift against this host", (*shell).watch},
	}
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w, "commands:")
	names := []string{"help", "dict", "uptime", "clock", "time", "settime", "sync", "date",
		"setdate", "sleep", "hibernate", "calibrate", "stats", "config", "watch"}
	for _, name := range names {
		c := commands[name]
		fmt.Fprintf(w, "  %-42s %s\n", c.usage, c.help)
	}
	fmt.Fprintf(w, "  %-42s %s\n", "quit", "leave the shell")
}

func (sh *shell) clockNow() time.Time {
	if sh.now != nil {
		return sh.now()
	}
	return time.Now()
}

// run executes one command line.
func (sh *shell) run(args []string) error {
	c, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("unknown command %q (try help)", args[0])
	}
	timeout := sh.cfg.callTimeout()
	if args[0] == "hibernate" || args[0] == "watch" {
		// These run for as long as the user asked; bounded by their own arguments.
		timeout = 0
	}
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return c.run(sh, ctx, args[1:])
}

func (sh *shell) help(_ context.Context, _ []string) error {
	printHelp(sh.out)
	return nil
}

func (sh *shell) dict(_ context.Context, _ []string) error {
	for _, m := range sh.client.Dictionary().Messages() {
		fmt.Fprintf(sh.out, "%3d %s", m.ID, m.Name)
		for _, p := range m.Params {
			fmt.Fprintf(sh.out, " %s=%s", p.Name, p.Format)
		}
		fmt.Fprintln(sh.out)
	}
	return nil
}

func (sh *shell) uptime(ctx context.Context, _ []string) error {
	s, err := sh.client.Uptime(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "uptime %s\n", time.Duration(s)*time.Second)
	return nil
}

func (sh *shell) clock(ctx context.Context, _ []string) error {
	ms, err := sh.client.Clock(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "clock %d ms\n", ms)
	return nil
}

func (sh *shell) wallclock(ctx context.Context, _ []string) error {
	t, err := sh.client.Wallclock(ctx)
	if err != nil {
		return err
	}
	host := sh.clockNow().UTC().Truncate(time.Second)
	fmt.Fprintf(sh.out, "%s (device %+ds vs host)\n", t.Format(time.RFC3339), int64(t.Sub(host)/time.Second))
	return nil
}

// parseTime accepts RFC 3339, integer Unix seconds or "now".
func parseTime(s string, now time.Time) (time.Time, error) {
	if s == "now" {
		return now.UTC(), nil
	}
	if n, err := strconv.ParseUint(s, 10, 32); err == nil {
		return time.Unix(int64(n), 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("time %q: want RFC 3339, unix seconds or now", s)
	}
	return t.UTC(), nil
}

func (sh *shell) setTime(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s", commands["settime"].usage)
	}
	t, err := parseTime(args[0], sh.clockNow())
	if err != nil {
		return err
	}
	got, err := sh.client.SetWallclock(ctx, t)
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "device time %s\n", got.Format(time.RFC3339))
	return nil
}

func (sh *shell) sync(ctx context.Context, _ []string) error {
	return sh.setTime(ctx, []string{"now"})
}

func printDateTime(w io.Writer, d link.DateTime) {
	fmt.Fprintf(w, "%04d-%02d-%02d %02d:%02d:%02d\n", d.Year, d.Month, d.Day, d.Hour, d.Minute, d.Second)
}

func (sh *shell) date(ctx context.Context, _ []string) error {
	d, err := sh.client.DateTime(ctx)
	if err != nil {
		return err
	}
	printDateTime(sh.out, d)
	return nil
}

// parseDateTime fills the date and/or time fields present in args. Missing
// parts stay zero, which the device reads as "keep".
func parseDateTime(args []string) (link.DateTime, error) {
	var d link.DateTime
	if len(args) == 0 || len(args) > 2 {
		return d, fmt.Errorf("usage: %s", commands["setdate"].usage)
	}
	for _, a := range args {
		switch {
		case strings.Count(a, "-") == 2:
			t, err := time.Parse("2006-01-02", a)
			if err != nil {
				return d, fmt.Errorf("date %q: %w", a, err)
			}
			d.Year, d.Month, d.Day = uint16(t.Year()), uint8(t.Month()), uint8(t.Day())
		case strings.Count(a, ":") == 2:
			t, err := time.Parse("15:04:05", a)
			if err != nil {
				return d, fmt.Errorf("time %q: %w", a, err)
			}
			d.Hour, d.Minute, d.Second = uint8(t.Hour()), uint8(t.Minute()), uint8(t.Second())
		default:
			return d, fmt.Errorf("%q is neither YYYY-MM-DD nor HH:MM:SS", a)
		}
	}
	return d, nil
}

func (sh *shell) setDate(ctx context.Context, args []string) error {
	d, err := parseDateTime(args)
	if err != nil {
		return err
	}
	got, err := sh.client.SetDateTime(ctx, d)
	if err != nil {
		return err
	}
	printDateTime(sh.out, got)
	return nil
}

func printOutcome(w io.Writer, o link.Outcome) {
	fmt.Fprintf(w, "requested %s, slept %s in %s mode over %d span(s)\n",
		o.Requested, o.Elapsed, o.Mode, o.Wakes)
}

func (sh *shell) sleep(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s", commands["sleep"].usage)
	}
	ms, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("sleep: %w", err)
	}
	o, err := sh.client.SleepMs(ctx, uint32(ms))
	if err != nil {
		return err
	}
	printOutcome(sh.out, o)
	return nil
}

type hibernateArgs struct {
	seconds uint32
	mode    link.Mode
	flags   uint8
}

func parseHibernate(args []string) (hibernateArgs, error) {
	h := hibernateArgs{mode: link.Deep}
	if len(args) == 0 || len(args) > 3 {
		return h, fmt.Errorf("usage: %s", commands["hibernate"].usage)
	}
	secs, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return h, fmt.Errorf("hibernate seconds: %w", err)
	}
	h.seconds = uint32(secs)
	for _, a := range args[1:] {
		if a == "irq" {
			h.flags |= link.AllowInterrupts
			continue
		}
		m, ok := link.ParseMode(a)
		if !ok {
			return h, fmt.Errorf("hibernate: unknown mode or flag %q", a)
		}
		h.mode = m
	}
	return h, nil
}

func (sh *shell) hibernate(ctx context.Context, args []string) error {
	h, err := parseHibernate(args)
	if err != nil {
		return err
	}
	// The reply comes after the sleep, so wait for it plus the usual margin.
	ctx, cancel := context.WithTimeout(ctx, time.Duration(h.seconds)*time.Second+sh.cfg.callTimeout())
	defer cancel()
	o, err := sh.client.Hibernate(ctx, h.seconds, h.mode, h.flags)
	if err != nil {
		return err
	}
	printOutcome(sh.out, o)
	return nil
}

func (sh *shell) calibrate(ctx context.Context, _ []string) error {
	c, err := sh.client.Calibrate(ctx)
	if err != nil {
		return err
	}
	status := "ok"
	if !c.OK {
		status = "failed, previous factor kept"
	}
	fmt.Fprintf(sh.out, "factor %d ms per %d cycles (%s)\n", c.Factor, c.Cycles, status)
	return nil
}

func (sh *shell) stats(ctx context.Context, _ []string) error {
	s, err := sh.client.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "wakes %d, calibrations %d, failures %d, clamps %d\n",
		s.Wakes, s.Calibrations, s.Failures, s.Clamps)
	return nil
}

func (sh *shell) config(ctx context.Context, args []string) error {
	if len(args) == 0 || len(args) > 2 {
		return fmt.Errorf("usage: %s", commands["config"].usage)
	}
	m, ok := link.ParseMode(args[0])
	if !ok {
		return fmt.Errorf("config: unknown mode %q", args[0])
	}
	var interval time.Duration
	if len(args) == 2 {
		d, err := time.ParseDuration(args[1])
		if err != nil {
			return fmt.Errorf("config interval: %w", err)
		}
		if d < time.Second {
			return fmt.Errorf("config interval %s: must be at least 1s", d)
		}
		interval = d
	}
	return sh.client.ConfigSleep(ctx, m, interval)
}
