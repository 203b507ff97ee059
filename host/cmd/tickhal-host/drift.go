package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jedisct1/dlog"
	"github.com/jedisct1/go-clocksmith"
	"gopkg.in/natefinch/lumberjack.v2"
)

// driftSample compares one device reading with the host clock.
type driftSample struct {
	Host   time.Time
	Device time.Time
	Uptime uint32
}

func (s driftSample) offset() time.Duration {
	return s.Device.Sub(s.Host.Truncate(time.Second))
}

func (s driftSample) csv() string {
	return fmt.Sprintf("%d,%d,%d,%d\n", s.Host.Unix(), s.Device.Unix(), int64(s.offset()/time.Second), s.Uptime)
}

// driftRate is the device's gain in parts per million between two samples.
func driftRate(first, last driftSample) float64 {
	hostSpan := last.Host.Sub(first.Host)
	if hostSpan <= 0 {
		return 0
	}
	gain := last.offset() - first.offset()
	return float64(gain) / float64(hostSpan) * 1e6
}

func (sh *shell) driftLog() io.WriteCloser {
	d := sh.cfg.Drift
	if d.File == "" {
		return nil
	}
	return &lumberjack.Logger{
		Filename:   d.File,
		MaxSize:    d.MaxSizeMB,
		MaxBackups: d.MaxBackups,
		MaxAge:     d.MaxAgeDays,
		LocalTime:  true,
		Compress:   true,
	}
}

func (sh *shell) sample(ctx context.Context) (driftSample, error) {
	cctx, cancel := context.WithTimeout(ctx, sh.cfg.callTimeout())
	defer cancel()
	dev, err := sh.client.Wallclock(cctx)
	if err != nil {
		return driftSample{}, err
	}
	host := sh.clockNow()
	up, err := sh.client.Uptime(cctx)
	if err != nil {
		return driftSample{}, err
	}
	return driftSample{Host: host, Device: dev, Uptime: up}, nil
}

// watch samples the device wall clock every interval. count 0 runs until
// an error.
func (sh *shell) watch(ctx context.Context, args []string) error {
	if len(args) == 0 || len(args) > 2 {
		return fmt.Errorf("usage: %s", commands["watch"].usage)
	}
	interval, err := time.ParseDuration(args[0])
	if err != nil || interval < time.Second {
		return fmt.Errorf("watch interval %q: want a duration of at least 1s", args[0])
	}
	count := 0
	if len(args) == 2 {
		if count, err = strconv.Atoi(args[1]); err != nil || count < 0 {
			return fmt.Errorf("watch count %q: want a non-negative integer", args[1])
		}
	}

	logw := sh.driftLog()
	if logw != nil {
		defer logw.Close()
	}

	var first driftSample
	for i := 0; count == 0 || i < count; i++ {
		if i > 0 {
			// Keeps wall-clock pacing across host suspend.
			clocksmith.Sleep(interval)
		}
		s, err := sh.sample(ctx)
		if err != nil {
			return err
		}
		if i == 0 {
			first = s
		}
		fmt.Fprintf(sh.out, "%s offset %+ds uptime %ds drift %+.1f ppm\n",
			s.Host.Format(time.TimeOnly), int64(s.offset()/time.Second), s.Uptime, driftRate(first, s))
		if logw != nil {
			if _, err := io.WriteString(logw, s.csv()); err != nil {
				dlog.Warnf("drift log: %v", err)
			}
		}
	}
	return nil
}
