package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// stats is a point-in-time view of the counters.
type stats struct {
	Connected   int64
	ConnectErrs int64
	StreamErrs  int64
	Snapshots   int64
	Attempts    int64
	Pings       int64
	Elapsed     time.Duration
}

func (s stats) String() string {
	return fmt.Sprintf("connected=%d connect_errs=%d stream_errs=%d snapshots=%d attempts=%d pings=%d elapsed=%s",
		s.Connected, s.ConnectErrs, s.StreamErrs, s.Snapshots, s.Attempts, s.Pings, s.Elapsed.Truncate(time.Millisecond))
}

func (s stats) perSecond() float64 {
	elapsed := s.Elapsed
	if elapsed <= 0 {
		elapsed = time.Millisecond
	}
	return float64(s.Snapshots+s.Attempts) / elapsed.Seconds()
}

type loadTest struct {
	client *http.Client
	url    string
	l      *zap.Logger

	connected   atomic.Int64
	connectErrs atomic.Int64
	streamErrs  atomic.Int64
	snapshots   atomic.Int64
	attempts    atomic.Int64
	pings       atomic.Int64
	start       time.Time
}

func newLoadTest(client *http.Client, url string, l *zap.Logger) *loadTest {
	return &loadTest{client: client, url: url, l: l}
}

// run opens connections spread over rampUp and streams until ctx is done.
func (lt *loadTest) run(ctx context.Context, connections int, rampUp, report time.Duration) stats {
	lt.start = time.Now()

	var interval time.Duration
	if rampUp > 0 {
		interval = rampUp / time.Duration(connections)
	}

	if report > 0 {
		go lt.report(ctx, report)
	}

	var wg sync.WaitGroup
	for i := 0; i < connections && ctx.Err() == nil; i++ {
		if i > 0 && interval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(interval):
			}
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			lt.stream(ctx)
		}()
	}
	wg.Wait()

	return lt.snapshot()
}

func (lt *loadTest) stream(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lt.url, nil)
	if err != nil {
		lt.connectErrs.Add(1)
		return
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := lt.client.Do(req)
	if err != nil {
		lt.connectErrs.Add(1)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		lt.connectErrs.Add(1)
		return
	}

	lt.connected.Add(1)
	if err := lt.consume(resp.Body); err != nil && ctx.Err() == nil {
		lt.streamErrs.Add(1)
	}
}

// consume counts events by type until the body ends.
func (lt *loadTest) consume(r io.Reader) error {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		line = strings.TrimRight(line, "\r\n")
		switch {
		case strings.HasPrefix(line, ":"):
			lt.pings.Add(1)
		case line == "event: snapshot":
			lt.snapshots.Add(1)
		case line == "event: attempt":
			lt.attempts.Add(1)
		}
	}
}

func (lt *loadTest) report(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			lt.l.Info("status", zap.Stringer("stats", lt.snapshot()))
		}
	}
}

func (lt *loadTest) snapshot() stats {
	return stats{
		Connected:   lt.connected.Load(),
		ConnectErrs: lt.connectErrs.Load(),
		StreamErrs:  lt.streamErrs.Load(),
		Snapshots:   lt.snapshots.Load(),
		Attempts:    lt.attempts.Load(),
		Pings:       lt.pings.Load(),
		Elapsed:     time.Since(lt.start),
	}
}
