package flash

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	retry "github.com/avast/retry-go/v4"
	"golang.org/x/sync/errgroup"

	"github.com/dcreply4u/udsgo/client"
	"github.com/dcreply4u/udsgo/uds"
)

// Progress reports programming state to the configured callback.
type Progress struct {
	Segment       int
	TotalSegments int
	BytesWritten  int
	TotalBytes    int
	Percentage    float64
	Elapsed       time.Duration
}

// ProgressFunc receives progress updates. Implementations should return
// quickly; the callback runs on the programming goroutine.
type ProgressFunc func(Progress)

// Config holds the flasher configuration.
type Config struct {
	// AddrLen and SizeLen are the request-download field widths in bytes.
	AddrLen int
	SizeLen int

	// DataFormat is the dataFormatIdentifier (0x00 = raw, uncompressed).
	DataFormat byte

	// Retries bounds the attempts per block when the ECU answers
	// busy-repeat-request. Other negative responses are never retried.
	Retries    uint
	RetryDelay time.Duration

	// TesterPresentInterval paces the keep-alive sent while programming.
	TesterPresentInterval time.Duration

	Progress ProgressFunc
	Logger   *log.Logger
}

func defaultConfig() Config {
	return Config{
		AddrLen:               4,
		SizeLen:               4,
		Retries:               3,
		RetryDelay:            100 * time.Millisecond,
		TesterPresentInterval: 2 * time.Second,
	}
}

// Option is a functional option for configuring the Flasher.
type Option func(*Config)

// WithAddressFormat sets the request-download address and size widths.
func WithAddressFormat(addrLen, sizeLen int) Option {
	return func(c *Config) {
		c.AddrLen = addrLen
		c.SizeLen = sizeLen
	}
}

// WithDataFormat sets the dataFormatIdentifier sent on request-download.
func WithDataFormat(format byte) Option {
	return func(c *Config) { c.DataFormat = format }
}

// WithRetries bounds the busy-repeat-request retries per block.
func WithRetries(attempts uint, delay time.Duration) Option {
	return func(c *Config) {
		c.Retries = attempts
		if delay > 0 {
			c.RetryDelay = delay
		}
	}
}

// WithTesterPresentInterval paces the keep-alive during programming.
func WithTesterPresentInterval(interval time.Duration) Option {
	return func(c *Config) {
		if interval > 0 {
			c.TesterPresentInterval = interval
		}
	}
}

// WithProgress sets the progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(c *Config) { c.Progress = fn }
}

// WithLogger directs flasher traces to the given logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// Flasher programs firmware images segment by segment: request-download,
// chunked transfer-data sized to the ECU's block limit, transfer-exit.
// While a transfer is open it keeps the session alive with tester-present
// from a side goroutine; both paths share the client's transact mutex so
// frames never interleave.
type Flasher struct {
	c   *client.Client
	cfg Config
}

func New(c *client.Client, opts ...Option) *Flasher {
	if c == nil {
		panic("client cannot be nil")
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Flasher{c: c, cfg: cfg}
}

// Program writes every segment of the image. On any failure the open
// transfer is still closed with transfer-exit so the ECU releases its
// transfer state.
func (f *Flasher) Program(ctx context.Context, img *Image) error {
	if img == nil || len(img.Segments) == 0 {
		return errors.New("image is empty")
	}

	start := time.Now()
	total := img.TotalBytes()
	written := 0

	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})

	g.Go(func() error {
		ticker := time.NewTicker(f.cfg.TesterPresentInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return nil
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if _, err := f.c.TesterPresent(gctx); err != nil && gctx.Err() == nil {
					f.logf("tester present during flash: %v", err)
				}
			}
		}
	})

	g.Go(func() error {
		defer close(done)
		for i, seg := range img.Segments {
			n, err := f.programSegment(gctx, seg)
			written += n
			if err != nil {
				return fmt.Errorf("segment %d at 0x%08X: %w", i, seg.Address, err)
			}
			f.report(Progress{
				Segment:       i + 1,
				TotalSegments: len(img.Segments),
				BytesWritten:  written,
				TotalBytes:    total,
				Percentage:    float64(written) / float64(total) * 100,
				Elapsed:       time.Since(start),
			})
		}
		return nil
	})

	return g.Wait()
}

func (f *Flasher) programSegment(ctx context.Context, seg Segment) (int, error) {
	ts, _, err := f.c.RequestDownload(ctx, uint64(seg.Address), uint64(len(seg.Data)),
		f.cfg.AddrLen, f.cfg.SizeLen, f.cfg.DataFormat)
	if err != nil {
		return 0, fmt.Errorf("request download: %w", err)
	}
	f.logf("segment 0x%08X: %d bytes, block limit %d", seg.Address, len(seg.Data), ts.MaxChunkSize())

	written, err := f.sendChunks(ctx, ts, seg.Data)

	// Transfer-exit runs on success and abort alike. On the abort path the
	// passed ctx may already be cancelled, so the exit gets its own budget.
	exitCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		exitCtx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	if _, exitErr := ts.Exit(exitCtx); exitErr != nil && err == nil {
		err = fmt.Errorf("transfer exit: %w", exitErr)
	}
	return written, err
}

func (f *Flasher) sendChunks(ctx context.Context, ts *client.TransferSession, data []byte) (int, error) {
	chunkSize := ts.MaxChunkSize()
	written := 0
	for len(data) > 0 {
		n := chunkSize
		if n > len(data) {
			n = len(data)
		}
		chunk := data[:n]

		err := retry.Do(
			func() error {
				_, err := ts.Send(ctx, chunk)
				return err
			},
			retry.Context(ctx),
			retry.Attempts(f.cfg.Retries+1),
			retry.Delay(f.cfg.RetryDelay),
			retry.DelayType(retry.FixedDelay),
			retry.LastErrorOnly(true),
			retry.RetryIf(isBusy),
		)
		if err != nil {
			return written, err
		}
		written += n
		data = data[n:]
	}
	return written, nil
}

// isBusy allows retries only on busy-repeat-request. A desynchronized
// block counter or any other negative response is final.
func isBusy(err error) bool {
	var neg *uds.NegativeResponseError
	return errors.As(err, &neg) && neg.Code == uds.NRCBusyRepeatRequest
}

func (f *Flasher) report(p Progress) {
	if f.cfg.Progress != nil {
		f.cfg.Progress(p)
	}
}

func (f *Flasher) logf(format string, args ...any) {
	if f.cfg.Logger != nil {
		f.cfg.Logger.Printf(format, args...)
	}
}
