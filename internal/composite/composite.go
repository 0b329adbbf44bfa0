// Package composite drives one inbound request's fan-out across both
// upstream adapters: it owns every subquery, runs one goroutine per
// subquery for its HTTP fetch and streaming parse, and runs one
// coordinating goroutine that owns the completion barrier, the retry
// queue, and the timeout tick, presenting a single-threaded cooperative
// event loop to callers even though the fetches themselves run
// concurrently.
package composite

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paleoapi/compositegw/internal/clock/system"
	"github.com/paleoapi/compositegw/internal/metrics"
	"github.com/paleoapi/compositegw/internal/progress"
	"github.com/paleoapi/compositegw/internal/record"
	"github.com/paleoapi/compositegw/internal/reqctx"
	"github.com/paleoapi/compositegw/internal/reqtransform"
	"github.com/paleoapi/compositegw/internal/subquery"
	"github.com/paleoapi/compositegw/internal/upstream"
)

// Mode selects which of an adapter's two URL builders a subquery uses.
type Mode int

// Supported fetch modes.
const (
	ModeList Mode = iota
	ModeSingle
)

// Clock abstracts wall-clock reads for deadline tracking, so tests can
// inject a fake.
type Clock interface {
	Now() time.Time
}

// RateLimiter paces a subquery's GET against its upstream host.
type RateLimiter interface {
	Wait(ctx context.Context, url string) error
}

// Archiver persists a subquery's raw response body for later operator
// diagnosis. Archiving is best-effort: a failure is logged, never
// surfaced as a subquery warning.
type Archiver interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Options configures a Driver.
type Options struct {
	Timeout     time.Duration // 0 disables the deadline tick entirely
	Retries     int
	TickPeriod  time.Duration // defaults to 3s
	HTTPClient  *http.Client
	RateLimiter RateLimiter
	Archiver    Archiver // nil disables response archiving entirely
	Progress    *progress.Hub // nil disables progress event emission entirely
	Clock       Clock
	Logger      *zap.Logger
}

type entry struct {
	sq       *subquery.Subquery
	adapter  upstream.Adapter
	buildURL func(ctx context.Context, rc *reqctx.Context, sq *subquery.Subquery, spawner upstream.Spawner) (string, error)
}

// Driver owns every subquery of one composite request.
type Driver struct {
	rc        *reqctx.Context
	opts      Options
	barrier   *barrier
	requestID [16]byte

	mu         sync.Mutex
	entries    []*entry
	retryQueue []*subquery.Subquery
	timedOut   bool
	startedAt  time.Time

	wg sync.WaitGroup
}

// New returns a Driver for one inbound request, pre-debiting the
// completion barrier by one (the founding debit released by Run).
func New(rc *reqctx.Context, opts Options) *Driver {
	if opts.TickPeriod <= 0 {
		opts.TickPeriod = 3 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Clock == nil {
		opts.Clock = system.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	d := &Driver{
		rc:      rc,
		opts:    opts,
		barrier: newBarrier(),
	}
	if id, err := uuid.Parse(rc.RequestID); err == nil {
		d.requestID = progress.UUIDToBytes(id)
	}
	d.barrier.debit()
	return d
}

func (d *Driver) emit(evt progress.Event) {
	evt.RequestID = d.requestID
	evt.TS = d.opts.Clock.Now()
	d.opts.Progress.Emit(evt)
}

// AddSubquery registers a top-level subquery and adds one barrier debit.
func (d *Driver) AddSubquery(label string, main bool, adapter upstream.Adapter, mode Mode) *subquery.Subquery {
	sq := subquery.New(label, adapter.Label(), main)
	e := &entry{sq: sq, adapter: adapter, buildURL: buildFunc(adapter, mode)}
	d.mu.Lock()
	d.entries = append(d.entries, e)
	d.mu.Unlock()
	d.barrier.debit()
	return sq
}

func buildFunc(adapter upstream.Adapter, mode Mode) func(context.Context, *reqctx.Context, *subquery.Subquery, upstream.Spawner) (string, error) {
	if mode == ModeSingle {
		return adapter.BuildSingleURL
	}
	return adapter.BuildListURL
}

// SpawnSecondary implements upstream.Spawner: it registers a secondary
// subquery, runs it on its own goroutine, and blocks the caller (itself
// running inside another subquery's goroutine) until it reaches a
// terminal state.
func (d *Driver) SpawnSecondary(ctx context.Context, label string, adapter upstream.Adapter) (*subquery.Subquery, error) {
	sq := subquery.New(label, adapter.Label(), false)
	sq.Secondary = true
	e := &entry{sq: sq, adapter: adapter, buildURL: adapter.BuildListURL}

	d.mu.Lock()
	d.entries = append(d.entries, e)
	d.mu.Unlock()
	d.barrier.debit()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.runSubquery(ctx, e)
	}()

	<-sq.Done
	return sq, nil
}

// SignalDone marks sq terminal and releases one barrier debit. Called
// exactly once per subquery, from the goroutine that ran it.
func (d *Driver) SignalDone(sq *subquery.Subquery) {
	metrics.ObserveSubquery(sq.Upstream, terminalStatusLabel(sq))
	for range sq.Warnings {
		metrics.ObserveWarning(sq.Upstream)
	}
	d.emit(progress.Event{
		Stage:       progress.StageSubqueryDone,
		Upstream:    sq.Upstream,
		URL:         sq.URL,
		Bytes:       sq.Bytes,
		Records:     int64(len(sq.Records)),
		StatusClass: progress.ClassifyStatus(sq.HTTPStatus),
		Dur:         sq.FetchDuration,
	})
	sq.MarkTerminal()
	d.barrier.release()
	metrics.ObserveBarrierRelease()
}

func terminalStatusLabel(sq *subquery.Subquery) string {
	switch {
	case sq.Status == subquery.StatusAbort:
		return "abort"
	case sq.HTTPStatus >= 200 && sq.HTTPStatus < 300:
		return "ok"
	default:
		return "error"
	}
}

// Run launches every registered subquery, releases the founding debit,
// then awaits the completion barrier — released either by every
// subquery finishing or by the deadline tripping. On return, in-flight
// HTTP handles are cancelled and the tick timer is torn down.
func (d *Driver) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	d.mu.Lock()
	entries := append([]*entry(nil), d.entries...)
	d.mu.Unlock()

	d.startedAt = d.opts.Clock.Now()
	d.emit(progress.Event{Stage: progress.StageRequestStart})
	defer func() {
		dur := d.opts.Clock.Now().Sub(d.startedAt)
		metrics.ObserveCompositeDuration(dur)
		d.mu.Lock()
		timedOut := d.timedOut
		d.mu.Unlock()
		stage := progress.StageRequestDone
		if timedOut {
			stage = progress.StageRequestTimeout
		}
		d.emit(progress.Event{Stage: stage, Dur: dur})
	}()

	for _, e := range entries {
		d.wg.Add(1)
		go func(e *entry) {
			defer d.wg.Done()
			d.runSubquery(ctx, e)
		}(e)
	}

	d.barrier.release() // founding debit

	if d.opts.Timeout <= 0 {
		<-d.barrier.Wait()
		cancel()
		d.wg.Wait()
		return
	}

	ticker := time.NewTicker(d.opts.TickPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-d.barrier.Wait():
			cancel()
			d.wg.Wait()
			return
		case <-ticker.C:
			if d.opts.Clock.Now().Sub(d.startedAt) > d.opts.Timeout {
				d.mu.Lock()
				d.timedOut = true
				d.mu.Unlock()
				metrics.ObserveTimeout()
				d.barrier.forceClose()
				cancel()
				d.wg.Wait()
				return
			}
			d.drainRetryQueue()
		}
	}
}

func (d *Driver) enqueueRetry(sq *subquery.Subquery) {
	metrics.ObserveRetry(sq.Upstream)
	d.emit(progress.Event{Stage: progress.StageSubqueryRetry, Upstream: sq.Upstream, URL: sq.URL})
	d.mu.Lock()
	d.retryQueue = append(d.retryQueue, sq)
	d.mu.Unlock()
}

func (d *Driver) drainRetryQueue() {
	d.mu.Lock()
	queued := d.retryQueue
	d.retryQueue = nil
	d.mu.Unlock()
	for _, sq := range queued {
		sq.SignalRetry()
	}
}

func (d *Driver) runSubquery(ctx context.Context, e *entry) {
	sq := e.sq
	for {
		sq.Status = subquery.StatusInit
		url, err := e.buildURL(ctx, d.rc, sq, d)
		if err != nil {
			sq.AddWarning(e.adapter.Label() + ": " + err.Error())
			sq.Status = subquery.StatusAbort
			d.SignalDone(sq)
			return
		}
		if url == "" {
			sq.Status = subquery.StatusAbort
			d.SignalDone(sq)
			return
		}
		sq.URL = url
		sq.Status = subquery.StatusGet
		d.emit(progress.Event{Stage: progress.StageSubqueryStart, Upstream: sq.Upstream, URL: url})

		if d.opts.RateLimiter != nil {
			if err := d.opts.RateLimiter.Wait(ctx, url); err != nil {
				sq.AddWarning(fmt.Sprintf("%s: rate limit wait: %v", e.adapter.Label(), err))
			}
		}

		fetchStart := d.opts.Clock.Now()
		status, reason := d.fetch(ctx, e, sq)
		sq.FetchDuration = d.opts.Clock.Now().Sub(fetchStart)
		sq.HTTPStatus = status
		sq.Reason = reason
		sq.Status = subquery.StatusComp

		if subquery.IsRetryableStatus(status) && sq.RetryCount < d.opts.Retries {
			sq.ResetForRetry()
			d.enqueueRetry(sq)
			if !sq.AwaitRetrySignal(ctx) {
				sq.AddWarning(fmt.Sprintf("%s: cancelled while awaiting retry", e.adapter.Label()))
				sq.Status = subquery.StatusAbort
				d.SignalDone(sq)
				return
			}
			continue
		}
		if subquery.IsRetryableStatus(status) {
			sq.AddWarning(fmt.Sprintf("%s: retry budget exhausted, final status %d for %s", e.adapter.Label(), status, sq.URL))
		}

		d.SignalDone(sq)
		return
	}
}

func (d *Driver) fetch(ctx context.Context, e *entry, sq *subquery.Subquery) (int, string) {
	sq.Parser = e.adapter.NewExtractor()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sq.URL, nil)
	if err != nil {
		return 597, err.Error()
	}
	resp, err := d.opts.HTTPClient.Do(req)
	if err != nil {
		return 595, err.Error()
	}
	defer resp.Body.Close()

	var archive *bytes.Buffer
	if d.opts.Archiver != nil {
		archive = &bytes.Buffer{}
	}

	buf := make([]byte, 32*1024)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			sq.Bytes += int64(n)
			if archive != nil {
				archive.Write(buf[:n])
			}
			if cerr := e.adapter.OnChunk(d.rc, sq, buf[:n]); cerr != nil {
				break
			}
		}
		if rerr != nil {
			break
		}
	}
	if archive != nil {
		d.archiveResponse(ctx, sq, archive)
	}
	return resp.StatusCode, resp.Status
}

func (d *Driver) archiveResponse(ctx context.Context, sq *subquery.Subquery, body *bytes.Buffer) {
	path := fmt.Sprintf("%s/%s.json", d.rc.RequestID, sq.Label)
	if _, err := d.opts.Archiver.PutObject(ctx, path, "application/json", body); err != nil {
		d.opts.Logger.Warn("archive subquery response failed", zap.String("path", path), zap.Error(err))
	}
}

// Results concatenates records from main subqueries in registration
// order, applies the client's requested ordering, and returns the total
// removed-by-filter count alongside.
func (d *Driver) Results() ([]record.Record, int) {
	d.mu.Lock()
	entries := append([]*entry(nil), d.entries...)
	d.mu.Unlock()

	var out []record.Record
	removed := 0
	for _, e := range entries {
		if !e.sq.Main {
			continue
		}
		out = append(out, e.sq.Records...)
		removed += e.sq.Removed
	}
	reqtransform.ShapeVocab(d.rc.Vocab, out)
	reqtransform.Sort(d.rc.Order, out)
	return out, removed
}

// Warnings synthesizes the top-level TIMEOUT message (if tripped), one
// warning per subquery whose COMP HTTP status is non-2xx, and every
// adapter-pushed warning, each already prefixed by its subquery label.
func (d *Driver) Warnings() []string {
	d.mu.Lock()
	timedOut := d.timedOut
	entries := append([]*entry(nil), d.entries...)
	d.mu.Unlock()

	var out []string
	if timedOut {
		out = append(out, "TIMEOUT: results may be incomplete")
	}
	for _, e := range entries {
		if e.sq.Status == subquery.StatusComp && (e.sq.HTTPStatus < 200 || e.sq.HTTPStatus >= 300) {
			out = append(out, fmt.Sprintf("%s: %d %s", e.adapter.Label(), e.sq.HTTPStatus, e.sq.Reason))
		}
		out = append(out, e.sq.Warnings...)
	}
	return out
}

// URLs returns every subquery's resolved URL, in registration order.
// Secondary subqueries are included only when includeSecondary is true.
func (d *Driver) URLs(includeSecondary bool) []string {
	d.mu.Lock()
	entries := append([]*entry(nil), d.entries...)
	d.mu.Unlock()

	var out []string
	for _, e := range entries {
		if !includeSecondary && e.sq.Secondary {
			continue
		}
		if e.sq.URL != "" {
			out = append(out, e.sq.URL)
		}
	}
	return out
}

// barrier is a cancelable counting completion signal: Wait's channel
// closes either when every debit has been released or when forceClose
// is called directly (the TIMEOUT path).
type barrier struct {
	mu     sync.Mutex
	count  int
	done   chan struct{}
	closed bool
}

func newBarrier() *barrier {
	return &barrier{done: make(chan struct{})}
}

func (b *barrier) debit() {
	b.mu.Lock()
	b.count++
	b.mu.Unlock()
}

func (b *barrier) release() {
	b.mu.Lock()
	b.count--
	zero := b.count == 0
	b.mu.Unlock()
	if zero {
		b.forceClose()
	}
}

func (b *barrier) forceClose() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()
	close(b.done)
}

func (b *barrier) Wait() <-chan struct{} { return b.done }
