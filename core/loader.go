package core

import (
	"context"
	stderrors "errors"
	"runtime"
	"sync"
	"time"

	"github.com/argonlabs/imageload/config"
	apperrors "github.com/argonlabs/imageload/errors"
	"github.com/argonlabs/imageload/utils"
)

// Loader is the central orchestrator: it fetches bytes, consults the bitmap
// cache, dispatches decode work to a worker pool, and drives the per-request
// state machine.  It is safe for concurrent use.
type Loader struct {
	cfg     config.Config
	reg     Registry
	fetcher Fetcher
	bitmaps BitmapCache // nil disables bitmap caching entirely
	logger  Logger
	metrics MetricsCollector
	hooks   []Hook

	// In-flight decode de-duplication.  At most one flight per content key;
	// concurrent requests for the same key attach as waiters.
	mu      sync.Mutex
	flights map[uint64]*flight

	// Worker pool.
	jobQueue chan *flight
	wg       sync.WaitGroup
	once     sync.Once
	stopOnce sync.Once
	shutdown chan struct{}
}

// flight is one shared decode operation.  All waiters for a key observe the
// same terminal result.  The flight context is detached from any single
// waiter; it is cancelled only when the last waiter departs.
type flight struct {
	req     DecodeRequest
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
	done    chan struct{}
	result  *DecodeResult
	err     error
}

// NewLoader creates a Loader.  Call Start() before submitting loads; call
// Stop() when done.  bitmaps may be nil to disable caching.
func NewLoader(cfg config.Config, reg Registry, fetcher Fetcher, bitmaps BitmapCache) *Loader {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Loader{
		cfg:      cfg,
		reg:      reg,
		fetcher:  fetcher,
		bitmaps:  bitmaps,
		flights:  make(map[uint64]*flight),
		jobQueue: make(chan *flight, queueSize),
		shutdown: make(chan struct{}),
	}
}

// SetLogger attaches a structured logger.
func (l *Loader) SetLogger(lg Logger) { l.logger = lg }

// SetMetrics attaches a metrics collector.
func (l *Loader) SetMetrics(m MetricsCollector) { l.metrics = m }

// AddHook registers a load lifecycle observer.
func (l *Loader) AddHook(h Hook) { l.hooks = append(l.hooks, h) }

// Registry returns the underlying registry so callers can register decoders
// after construction.
func (l *Loader) Registry() Registry { return l.reg }

// Start launches the worker pool.  It is idempotent.
func (l *Loader) Start() {
	l.once.Do(func() {
		workerCount := l.cfg.WorkerCount
		if workerCount <= 0 {
			workerCount = runtime.NumCPU()
		}
		for i := 0; i < workerCount; i++ {
			l.wg.Add(1)
			go l.worker()
		}
	})
}

// Stop shuts down all workers.  Pending flights are abandoned.  It is
// idempotent.
func (l *Loader) Stop() {
	l.stopOnce.Do(func() {
		close(l.shutdown)
		l.wg.Wait()
	})
}

// Load starts (or attaches to) a load for req and returns its state-machine
// instance.  The returned Request is already Loading, or terminal when the
// bitmap cache hit.  Cancelling ctx abandons this request cooperatively: the
// shared decode keeps running while other waiters remain and is cancelled
// when the last one departs.
func (l *Loader) Load(ctx context.Context, req DecodeRequest) (*Request, error) {
	rs := NewRequest(req)
	start := time.Now()
	l.notifyBefore(ctx, req)
	rs.begin()

	// Fast path: cache hit completes synchronously on the calling goroutine.
	if req.Options.UseCache && l.bitmaps != nil {
		if bm, ok := l.bitmaps.Get(req.Key()); ok {
			l.recordCacheHit()
			res := &DecodeResult{Bitmap: bm, Width: bm.Width, Height: bm.Height, ColorInfo: colorInfoFor(bm)}
			rs.succeed(res, true)
			l.notifyAfter(ctx, req, rs.State(), time.Since(start), nil)
			return rs, nil
		}
		l.recordCacheMiss()
	}

	f, err := l.attach(req)
	if err != nil {
		rs.fail(err)
		l.notifyAfter(ctx, req, rs.State(), time.Since(start), err)
		return rs, err
	}

	go l.await(ctx, rs, f, start)
	return rs, nil
}

// attach joins an existing flight for the key or creates and enqueues a new
// one.  The caller becomes a waiter either way.
func (l *Loader) attach(req DecodeRequest) (*flight, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	select {
	case <-l.shutdown:
		return nil, apperrors.New(apperrors.CategoryState, "loader.load", apperrors.ErrLoaderClosed)
	default:
	}

	if f, ok := l.flights[req.Key()]; ok {
		f.waiters++
		return f, nil
	}

	fctx := context.Background()
	var cancel context.CancelFunc
	if l.cfg.LoadTimeout > 0 {
		fctx, cancel = context.WithTimeout(fctx, l.cfg.LoadTimeout)
	} else {
		fctx, cancel = context.WithCancel(fctx)
	}
	f := &flight{
		req:     req,
		ctx:     fctx,
		cancel:  cancel,
		waiters: 1,
		done:    make(chan struct{}),
	}

	select {
	case l.jobQueue <- f:
	default:
		cancel()
		return nil, apperrors.New(apperrors.CategoryState, "loader.submit", apperrors.ErrWorkerPoolFull)
	}
	l.flights[req.Key()] = f
	return f, nil
}

// await drives one waiter's state machine from the shared flight outcome.
func (l *Loader) await(ctx context.Context, rs *Request, f *flight, start time.Time) {
	select {
	case <-ctx.Done():
		rs.abandon()
		l.detach(f)
		l.logDebug("load.cancelled", "source", rs.req.Source, "key", rs.Key())
		return
	case <-l.shutdown:
		rs.abandon()
		l.detach(f)
		return
	case <-f.done:
	}

	if f.err != nil {
		rs.fail(f.err)
		l.recordError("loader.decode", f.err)
	} else {
		rs.succeed(f.result, false)
	}
	l.detach(f)
	l.notifyAfter(ctx, rs.req, rs.State(), time.Since(start), f.err)
}

// detach drops one waiter.  The last waiter out cancels the shared decode and
// removes the flight so a later request starts fresh.
func (l *Loader) detach(f *flight) {
	l.mu.Lock()
	f.waiters--
	last := f.waiters <= 0
	if last {
		if cur, ok := l.flights[f.req.Key()]; ok && cur == f {
			delete(l.flights, f.req.Key())
		}
	}
	l.mu.Unlock()
	if last {
		f.cancel()
	}
}

// ── worker pool internals ─────────────────────────────────────────────────────

func (l *Loader) worker() {
	defer l.wg.Done()
	for {
		select {
		case <-l.shutdown:
			return
		case f, ok := <-l.jobQueue:
			if !ok {
				return
			}
			l.execute(f)
		}
	}
}

// execute runs the shared decode for a flight: fetch, decode (optionally via
// a region decoder), cache populate.  Cancellation is checked at each
// suspension point; a cancelled flight never touches the caches.
func (l *Loader) execute(f *flight) {
	defer func() {
		close(f.done)
		f.cancel()
	}()

	req := f.req

	data, err := l.fetchWithRetry(f.ctx, req.Source)
	if err != nil {
		f.err = err
		return
	}
	if len(data) == 0 {
		f.err = apperrors.New(apperrors.CategoryFetch, "loader.fetch", apperrors.ErrEmptyInput)
		return
	}
	if max := l.cfg.MaxImageBytes; max > 0 && int64(len(data)) > max {
		f.err = apperrors.New(apperrors.CategoryInput, "loader.fetch", utils.ErrTooLarge)
		return
	}
	if err := f.ctx.Err(); err != nil {
		f.err = err
		return
	}

	start := time.Now()
	res, err := l.decode(f.ctx, data, req)
	if err != nil {
		f.err = err
		return
	}
	l.recordDecodeTime(string(sniffFormat(data, req.MIMEHint)), time.Since(start))

	// Populate the cache only for completed, cache-enabled decodes.  The weak
	// association never extends the bitmap's lifetime.
	if err := f.ctx.Err(); err != nil {
		f.err = err
		return
	}
	if req.Options.UseCache && l.bitmaps != nil {
		l.bitmaps.Put(req.Key(), res.Bitmap)
	}
	if l.metrics != nil {
		l.metrics.RecordBitmapBytes(res.Bitmap.SizeBytes())
	}
	f.result = res
}

func (l *Loader) fetchWithRetry(ctx context.Context, source string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	for attempt := 0; attempt <= l.cfg.MaxRetries; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
		data, err = l.fetcher.Fetch(ctx, source)
		if err == nil {
			return data, nil
		}
		if !apperrors.IsRetryable(err) {
			break
		}
		if attempt < l.cfg.MaxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(l.cfg.RetryDelay):
			}
		}
	}
	return nil, apperrors.Wrap(apperrors.CategoryFetch, "loader.fetch", err)
}

// decode selects a decoder by sniffed format and runs either the region path
// or a full decode.  Region decode falls back to a downsized full decode when
// the capability is unavailable on this deployment.
func (l *Loader) decode(ctx context.Context, data []byte, req DecodeRequest) (*DecodeResult, error) {
	opts := req.Options
	if opts.PixelFormat == "" {
		opts.PixelFormat = l.cfg.DefaultPixelFormat
	}

	if opts.Region != nil {
		res, err := l.decodeRegion(ctx, data, opts)
		if err == nil {
			return res, nil
		}
		if !apperrors.IsCapabilityUnavailable(err) {
			return nil, err
		}
		// Negotiated absence: full decode at a downsized target instead.
		opts = fallbackOptions(opts)
		l.logDebug("region.fallback", "source", req.Source)
	}

	format := sniffFormat(data, req.MIMEHint)
	dec, ok := l.reg.DecoderFor(format)
	if !ok {
		dec, ok = l.reg.DecoderFor(FormatUnknown)
	}
	if !ok || !dec.CanDecode(format) {
		return nil, apperrors.New(apperrors.CategoryDecode, "loader.decode", apperrors.ErrUnsupportedFormat)
	}
	return dec.Decode(ctx, data, opts)
}

func (l *Loader) decodeRegion(ctx context.Context, data []byte, opts DecodeOptions) (*DecodeResult, error) {
	factory, ok := l.reg.RegionFactory()
	if !ok {
		return nil, apperrors.New(apperrors.CategoryDecode, "loader.region", apperrors.ErrCapabilityUnavailable)
	}
	rd, err := factory.NewRegionDecoder(ctx, data)
	if err != nil {
		return nil, err
	}
	defer rd.Close()

	sample := opts.SampleSize
	if sample < 1 {
		sample = 1
	}
	rect := opts.Region.Intersect(rd.Bounds())
	if rect.Empty() {
		return nil, apperrors.New(apperrors.CategoryInput, "loader.region", apperrors.ErrInvalidDimensions)
	}
	return rd.DecodeRegion(ctx, rect, sample, opts)
}

// fallbackOptions rewrites region options into an equivalent full-decode
// downsample request.
func fallbackOptions(opts DecodeOptions) DecodeOptions {
	out := opts
	out.Region = nil
	sample := opts.SampleSize
	if sample < 1 {
		sample = 1
	}
	if out.TargetWidth == 0 && out.TargetHeight == 0 && opts.Region != nil {
		out.TargetWidth = opts.Region.Dx() / sample
		out.TargetHeight = opts.Region.Dy() / sample
	}
	out.SampleSize = 0
	return out
}

func sniffFormat(data []byte, mimeHint string) Format {
	switch mimeHint {
	case "image/jpeg", "image/jpg":
		return FormatJPEG
	case "image/png":
		return FormatPNG
	case "image/webp":
		return FormatWebP
	case "image/qoi":
		return FormatQOI
	}
	return Format(utils.DetectFormat(data))
}

func colorInfoFor(bm *Bitmap) ColorInfo {
	switch bm.Format {
	case config.PixelFormatGray:
		return ColorInfo{ColorSpace: ColorSpaceGray}
	case config.PixelFormatRGB565:
		return ColorInfo{ColorSpace: ColorSpaceRGB}
	}
	return ColorInfo{ColorSpace: ColorSpaceRGBA, HasAlpha: true}
}

// ── observability plumbing ────────────────────────────────────────────────────

func (l *Loader) notifyBefore(ctx context.Context, req DecodeRequest) {
	for _, h := range l.hooks {
		h.BeforeLoad(ctx, req)
	}
}

func (l *Loader) notifyAfter(ctx context.Context, req DecodeRequest, st State, d time.Duration, err error) {
	for _, h := range l.hooks {
		h.AfterLoad(ctx, req, st, d, err)
	}
}

func (l *Loader) recordCacheHit() {
	if l.metrics != nil {
		l.metrics.RecordCacheHit()
	}
}

func (l *Loader) recordCacheMiss() {
	if l.metrics != nil {
		l.metrics.RecordCacheMiss()
	}
}

func (l *Loader) recordDecodeTime(format string, d time.Duration) {
	if l.metrics != nil {
		l.metrics.RecordDecodeTime(format, d)
	}
}

func (l *Loader) recordError(op string, err error) {
	if l.metrics == nil {
		return
	}
	cat := apperrors.CategoryDecode
	var le *apperrors.LoadError
	if stderrors.As(err, &le) {
		cat = le.Category
	}
	l.metrics.RecordError(op, string(cat))
}

func (l *Loader) logDebug(msg string, fields ...interface{}) {
	if l.logger != nil {
		l.logger.Debug(msg, fields...)
	}
}
