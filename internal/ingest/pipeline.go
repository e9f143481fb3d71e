package ingest

import (
	"sync"
	"sync/atomic"

	"github.com/grovetools/devlogs/errors"
	"github.com/grovetools/devlogs/internal/logwriter"
	"github.com/grovetools/devlogs/internal/records"
	"github.com/grovetools/devlogs/internal/registry"
	"github.com/sirupsen/logrus"
)

// Options configures one producer connection's pipeline.
type Options struct {
	// ProjectDir is the producer's project, registered at connect time.
	// Records arriving before any start record auto-create a session here.
	ProjectDir string
	// Descriptor describes the producer (page URL), used when the producer
	// never sends an explicit start record.
	Descriptor string
	// Framing selects the wire framing for this connection.
	Framing Framing
	// MaxFrameBytes bounds a single frame's declared length.
	MaxFrameBytes int
	// RateLimit is the accepted events/second cap. Zero disables it.
	RateLimit int
	// Archive controls whether finalized session logs are archived or deleted.
	Archive bool
}

// Pipeline drives one page-connection producer: framing, validation, rate
// limiting, session lifecycle, and log writing. It is safe for concurrent
// use, though a connection normally feeds it sequentially.
type Pipeline struct {
	reg     *registry.Registry
	opts    Options
	logger  *logrus.Entry
	decoder *Decoder
	limiter *RateLimiter

	mu        sync.Mutex
	sessionID string
	writer    *logwriter.Writer
	// starting guards the session-creation window: the first record flips
	// it, later records queue in pending. The queue is replayed under mu,
	// so the window only closes once every queued record is written.
	starting     bool
	creationDone chan struct{}
	pending      []*records.Record

	dropped atomic.Uint64
}

// NewPipeline creates a pipeline bound to a registry.
func NewPipeline(reg *registry.Registry, opts Options, logger *logrus.Entry) *Pipeline {
	return &Pipeline{
		reg:     reg,
		opts:    opts,
		logger:  logger,
		decoder: NewDecoder(opts.Framing, opts.MaxFrameBytes, logger),
		limiter: NewRateLimiter(opts.RateLimit),
	}
}

// Feed pushes raw bytes from the connection through framing, schema
// validation, and record handling. Malformed or invalid frames are dropped
// individually; the stream always stays alive.
func (p *Pipeline) Feed(chunk []byte) {
	for _, frame := range p.decoder.Feed(chunk) {
		p.HandleFrame(frame)
	}
}

// HandleFrame validates and applies one complete frame. Message-oriented
// transports that frame for us deliver here, bypassing the decoder.
func (p *Pipeline) HandleFrame(frame []byte) {
	rec, err := records.Parse(frame)
	if err != nil {
		p.dropped.Add(1)
		p.logger.WithError(err).Warn("Dropping invalid record")
		return
	}
	p.handle(rec)
}

// HandleRecord applies one already-decoded record. Exposed for transports
// that deliver discrete messages rather than a byte stream.
func (p *Pipeline) HandleRecord(rec *records.Record) {
	p.handle(rec)
}

func (p *Pipeline) handle(rec *records.Record) {
	if rec.Type == records.TypeHeartbeat {
		return
	}

	if rec.IsEvent() && !p.limiter.Allow() {
		p.dropped.Add(1)
		if p.limiter.Rejected()%100 == 1 {
			p.logger.WithField("rejected", p.limiter.Rejected()).Warn("Rate limit exceeded; dropping records")
		}
		return
	}

	p.mu.Lock()
	if p.starting {
		// Session creation is in flight; keep order, replay later.
		p.pending = append(p.pending, rec)
		p.mu.Unlock()
		return
	}
	if rec.Type == records.TypeEnd {
		p.mu.Unlock()
		p.finalize()
		return
	}
	if p.sessionID == "" {
		p.starting = true
		p.creationDone = make(chan struct{})
		p.pending = append(p.pending, rec)
		p.mu.Unlock()
		go p.createSession(rec)
		return
	}
	writer := p.writer
	p.mu.Unlock()

	p.write(writer, rec)
}

// createSession allocates an id, registers it, and opens the log writer,
// then replays every record queued while it ran. Creation happens off the
// feed path because registering can block on the registry lock.
func (p *Pipeline) createSession(first *records.Record) {
	projectDir := p.opts.ProjectDir
	descriptor := p.opts.Descriptor
	if first.Type == records.TypeStart {
		// Explicit attribution from the producer wins over the
		// connection-level registration.
		projectDir = first.ProjectDir
		if first.Descriptor != "" {
			descriptor = first.Descriptor
		}
	}

	id := registry.GenerateID()
	if err := p.reg.Register(id, projectDir, descriptor); err != nil {
		p.logger.WithError(err).Warn("Failed to register session in master index")
	}
	if err := p.reg.MarkActive(id, projectDir, descriptor); err != nil {
		p.logger.WithError(err).Warn("Failed to mark session active")
	}
	writer := logwriter.New(p.reg.ActiveLogPath(id), id, projectDir, descriptor)

	p.mu.Lock()
	p.sessionID = id
	p.writer = writer

	// Replay the queue while still holding mu: records handled on the feed
	// path block on the lock until the queue is fully written, so nothing
	// can interleave with or precede the replay.
	var endQueued bool
	var writeErr error
	for _, rec := range p.pending {
		if rec.Type == records.TypeEnd {
			endQueued = true
			break
		}
		if !rec.IsEvent() {
			continue
		}
		if err := writer.WriteRecord(rec); err != nil {
			if errors.Is(err, errors.ErrCodeStreamError) {
				writeErr = err
				break
			}
			p.logger.WithError(err).Warn("Failed to write record")
		}
	}
	p.pending = nil
	p.starting = false
	done := p.creationDone
	p.creationDone = nil
	p.mu.Unlock()
	close(done)

	p.logger.WithFields(logrus.Fields{
		"sessionId": id,
		"project":   projectDir,
	}).Info("Session started")

	if writeErr != nil {
		p.logger.WithError(writeErr).Error("Session log write failed; finalizing session")
		p.finalize()
		return
	}
	if endQueued {
		p.finalize()
	}
}

func (p *Pipeline) write(writer *logwriter.Writer, rec *records.Record) {
	if writer == nil || !rec.IsEvent() {
		return
	}
	if err := writer.WriteRecord(rec); err != nil {
		// A stream error finalizes this session only; the process and any
		// sibling sessions keep going.
		if errors.Is(err, errors.ErrCodeStreamError) {
			p.logger.WithError(err).Error("Session log write failed; finalizing session")
			p.finalize()
			return
		}
		p.logger.WithError(err).Warn("Failed to write record")
	}
}

// Close finalizes the pipeline's session, if any. Explicit end records,
// stream close, and host shutdown all arrive here.
func (p *Pipeline) Close() {
	p.finalize()
}

// Dropped counts records discarded by validation or rate limiting.
func (p *Pipeline) Dropped() uint64 {
	return p.dropped.Load()
}

// SessionID returns the current session id, or "" before the first record.
func (p *Pipeline) SessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessionID
}

func (p *Pipeline) finalize() {
	p.mu.Lock()
	for p.starting {
		// Wait for the in-flight creation so the new session is not
		// orphaned in the active table.
		done := p.creationDone
		p.mu.Unlock()
		<-done
		p.mu.Lock()
	}
	id := p.sessionID
	writer := p.writer
	p.sessionID = ""
	p.writer = nil
	p.pending = nil
	p.starting = false
	p.mu.Unlock()

	if id == "" {
		return
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			p.logger.WithError(err).Warn("Failed to close session log")
		}
	}
	if err := p.reg.MarkCompleted(id, p.opts.Archive); err != nil {
		p.logger.WithError(err).Warn("Failed to finalize session in registry")
	}
	p.logger.WithField("sessionId", id).Info("Session finalized")
}
