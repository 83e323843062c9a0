package httpengine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/browser-shell/internal/port"
)

type transferState int

const (
	transferIdle transferState = iota
	transferRunning
	transferPaused
	transferCancelled
)

// Transfer downloads one URL into the download directory. Pausing cancels
// the request; resuming reissues it with a Range header and appends to the
// temp file.
type Transfer struct {
	engine *Engine
	url    string
	logger *zap.Logger

	mu     sync.Mutex
	state  transferState
	dest   string
	obs    port.TransferObserver
	cancel context.CancelFunc
	// done closes when the current run has exited
	done chan struct{}
}

// Ensure Transfer implements port.Transfer
var _ port.Transfer = (*Transfer)(nil)

// NewTransfer creates an idle transfer for url
func (e *Engine) NewTransfer(url string) *Transfer {
	return &Transfer{
		engine: e,
		url:    url,
		logger: e.logger.With(zap.String("url", url)),
	}
}

// Start begins writing to dest. Callbacks go to obs.
func (t *Transfer) Start(dest string, obs port.TransferObserver) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != transferIdle {
		return
	}
	t.dest = dest
	t.obs = obs
	t.startLocked(false)
}

// Pause cancels the in-flight request and keeps the temp file
func (t *Transfer) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != transferRunning {
		return
	}
	t.state = transferPaused
	t.cancel()
}

// Resume continues from the bytes already on disk
func (t *Transfer) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != transferPaused {
		return
	}
	t.startLocked(true)
}

// Cancel stops the transfer for good and removes the temp file
func (t *Transfer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == transferCancelled {
		return
	}
	wasIdle := t.state == transferIdle
	t.state = transferCancelled
	if t.cancel != nil {
		t.cancel()
	}
	if wasIdle {
		return
	}

	prev := t.done
	tempPath := t.engine.fs.TempPath(t.dest)
	go func() {
		if prev != nil {
			<-prev
		}
		if err := t.engine.fs.DeleteTempFile(tempPath); err != nil {
			t.logger.Warn("failed to delete temp file", zap.String("temp_path", tempPath), zap.Error(err))
		}
	}()
}

// startLocked launches a run once the previous one has exited. Caller holds t.mu.
func (t *Transfer) startLocked(resume bool) {
	ctx, cancel := context.WithCancel(context.Background())
	prev := t.done
	done := make(chan struct{})

	t.state = transferRunning
	t.cancel = cancel
	t.done = done

	go func() {
		defer close(done)
		if prev != nil {
			<-prev
		}
		t.run(ctx, resume)
	}()
}

func (t *Transfer) run(ctx context.Context, resume bool) {
	if ctx.Err() != nil {
		return
	}
	fs := t.engine.fs

	var offset int64
	if resume {
		size, _, err := fs.GetTempFileInfo(fs.TempPath(t.dest))
		if err != nil {
			t.logger.Warn("failed to stat temp file, starting over", zap.Error(err))
		}
		offset = size
	}

	req, err := t.engine.newRequest(ctx, t.url)
	if err != nil {
		t.interrupted(ctx, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := t.engine.client.Do(req)
	if err != nil {
		t.interrupted(ctx, err.Error())
		return
	}
	defer resp.Body.Close()

	var body io.Reader = resp.Body
	switch {
	case resp.StatusCode == http.StatusPartialContent:
	case resp.StatusCode == http.StatusOK:
		if offset > 0 {
			// server ignored Range; skip what is already on disk
			t.logger.Debug("range not honoured, skipping received bytes", zap.Int64("offset", offset))
			if _, err := io.CopyN(io.Discard, resp.Body, offset); err != nil {
				t.interrupted(ctx, fmt.Sprintf("failed to skip to resume offset: %v", err))
				return
			}
		}
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && offset > 0:
		// temp file already holds everything
		body = http.NoBody
	default:
		t.interrupted(ctx, fmt.Sprintf("server returned %s", resp.Status))
		return
	}

	var total int64
	switch {
	case resp.StatusCode == http.StatusOK && resp.ContentLength > 0:
		total = resp.ContentLength
	case resp.StatusCode == http.StatusPartialContent && resp.ContentLength > 0:
		total = offset + resp.ContentLength
	}

	pr := &progressReader{
		reader:   body,
		received: offset,
		total:    total,
		interval: t.engine.cfg.ReportInterval,
		report:   t.observer().BytesChanged,
	}

	result, err := fs.WriteFileWithResume(t.dest, pr, offset > 0, true)
	if err != nil {
		t.interrupted(ctx, err.Error())
		return
	}
	if ctx.Err() != nil {
		// paused or cancelled while the body drained
		t.logger.Debug("transfer stopped before completion was reported", zap.String("dest_path", result.Path))
		return
	}
	pr.flush()

	t.logger.Info("download written",
		zap.String("dest_path", result.Path),
		zap.Int64("bytes", result.BytesWritten),
		zap.Bool("resumed", result.Resumed))
	t.observer().Finished()
}

func (t *Transfer) observer() port.TransferObserver {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.obs
}

// interrupted reports a fault unless the run was cancelled by the user
func (t *Transfer) interrupted(ctx context.Context, reason string) {
	if ctx.Err() != nil {
		return
	}
	t.logger.Warn("download interrupted", zap.String("reason", reason))
	t.observer().Interrupted(reason)
}

// progressReader reports cumulative bytes at most once per interval
type progressReader struct {
	reader   io.Reader
	received int64
	total    int64
	interval time.Duration
	last     time.Time
	report   func(received, total int64)
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.received += int64(n)

	if n > 0 && time.Since(r.last) >= r.interval {
		r.flush()
	}
	return n, err
}

func (r *progressReader) flush() {
	r.report(r.received, r.total)
	r.last = time.Now()
}
