package domain

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/vertextoedge/browser-shell/internal/domain/vo"
)

// DownloadState is the lifecycle state of a single transfer
type DownloadState string

// Download states
const (
	DownloadPending     DownloadState = "pending"
	DownloadActive      DownloadState = "active"
	DownloadPaused      DownloadState = "paused"
	DownloadCompleted   DownloadState = "completed"
	DownloadCancelled   DownloadState = "cancelled"
	DownloadInterrupted DownloadState = "interrupted"
)

// UnknownSize marks a total that the engine has not reported yet
const UnknownSize int64 = -1

// IsTerminal reports whether no further transition is permitted
func (s DownloadState) IsTerminal() bool {
	switch s {
	case DownloadCompleted, DownloadCancelled, DownloadInterrupted:
		return true
	}
	return false
}

// DownloadRecord tracks one transfer from acceptance to a terminal state.
// The ID is the source URL.
type DownloadRecord struct {
	ID            string
	SuggestedName string
	DestPath      string

	TotalBytes    int64
	ReceivedBytes int64

	State           DownloadState
	InterruptReason string

	CreatedAt  time.Time
	UpdatedAt  time.Time
	FinishedAt *time.Time

	// Estimator state
	LastSample vo.Sample
	prevSample vo.Sample
}

// NewDownloadRecord creates a record in the Pending state
func NewDownloadRecord(id, suggestedName, destPath string, sizeHint int64, now time.Time) *DownloadRecord {
	if sizeHint <= 0 {
		sizeHint = UnknownSize
	}
	return &DownloadRecord{
		ID:            id,
		SuggestedName: suggestedName,
		DestPath:      destPath,
		TotalBytes:    sizeHint,
		State:         DownloadPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (d *DownloadRecord) transition(to DownloadState, now time.Time, allowed ...DownloadState) error {
	if d.State.IsTerminal() {
		return fmt.Errorf("%w: %s -> %s", ErrTerminalState, d.State, to)
	}
	for _, from := range allowed {
		if d.State == from {
			d.State = to
			d.UpdatedAt = now
			if to.IsTerminal() {
				finished := now
				d.FinishedAt = &finished
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, d.State, to)
}

// Activate moves a Pending record to Active once its destination is resolved
func (d *DownloadRecord) Activate(now time.Time) error {
	if err := d.transition(DownloadActive, now, DownloadPending); err != nil {
		return err
	}
	d.LastSample = vo.Sample{At: now, Bytes: d.ReceivedBytes}
	d.prevSample = vo.Sample{}
	return nil
}

// Pause stops progress accounting; accumulated bytes are kept
func (d *DownloadRecord) Pause(now time.Time) error {
	return d.transition(DownloadPaused, now, DownloadActive)
}

// Resume continues accounting from a fresh sample so paused time is not
// counted as zero throughput
func (d *DownloadRecord) Resume(now time.Time) error {
	if err := d.transition(DownloadActive, now, DownloadPaused); err != nil {
		return err
	}
	d.LastSample = vo.Sample{At: now, Bytes: d.ReceivedBytes}
	d.prevSample = vo.Sample{}
	return nil
}

// Cancel is valid from Active or Paused
func (d *DownloadRecord) Cancel(now time.Time) error {
	return d.transition(DownloadCancelled, now, DownloadActive, DownloadPaused)
}

// Complete marks full receipt
func (d *DownloadRecord) Complete(now time.Time) error {
	if err := d.transition(DownloadCompleted, now, DownloadActive); err != nil {
		return err
	}
	if d.TotalBytes > 0 {
		d.ReceivedBytes = d.TotalBytes
	} else {
		d.TotalBytes = d.ReceivedBytes
	}
	return nil
}

// Interrupt records a non-recoverable engine fault; reason is kept verbatim.
// Only a running transfer can fault.
func (d *DownloadRecord) Interrupt(reason string, now time.Time) error {
	if err := d.transition(DownloadInterrupted, now, DownloadActive); err != nil {
		return err
	}
	d.InterruptReason = reason
	return nil
}

// Abandon ends a record whose transfer no longer exists, such as one left
// unfinished by an earlier session. Valid from any non-terminal state.
func (d *DownloadRecord) Abandon(reason string, now time.Time) error {
	if err := d.transition(DownloadInterrupted, now, DownloadPending, DownloadActive, DownloadPaused); err != nil {
		return err
	}
	d.InterruptReason = reason
	return nil
}

// ApplyProgress accepts a byte count from the engine.
// Only Active records accept updates. Counts lower than the current one are
// rejected with ErrStaleProgress and leave the record untouched. Received
// bytes never exceed a known total.
func (d *DownloadRecord) ApplyProgress(received, total int64, now time.Time) error {
	if d.State.IsTerminal() {
		return fmt.Errorf("%w: progress on %s record", ErrTerminalState, d.State)
	}
	if d.State != DownloadActive {
		return fmt.Errorf("%w: state is %s", ErrNotActive, d.State)
	}
	newTotal := d.TotalBytes
	if total > 0 {
		newTotal = total
	}
	if newTotal > 0 && received > newTotal {
		received = newTotal
	}
	if received < d.ReceivedBytes {
		return ErrStaleProgress
	}

	d.TotalBytes = newTotal
	d.ReceivedBytes = received
	d.UpdatedAt = now
	d.prevSample = d.LastSample
	d.LastSample = vo.Sample{At: now, Bytes: received}
	return nil
}

// Speed returns the most recent throughput estimate
func (d *DownloadRecord) Speed() (float64, bool) {
	return vo.Speed(d.prevSample, d.LastSample)
}

// FileName returns the base name of the resolved destination
func (d *DownloadRecord) FileName() string {
	if d.DestPath == "" {
		return d.SuggestedName
	}
	return filepath.Base(d.DestPath)
}

// StatusText returns the line shown under the progress bar
func (d *DownloadRecord) StatusText() string {
	switch d.State {
	case DownloadPending:
		return "Starting download..."
	case DownloadActive:
		return vo.ProgressText(d.ReceivedBytes, d.TotalBytes)
	case DownloadPaused:
		return "Download paused"
	case DownloadCompleted:
		return "Download complete"
	case DownloadCancelled:
		return "Download cancelled"
	case DownloadInterrupted:
		return "Download failed: " + d.InterruptReason
	}
	return string(d.State)
}

// DownloadSnapshot is an immutable view of a record handed to observers
type DownloadSnapshot struct {
	ID              string        `json:"id"`
	FileName        string        `json:"file_name"`
	SuggestedName   string        `json:"suggested_name"`
	DestPath        string        `json:"dest_path"`
	State           DownloadState `json:"state"`
	ReceivedBytes   int64         `json:"received_bytes"`
	TotalBytes      int64         `json:"total_bytes"`
	Percent         int           `json:"percent"`
	BytesPerSec     float64       `json:"bytes_per_sec"`
	SpeedText       string        `json:"speed_text,omitempty"`
	ETAText         string        `json:"eta_text,omitempty"`
	StatusText      string        `json:"status_text"`
	InterruptReason string        `json:"interrupt_reason,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
	FinishedAt      *time.Time    `json:"finished_at,omitempty"`
}

// Snapshot copies the record and derives its display fields
func (d *DownloadRecord) Snapshot() DownloadSnapshot {
	s := DownloadSnapshot{
		ID:              d.ID,
		FileName:        d.FileName(),
		SuggestedName:   d.SuggestedName,
		DestPath:        d.DestPath,
		State:           d.State,
		ReceivedBytes:   d.ReceivedBytes,
		TotalBytes:      d.TotalBytes,
		Percent:         vo.Percent(d.ReceivedBytes, d.TotalBytes),
		StatusText:      d.StatusText(),
		InterruptReason: d.InterruptReason,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
	if d.FinishedAt != nil {
		finished := *d.FinishedAt
		s.FinishedAt = &finished
	}

	if d.State == DownloadActive {
		speed, ok := d.Speed()
		if ok {
			s.BytesPerSec = speed
			s.SpeedText = vo.FormatSpeed(speed)
		}
		if d.TotalBytes > 0 {
			s.ETAText = vo.FormatETA(vo.ETA(d.TotalBytes, d.ReceivedBytes, speed))
		}
	}
	return s
}
