package vo

import (
	"testing"
	"time"
)

func TestFormatSpeed(t *testing.T) {
	tests := []struct {
		bytesPerSec float64
		want        string
	}{
		{0, "0 B/s"},
		{512, "512 B/s"},
		{1023, "1023 B/s"},
		{1023.4, "1023 B/s"},
		{1023.6, "1.0 KB/s"},
		{1024, "1.0 KB/s"},
		{float64(MB) - 1, "1.0 MB/s"},
		{2048, "2.0 KB/s"},
		{1536 * 1024, "1.5 MB/s"},
		{float64(GB), "1.0 GB/s"},
		{float64(2 * TB), "2.0 TB/s"},
		{-5, "0 B/s"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := FormatSpeed(tt.bytesPerSec); got != tt.want {
				t.Errorf("FormatSpeed(%v) = %q, want %q", tt.bytesPerSec, got, tt.want)
			}
		})
	}
}

func TestFileSize_String(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{MB - 1, "1.0 MB"},
		{MB - 60, "1023.9 KB"},
		{GB - 1, "1.0 GB"},
		{1_500_000, "1.4 MB"},
		{MB, "1.0 MB"},
		{GB, "1.0 GB"},
		{3 * TB, "3.0 TB"},
		{2048 * TB, "2048.0 TB"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := MustFileSize(tt.bytes).String(); got != tt.want {
				t.Errorf("FileSize(%d).String() = %q, want %q", tt.bytes, got, tt.want)
			}
		})
	}
}

func TestSpeed(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		prev   Sample
		cur    Sample
		want   float64
		wantOK bool
	}{
		{
			name:   "one second",
			prev:   Sample{At: base, Bytes: 0},
			cur:    Sample{At: base.Add(time.Second), Bytes: 2048},
			want:   2048,
			wantOK: true,
		},
		{
			name:   "half second",
			prev:   Sample{At: base, Bytes: 1000},
			cur:    Sample{At: base.Add(500 * time.Millisecond), Bytes: 1512},
			want:   1024,
			wantOK: true,
		},
		{
			name:   "zero elapsed",
			prev:   Sample{At: base, Bytes: 0},
			cur:    Sample{At: base, Bytes: 100},
			wantOK: false,
		},
		{
			name:   "negative elapsed",
			prev:   Sample{At: base.Add(time.Second), Bytes: 0},
			cur:    Sample{At: base, Bytes: 100},
			wantOK: false,
		},
		{
			name:   "no previous sample",
			cur:    Sample{At: base, Bytes: 100},
			wantOK: false,
		},
		{
			name:   "bytes went backwards",
			prev:   Sample{At: base, Bytes: 500},
			cur:    Sample{At: base.Add(time.Second), Bytes: 100},
			want:   0,
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Speed(tt.prev, tt.cur)
			if ok != tt.wantOK {
				t.Fatalf("Speed() ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("Speed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestETA(t *testing.T) {
	d, ok := ETA(10_000, 2_000, 1_000)
	if !ok || d != 8*time.Second {
		t.Errorf("ETA() = %v, %v; want 8s, true", d, ok)
	}

	if _, ok := ETA(10_000, 2_000, 0); ok {
		t.Error("ETA() with zero speed should have no estimate")
	}
	if _, ok := ETA(0, 2_000, 100); ok {
		t.Error("ETA() with unknown total should have no estimate")
	}
}

func TestFormatETA(t *testing.T) {
	tests := []struct {
		d    time.Duration
		ok   bool
		want string
	}{
		{0, false, "calculating..."},
		{0, true, "0s"},
		{59 * time.Second, true, "59s"},
		{60 * time.Second, true, "1m 0s"},
		{185 * time.Second, true, "3m 5s"},
		{3599 * time.Second, true, "59m 59s"},
		{3600 * time.Second, true, "1h 0m"},
		{2*time.Hour + 10*time.Minute + 30*time.Second, true, "2h 10m"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := FormatETA(tt.d, tt.ok); got != tt.want {
				t.Errorf("FormatETA(%v) = %q, want %q", tt.d, got, tt.want)
			}
		})
	}
}

func TestProgressText(t *testing.T) {
	if got := ProgressText(1024, 2048); got != "Downloading... 1.0 KB of 2.0 KB" {
		t.Errorf("ProgressText() = %q", got)
	}
	if got := ProgressText(100, -1); got != "Downloading... size unknown" {
		t.Errorf("ProgressText() = %q", got)
	}
	if got := Percent(50, 200); got != 25 {
		t.Errorf("Percent() = %d, want 25", got)
	}
	if got := Percent(50, 0); got != 0 {
		t.Errorf("Percent() = %d, want 0", got)
	}
}
