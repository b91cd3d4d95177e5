package main

import (
	"testing"
	"time"
)

func TestFormatTimeZero(t *testing.T) {
	if got := formatTime(time.Time{}); got != "never" {
		t.Fatalf("formatTime(zero) = %q, want never", got)
	}
}

func TestFormatUnix(t *testing.T) {
	if got := formatUnix(0); got != "never" {
		t.Fatalf("formatUnix(0) = %q, want never", got)
	}
	when := time.Date(2026, 3, 14, 9, 26, 53, 0, time.Local)
	if got := formatUnix(when.Unix()); got != "2026-03-14 09:26:53" {
		t.Fatalf("formatUnix = %q", got)
	}
}

func TestFormatRunDuration(t *testing.T) {
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	if got := formatRunDuration(start, start.Add(90*time.Second)); got != "1m30s" {
		t.Fatalf("formatRunDuration = %q", got)
	}
	if got := formatRunDuration(start, time.Time{}); got != "-" {
		t.Fatalf("unfinished run = %q, want -", got)
	}
	if got := formatRunDuration(start, start.Add(-time.Second)); got != "-" {
		t.Fatalf("end before start = %q, want -", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 48); got != "short" {
		t.Fatalf("truncate(short) = %q", got)
	}
	long := "zfs send exited with status 1: cannot open snapshot stream"
	got := truncate(long, 20)
	if len(got) != 20 {
		t.Fatalf("truncated length = %d, want 20", len(got))
	}
	if got[len(got)-3:] != "..." {
		t.Fatalf("missing ellipsis: %q", got)
	}
}
