// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

// recorder captures Fatalf instead of stopping the test.
type recorder struct {
	failure string
}

func (r *recorder) Helper() {}

func (r *recorder) Fatalf(format string, args ...any) {
	r.failure = fmt.Sprintf(format, args...)
}

func TestRequireReceive(t *testing.T) {
	ch := make(chan int, 1)
	ch <- 7
	if got := RequireReceive(t, ch, time.Second); got != 7 {
		t.Errorf("RequireReceive = %d, want 7", got)
	}

	var timedOut recorder
	RequireReceive(&timedOut, make(chan int), time.Millisecond, "waiting for %s", "piece 3")
	if !strings.Contains(timedOut.failure, "timed out") || !strings.Contains(timedOut.failure, "piece 3") {
		t.Errorf("timeout failure = %q", timedOut.failure)
	}

	closed := make(chan int)
	close(closed)
	var closedEarly recorder
	RequireReceive(&closedEarly, closed, time.Second, "result")
	if !strings.Contains(closedEarly.failure, "closed") {
		t.Errorf("closed channel failure = %q", closedEarly.failure)
	}
}

func TestRequireClosed(t *testing.T) {
	done := make(chan struct{})
	close(done)
	RequireClosed(t, done, time.Second)

	var stuck recorder
	RequireClosed(&stuck, make(chan struct{}), time.Millisecond)
	if !strings.Contains(stuck.failure, "(no message)") {
		t.Errorf("failure = %q", stuck.failure)
	}
}
