// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for yatfs packages.
//
// [SocketDir] creates a short temporary directory in /tmp for Unix
// domain sockets, whose paths are limited to 108 bytes.
//
// [RequireReceive], [RequireClosed] and
// [RequireSocket] wrap the select-with-timeout pattern so that tests
// never hang and do not need their own time.After calls.
//
// All helpers call t.Fatalf on failure.
package testutil
