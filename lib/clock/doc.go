// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts wall time so that the inode store's
// timestamps and the fetch routine's status ticker can be driven
// deterministically in tests.
//
// Production code uses Real(). Tests use Fake(), which only moves
// when Advance is called:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	store, err := inodedb.Open(inodedb.Config{Path: path, Clock: c})
//	// ...
//	c.Advance(time.Minute)
package clock
