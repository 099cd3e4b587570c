// Copyright 2026 The NDS Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Production code accepts a Clock instead of calling time.Now,
// time.After, time.AfterFunc, or time.Sleep directly. Real() provides
// the standard library behavior; Fake() provides a deterministic clock
// that advances only when Advance is called.
//
// Structs that need time carry a Clock field:
//
//	mux := &mux{clock: clock.Real()}
//
// Tests inject a fake and drive it explicitly:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	// ... start goroutines ...
//	c.WaitForWaiters(1)
//	c.Advance(time.Second)
//
// WaitForWaiters blocks until the expected number of pending timers
// or sleeps are registered, eliminating the race between timer
// registration and advancement.
package clock
