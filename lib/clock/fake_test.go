// Copyright 2026 The NDS Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync/atomic"
	"testing"
	"time"
)

var testEpoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeNowAdvance(t *testing.T) {
	t.Parallel()
	c := Fake(testEpoch)

	if got := c.Now(); !got.Equal(testEpoch) {
		t.Errorf("Now: got %v, want %v", got, testEpoch)
	}
	c.Advance(3 * time.Second)
	if got := c.Now(); !got.Equal(testEpoch.Add(3 * time.Second)) {
		t.Errorf("Now after Advance: got %v", got)
	}
}

func TestFakeAfterFiresAtDeadline(t *testing.T) {
	t.Parallel()
	c := Fake(testEpoch)

	ch := c.After(time.Second)
	select {
	case <-ch:
		t.Fatal("After fired before Advance")
	default:
	}

	c.Advance(time.Second)
	select {
	case fired := <-ch:
		if !fired.Equal(testEpoch.Add(time.Second)) {
			t.Errorf("fire time: got %v", fired)
		}
	default:
		t.Fatal("After did not fire after Advance")
	}
}

func TestFakeAfterNonPositive(t *testing.T) {
	t.Parallel()
	c := Fake(testEpoch)

	select {
	case <-c.After(0):
	default:
		t.Fatal("After(0) did not fire immediately")
	}
}

func TestFakeAfterFuncStop(t *testing.T) {
	t.Parallel()
	c := Fake(testEpoch)

	var calls atomic.Int32
	timer := c.AfterFunc(time.Second, func() { calls.Add(1) })
	if !timer.Stop() {
		t.Error("Stop on pending timer: got false, want true")
	}
	c.Advance(2 * time.Second)
	if calls.Load() != 0 {
		t.Error("stopped AfterFunc still fired")
	}
	if timer.Stop() {
		t.Error("second Stop: got true, want false")
	}
}

func TestFakeAfterFuncOrder(t *testing.T) {
	t.Parallel()
	c := Fake(testEpoch)

	var order []int
	c.AfterFunc(2*time.Second, func() { order = append(order, 2) })
	c.AfterFunc(time.Second, func() { order = append(order, 1) })

	c.Advance(3 * time.Second)
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("callback order: got %v, want [1 2]", order)
	}
}

func TestFakeSleepBlocksUntilAdvance(t *testing.T) {
	t.Parallel()
	c := Fake(testEpoch)

	woke := make(chan struct{})
	go func() {
		c.Sleep(time.Second)
		close(woke)
	}()

	c.WaitForWaiters(1)
	c.Advance(time.Second)

	select {
	case <-woke:
	case <-time.After(5 * time.Second):
		t.Fatal("Sleep did not return after Advance")
	}
}
