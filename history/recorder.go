// Copyright 2026 The NDS Authors
// SPDX-License-Identifier: Apache-2.0

package history

import "time"

// Recorder turns multiplexer callbacks into history events. Append
// failures are swallowed: history is advisory and must never take a
// live session down.
type Recorder struct {
	log *Log
	now func() time.Time
}

// NewRecorder wraps a log. The now function supplies timestamps,
// letting tests pin them.
func NewRecorder(log *Log, now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{log: log, now: now}
}

func (r *Recorder) RecordCreated(name string) {
	r.append(Event{Kind: KindCreated, Name: name})
}

func (r *Recorder) RecordAttach(attached int) {
	r.append(Event{Kind: KindAttached, Attached: attached})
}

func (r *Recorder) RecordDetach(attached int) {
	r.append(Event{Kind: KindDetached, Attached: attached})
}

func (r *Recorder) RecordResize(rows, cols int) {
	r.append(Event{Kind: KindResized, Rows: rows, Cols: cols})
}

func (r *Recorder) RecordKilled() {
	r.append(Event{Kind: KindKilled})
}

func (r *Recorder) RecordExit(status int) {
	r.append(Event{Kind: KindExited, Status: &status})
}

func (r *Recorder) append(event Event) {
	event.At = r.now()
	_ = r.log.Append(event)
}
