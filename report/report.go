// Package report defines the structured records kickguard emits after each
// suppression sweep. Sinks (stdout, webhook, in-process callback) consume
// these; nothing in the engine depends on a report being delivered.
package report

import "encoding/json"

// SweepReport summarises the work done on one page since the previous report.
// Counters for images, videos, reblocks and errors are deltas; scheduler
// counters are cumulative for the page session.
type SweepReport struct {
	ID        string `json:"id"`
	PageID    string `json:"page_id"`
	PageURL   string `json:"page_url"`
	Seq       uint64 `json:"seq"` // monotonically increasing per page session
	Images    int    `json:"images"`
	Videos    int    `json:"videos"`
	Reblocked int    `json:"reblocked"` // host rewrote a source on a suppressed node
	Errors    int    `json:"errors"`    // per-node failures swallowed by the engine

	Requested uint64 `json:"requested"`
	Dropped   uint64 `json:"dropped"` // requests coalesced into an already pending sweep
	Executed  uint64 `json:"executed"`

	Timestamp int64 `json:"timestamp"` // epoch milliseconds
}

// Empty reports whether the sweep changed nothing on the page.
func (r SweepReport) Empty() bool {
	return r.Images == 0 && r.Videos == 0 && r.Reblocked == 0 && r.Errors == 0
}

// Marshal serialises a report to JSON.
func Marshal(r *SweepReport) ([]byte, error) {
	return json.Marshal(r)
}

// Unmarshal deserialises a report from JSON.
func Unmarshal(data []byte) (*SweepReport, error) {
	var r SweepReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// VerifyEvent records a page saved to the verified list from a guarded tab.
type VerifyEvent struct {
	ID        string `json:"id"`
	PageID    string `json:"page_id"`
	URL       string `json:"url"`
	Added     bool   `json:"added"` // false when the URL was already verified
	Timestamp int64  `json:"timestamp"`
}
