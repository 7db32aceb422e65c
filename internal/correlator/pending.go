package correlator

import (
	"sort"
	"time"

	"github.com/danmuck/linkbridge/internal/protocol"
)

// PendingRequest is a read-only view of one unsettled request.
type PendingRequest struct {
	Token    string
	Command  string
	IssuedAt time.Time
	Deadline time.Time
}

type settlement struct {
	reply protocol.Reply
	err   error
}

type entry struct {
	PendingRequest
	// done has capacity one and receives exactly one settlement.
	done chan settlement
}

// table is the pending map; callers hold Correlator.mu.
type table map[string]*entry

func (t table) add(e *entry) bool {
	if _, ok := t[e.Token]; ok {
		return false
	}
	t[e.Token] = e
	return true
}

// take removes and returns the entry, so a token settles at most once.
func (t table) take(token string) (*entry, bool) {
	e, ok := t[token]
	if !ok {
		return nil, false
	}
	delete(t, token)
	return e, true
}

func (t table) list() []PendingRequest {
	out := make([]PendingRequest, 0, len(t))
	for _, e := range t {
		out = append(out, e.PendingRequest)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Token < out[j].Token
	})
	return out
}
