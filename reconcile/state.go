package reconcile

import (
	"github.com/use-agent/pagesnap/models"
	"github.com/use-agent/pagesnap/probe"
)

// State is the lifecycle position of one requested URL.
type State int

const (
	// Pending: no file assigned yet.
	Pending State = iota
	// Matched: a file is bound; packaging has not finished.
	Matched
	// Packaged: terminal success.
	Packaged
	// Unresolved: terminal failure; see the entry's reason.
	Unresolved
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Matched:
		return "matched"
	case Packaged:
		return "packaged"
	case Unresolved:
		return "unresolved"
	}
	return "unknown"
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Packaged || s == Unresolved
}

// request tracks one URL through the batch.
type request struct {
	id    int
	url   string
	state State

	file  *probe.ObservedFile
	score float64

	result models.ResultEntry

	// contested is set while the latest tick deferred a file this request
	// was a top contender for.
	contested bool
}

func (r *request) unresolve(reason, message string) {
	r.state = Unresolved
	r.result = models.ResultEntry{
		Error: &models.ErrorDetail{Code: reason, Message: message},
	}
	if r.file != nil {
		r.result.Filename = r.file.Name
	}
}
