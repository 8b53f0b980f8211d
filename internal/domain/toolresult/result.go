package toolresult

import (
	"time"

	"github.com/kailas-cloud/askdex/internal/domain/source"
	"github.com/kailas-cloud/askdex/internal/domain/tool"
)

// Status is the terminal state of a tool invocation.
type Status string

// Result statuses.
const (
	StatusOk       Status = "ok"
	StatusFailed   Status = "failed"
	StatusTimedOut Status = "timed_out"
)

// Result is the immutable outcome of one tool invocation.
type Result struct {
	tool    tool.Name
	status  Status
	items   []source.Item
	err     string
	elapsed time.Duration
}

// Ok creates a successful result. Items are copied.
func Ok(name tool.Name, items []source.Item, elapsed time.Duration) Result {
	cp := source.CloneAll(items)
	if cp == nil {
		cp = []source.Item{}
	}
	return Result{tool: name, status: StatusOk, items: cp, elapsed: elapsed}
}

// Failed creates a failed result carrying the error message.
func Failed(name tool.Name, err error, elapsed time.Duration) Result {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Result{tool: name, status: StatusFailed, err: msg, elapsed: elapsed}
}

// TimedOut creates a result for an invocation that exceeded its deadline.
func TimedOut(name tool.Name, elapsed time.Duration) Result {
	return Result{tool: name, status: StatusTimedOut, err: "deadline exceeded", elapsed: elapsed}
}

// Tool returns the tool name.
func (r Result) Tool() tool.Name { return r.tool }

// Status returns the terminal status.
func (r Result) Status() Status { return r.status }

// Items returns a copy of the payload. Failed and timed-out results have none.
func (r Result) Items() []source.Item {
	if r.status != StatusOk {
		return nil
	}
	return source.CloneAll(r.items)
}

// Error returns the failure message, empty for Ok results.
func (r Result) Error() string { return r.err }

// Elapsed returns the wall time spent on the invocation.
func (r Result) Elapsed() time.Duration { return r.elapsed }

// IsOk reports whether the tool succeeded.
func (r Result) IsOk() bool { return r.status == StatusOk }

// AllFailed reports whether results is non-empty and none succeeded.
func AllFailed(results []Result) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if r.IsOk() {
			return false
		}
	}
	return true
}
