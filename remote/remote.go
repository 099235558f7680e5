// Package remote implements hosting-provider adapters for GitHub and GitLab.
//
// An Adapter exposes two things the VFS core needs: a snapshot fetch (branch
// head plus full tree contents) and an atomic commit of a change set against
// a branch. The legacy blob/tree/commit operations exist for providers that
// build trees explicitly; providers whose commit API takes actions directly
// may return a marker from CreateTree and do the real work in
// CreateCommitWithActions.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Action is a change-set operation kind, using the wire vocabulary of the
// GitLab commits API.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Change is one file action within a commit. Content is nil for deletes.
type Change struct {
	Action  Action
	Path    string
	Content []byte
}

// Snapshot is a branch head commit id plus the full tree contents at that
// commit.
type Snapshot struct {
	Head  string
	Files map[string][]byte
}

// TreeEntry is one entry of an explicitly-built tree (legacy path).
type TreeEntry struct {
	Path string
	SHA  string
	Mode string
}

// Adapter abstracts a Git hosting provider.
type Adapter interface {
	// FetchSnapshot reads the branch head commit id, the recursive tree
	// listing and the raw contents of every blob in it.
	FetchSnapshot(ctx context.Context, branch string) (*Snapshot, error)

	// CreateCommitWithActions applies changes as one commit on branch and
	// returns the new commit sha.
	CreateCommitWithActions(ctx context.Context, branch, message string, changes []Change) (string, error)

	// CreateBlobs uploads contents and returns one blob sha per input.
	CreateBlobs(ctx context.Context, contents [][]byte) ([]string, error)

	// CreateTree builds a tree on top of baseTree and returns its sha, or
	// a provider-specific marker when trees are implicit.
	CreateTree(ctx context.Context, baseTree string, entries []TreeEntry) (string, error)

	// CreateCommit creates a commit object pointing at tree.
	CreateCommit(ctx context.Context, message, tree string, parents []string) (string, error)

	// UpdateRef points the branch at sha. Providers whose commit API moves
	// the ref already treat this as a no-op.
	UpdateRef(ctx context.Context, branch, sha string) error
}

// Schema violations: the provider answered 2xx but the payload is not what
// the wire contract promises. Always terminal.
var (
	ErrUnexpectedResponse = errors.New("unexpected response")
	ErrInvalidJSON        = errors.New("invalid JSON response")
)

// StatusError is a non-2xx provider response. The body text is propagated
// verbatim as the error message.
type StatusError struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote: http %d", e.Status)
	}
	return fmt.Sprintf("remote: http %d: %s", e.Status, e.Body)
}

// Retryable reports whether the response is transient: server errors,
// request timeouts and rate limits.
func (e *StatusError) Retryable() bool {
	switch {
	case e.Status >= http.StatusInternalServerError:
		return true
	case e.Status == http.StatusRequestTimeout, e.Status == http.StatusTooManyRequests:
		return true
	}
	return false
}

// Retryable classifies an adapter failure. Transport-layer errors are
// transient; schema violations and client errors are terminal; cancellation
// is never retried.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrUnexpectedResponse) || errors.Is(err, ErrInvalidJSON) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	// Anything else is a transport failure (connection refused, reset,
	// EOF) and worth another attempt.
	return true
}

// retryAfter extracts a provider-suggested delay from err, zero if none.
func retryAfter(err error) time.Duration {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.RetryAfter
	}
	return 0
}
