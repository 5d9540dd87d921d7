package errors

import "github.com/pkg/errors"

var (
	// account errors
	ErrAccountExists     = errors.New("account already exists")
	ErrAccountNotFound   = errors.New("account not found")
	ErrLastAccount       = errors.New("cannot delete the only account")
	ErrConnectionTimeout = errors.New("connection timeout")

	// sync errors
	ErrFolderNotFound = errors.New("folder not found")
	ErrNotConnected   = errors.New("not connected")
)

// Kind classifies a sync failure for error handling policy: connection
// failures are retryable at the next run, auth failures are surfaced to
// the user, storage failures abort the operation, parse failures skip
// the message.
type Kind string

const (
	KindConnection     Kind = "connection"
	KindAuthentication Kind = "authentication"
	KindStorage        Kind = "storage"
	KindParse          Kind = "parse"
)

type kindedError struct {
	kind Kind
	err  error
}

func (e *kindedError) Error() string { return e.err.Error() }
func (e *kindedError) Unwrap() error { return e.err }

func WithKind(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &kindedError{kind: kind, err: err}
}

func Connection(err error) error     { return WithKind(KindConnection, err) }
func Authentication(err error) error { return WithKind(KindAuthentication, err) }
func Storage(err error) error        { return WithKind(KindStorage, err) }
func Parse(err error) error          { return WithKind(KindParse, err) }

// KindOf walks the wrap chain looking for a classified error. Unclassified
// errors default to KindConnection, the retryable case.
func KindOf(err error) Kind {
	var ke *kindedError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return KindConnection
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
