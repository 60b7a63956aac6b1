package knock

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrConfigurationMissing = errors.New("configuration missing")
	ErrConfigurationInvalid = errors.New("configuration invalid")
	ErrDependencyMissing    = errors.New("dependency missing")
	ErrRemoteFetchFailed    = errors.New("knock directory fetch failed")
	ErrQueryFailed          = errors.New("source query failed")
	ErrSubmitFailed         = errors.New("knock bulk identify failed")
)

// HttpError is returned for every Knock response outside the accepted status codes.
type HttpError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *HttpError) Error() string {
	if len(e.Body) > 0 {
		return fmt.Sprintf("%s Knock \"%s\" error: status code %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s Knock \"%s\" error: status code %d", e.Method, e.Path, e.StatusCode)
}

// IDirectory is the remote user registry.
// Users reads a single page; more reports that the registry has further pages.
type IDirectory interface {
	Users(ctx context.Context) (users []*RemoteUser, more bool, err error)
	BulkIdentify(ctx context.Context, payload *Payload) (string, error)
}

// ISourceStore is the authoritative user store
type ISourceStore interface {
	Users(ctx context.Context, exclude Set[string]) ([]*SourceUser, error)
}

type RemoteUser struct {
	Id    string
	Email string
	Name  string
}

type SourceUser struct {
	Id                string
	Email             string
	PreferredLanguage string
	FirstName         string
	MiddleName        string
	LastName          string
	PhoneNumber       string
}

type SyncStat struct {
	Fetched   int
	Excluded  int
	Queried   int
	Submitted int
	DryRun    bool
	Response  string
}
