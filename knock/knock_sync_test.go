package knock

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestSync(t *testing.T, srv *httptest.Server, people []testPerson, options Options) (*KnockSync, *RunLog) {
	t.Helper()
	var db = openTestStore(t, people...)
	var directory = NewKnockEndpoint(testKnockParameters(srv), new(structuredParser))
	var logger = zaptest.NewLogger(t)
	var source = NewPostgresEndpoint(db, []string{"@rentpure.com"}, logger)
	var runLog = newTestRunLog(t, "2024-03-05T10:15:00Z")
	return NewKnockSync(directory, source, runLog, logger, options), runLog
}

func TestKnockSync_EndToEnd(t *testing.T) {
	var fk, srv = newFakeKnock(t, "u1")
	var sync, runLog = newTestSync(t, srv, []testPerson{
		{id: "u1", email: "u1@rentpure.com", active: true, first: "Already", last: "There"},
		{id: "u2", email: "a@rentpure.com", active: true, first: "A", last: "B"},
	}, Options{})

	var stat, err = sync.Sync(context.Background())
	require.NoError(t, err)

	require.Len(t, fk.identified, 1)
	assert.Equal(t, `{"users":[{"id":"u2","email":"a@rentpure.com","name":"A B"}]}`, string(fk.identified[0]))
	for _, h := range fk.authorization {
		assert.Equal(t, "Bearer "+testApiKey, h)
	}

	assert.Equal(t, 1, stat.Fetched)
	assert.Equal(t, 1, stat.Excluded)
	assert.Equal(t, 1, stat.Queried)
	assert.Equal(t, 1, stat.Submitted)
	assert.Contains(t, stat.Response, `"status": "queued"`)

	var directoryLog, er1 = os.ReadFile(runLog.Path(LogCategoryDirectory))
	require.NoError(t, er1)
	assert.Contains(t, string(directoryLog), "records=1\nu1\t\t\n")

	var sourceLog, er2 = os.ReadFile(runLog.Path(LogCategorySource))
	require.NoError(t, er2)
	assert.Contains(t, string(sourceLog), "u2\ta@rentpure.com\t\tA\t\tB\t\n")
	assert.NotContains(t, string(sourceLog), "u1@rentpure.com")
}

func TestKnockSync_SecondRunIsIdempotent(t *testing.T) {
	var fk, srv = newFakeKnock(t)
	var sync, runLog = newTestSync(t, srv, []testPerson{
		{id: "u1", email: "one@rentpure.com", active: true, first: "One"},
		{id: "u2", email: "two@rentpure.com", active: true, phones: []string{"+15550100"}},
	}, Options{})

	var first, err = sync.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, first.Submitted)

	var second *SyncStat
	second, err = sync.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, second.Fetched)
	assert.Equal(t, 0, second.Queried)
	assert.Equal(t, 0, second.Submitted)
	assert.Equal(t, 1, fk.identifyCalls())

	var sourceLog, er1 = os.ReadFile(runLog.Path(LogCategorySource))
	require.NoError(t, er1)
	assert.Equal(t, 2, strings.Count(string(sourceLog), "# 2024-03-05T10:15:00Z"))
}

func TestKnockSync_ZeroRowsSkipsSubmit(t *testing.T) {
	var fk, srv = newFakeKnock(t, "u1")
	var sync, runLog = newTestSync(t, srv, []testPerson{
		{id: "u1", email: "u1@rentpure.com", active: true},
		{id: "u3", email: "inactive@rentpure.com", active: false},
		{id: "u4", email: "vendor@rentpure.com", active: true, external: true},
		{id: "u5", email: "someone@example.com", active: true},
	}, Options{})

	var stat, err = sync.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stat.Submitted)
	assert.Equal(t, 0, fk.identifyCalls())

	var sourceLog, er1 = os.ReadFile(runLog.Path(LogCategorySource))
	require.NoError(t, er1)
	var lines = strings.Split(strings.TrimRight(string(sourceLog), "\n"), "\n")
	require.Len(t, lines, 1)
	assert.True(t, strings.HasSuffix(lines[0], "records=0"))
}

func TestKnockSync_FetchFailureWritesNoLogs(t *testing.T) {
	var fk, srv = newFakeKnock(t)
	fk.listStatus = http.StatusUnauthorized
	var sync, runLog = newTestSync(t, srv, []testPerson{
		{id: "u2", email: "a@rentpure.com", active: true},
	}, Options{})

	var _, err = sync.Sync(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRemoteFetchFailed))

	var httpErr *HttpError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
	assert.Contains(t, httpErr.Body, "listing unavailable")

	assert.NoFileExists(t, runLog.Path(LogCategoryDirectory))
	assert.NoFileExists(t, runLog.Path(LogCategorySource))
	assert.Equal(t, 0, fk.identifyCalls())
}

func TestKnockSync_SubmitFailure(t *testing.T) {
	var fk, srv = newFakeKnock(t)
	fk.identifyStatus = http.StatusUnprocessableEntity
	var sync, runLog = newTestSync(t, srv, []testPerson{
		{id: "u2", email: "a@rentpure.com", active: true},
	}, Options{})

	var stat, err = sync.Sync(context.Background())
	require.Error(t, err)
	assert.Nil(t, stat)
	assert.True(t, errors.Is(err, ErrSubmitFailed))
	assert.Contains(t, err.Error(), "invalid users")

	assert.FileExists(t, runLog.Path(LogCategoryDirectory))
	assert.FileExists(t, runLog.Path(LogCategorySource))
}

func TestKnockSync_Created(t *testing.T) {
	var fk, srv = newFakeKnock(t)
	fk.identifyStatus = http.StatusCreated
	var sync, _ = newTestSync(t, srv, []testPerson{
		{id: "u2", email: "a@rentpure.com", active: true},
	}, Options{})

	var stat, err = sync.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stat.Submitted)
}

func TestKnockSync_DryRun(t *testing.T) {
	var fk, srv = newFakeKnock(t)
	var sync, runLog = newTestSync(t, srv, []testPerson{
		{id: "u2", email: "a@rentpure.com", active: true, first: "A", last: "B"},
	}, Options{DryRun: true})

	var stat, err = sync.Sync(context.Background())
	require.NoError(t, err)
	assert.True(t, stat.DryRun)
	assert.Equal(t, 1, stat.Submitted)
	assert.Contains(t, stat.Response, `"name": "A B"`)
	assert.Equal(t, 0, fk.identifyCalls())
	assert.FileExists(t, runLog.Path(LogCategorySource))
}

type staticSource []*SourceUser

func (s staticSource) Users(_ context.Context, _ Set[string]) ([]*SourceUser, error) {
	return s, nil
}

func TestKnockSync_NeverSubmitsExcludedUsers(t *testing.T) {
	var fk, srv = newFakeKnock(t, "u1", "u3")
	var directory = NewKnockEndpoint(testKnockParameters(srv), new(structuredParser))
	var source = staticSource{
		{Id: "u1", Email: "u1@rentpure.com"},
		{Id: "u2", Email: "u2@rentpure.com"},
		{Id: "u3", Email: "u3@rentpure.com"},
	}
	var sync = NewKnockSync(directory, source, newTestRunLog(t, "2024-03-05T10:15:00Z"), zaptest.NewLogger(t), Options{})

	var stat, err = sync.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stat.Queried)
	assert.Equal(t, 1, stat.Submitted)
	require.Len(t, fk.identified, 1)
	assert.Equal(t, `{"users":[{"id":"u2","email":"u2@rentpure.com"}]}`, string(fk.identified[0]))
}
