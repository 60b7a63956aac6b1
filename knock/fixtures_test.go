package knock

import (
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

const testApiKey = "test-key"

// fakeKnock serves the two Knock endpoints the sync uses. Bulk identify
// adds the posted users to the listing, like the real directory.
type fakeKnock struct {
	mu             sync.Mutex
	entries        []map[string]any
	listStatus     int
	identifyStatus int
	listCalls      int
	identified     [][]byte
	authorization  []string
}

func newFakeKnock(t *testing.T, ids ...string) (*fakeKnock, *httptest.Server) {
	t.Helper()
	var fk = new(fakeKnock)
	for _, id := range ids {
		fk.entries = append(fk.entries, map[string]any{"id": id})
	}
	var srv = httptest.NewServer(http.HandlerFunc(fk.serveHTTP))
	t.Cleanup(srv.Close)
	return fk, srv
}

func (fk *fakeKnock) serveHTTP(w http.ResponseWriter, r *http.Request) {
	fk.mu.Lock()
	defer fk.mu.Unlock()
	fk.authorization = append(fk.authorization, r.Header.Get("Authorization"))
	w.Header().Set("Content-Type", "application/json")

	switch r.Method + " " + r.URL.Path {
	case "GET /v1/users":
		fk.listCalls++
		if fk.listStatus != 0 && fk.listStatus != http.StatusOK {
			w.WriteHeader(fk.listStatus)
			_, _ = w.Write([]byte(`{"message":"listing unavailable"}`))
			return
		}
		var data, _ = json.Marshal(map[string]any{
			"entries":   fk.entries,
			"page_info": map[string]any{"after": nil, "before": nil, "page_size": 50},
		})
		_, _ = w.Write(data)

	case "POST /v1/users/bulk/identify":
		var body, _ = io.ReadAll(r.Body)
		fk.identified = append(fk.identified, body)
		if fk.identifyStatus != 0 && fk.identifyStatus != http.StatusOK && fk.identifyStatus != http.StatusCreated {
			w.WriteHeader(fk.identifyStatus)
			_, _ = w.Write([]byte(`{"message":"invalid users"}`))
			return
		}
		var payload Payload
		_ = json.Unmarshal(body, &payload)
		for _, u := range payload.Users {
			fk.entries = append(fk.entries, map[string]any{"id": u.Id, "email": u.Email, "name": u.Name})
		}
		if fk.identifyStatus == http.StatusCreated {
			w.WriteHeader(http.StatusCreated)
		}
		_, _ = w.Write([]byte(`{"id":"op_1","status":"queued"}`))

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (fk *fakeKnock) identifyCalls() int {
	fk.mu.Lock()
	defer fk.mu.Unlock()
	return len(fk.identified)
}

func testKnockParameters(srv *httptest.Server) KnockParameters {
	return KnockParameters{
		ApiUrl:  srv.URL + "/v1",
		ApiKey:  testApiKey,
		Timeout: 5 * time.Second,
		Parser:  ParserStructured,
	}
}

type testPerson struct {
	id       string
	email    any
	active   bool
	external bool
	language any
	first    any
	middle   any
	last     any
	phones   []string
}

func openTestStore(t *testing.T, people ...testPerson) *sql.DB {
	t.Helper()
	var db, err = sql.Open("sqlite", filepath.Join(t.TempDir(), "source.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	for _, ddl := range []string{
		`CREATE TABLE person (
    person_id          TEXT PRIMARY KEY,
    email              TEXT,
    active             BOOLEAN NOT NULL DEFAULT 1,
    is_external        BOOLEAN NOT NULL DEFAULT 0,
    preferred_language TEXT,
    first_name         TEXT,
    middle_name        TEXT,
    last_name          TEXT
)`,
		`CREATE TABLE phone (
    person_id    TEXT NOT NULL,
    phone_number TEXT NOT NULL
)`,
	} {
		_, err = db.Exec(ddl)
		require.NoError(t, err)
	}

	var tx *sql.Tx
	tx, err = db.Begin()
	require.NoError(t, err)
	for _, p := range people {
		_, err = tx.Exec(`INSERT INTO person(person_id, email, active, is_external, preferred_language, first_name, middle_name, last_name)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, p.id, p.email, p.active, p.external, p.language, p.first, p.middle, p.last)
		require.NoError(t, err)
		for _, phone := range p.phones {
			_, err = tx.Exec(`INSERT INTO phone(person_id, phone_number) VALUES ($1, $2)`, p.id, phone)
			require.NoError(t, err)
		}
	}
	require.NoError(t, tx.Commit())
	return db
}

func fixedClock(ts string) func() time.Time {
	var tm, err = time.Parse(time.RFC3339, ts)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return tm }
}

func newTestRunLog(t *testing.T, ts string) *RunLog {
	t.Helper()
	var rl = NewRunLog(filepath.Join(t.TempDir(), "logs"))
	rl.now = fixedClock(ts)
	return rl
}
