package history

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"otp-agent/internal/bucketing"
	"otp-agent/internal/client"
	"otp-agent/internal/config"
	"otp-agent/internal/model"
)

var (
	created  = time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	finished = created.Add(90 * time.Second)
)

func buckets() *bucketing.BucketingManager {
	return bucketing.NewBucketingManager(config.BucketingConfig{EventBuckets: 8})
}

func receivedSession() model.Session {
	code := "482913"
	return model.Session{
		ID:          "s1",
		RequestID:   "777",
		PhoneNumber: "+15550001111",
		ServiceID:   "3",
		CountryID:   "91",
		Status:      model.SessionReceived,
		OTPCode:     &code,
		Checks:      4,
		CreatedAt:   created,
		FinishedAt:  &finished,
	}
}

func TestNewRecord(t *testing.T) {
	bm := buckets()

	rec, ok := NewRecord(receivedSession(), bm)
	require.True(t, ok)
	assert.Equal(t, "777", rec.RequestID)
	assert.Equal(t, "482913", rec.OTPCode)
	assert.Equal(t, "received", rec.Status)
	assert.Equal(t, finished, rec.FinishedAt)
	assert.Equal(t, "2025-05-01", rec.DateBucket)
	assert.Equal(t, bm.EventBucket("777"), rec.Bucket)

	waiting := receivedSession()
	waiting.Status = model.SessionWaiting
	_, ok = NewRecord(waiting, bm)
	assert.False(t, ok)
}

type fakeExecer struct {
	mu      sync.Mutex
	execs   []string
	inserts [][]interface{}
	err     error
}

func (f *fakeExecer) Exec(_ context.Context, query string, _ ...interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, query)
	return f.err
}

func (f *fakeExecer) BatchInsert(_ context.Context, query string, rows [][]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.inserts = append(f.inserts, rows...)
	return nil
}

func TestClickHouseRecorder(t *testing.T) {
	db := &fakeExecer{}
	r := NewClickHouseRecorder(db)

	require.NoError(t, r.EnsureSchema(context.Background()))
	require.Len(t, db.execs, 1)
	assert.Contains(t, db.execs[0], "CREATE TABLE IF NOT EXISTS purchase_sessions")

	rec, _ := NewRecord(receivedSession(), buckets())
	require.NoError(t, r.Record(context.Background(), rec))
	require.Len(t, db.inserts, 1)
	row := db.inserts[0]
	require.Len(t, row, 13)
	assert.Equal(t, "s1", row[0])
	assert.Equal(t, uint32(4), row[7])
	assert.Equal(t, "2025-05-01", row[12])

	db.err = errors.New("connection reset")
	assert.Error(t, r.Record(context.Background(), rec))
}

type fakeRecorder struct {
	name string
	err  error

	mu      sync.Mutex
	records []Record
}

func (f *fakeRecorder) Name() string { return f.name }

func (f *fakeRecorder) Record(_ context.Context, rec Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return f.err
}

func (f *fakeRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func TestFanoutRecordsOnlyTerminalSessions(t *testing.T) {
	ok := &fakeRecorder{name: "ok"}
	failing := &fakeRecorder{name: "failing", err: errors.New("down")}
	f := NewFanout(buckets(), zap.NewNop(), ok, failing)

	waiting := receivedSession()
	waiting.Status = model.SessionWaiting
	f.OnSessionEvent(model.SessionEvent{Type: model.EventWaiting, Session: waiting})
	f.OnSessionEvent(model.SessionEvent{Type: model.EventReceived, Session: receivedSession()})

	require.NoError(t, f.Close(context.Background()))
	assert.Equal(t, 1, ok.count())
	assert.Equal(t, 1, failing.count())
}

func TestFanoutRecordReturnsFirstError(t *testing.T) {
	f := NewFanout(buckets(), zap.NewNop(), &fakeRecorder{name: "a"}, &fakeRecorder{name: "b", err: errors.New("down")})
	rec, _ := NewRecord(receivedSession(), buckets())
	assert.EqualError(t, f.Record(context.Background(), rec), "down")
}

// esServer fakes the few Elasticsearch endpoints the index uses.
func esServer(t *testing.T, handle func(w http.ResponseWriter, r *http.Request)) *client.ESClient {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handle(w, r)
	}))
	t.Cleanup(server.Close)

	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{server.URL}})
	require.NoError(t, err)
	return client.NewESClientFrom(es, "otp-purchases", zap.NewNop())
}

func TestSearchIndexRecordAndSearch(t *testing.T) {
	var (
		mu      sync.Mutex
		indexed map[string]interface{}
		query   map[string]interface{}
	)
	es := esServer(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/otp-purchases/_doc/"):
			assert.Equal(t, "/otp-purchases/_doc/s1", r.URL.Path)
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&indexed))
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"result":"created"}`))
		case strings.HasSuffix(r.URL.Path, "/_search"):
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&query))
			_, _ = w.Write([]byte(`{"hits":{"total":{"value":1},"hits":[{"_source":{"session_id":"s1","request_id":"777","status":"received"}}]}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"type":"not_found","reason":"unexpected"}}`))
		}
	})
	idx := NewSearchIndex(es)

	rec, _ := NewRecord(receivedSession(), buckets())
	require.NoError(t, idx.Record(context.Background(), rec))
	assert.Equal(t, "+15550001111", indexed["phone_number"])

	res, err := idx.Search(context.Background(), " 777 ", 500)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "s1", res.Records[0].SessionID)
	assert.Equal(t, float64(maxSearchLimit), query["size"])
	assert.Contains(t, query["query"], "multi_match")
}

func TestSearchIndexSurfacesErrors(t *testing.T) {
	es := esServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"search_phase_execution_exception","reason":"bad query"}}`))
	})

	_, err := NewSearchIndex(es).Search(context.Background(), "", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad query")
}

func TestFanoutDropsSessionsAfterClose(t *testing.T) {
	rec := &fakeRecorder{name: "ok"}
	f := NewFanout(buckets(), zap.NewNop(), rec)

	f.OnSessionEvent(model.SessionEvent{Type: model.EventReceived, Session: receivedSession()})
	require.NoError(t, f.Close(context.Background()))
	assert.Equal(t, 1, rec.count())

	f.OnSessionEvent(model.SessionEvent{Type: model.EventReceived, Session: receivedSession()})
	require.NoError(t, f.Close(context.Background()))
	assert.Equal(t, 1, rec.count())
}

func TestFanoutCloseWhileSessionsArrive(t *testing.T) {
	rec := &fakeRecorder{name: "ok"}
	f := NewFanout(buckets(), zap.NewNop(), rec)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.OnSessionEvent(model.SessionEvent{Type: model.EventReceived, Session: receivedSession()})
		}()
	}
	require.NoError(t, f.Close(context.Background()))
	wg.Wait()

	accepted := rec.count()
	f.OnSessionEvent(model.SessionEvent{Type: model.EventReceived, Session: receivedSession()})
	require.NoError(t, f.Close(context.Background()))
	assert.Equal(t, accepted, rec.count())
}
