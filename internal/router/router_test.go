package router

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/userdir/internal/db/memorystorage"
	"github.com/patric-chuzhbe/userdir/internal/favorites"
	"github.com/patric-chuzhbe/userdir/internal/ipchecker"
	"github.com/patric-chuzhbe/userdir/internal/models"
	"github.com/patric-chuzhbe/userdir/internal/notifier"
	"github.com/patric-chuzhbe/userdir/internal/recordcache"
	servicepkg "github.com/patric-chuzhbe/userdir/internal/service"
	"github.com/patric-chuzhbe/userdir/internal/viewstate"
)

const trustedSubnet = "10.0.0.0/8"

type stubSource struct {
	records []models.UserRecord
	err     error
}

func (s *stubSource) FetchPage(ctx context.Context, limit, offset int) ([]models.UserRecord, error) {
	return s.records, s.err
}

func (s *stubSource) FetchByID(ctx context.Context, id int) (models.UserRecord, error) {
	if s.err != nil {
		return models.UserRecord{}, s.err
	}
	for _, record := range s.records {
		if record.ID == id {
			return record, nil
		}
	}
	return models.UserRecord{}, &models.NotFoundError{ID: id}
}

func testRecords() []models.UserRecord {
	records := []models.UserRecord{
		{ID: 1, FirstName: "John", LastName: "Doe", Email: "john@example.com", Username: "johnd", Age: 28},
		{ID: 2, FirstName: "Jane", LastName: "Smith", Email: "jane@example.com", Username: "janes", Age: 32},
		{ID: 3, FirstName: "Bob", LastName: "Johnson", Email: "bob@example.com", Username: "bobby", Age: 45},
	}
	for i := 4; i <= 25; i++ {
		records = append(records, models.UserRecord{
			ID:        i,
			FirstName: fmt.Sprintf("Extra%02d", i),
			LastName:  "User",
			Age:       20 + i,
			Company:   models.Company{Name: "Acme"},
			Address:   models.Address{City: "Denver"},
		})
	}
	return records
}

type testServer struct {
	url    string
	source *stubSource
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	db, err := memorystorage.New()
	require.NoError(t, err)

	bus := notifier.New(16)
	bus.Run(ctx)

	source := &stubSource{records: testRecords()}
	cache := recordcache.New(db)
	store := favorites.New(ctx, db, bus)
	view := viewstate.New(source, store, viewstate.WithRecordCache(cache))
	svc := servicepkg.New(view, store, cache, source, db)
	require.NoError(t, svc.Load(ctx))

	checker, err := ipchecker.New(trustedSubnet)
	require.NoError(t, err)

	srv := httptest.NewServer(New(svc, checker))
	t.Cleanup(srv.Close)

	return &testServer{url: srv.URL, source: source}
}

func decodeSnapshot(t *testing.T, body []byte) models.ViewSnapshot {
	t.Helper()

	var snapshot models.ViewSnapshot
	require.NoError(t, json.Unmarshal(body, &snapshot))

	return snapshot
}

func ids(records []models.UserRecord) []int {
	result := make([]int, 0, len(records))
	for _, record := range records {
		result = append(result, record.ID)
	}
	return result
}

func TestGetUsers(t *testing.T) {
	ts := newTestServer(t)

	resp, err := resty.New().R().Get(ts.url + "/api/users")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())

	snapshot := decodeSnapshot(t, resp.Body())
	assert.Equal(t, models.StatusReady, snapshot.Status)
	assert.Equal(t, 25, snapshot.TotalFiltered)
	assert.Equal(t, 3, snapshot.TotalPages)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, ids(snapshot.Records))
}

func TestQueryEndpoints(t *testing.T) {
	ts := newTestServer(t)

	type tRequest struct {
		method string
		path   string
		body   string
	}
	type tExpected struct {
		code        int
		ids         []int
		currentPage int
	}
	testCases := []struct {
		name     string
		request  tRequest
		expected tExpected
	}{
		{
			name:     "page_is_clamped",
			request:  tRequest{http.MethodPost, "/api/users/page", `{"page": 5}`},
			expected: tExpected{http.StatusOK, []int{21, 22, 23, 24, 25}, 3},
		},
		{
			name:     "search_resets_page",
			request:  tRequest{http.MethodPost, "/api/users/search", `{"term": "john"}`},
			expected: tExpected{http.StatusOK, []int{1, 3}, 1},
		},
		{
			name:     "sort_by_name",
			request:  tRequest{http.MethodPost, "/api/users/sort", `{"mode": "name"}`},
			expected: tExpected{http.StatusOK, []int{3, 1}, 1},
		},
		{
			name:     "unknown_sort_mode",
			request:  tRequest{http.MethodPost, "/api/users/sort", `{"mode": "email"}`},
			expected: tExpected{code: http.StatusBadRequest},
		},
		{
			name:     "sort_mode_required",
			request:  tRequest{http.MethodPost, "/api/users/sort", `{}`},
			expected: tExpected{code: http.StatusBadRequest},
		},
		{
			name:     "filters_narrow_by_age",
			request:  tRequest{http.MethodPost, "/api/users/filters", `{"ageRange": [40, 50], "companies": [], "cities": []}`},
			expected: tExpected{http.StatusOK, []int{3}, 1},
		},
		{
			name:     "filters_out_of_bounds",
			request:  tRequest{http.MethodPost, "/api/users/filters", `{"ageRange": [-1, 500]}`},
			expected: tExpected{code: http.StatusBadRequest},
		},
		{
			name:     "malformed_json",
			request:  tRequest{http.MethodPost, "/api/users/search", `{"term":`},
			expected: tExpected{code: http.StatusBadRequest},
		},
		{
			name:     "reset_filters_keeps_search_and_sort",
			request:  tRequest{method: http.MethodDelete, path: "/api/users/filters"},
			expected: tExpected{http.StatusOK, []int{3, 1}, 1},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			req := resty.New().R()
			req.Method = testCase.request.method
			req.URL = ts.url + testCase.request.path
			if testCase.request.body != "" {
				req.SetHeader("Content-Type", "application/json")
				req.SetBody(testCase.request.body)
			}

			resp, err := req.Send()
			require.NoError(t, err)
			require.Equal(t, testCase.expected.code, resp.StatusCode(), string(resp.Body()))

			if testCase.expected.code != http.StatusOK {
				return
			}
			snapshot := decodeSnapshot(t, resp.Body())
			assert.Equal(t, testCase.expected.ids, ids(snapshot.Records))
			assert.Equal(t, testCase.expected.currentPage, snapshot.Query.CurrentPage)
		})
	}
}

func TestGzippedSearchRequest(t *testing.T) {
	ts := newTestServer(t)

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(`{"term": "jane"}`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	resp, err := resty.New().R().
		SetHeader("Content-Type", "application/json").
		SetHeader("Content-Encoding", "gzip").
		SetBody(buf.Bytes()).
		Post(ts.url + "/api/users/search")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())

	assert.Equal(t, []int{2}, ids(decodeSnapshot(t, resp.Body()).Records))
}

func TestGetUser(t *testing.T) {
	ts := newTestServer(t)

	resp, err := resty.New().R().Get(ts.url + "/api/users/2")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Contains(t, string(resp.Body()), `"firstName":"Jane"`)

	for _, path := range []string{"/api/users/999", "/api/users/abc"} {
		resp, err = resty.New().R().Get(ts.url + path)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode())
		assert.JSONEq(t, `{"error":"User not found","redirect":"/404","delayMs":2000}`, string(resp.Body()))
	}

	ts.source.err = &models.TransportError{StatusCode: 503}
	resp, err = resty.New().R().Get(ts.url + "/api/users/2")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode())
	assert.JSONEq(t, `{"error":"API Error: 503","retryable":true}`, string(resp.Body()))

	ts.source.err = &models.DecodeError{Err: errors.New("unexpected end of JSON input")}
	resp, err = resty.New().R().Get(ts.url + "/api/users/2")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode())
	assert.NotContains(t, string(resp.Body()), "retryable")
}

func TestRetry(t *testing.T) {
	ts := newTestServer(t)

	ts.source.err = &models.TransportError{StatusCode: 500}
	resp, err := resty.New().R().Post(ts.url + "/api/users/retry")
	require.NoError(t, err)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode())
	snapshot := decodeSnapshot(t, resp.Body())
	assert.Equal(t, models.StatusFailed, snapshot.Status)
	assert.Equal(t, "API Error: 500", snapshot.Error)

	ts.source.err = nil
	resp, err = resty.New().R().Post(ts.url + "/api/users/retry")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())
	snapshot = decodeSnapshot(t, resp.Body())
	assert.Equal(t, models.StatusReady, snapshot.Status)
	assert.Empty(t, snapshot.Error)
}

func TestFavorites(t *testing.T) {
	ts := newTestServer(t)
	client := resty.New()

	var toggled toggleResponse
	resp, err := client.R().SetResult(&toggled).Post(ts.url + "/api/favorites/3")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Equal(t, models.FavoriteSet{3}, toggled.Favorites)
	assert.True(t, toggled.Added)

	resp, err = client.R().SetResult(&toggled).Post(ts.url + "/api/favorites/1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Equal(t, models.FavoriteSet{3, 1}, toggled.Favorites)

	var listed favoritesResponse
	resp, err = client.R().SetResult(&listed).Get(ts.url + "/api/favorites")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Equal(t, models.FavoriteSet{3, 1}, listed.Favorites)
	assert.Equal(t, []int{3, 1}, ids(listed.Users))

	resp, err = client.R().SetResult(&toggled).Post(ts.url + "/api/favorites/3")
	require.NoError(t, err)
	assert.Equal(t, models.FavoriteSet{1}, toggled.Favorites)
	assert.False(t, toggled.Added)

	resp, err = client.R().Post(ts.url + "/api/favorites/zero")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode())

	snapshot := decodeSnapshot(t, mustGet(t, ts.url+"/api/users"))
	assert.Equal(t, models.FavoriteSet{1}, snapshot.Favorites, "the list view sees toggles made elsewhere")
}

func mustGet(t *testing.T, url string) []byte {
	t.Helper()

	resp, err := resty.New().R().Get(url)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())

	return resp.Body()
}

func TestFavoritesEventStream(t *testing.T) {
	ts := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.url+"/api/favorites/events", nil)
	require.NoError(t, err)
	response, err := http.DefaultClient.Do(request)
	require.NoError(t, err)
	defer response.Body.Close()

	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, "text/event-stream", response.Header.Get("Content-Type"))

	resp, err := resty.New().R().Post(ts.url + "/api/favorites/7")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())

	reader := bufio.NewReader(response.Body)
	var data string
	for data == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}

	var event models.FavoritesEvent
	require.NoError(t, json.Unmarshal([]byte(data), &event))
	assert.Equal(t, models.FavoriteSet{7}, event.Favorites)
	assert.Equal(t, 7, event.ToggledID)
	assert.True(t, event.Added)
}

func TestPing(t *testing.T) {
	ts := newTestServer(t)

	resp, err := resty.New().R().Get(ts.url + "/ping")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
}

func TestInternalStats(t *testing.T) {
	ts := newTestServer(t)

	resp, err := resty.New().R().
		SetHeader("X-Real-IP", "192.168.0.10").
		Get(ts.url + "/api/internal/stats")
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode())

	var stats models.InternalStatsResponse
	resp, err = resty.New().R().
		SetHeader("X-Real-IP", "10.1.2.3").
		SetResult(&stats).
		Get(ts.url + "/api/internal/stats")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Equal(t, models.InternalStatsResponse{Records: 25, Favorites: 0}, stats)
}
