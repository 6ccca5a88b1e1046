package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ttcal/internal/batch"
	"ttcal/internal/config"
	"ttcal/internal/ics"
	"ttcal/internal/model"
	"ttcal/internal/timetable"
)

func testReports(t *testing.T) []batch.Report {
	t.Helper()
	loc, err := time.LoadLocation("Australia/Sydney")
	require.NoError(t, err)

	descs := []model.Descriptor{{
		UID:         "a@uni.sydney.edu.au",
		Summary:     "COMP3308-T09A",
		Description: "Intro to AI \n101",
		Location:    "Abercrombie Building, Sydney",
		Start:       time.Date(2024, time.February, 24, 9, 0, 0, 0, loc),
		End:         time.Date(2024, time.February, 24, 10, 0, 0, 0, loc),
		Until:       time.Date(2024, time.March, 9, 9, 0, 0, 0, loc),
		Weekday:     "SA",
	}}
	doc, err := ics.Render(descs, ics.Envelope{ProductID: "-//test//EN", CalendarName: "T", TimeZone: "Australia/Sydney"})
	require.NoError(t, err)

	return []batch.Report{
		{
			Input:       "/data/semester1.xlsx",
			Output:      "/data/semester1.ics",
			Descriptors: descs,
			RowErrors:   []*timetable.RowError{{File: "semester1.xlsx", Index: 7, Err: timetable.ErrNoSubjectCode}},
			Document:    doc,
		},
		{
			Input:  "/data/broken.xlsx",
			Output: "/data/broken.ics",
			Err:    errors.New("zip: not a valid zip file"),
		},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()
	catalog := NewCatalog()
	catalog.Update(testReports(t))
	ts := httptest.NewServer(NewServer(cfg, catalog).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, config.DefaultConfig())

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestFeeds(t *testing.T) {
	ts := newTestServer(t, config.DefaultConfig())

	resp, err := http.Get(ts.URL + "/api/feeds")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body feedsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Feeds, 2)

	assert.Equal(t, "broken", body.Feeds[0].Name)
	assert.Empty(t, body.Feeds[0].URL)
	assert.Contains(t, body.Feeds[0].Error, "zip")

	assert.Equal(t, "semester1", body.Feeds[1].Name)
	assert.Equal(t, "/feeds/semester1.ics", body.Feeds[1].URL)
	assert.Equal(t, 1, body.Feeds[1].Events)
	require.Len(t, body.Feeds[1].RowErrors, 1)
	assert.Equal(t, 7, body.Feeds[1].RowErrors[0].Row)
}

func TestFeed(t *testing.T) {
	ts := newTestServer(t, config.DefaultConfig())

	resp, err := http.Get(ts.URL + "/feeds/semester1.ics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/calendar; charset=utf-8", resp.Header.Get("Content-Type"))

	for _, path := range []string{"/feeds/broken.ics", "/feeds/missing.ics", "/feeds/semester1.txt"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
}

func TestOccurrences(t *testing.T) {
	ts := newTestServer(t, config.DefaultConfig())

	resp, err := http.Get(ts.URL + "/api/occurrences?feed=semester1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body occurrencesResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Australia/Sydney", body.DisplayTimeZone)
	// 24/2, 2/3, 9/3.
	assert.Len(t, body.Occurrences, 3)

	resp2, err := http.Get(ts.URL + "/api/occurrences?feed=semester1&max=1")
	require.NoError(t, err)
	defer resp2.Body.Close()
	var capped occurrencesResponse
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&capped))
	assert.Len(t, capped.Occurrences, 1)
	assert.Equal(t, []string{"a@uni.sydney.edu.au"}, capped.TruncatedUIDs)

	for path, status := range map[string]int{
		"/api/occurrences":              http.StatusBadRequest,
		"/api/occurrences?feed=missing": http.StatusNotFound,
	} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, status, resp.StatusCode, path)
	}
}

func TestBasicAuth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "student", Password: "secret"}
	ts := newTestServer(t, cfg)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/feeds")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/feeds", nil)
	require.NoError(t, err)
	req.SetBasicAuth("student", "secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCatalogUpdate_KeepsLastGoodDocument(t *testing.T) {
	catalog := NewCatalog()
	reports := testReports(t)
	catalog.Update(reports)

	failed := reports[0]
	failed.Document = nil
	failed.Descriptors = nil
	failed.Err = errors.New("locked")
	catalog.Update([]batch.Report{failed})

	rep, ok := catalog.Get("semester1")
	require.True(t, ok)
	assert.NotNil(t, rep.Document)
	assert.EqualError(t, rep.Err, "locked")

	// Feeds whose input disappeared are dropped.
	_, ok = catalog.Get("broken")
	assert.False(t, ok)
}

func TestFeedName(t *testing.T) {
	assert.Equal(t, "term 1", FeedName("/x/term 1.ics"))
}
