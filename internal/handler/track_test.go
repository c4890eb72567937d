package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OYD-Protocol/shoptrack/internal/enricher"
	"github.com/OYD-Protocol/shoptrack/internal/event"
	"github.com/OYD-Protocol/shoptrack/internal/identity"
)

type captureSink struct {
	events []event.Event
	err    error
}

func (s *captureSink) ProduceEvent(ctx context.Context, ev event.Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

type stubResolver struct {
	id  *identity.Identity
	err error
}

func (r *stubResolver) Resolve(ctx context.Context, credential string) (*identity.Identity, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.id, nil
}

type denyLimiter struct{}

func (denyLimiter) Allow(ctx context.Context, key string) bool { return false }

func newTrackTest(sink EventSink, resolver IdentityResolver, limiter Limiter) *TrackHandler {
	h := NewTrackHandler(sink, resolver, limiter, enricher.New(""))
	h.now = func() time.Time { return time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC) }
	return h
}

func doTrack(t *testing.T, h *TrackHandler, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/track", strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.HandleTrack(rec, req)
	return rec
}

func TestTrackAnonymousSuccess(t *testing.T) {
	// No credential: every valid action records an anonymous event.
	for _, a := range event.Actions() {
		sink := &captureSink{}
		h := newTrackTest(sink, &stubResolver{err: identity.ErrInvalidCredential}, nil)

		rec := doTrack(t, h, `{"action":"`+string(a)+`"}`, nil)

		require.Equal(t, http.StatusOK, rec.Code, "action %q", a)
		require.Len(t, sink.events, 1)
		ev := sink.events[0]
		assert.Equal(t, a, ev.Action)
		assert.True(t, ev.Anonymous())
		assert.Empty(t, ev.CallerEmail)
		assert.NotEmpty(t, ev.EventID)
		assert.Equal(t, h.now().UTC(), ev.Timestamp)
	}
}

func TestTrackInvalidCredentialStillSucceeds(t *testing.T) {
	sink := &captureSink{}
	h := newTrackTest(sink, &stubResolver{err: identity.ErrInvalidCredential}, nil)

	rec := doTrack(t, h, `{"action":"product_view"}`, map[string]string{
		"Authorization": "Bearer expired-token",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sink.events, 1)
	assert.True(t, sink.events[0].Anonymous())
}

func TestTrackResolvedCallerSnapshot(t *testing.T) {
	sink := &captureSink{}
	h := newTrackTest(sink, &stubResolver{id: &identity.Identity{ID: "u-1", Email: "ada@example.com", Name: "Ada"}}, nil)

	rec := doTrack(t, h, `{"action":"add_to_cart","product_id":"p-9","quantity":2}`, map[string]string{
		"Authorization": "Bearer good-token",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sink.events, 1)
	ev := sink.events[0]
	assert.Equal(t, "u-1", ev.CallerID)
	assert.Equal(t, "ada@example.com", ev.CallerEmail)
	assert.Equal(t, "Ada", ev.CallerName)
	assert.Equal(t, "p-9", ev.ProductID)
	require.NotNil(t, ev.Quantity)
	assert.Equal(t, int64(2), *ev.Quantity)
}

func TestTrackLegacyTokenHeader(t *testing.T) {
	sink := &captureSink{}
	h := newTrackTest(sink, &stubResolver{id: &identity.Identity{ID: "u-1"}}, nil)

	rec := doTrack(t, h, `{"action":"user_login"}`, map[string]string{"Token": "legacy"})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sink.events, 1)
	assert.Equal(t, "u-1", sink.events[0].CallerID)
}

func TestTrackUnknownActionRejected(t *testing.T) {
	sink := &captureSink{}
	h := newTrackTest(sink, &stubResolver{}, nil)

	rec := doTrack(t, h, `{"action":"page_view"}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, sink.events, "nothing may be persisted on validation failure")
}

func TestTrackMissingActionRejected(t *testing.T) {
	sink := &captureSink{}
	h := newTrackTest(sink, &stubResolver{}, nil)

	rec := doTrack(t, h, `{"product_name":"Red Shirt"}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, sink.events)
}

func TestTrackInvalidJSONRejected(t *testing.T) {
	sink := &captureSink{}
	h := newTrackTest(sink, &stubResolver{}, nil)

	rec := doTrack(t, h, `{"action":`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, sink.events)
}

func TestTrackNestedMetadataRejected(t *testing.T) {
	sink := &captureSink{}
	h := newTrackTest(sink, &stubResolver{}, nil)

	rec := doTrack(t, h, `{"action":"product_view","metadata":{"a":{"b":1}}}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, sink.events)
}

func TestTrackSinkFailureSurfaces(t *testing.T) {
	h := newTrackTest(&captureSink{err: errors.New("broker down")}, &stubResolver{}, nil)

	rec := doTrack(t, h, `{"action":"product_view"}`, nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
}

func TestTrackRateLimited(t *testing.T) {
	sink := &captureSink{}
	h := newTrackTest(sink, &stubResolver{}, denyLimiter{})

	rec := doTrack(t, h, `{"action":"product_view"}`, nil)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Empty(t, sink.events)
}

func TestTrackCapturesProvenance(t *testing.T) {
	sink := &captureSink{}
	h := newTrackTest(sink, &stubResolver{err: identity.ErrInvalidCredential}, nil)

	rec := doTrack(t, h, `{"action":"product_search","search_term":"shirt"}`, map[string]string{
		"User-Agent":   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"X-Session-ID": "sess-42",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sink.events, 1)
	ev := sink.events[0]
	assert.Equal(t, "sess-42", ev.SessionID)
	assert.NotEmpty(t, ev.UserAgent)
	assert.NotEmpty(t, ev.SourceAddress)
	assert.Equal(t, "Chrome", ev.Browser)
	assert.Equal(t, "desktop", ev.DeviceType)
}
