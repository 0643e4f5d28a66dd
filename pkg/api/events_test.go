package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	v1 "github.com/telekom/eventsctl/api/v1"
	"github.com/telekom/eventsctl/pkg/ratelimit"
)

func TestEventsCRUD(t *testing.T) {
	api := newTestAPI(t, nil)
	token := api.token(t)
	date := time.Date(2026, 11, 1, 18, 0, 0, 0, time.UTC)

	rec := api.do(t, http.MethodPost, "/events", token, v1.EventSpec{Title: "Chess Night", Date: date, Location: "Library"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created v1.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Chess Night", created.Title)

	rec = api.do(t, http.MethodGet, "/events/"+created.ID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got v1.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, created, got)

	rec = api.do(t, http.MethodPut, "/events/"+created.ID, token, v1.EventSpec{Title: "Chess Evening", Date: date})
	require.Equal(t, http.StatusOK, rec.Code)
	var updated v1.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, "Chess Evening", updated.Title)
	assert.Empty(t, updated.Location)

	rec = api.do(t, http.MethodGet, "/events", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []v1.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)

	rec = api.do(t, http.MethodDelete, "/events/"+created.ID, token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(t, http.MethodGet, "/events/"+created.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "event not found", decodeError(t, rec).Error)
}

func TestEventsValidation(t *testing.T) {
	api := newTestAPI(t, nil)
	token := api.token(t)

	rec := api.do(t, http.MethodPost, "/events", token, v1.EventSpec{Date: time.Now()})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "title is required", decodeError(t, rec).Error)

	rec = api.do(t, http.MethodPost, "/events", token, "not an object")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPut, "/events/missing", token, v1.EventSpec{Title: "x", Date: time.Now()})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodDelete, "/events/missing", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEventsSubjectRateLimit(t *testing.T) {
	limiter := ratelimit.New(ratelimit.Config{Rate: 0.001, Burst: 1})
	t.Cleanup(limiter.Stop)
	api := newTestAPI(t, limiter)
	token := api.token(t)

	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/events", token, nil).Code)
	rec := api.do(t, http.MethodGet, "/events", token, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestMemoryEventRepositoryOrdersByDate(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	seed := SeedEvents(now)
	repo := NewMemoryEventRepository(seed[2], seed[0], seed[1])

	list, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "Community Soccer Match", list[0].Title)
	assert.Equal(t, "Basketball Tournament", list[1].Title)
	assert.Equal(t, "Swimming Competition", list[2].Title)
	assert.Equal(t, now.AddDate(0, 0, 7), list[0].Date)

	_, err = repo.Get(context.Background(), "nope")
	require.ErrorIs(t, err, ErrEventNotFound)
}

func TestEventsControllerWithoutScope(t *testing.T) {
	s := newSigner(t)
	auth := NewAuthHandler(zap.NewNop().Sugar(), NewKeyfuncValidator(s.keyfunc, ""), "events")
	ctrl := NewEventsController(zap.NewNop().Sugar(), NewMemoryEventRepository(), auth, "", nil, nil)
	assert.Len(t, ctrl.Handlers(), 1)
	assert.Equal(t, "events", ctrl.BasePath())
}
