package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	v1 "github.com/telekom/eventsctl/api/v1"
	"github.com/telekom/eventsctl/pkg/ratelimit"
	"github.com/telekom/eventsctl/pkg/system"
)

// DefaultRequiredScope is the scope every /events request must carry.
const DefaultRequiredScope = "events-api-access"

var ErrEventNotFound = errors.New("event not found")

type EventRepository interface {
	List(ctx context.Context) ([]v1.Event, error)
	Get(ctx context.Context, id string) (v1.Event, error)
	Create(ctx context.Context, spec v1.EventSpec) (v1.Event, error)
	Update(ctx context.Context, id string, spec v1.EventSpec) (v1.Event, error)
	Delete(ctx context.Context, id string) error
}

// MemoryEventRepository keeps events in process memory.
type MemoryEventRepository struct {
	mu     sync.RWMutex
	events map[string]v1.Event
}

func NewMemoryEventRepository(seed ...v1.Event) *MemoryEventRepository {
	r := &MemoryEventRepository{events: make(map[string]v1.Event, len(seed))}
	for _, e := range seed {
		r.events[e.ID] = e
	}
	return r
}

// SeedEvents returns the demo events shown by a fresh server, dated relative to now.
func SeedEvents(now time.Time) []v1.Event {
	return []v1.Event{
		{
			ID:          uuid.NewString(),
			Date:        now.AddDate(0, 0, 7),
			Title:       "Community Soccer Match",
			Description: "Weekly soccer match for all community members",
			Location:    "Community Field",
		},
		{
			ID:          uuid.NewString(),
			Date:        now.AddDate(0, 0, 14),
			Title:       "Basketball Tournament",
			Description: "Annual basketball tournament with teams from neighboring communities",
			Location:    "Sports Center",
		},
		{
			ID:          uuid.NewString(),
			Date:        now.AddDate(0, 0, 21),
			Title:       "Swimming Competition",
			Description: "Swimming competition for all age groups",
			Location:    "Community Pool",
		},
	}
}

// List returns all events ordered by date, then ID.
func (r *MemoryEventRepository) List(_ context.Context) ([]v1.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]v1.Event, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].ID < out[j].ID
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out, nil
}

func (r *MemoryEventRepository) Get(_ context.Context, id string) (v1.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.events[id]
	if !ok {
		return v1.Event{}, ErrEventNotFound
	}
	return e, nil
}

func (r *MemoryEventRepository) Create(_ context.Context, spec v1.EventSpec) (v1.Event, error) {
	e := eventFromSpec(uuid.NewString(), spec)
	r.mu.Lock()
	r.events[e.ID] = e
	r.mu.Unlock()
	return e, nil
}

func (r *MemoryEventRepository) Update(_ context.Context, id string, spec v1.EventSpec) (v1.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[id]; !ok {
		return v1.Event{}, ErrEventNotFound
	}
	e := eventFromSpec(id, spec)
	r.events[id] = e
	return e, nil
}

func (r *MemoryEventRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[id]; !ok {
		return ErrEventNotFound
	}
	delete(r.events, id)
	return nil
}

func eventFromSpec(id string, spec v1.EventSpec) v1.Event {
	return v1.Event{
		ID:          id,
		Date:        spec.Date.UTC(),
		Title:       spec.Title,
		Description: spec.Description,
		Location:    spec.Location,
	}
}

// EventsController serves /events behind rate limiting, bearer authentication
// and the required scope.
type EventsController struct {
	log      *zap.SugaredLogger
	repo     EventRepository
	handlers []gin.HandlerFunc
}

// NewEventsController chains: per-IP limit, token validation, scope check,
// per-subject limit. Nil limiters are skipped.
func NewEventsController(log *zap.SugaredLogger, repo EventRepository, auth *AuthHandler, requiredScope string,
	ipLimiter, subjectLimiter *ratelimit.Limiter,
) *EventsController {
	var handlers []gin.HandlerFunc
	if ipLimiter != nil {
		handlers = append(handlers, ipLimiter.Middleware(ratelimit.ByClientIP))
	}
	handlers = append(handlers, auth.Middleware())
	if requiredScope != "" {
		handlers = append(handlers, auth.RequireScopes(requiredScope))
	}
	if subjectLimiter != nil {
		handlers = append(handlers, subjectLimiter.Middleware(ratelimit.ByContextValue("subject")))
	}
	return &EventsController{log: log, repo: repo, handlers: handlers}
}

func (*EventsController) BasePath() string {
	return "events"
}

func (ec *EventsController) Handlers() []gin.HandlerFunc {
	return ec.handlers
}

func (ec *EventsController) Register(rg *gin.RouterGroup) error {
	rg.GET("", ec.handleList)
	rg.POST("", ec.handleCreate)
	rg.GET(":id", ec.handleGet)
	rg.PUT(":id", ec.handleUpdate)
	rg.DELETE(":id", ec.handleDelete)
	return nil
}

func (ec *EventsController) handleList(c *gin.Context) {
	events, err := ec.repo.List(c.Request.Context())
	if err != nil {
		ec.internalError(c, "failed to list events", err)
		return
	}
	c.JSON(http.StatusOK, events)
}

func (ec *EventsController) handleGet(c *gin.Context) {
	event, err := ec.repo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		ec.repoError(c, "failed to get event", err)
		return
	}
	c.JSON(http.StatusOK, event)
}

func (ec *EventsController) handleCreate(c *gin.Context) {
	spec, ok := bindSpec(c)
	if !ok {
		return
	}
	event, err := ec.repo.Create(c.Request.Context(), spec)
	if err != nil {
		ec.internalError(c, "failed to create event", err)
		return
	}
	system.GetReqLogger(c, ec.log).Infow("Event created", "eventID", event.ID)
	c.JSON(http.StatusCreated, event)
}

func (ec *EventsController) handleUpdate(c *gin.Context) {
	spec, ok := bindSpec(c)
	if !ok {
		return
	}
	event, err := ec.repo.Update(c.Request.Context(), c.Param("id"), spec)
	if err != nil {
		ec.repoError(c, "failed to update event", err)
		return
	}
	system.GetReqLogger(c, ec.log).Infow("Event updated", "eventID", event.ID)
	c.JSON(http.StatusOK, event)
}

func (ec *EventsController) handleDelete(c *gin.Context) {
	id := c.Param("id")
	if err := ec.repo.Delete(c.Request.Context(), id); err != nil {
		ec.repoError(c, "failed to delete event", err)
		return
	}
	system.GetReqLogger(c, ec.log).Infow("Event deleted", "eventID", id)
	c.Status(http.StatusNoContent)
}

func bindSpec(c *gin.Context) (v1.EventSpec, bool) {
	var spec v1.EventSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return spec, false
	}
	if err := spec.Validate(); err != nil {
		respondError(c, http.StatusUnprocessableEntity, err.Error())
		return spec, false
	}
	return spec, true
}

func (ec *EventsController) repoError(c *gin.Context, msg string, err error) {
	if errors.Is(err, ErrEventNotFound) {
		respondError(c, http.StatusNotFound, "event not found")
		return
	}
	ec.internalError(c, msg, err)
}

func (ec *EventsController) internalError(c *gin.Context, msg string, err error) {
	system.GetReqLogger(c, ec.log).Errorw(msg, "error", err)
	respondError(c, http.StatusInternalServerError, msg)
}
