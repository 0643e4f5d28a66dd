package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	v1 "github.com/telekom/eventsctl/api/v1"
)

type EventService struct {
	client *Client
}

func (c *Client) Events() *EventService {
	return &EventService{client: c}
}

func (e *EventService) List(ctx context.Context) ([]v1.Event, error) {
	var events []v1.Event
	if err := e.client.do(ctx, http.MethodGet, "events", nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (e *EventService) Get(ctx context.Context, id string) (*v1.Event, error) {
	endpoint, err := eventPath(id)
	if err != nil {
		return nil, err
	}
	var event v1.Event
	if err := e.client.do(ctx, http.MethodGet, endpoint, nil, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

func (e *EventService) Create(ctx context.Context, spec v1.EventSpec) (*v1.Event, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	var event v1.Event
	if err := e.client.do(ctx, http.MethodPost, "events", spec, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

func (e *EventService) Update(ctx context.Context, id string, spec v1.EventSpec) (*v1.Event, error) {
	endpoint, err := eventPath(id)
	if err != nil {
		return nil, err
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	var event v1.Event
	if err := e.client.do(ctx, http.MethodPut, endpoint, spec, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

func (e *EventService) Delete(ctx context.Context, id string) error {
	endpoint, err := eventPath(id)
	if err != nil {
		return err
	}
	return e.client.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

func eventPath(id string) (string, error) {
	if id == "" {
		return "", errors.New("event id is required")
	}
	return "events/" + url.PathEscape(id), nil
}
