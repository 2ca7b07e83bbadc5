package service

import (
	"context"
	"fmt"

	"github.com/xela07ax/xchain-router/internal/audit"
)

// EventProvider: чтение журнала уведомлений (postgres.EventRepo).
type EventProvider interface {
	FetchEvents(ctx context.Context, f audit.Filter) ([]audit.Event, error)
}

type EventService struct {
	repo EventProvider
}

func NewEventService(repo EventProvider) *EventService {
	return &EventService{repo: repo}
}

func (s *EventService) FetchEvents(ctx context.Context, f audit.Filter) ([]audit.Event, error) {
	events, err := s.repo.FetchEvents(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("event_service: failed to fetch events: %w", err)
	}
	return events, nil
}
