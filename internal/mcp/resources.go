package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/kubikal7/ski-jumping-management/internal/model"
)

const upcomingEventsURI = "skijump://events/upcoming"

func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			upcomingEventsURI,
			"Upcoming Events",
			mcplib.WithResourceDescription("The next 20 events, soonest first"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleUpcomingEvents,
	)
}

func (s *Server) handleUpcomingEvents(ctx context.Context, _ mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	events, _, err := s.events.UpcomingEvents(ctx, model.EventFilter{}, model.Page{Limit: 20})
	if err != nil {
		return nil, fmt.Errorf("mcp: upcoming events: %w", err)
	}
	if events == nil {
		events = []model.Event{}
	}
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal events: %w", err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      upcomingEventsURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
