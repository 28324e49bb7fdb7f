package mcp

import (
	"context"
	"fmt"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/kubikal7/ski-jumping-management/internal/model"
	"github.com/kubikal7/ski-jumping-management/internal/season"
	"github.com/kubikal7/ski-jumping-management/internal/service/recommend"
	"github.com/kubikal7/ski-jumping-management/internal/storage"
)

const (
	defaultRecommendLimit = 10
	defaultResultsLimit   = 50
)

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcplib.NewTool("skijump_recommend",
			mcplib.WithDescription(`Rank athletes for an upcoming event by recent form.

Scores every athlete with results between from_date and the event (or now,
whichever is earlier). Jumps on hills close to the event hill's size weigh
more, as do recent jumps. Concluded events are rejected.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithNumber("event_id",
				mcplib.Description("Event to recommend athletes for"),
				mcplib.Required(),
				mcplib.Min(1),
			),
			mcplib.WithString("from_date",
				mcplib.Description("Start of the lookback window, YYYY-MM-DD"),
				mcplib.Required(),
			),
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum athletes to return"),
				mcplib.Min(1),
				mcplib.Max(100),
				mcplib.DefaultNumber(defaultRecommendLimit),
			),
		),
		s.handleRecommend,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("skijump_season",
			mcplib.WithDescription(`Resolve the competition season for a date.

Seasons run from May 1 to April 30 and are keyed "YYYY/YYYY+1". Also reports
whether the season's results and participant partitions are provisioned.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("date",
				mcplib.Description("Date to resolve, YYYY-MM-DD. Defaults to today (UTC)."),
			),
		),
		s.handleSeason,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("skijump_results",
			mcplib.WithDescription(`List recorded jumps for an event or an athlete.

At least one of event_id and athlete_id is required. Results are ordered by
event start, newest first.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithNumber("event_id", mcplib.Description("Only results of this event"), mcplib.Min(1)),
			mcplib.WithNumber("athlete_id", mcplib.Description("Only results of this athlete"), mcplib.Min(1)),
			mcplib.WithString("season", mcplib.Description(`Only this season, e.g. "2025/2026"`)),
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum results to return"),
				mcplib.Min(1),
				mcplib.Max(500),
				mcplib.DefaultNumber(defaultResultsLimit),
			),
		),
		s.handleResults,
	)
}

func (s *Server) handleRecommend(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	eventID := int64(request.GetInt("event_id", 0))
	if eventID <= 0 {
		return errorResult("event_id is required"), nil
	}
	from, err := model.ParseDate(request.GetString("from_date", ""))
	if err != nil {
		return errorResult("from_date is required (YYYY-MM-DD)"), nil
	}

	ranked, err := s.recommender.Recommend(ctx, recommend.Query{
		EventID:  eventID,
		Limit:    request.GetInt("limit", defaultRecommendLimit),
		FromDate: from.TimePtr(),
	})
	if err != nil {
		return s.serviceError(ctx, "skijump_recommend", err), nil
	}
	athletes, err := recommend.Hydrate(ctx, s.profiles, ranked)
	if err != nil {
		return s.serviceError(ctx, "skijump_recommend", err), nil
	}
	return jsonResult(map[string]any{
		"event_id":  eventID,
		"from_date": from,
		"athletes":  athletes,
	})
}

// seasonInfo is the skijump_season payload.
type seasonInfo struct {
	Season     string          `json:"season"`
	Start      model.Date      `json:"start"`
	End        model.Date      `json:"end"`
	Partitions map[string]bool `json:"partitions"`
}

func (s *Server) handleSeason(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	day := model.NewDate(s.now().UTC())
	if raw := request.GetString("date", ""); raw != "" {
		d, err := model.ParseDate(raw)
		if err != nil {
			return errorResult(err.Error()), nil
		}
		day = d
	}

	key := season.Key(day.Time)
	start, _ := season.Start(key)
	end, _ := season.End(key)
	info := seasonInfo{
		Season: key,
		Start:  model.NewDate(start),
		// End is exclusive; report the last day of the season.
		End:        model.NewDate(end.Add(-24 * time.Hour)),
		Partitions: make(map[string]bool, 2),
	}
	for _, table := range []string{storage.TableResults, storage.TableParticipants} {
		ok, err := s.partitions.PartitionExists(ctx, table, key)
		if err != nil {
			return s.serviceError(ctx, "skijump_season", fmt.Errorf("%w: %w", model.ErrStorageFault, err)), nil
		}
		info.Partitions[table] = ok
	}
	return jsonResult(info)
}

func (s *Server) handleResults(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	var f model.ResultFilter
	if id := int64(request.GetInt("event_id", 0)); id > 0 {
		f.EventID = &id
	}
	if id := int64(request.GetInt("athlete_id", 0)); id > 0 {
		f.AthleteIDs = []int64{id}
	}
	if f.Empty() {
		return errorResult("event_id or athlete_id is required"), nil
	}
	if key := request.GetString("season", ""); key != "" {
		if err := season.Validate(key); err != nil {
			return errorResult(err.Error()), nil
		}
		f.Seasons = []string{key}
	}

	limit := min(max(request.GetInt("limit", defaultResultsLimit), 1), 500)
	results, total, err := s.results.Results(ctx, f, model.Page{Limit: limit})
	if err != nil {
		return s.serviceError(ctx, "skijump_results", err), nil
	}
	if results == nil {
		results = []model.Result{}
	}
	return jsonResult(map[string]any{
		"results": results,
		"total":   total,
	})
}
