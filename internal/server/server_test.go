package server_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	mcpclient "github.com/mark3labs/mcp-go/client"
	mcptransport "github.com/mark3labs/mcp-go/client/transport"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubikal7/ski-jumping-management/internal/auth"
	"github.com/kubikal7/ski-jumping-management/internal/mcp"
	"github.com/kubikal7/ski-jumping-management/internal/model"
	"github.com/kubikal7/ski-jumping-management/internal/ratelimit"
	"github.com/kubikal7/ski-jumping-management/internal/season"
	"github.com/kubikal7/ski-jumping-management/internal/server"
	"github.com/kubikal7/ski-jumping-management/internal/service/accounts"
	"github.com/kubikal7/ski-jumping-management/internal/service/catalog"
	"github.com/kubikal7/ski-jumping-management/internal/service/recommend"
	"github.com/kubikal7/ski-jumping-management/internal/service/roster"
	"github.com/kubikal7/ski-jumping-management/internal/testutil"
)

const (
	adminLogin    = "admin"
	adminPassword = "Admin#2026"
)

var (
	testSrv    *httptest.Server
	testBroker *server.Broker
	adminToken string
)

func TestMain(m *testing.M) {
	tc := testutil.MustStartPostgres()
	code := setupAndRun(m, tc)
	tc.Terminate()
	os.Exit(code)
}

func setupAndRun(m *testing.M, tc *testutil.TestContainer) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger := testutil.TestLogger()

	db, err := tc.NewTestDB(ctx, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "server test: create DB: %v\n", err)
		return 1
	}
	defer db.Close(context.Background())

	jwtMgr, err := auth.NewJWTManager("", "", time.Hour)
	if err != nil {
		fmt.Fprintf(os.Stderr, "server test: jwt: %v\n", err)
		return 1
	}

	rosterSvc := roster.New(db, roster.WithLogger(logger))
	catalogSvc := catalog.New(db, catalog.WithProvisioner(rosterSvc.Partitions()), catalog.WithLogger(logger))
	accountsSvc := accounts.New(db, jwtMgr, accounts.WithLogger(logger))
	engine := recommend.New(db, recommend.WithLogger(logger))

	if _, err := accountsSvc.SeedAdmin(ctx, adminLogin, adminPassword); err != nil {
		fmt.Fprintf(os.Stderr, "server test: seed admin: %v\n", err)
		return 1
	}

	testBroker = server.NewBroker(db, logger)
	go testBroker.Start(ctx)

	mcpSrv := mcp.New(mcp.Deps{
		Recommender: engine,
		Profiles:    db,
		Results:     rosterSvc,
		Events:      catalogSvc,
		Partitions:  db,
		Logger:      logger,
		Version:     "test",
	})

	srv := server.New(server.ServerConfig{
		DB:                  db,
		JWTMgr:              jwtMgr,
		Accounts:            accountsSvc,
		Catalog:             catalogSvc,
		Roster:              rosterSvc,
		Engine:              engine,
		Logger:              logger,
		Broker:              testBroker,
		LoginLimiter:        ratelimit.NoopLimiter{},
		MCPServer:           mcpSrv.MCPServer(),
		ReadTimeout:         30 * time.Second,
		WriteTimeout:        30 * time.Second,
		Version:             "test",
		MaxRequestBodyBytes: 1 << 20,
	})
	testSrv = httptest.NewServer(srv.Handler())
	defer testSrv.Close()

	adminToken, err = login(adminLogin, adminPassword)
	if err != nil {
		fmt.Fprintf(os.Stderr, "server test: admin login: %v\n", err)
		return 1
	}
	return m.Run()
}

func login(user, password string) (string, error) {
	body, _ := json.Marshal(model.LoginRequest{Login: user, Password: password})
	resp, err := http.Post(testSrv.URL+"/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login %s: %d %s", user, resp.StatusCode, data)
	}
	var out struct {
		Data model.LoginResponse `json:"data"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", err
	}
	return out.Data.Token, nil
}

// call performs an authenticated JSON request and returns the status and body.
func call(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, testSrv.URL+path, rdr)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

// mustCall is call plus a status assertion and decoding of the data field.
func mustCall[T any](t *testing.T, method, path, token string, body any, want int) T {
	t.Helper()
	status, data := call(t, method, path, token, body)
	require.Equal(t, want, status, string(data))
	var out struct {
		Data T `json:"data"`
	}
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &out))
	}
	return out.Data
}

func unique(prefix string) string { return prefix + "-" + uuid.NewString()[:8] }

func ptr[T any](v T) *T { return &v }

// newUser creates a user as admin and completes the forced password change.
func newUser(t *testing.T, caps []model.Capability, teams ...int64) (model.User, string) {
	t.Helper()
	name := unique("user")
	u := mustCall[model.User](t, http.MethodPost, "/v1/users", adminToken, model.CreateUserRequest{
		FirstName:    "Jan",
		LastName:     name,
		Login:        name,
		Password:     "Temp#Pass1",
		Capabilities: caps,
		TeamIDs:      teams,
	}, http.StatusCreated)
	require.True(t, u.MustChangePassword)

	token, err := login(name, "Temp#Pass1")
	require.NoError(t, err)
	mustCall[any](t, http.MethodPut, "/v1/users/me/password", token, model.ChangePasswordRequest{
		OldPassword: "Temp#Pass1",
		NewPassword: "Final#Pass2",
	}, http.StatusNoContent)
	token, err = login(name, "Final#Pass2")
	require.NoError(t, err)
	return u, token
}

func TestHealthEndpoint(t *testing.T) {
	health := mustCall[model.HealthResponse](t, http.MethodGet, "/health", "", nil, http.StatusOK)
	assert.Equal(t, "connected", health.Postgres)
	assert.Equal(t, "test", health.Version)
	assert.Contains(t, []string{"ready", "missing"}, health.Partitions)
}

func TestLogin(t *testing.T) {
	status, data := call(t, http.MethodPost, "/auth/login", "", model.LoginRequest{Login: adminLogin, Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, status, string(data))

	status, _ = call(t, http.MethodPost, "/auth/login", "", map[string]string{"login": adminLogin})
	assert.Equal(t, http.StatusBadRequest, status)

	me := mustCall[model.User](t, http.MethodGet, "/v1/users/me", adminToken, nil, http.StatusOK)
	assert.Equal(t, adminLogin, me.Login)
	assert.NotNil(t, me.LastLogin)
}

func TestUnauthenticatedAccess(t *testing.T) {
	status, _ := call(t, http.MethodGet, "/v1/hills", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	status, _ = call(t, http.MethodGet, "/v1/hills", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestPasswordChangeRequired(t *testing.T) {
	name := unique("fresh")
	mustCall[model.User](t, http.MethodPost, "/v1/users", adminToken, model.CreateUserRequest{
		FirstName: "Maciej", LastName: "Kot", Login: name, Password: "Temp#Pass1",
		Capabilities: []model.Capability{model.CapAthlete},
	}, http.StatusCreated)

	token, err := login(name, "Temp#Pass1")
	require.NoError(t, err)
	status, _ := call(t, http.MethodGet, "/v1/hills", token, nil)
	assert.Equal(t, http.StatusForbidden, status)
	mustCall[model.User](t, http.MethodGet, "/v1/users/me", token, nil, http.StatusOK)

	status, _ = call(t, http.MethodPut, "/v1/users/me/password", token, model.ChangePasswordRequest{
		OldPassword: "Temp#Pass1", NewPassword: "weak",
	})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestCapabilityGates(t *testing.T) {
	_, athleteToken := newUser(t, []model.Capability{model.CapAthlete})

	status, _ := call(t, http.MethodPost, "/v1/hills", athleteToken, model.HillRequest{Name: unique("hill"), HillSize: 100})
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = call(t, http.MethodGet, "/v1/injuries", athleteToken, nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = call(t, http.MethodGet, "/v1/admin/partitions?table=results", athleteToken, nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = call(t, http.MethodPost, "/v1/recommendations", athleteToken, model.RecommendationRequest{EventID: 1, Limit: 1})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = call(t, http.MethodGet, "/v1/admin/partitions?table=hills", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestHillsAndTeams(t *testing.T) {
	hill := mustCall[model.Hill](t, http.MethodPost, "/v1/hills", adminToken, model.HillRequest{
		Name: unique("Wielka Krokiew"), City: ptr("Zakopane"), Country: ptr("Poland"), HillSize: 140, ConstructionPoint: ptr(125.0),
	}, http.StatusCreated)

	list := mustCall[[]model.Hill](t, http.MethodGet, "/v1/hills?city=Zakopane&min_hill_size=130", adminToken, nil, http.StatusOK)
	assert.NotEmpty(t, list)

	has := mustCall[map[string]bool](t, http.MethodGet, fmt.Sprintf("/v1/hills/%d/has-events", hill.ID), adminToken, nil, http.StatusOK)
	assert.False(t, has["has_events"])

	status, _ := call(t, http.MethodGet, "/v1/hills?min_hill_size=big", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	name := unique("Team")
	team := mustCall[model.Team](t, http.MethodPost, "/v1/teams", adminToken, model.TeamRequest{Name: name}, http.StatusCreated)
	status, _ = call(t, http.MethodPost, "/v1/teams", adminToken, model.TeamRequest{Name: strings.ToUpper(name)})
	assert.Equal(t, http.StatusConflict, status)

	athlete, _ := newUser(t, []model.Capability{model.CapAthlete}, team.ID)
	athletes := mustCall[[]model.User](t, http.MethodGet, fmt.Sprintf("/v1/teams/%d/athletes", team.ID), adminToken, nil, http.StatusOK)
	require.Len(t, athletes, 1)
	assert.Equal(t, athlete.ID, athletes[0].ID)

	mustCall[any](t, http.MethodDelete, fmt.Sprintf("/v1/users/%d/teams/%d", athlete.ID, team.ID), adminToken, nil, http.StatusNoContent)
	status, _ = call(t, http.MethodDelete, fmt.Sprintf("/v1/users/%d/teams/%d", athlete.ID, team.ID), adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	mustCall[any](t, http.MethodDelete, fmt.Sprintf("/v1/hills/%d", hill.ID), adminToken, nil, http.StatusNoContent)
	status, _ = call(t, http.MethodGet, fmt.Sprintf("/v1/hills/%d", hill.ID), adminToken, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

// readSSE returns the next data payload for eventType from a stream.
func readSSE(t *testing.T, sc *bufio.Scanner, eventType string) string {
	t.Helper()
	var current string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: ") && current == eventType:
			return strings.TrimPrefix(line, "data: ")
		}
	}
	t.Fatalf("stream ended before %q event: %v", eventType, sc.Err())
	return ""
}

func TestRosterFlow(t *testing.T) {
	team := mustCall[model.Team](t, http.MethodPost, "/v1/teams", adminToken, model.TeamRequest{Name: unique("Kadra")}, http.StatusCreated)
	otherTeam := mustCall[model.Team](t, http.MethodPost, "/v1/teams", adminToken, model.TeamRequest{Name: unique("Rywal")}, http.StatusCreated)
	hill := mustCall[model.Hill](t, http.MethodPost, "/v1/hills", adminToken, model.HillRequest{Name: unique("Malinka"), HillSize: 134}, http.StatusCreated)

	athlete, _ := newUser(t, []model.Capability{model.CapAthlete}, team.ID)
	_, trainerToken := newUser(t, []model.Capability{model.CapTrainer}, team.ID)
	_, outsiderToken := newUser(t, []model.Capability{model.CapTrainer}, otherTeam.ID)
	_, medicToken := newUser(t, []model.Capability{model.CapInjuryManager}, team.ID)

	now := time.Now().UTC()
	past := mustCall[model.Event](t, http.MethodPost, "/v1/events", adminToken, model.EventRequest{
		Name: unique("Training"), Type: model.EventTraining, HillID: hill.ID,
		StartDate: now.Add(-48 * time.Hour), EndDate: now.Add(-47 * time.Hour), Level: 2,
		AllowedTeamIDs: []int64{team.ID},
	}, http.StatusCreated)
	upcoming := mustCall[model.Event](t, http.MethodPost, "/v1/events", adminToken, model.EventRequest{
		Name: unique("Cup"), Type: model.EventCompetition, HillID: hill.ID,
		StartDate: now.Add(72 * time.Hour), EndDate: now.Add(75 * time.Hour), Level: 4,
		AllowedTeamIDs: []int64{team.ID},
	}, http.StatusCreated)

	// Registration is scoped to the event's teams.
	status, _ := call(t, http.MethodPost, "/v1/participants", outsiderToken, model.ParticipantRequest{EventID: past.ID, AthleteID: athlete.ID})
	assert.Equal(t, http.StatusForbidden, status)
	participant := mustCall[model.Participant](t, http.MethodPost, "/v1/participants", trainerToken,
		model.ParticipantRequest{EventID: past.ID, AthleteID: athlete.ID}, http.StatusCreated)
	assert.Equal(t, past.ID, participant.EventID)
	status, _ = call(t, http.MethodPost, "/v1/participants", trainerToken, model.ParticipantRequest{EventID: past.ID, AthleteID: athlete.ID})
	assert.Equal(t, http.StatusConflict, status)

	participants := mustCall[[]model.Participant](t, http.MethodGet, fmt.Sprintf("/v1/events/%d/participants", past.ID), trainerToken, nil, http.StatusOK)
	require.Len(t, participants, 1)

	// Open the live feed before recording.
	require.Eventually(t, testBroker.Listening, 5*time.Second, 50*time.Millisecond)
	streamCtx, stopStream := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopStream()
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet,
		fmt.Sprintf("%s/v1/results/stream?event_id=%d", testSrv.URL, past.ID), nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+trainerToken)
	stream, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = stream.Body.Close() }()
	require.Equal(t, http.StatusOK, stream.StatusCode)
	assert.Equal(t, "text/event-stream", stream.Header.Get("Content-Type"))

	result := mustCall[model.Result](t, http.MethodPost, "/v1/results", trainerToken, model.ResultRequest{
		EventID: past.ID, AthleteID: athlete.ID, AttemptNumber: ptr(1), JumpLength: ptr(131.5), StylePoints: ptr(54.0),
	}, http.StatusCreated)
	assert.Equal(t, season.Key(past.StartDate), result.Season)

	var ev model.ResultEvent
	require.NoError(t, json.Unmarshal([]byte(readSSE(t, bufio.NewScanner(stream.Body), roster.ActionRecorded)), &ev))
	assert.Equal(t, result.ID, ev.ResultID)
	assert.Equal(t, athlete.ID, ev.AthleteID)

	results := mustCall[[]model.Result](t, http.MethodGet,
		fmt.Sprintf("/v1/results?athlete_id=%d&min_jump_length=130", athlete.ID), trainerToken, nil, http.StatusOK)
	require.Len(t, results, 1)
	status, _ = call(t, http.MethodGet, "/v1/results?season=2025", trainerToken, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	// The athlete's recent jump feeds the recommendation for the next event.
	ranked := mustCall[[]model.RecommendedAthlete](t, http.MethodPost, "/v1/recommendations", trainerToken, model.RecommendationRequest{
		EventID: upcoming.ID, Limit: 100, FromDate: ptr(model.NewDate(now.AddDate(0, 0, -30))),
	}, http.StatusOK)
	found := false
	for _, r := range ranked {
		if r.Athlete.ID == athlete.ID {
			found = true
			assert.Equal(t, 1, r.Records)
			assert.Positive(t, r.Score)
		}
	}
	assert.True(t, found, "athlete missing from recommendation")

	status, _ = call(t, http.MethodPost, "/v1/recommendations", trainerToken, model.RecommendationRequest{
		EventID: past.ID, Limit: 5, FromDate: ptr(model.NewDate(now.AddDate(0, 0, -30))),
	})
	assert.Equal(t, http.StatusBadRequest, status, "past event")

	upcomingList := mustCall[[]model.Event](t, http.MethodGet, fmt.Sprintf("/v1/events/upcoming?hill_id=%d", hill.ID), trainerToken, nil, http.StatusOK)
	require.Len(t, upcomingList, 1)
	assert.Equal(t, upcoming.ID, upcomingList[0].ID)
	pastList := mustCall[[]model.Event](t, http.MethodGet, fmt.Sprintf("/v1/events/past?athlete_id=%d", athlete.ID), trainerToken, nil, http.StatusOK)
	require.Len(t, pastList, 1)
	assert.Equal(t, past.ID, pastList[0].ID)

	// Injuries belong to injury managers of the athlete's team.
	status, _ = call(t, http.MethodPost, "/v1/injuries", trainerToken, model.InjuryRequest{
		AthleteID: athlete.ID, InjuryDate: ptr(model.NewDate(now)), Severity: model.SeverityLow,
	})
	assert.Equal(t, http.StatusForbidden, status)
	injury := mustCall[model.Injury](t, http.MethodPost, "/v1/injuries", medicToken, model.InjuryRequest{
		AthleteID: athlete.ID, InjuryDate: ptr(model.NewDate(now)), Severity: model.SeverityMedium, Description: ptr("knee"),
	}, http.StatusCreated)
	injuries := mustCall[[]model.Injury](t, http.MethodGet, fmt.Sprintf("/v1/injuries?athlete_id=%d&severity=MEDIUM", athlete.ID), medicToken, nil, http.StatusOK)
	require.Len(t, injuries, 1)
	assert.Equal(t, injury.ID, injuries[0].ID)

	partitions := mustCall[[]model.PartitionInfo](t, http.MethodGet, "/v1/admin/partitions?table=results", adminToken, nil, http.StatusOK)
	var seasons []string
	for _, p := range partitions {
		seasons = append(seasons, p.Season)
	}
	assert.Contains(t, seasons, season.Key(past.StartDate))

	// Withdrawal keeps recorded results.
	mustCall[any](t, http.MethodDelete, fmt.Sprintf("/v1/participants/%d", participant.ID), trainerToken, nil, http.StatusNoContent)
	mustCall[model.Result](t, http.MethodGet, fmt.Sprintf("/v1/results/%d", result.ID), trainerToken, nil, http.StatusOK)
}

func newMCPClient(t *testing.T, token string) *mcpclient.Client {
	t.Helper()
	c, err := mcpclient.NewStreamableHttpClient(
		testSrv.URL+"/mcp",
		mcptransport.WithHTTPHeaders(map[string]string{
			"Authorization": "Bearer " + token,
		}),
	)
	require.NoError(t, err)
	return c
}

func TestMCP(t *testing.T) {
	_, trainerToken := newUser(t, []model.Capability{model.CapTrainer})
	c := newMCPClient(t, trainerToken)
	defer func() { _ = c.Close() }()

	ctx := context.Background()
	initResult, err := c.Initialize(ctx, mcplib.InitializeRequest{
		Params: mcplib.InitializeParams{
			ClientInfo: mcplib.Implementation{Name: "test-client", Version: "1.0"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "skijump", initResult.ServerInfo.Name)

	tools, err := c.ListTools(ctx, mcplib.ListToolsRequest{})
	require.NoError(t, err)
	names := make([]string, 0, len(tools.Tools))
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"skijump_recommend", "skijump_season", "skijump_results"}, names)

	res, err := c.CallTool(ctx, mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{Name: "skijump_season", Arguments: map[string]any{"date": "2031-12-24"}},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	text, ok := res.Content[0].(mcplib.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, `"season": "2031/2032"`)

	_, athleteToken := newUser(t, []model.Capability{model.CapAthlete})
	denied := newMCPClient(t, athleteToken)
	defer func() { _ = denied.Close() }()
	_, err = denied.Initialize(ctx, mcplib.InitializeRequest{
		Params: mcplib.InitializeParams{ClientInfo: mcplib.Implementation{Name: "test-client", Version: "1.0"}},
	})
	assert.Error(t, err)
}
