package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/insights-engine/insights"
)

func TestListScenarios(t *testing.T) {
	api := newTestAPI(t)
	admin := api.token(t, "admin-1", true)

	list := decode[[]ScenarioDTO](t, api.do(t, http.MethodGet, "/api/admin/scenarios", admin, nil))
	assert.Len(t, list, len(scenarios))
}

func TestLoadScenario_Breakout(t *testing.T) {
	// GIVEN: The breakout scenario (flat, then +60% in the latest month)
	// WHEN: It is loaded twice
	// THEN: History ends before the eligible period, growth_50 is earned once

	api := newTestAPI(t)
	admin := api.token(t, "admin-1", true)

	rec := api.do(t, http.MethodPost, "/api/admin/scenarios/load", admin, LoadScenarioRequest{ScenarioID: "breakout"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[LoadScenarioResponse](t, rec)
	assert.Equal(t, 4, resp.RecordsAdded)

	codes := make([]string, 0, len(resp.Achievements))
	for _, a := range resp.Achievements {
		codes = append(codes, a.Code)
	}
	assert.ElementsMatch(t, []string{"growth_50", "record_breaker"}, codes)

	history, err := api.store.History(context.Background(), "demo-breakout")
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, insights.NewPeriod(2025, 2), history[0].Period, "eligible March stays open")

	again := decode[LoadScenarioResponse](t, api.do(t, http.MethodPost, "/api/admin/scenarios/load", admin, LoadScenarioRequest{ScenarioID: "breakout"}))
	assert.Equal(t, 0, again.RecordsAdded)
	assert.Empty(t, again.Achievements)
	assert.Equal(t, 0, again.PointsAwarded)

	// Further loads and an admin reevaluation award nothing either.
	client, err := api.store.GetClient(context.Background(), "demo-breakout")
	require.NoError(t, err)
	points := client.TotalPoints

	third := decode[LoadScenarioResponse](t, api.do(t, http.MethodPost, "/api/admin/scenarios/load", admin, LoadScenarioRequest{ScenarioID: "breakout"}))
	assert.Empty(t, third.Achievements)
	reeval := decode[ReevaluateResponse](t, api.do(t, http.MethodPost, "/api/admin/clients/demo-breakout/reevaluate", admin, nil))
	assert.Empty(t, reeval.Achievements)

	client, err = api.store.GetClient(context.Background(), "demo-breakout")
	require.NoError(t, err)
	assert.Equal(t, points, client.TotalPoints)
}

func TestLoadScenario_NewClientCanSubmit(t *testing.T) {
	api := newTestAPI(t)
	admin := api.token(t, "admin-1", true)

	rec := api.do(t, http.MethodPost, "/api/admin/scenarios/load", admin, LoadScenarioRequest{ScenarioID: "new-client"})
	require.Equal(t, http.StatusOK, rec.Code)

	sub := api.do(t, http.MethodPost, "/api/records", api.token(t, "demo-new", false), map[string]any{"revenue": 5000})
	assert.Equal(t, http.StatusCreated, sub.Code)
}

func TestLoadScenario_Unknown(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodPost, "/api/admin/scenarios/load", api.token(t, "admin-1", true), LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
