/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provisions demo clients with realistic history so the dashboard,
	achievements and reminders can be exercised without the external
	client provisioning system.

AVAILABLE SCENARIOS:

	new-client:      No history; can submit the open period right away
	steady-grower:   Six months of single-digit growth
	breakout:        Flat months then a 60% jump
	six-figures:     Crosses 100 000 in the latest month
	rebound:         A weak month followed by recovery

HOW SCENARIOS WORK:
 1. Upsert the demo client (ids are prefixed "demo-")
 2. Backfill history for the periods before the eligible one
 3. Reevaluate so backfilled history earns its achievements

 The eligible period is never backfilled, so a live submission still works.
 Loading a scenario twice is harmless: existing periods are skipped and
 reevaluation awards nothing new.

USAGE VIA API:

	GET  /api/admin/scenarios
	POST /api/admin/scenarios/load
	{"scenario_id": "breakout"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description and revenues
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/warp/insights-engine/insights"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

type LoadScenarioResponse struct {
	ScenarioID    string           `json:"scenario_id"`
	ClientID      string           `json:"client_id"`
	RecordsAdded  int              `json:"records_added"`
	Achievements  []AchievementDTO `json:"achievements"`
	PointsAwarded int              `json:"points_awarded"`
}

type scenario struct {
	ScenarioDTO
	client insights.Client
	// revenues are oldest first and end with the period just before the eligible one.
	revenues []int64
	units    int
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{ID: "new-client", Name: "New Client", Description: "No history yet"},
		client:      insights.Client{ID: "demo-new", Name: "Nina Costa", CompanyName: "Costa Café", Segment: "food"},
	},
	{
		ScenarioDTO: ScenarioDTO{ID: "steady-grower", Name: "Steady Grower", Description: "Six months of single-digit growth"},
		client:      insights.Client{ID: "demo-steady", Name: "Paulo Reis", CompanyName: "Reis Ferragens", Segment: "retail"},
		revenues:    []int64{40000, 42000, 44500, 47000, 50000, 53500},
		units:       200,
	},
	{
		ScenarioDTO: ScenarioDTO{ID: "breakout", Name: "Breakout Month", Description: "Flat months then a 60% jump"},
		client:      insights.Client{ID: "demo-breakout", Name: "Livia Martins", CompanyName: "Martins Estética", Segment: "services"},
		revenues:    []int64{20000, 20500, 20000, 32000},
		units:       80,
	},
	{
		ScenarioDTO: ScenarioDTO{ID: "six-figures", Name: "Six Figures", Description: "Crosses 100 000 in the latest month"},
		client:      insights.Client{ID: "demo-sixfig", Name: "Rafael Duarte", CompanyName: "Duarte Distribuidora", Segment: "wholesale"},
		revenues:    []int64{82000, 91000, 104000},
		units:       150,
	},
	{
		ScenarioDTO: ScenarioDTO{ID: "rebound", Name: "Rebound", Description: "A weak month followed by recovery"},
		client:      insights.Client{ID: "demo-rebound", Name: "Sofia Alves", CompanyName: "Alves Moda", Segment: "retail"},
		revenues:    []int64{30000, 24000, 31000},
		units:       120,
	},
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns available demo scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	out := make([]ScenarioDTO, 0, len(scenarios))
	for _, s := range scenarios {
		out = append(out, s.ScenarioDTO)
	}
	writeJSON(w, http.StatusOK, out)
}

// LoadScenario provisions a demo scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "Invalid request body", err.Error())
		return
	}
	sc, ok := findScenario(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("Unknown scenario: %s", req.ScenarioID), nil)
		return
	}

	resp, err := h.loadScenario(r.Context(), sc)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.log.Info("scenario loaded", "scenario", sc.ID, "client_id", sc.client.ID, "records_added", resp.RecordsAdded)
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) loadScenario(ctx context.Context, sc scenario) (LoadScenarioResponse, error) {
	client := sc.client
	client.IsActive = true
	if err := h.Store.SaveClient(ctx, client); err != nil {
		return LoadScenarioResponse{}, fmt.Errorf("save demo client: %w", err)
	}

	// The last revenue lands on the period before the eligible one.
	period := h.Ingestor.Window().Period
	for range sc.revenues {
		period = period.Previous()
	}

	added := 0
	for _, revenue := range sc.revenues {
		units := sc.units
		_, err := h.Ingestor.Backfill(ctx, insights.BackfillInput{
			ClientID:  client.ID,
			Period:    period,
			Revenue:   decimal.NewFromInt(revenue),
			UnitCount: &units,
			Notes:     "Demo data",
		})
		switch {
		case err == nil:
			added++
		case errors.Is(err, insights.ErrDuplicateSubmission):
		default:
			return LoadScenarioResponse{}, err
		}
		period = period.Next()
	}

	resp := LoadScenarioResponse{
		ScenarioID:   sc.ID,
		ClientID:     string(client.ID),
		RecordsAdded: added,
		Achievements: []AchievementDTO{},
	}
	if len(sc.revenues) == 0 {
		return resp, nil
	}

	outcome, err := h.Ingestor.Reevaluate(ctx, client.ID)
	if err != nil {
		return LoadScenarioResponse{}, err
	}
	resp.Achievements = toAchievementDTOs(outcome.Unlocked)
	resp.PointsAwarded = outcome.PointsAwarded
	return resp, nil
}
