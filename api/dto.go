/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON shapes for the HTTP surface. Money travels as JSON numbers;
  conversion from decimal happens here and nowhere else.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Validation is done by the engine, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/insights-engine/insights"
)

// =============================================================================
// REQUESTS
// =============================================================================

// SubmitRecordRequest is a self-service submission. Month and year are
// optional and must be given together.
type SubmitRecordRequest struct {
	Revenue   decimal.Decimal `json:"revenue"`
	UnitCount *int            `json:"unit_count"`
	Notes     string          `json:"notes"`
	Highlight string          `json:"highlight"`
	Month     *int            `json:"month"`
	Year      *int            `json:"year"`
}

// BackfillRecordRequest is an administrative submission for any period.
type BackfillRecordRequest struct {
	ClientID   string           `json:"client_id"`
	Year       int              `json:"year"`
	Month      int              `json:"month"`
	Revenue    decimal.Decimal  `json:"revenue"`
	UnitCount  *int             `json:"unit_count"`
	Notes      string           `json:"notes"`
	Investment *decimal.Decimal `json:"investment"`
}

// =============================================================================
// RESPONSES
// =============================================================================

type RecordDTO struct {
	ID            string   `json:"id"`
	ClientID      string   `json:"client_id"`
	Year          int      `json:"year"`
	Month         int      `json:"month"`
	Period        string   `json:"period"`
	Revenue       float64  `json:"revenue"`
	UnitCount     *int     `json:"unit_count"`
	TicketAverage *float64 `json:"ticket_average"`
	Notes         string   `json:"notes,omitempty"`
	Highlight     string   `json:"highlight,omitempty"`
	Investment    *float64 `json:"investment,omitempty"`
	CreatedAt     string   `json:"created_at"`
}

type AchievementDTO struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Points      int    `json:"points"`
	UnlockedAt  string `json:"unlocked_at,omitempty"`
	Unlocked    *bool  `json:"unlocked,omitempty"`
}

// SubmitRecordResponse is returned by POST /api/records.
type SubmitRecordResponse struct {
	Success            bool             `json:"success"`
	Record             RecordDTO        `json:"record"`
	GrowthPercent      *float64         `json:"growth_percent"`
	PreviousRevenue    *float64         `json:"previous_revenue"`
	IsRecord           bool             `json:"is_record"`
	TotalGrowthPercent *float64         `json:"total_growth_percent"`
	Achievements       []AchievementDTO `json:"achievements"`
	Insights           []string         `json:"insights"`
	PointsAwarded      int              `json:"points_awarded"`
	TotalPoints        int              `json:"total_points"`
}

type ClientDTO struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	CompanyName      string          `json:"company_name"`
	Phone            string          `json:"phone"`
	Email            string          `json:"email,omitempty"`
	Segment          string          `json:"segment,omitempty"`
	TotalPoints      int             `json:"total_points"`
	MonthlyGoal      *float64        `json:"monthly_goal,omitempty"`
	Level            insights.Level  `json:"level"`
	NextLevel        *insights.Level `json:"next_level,omitempty"`
	AchievementCount int             `json:"achievement_count"`
	IsAdmin          bool            `json:"is_admin"`
}

type WindowDTO struct {
	Year          int    `json:"year"`
	Month         int    `json:"month"`
	Label         string `json:"label"`
	Open          bool   `json:"open"`
	DaysUntilLock int    `json:"days_until_lock"`
}

type ReevaluateResponse struct {
	ClientID      string           `json:"client_id"`
	Achievements  []AchievementDTO `json:"achievements"`
	PointsAwarded int              `json:"points_awarded"`
	TotalPoints   int              `json:"total_points"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Time     string `json:"time"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toRecordDTO(r insights.PeriodRecord) RecordDTO {
	return RecordDTO{
		ID:            string(r.ID),
		ClientID:      string(r.ClientID),
		Year:          r.Period.Year,
		Month:         int(r.Period.Month),
		Period:        r.Period.String(),
		Revenue:       r.Revenue.InexactFloat64(),
		UnitCount:     r.UnitCount,
		TicketAverage: toFloat(r.TicketAverage),
		Notes:         r.Notes,
		Highlight:     r.Highlight,
		Investment:    toFloat(r.Investment),
		CreatedAt:     r.SubmittedAt.UTC().Format(time.RFC3339),
	}
}

func toRecordDTOs(records []insights.PeriodRecord) []RecordDTO {
	out := make([]RecordDTO, 0, len(records))
	for _, r := range records {
		out = append(out, toRecordDTO(r))
	}
	return out
}

func toAchievementDTO(def insights.AchievementDefinition) AchievementDTO {
	return AchievementDTO{
		Code:        string(def.Code),
		Name:        def.Name,
		Description: def.Description,
		Icon:        def.Icon,
		Points:      def.Points,
	}
}

func toAchievementDTOs(defs []insights.AchievementDefinition) []AchievementDTO {
	out := make([]AchievementDTO, 0, len(defs))
	for _, d := range defs {
		out = append(out, toAchievementDTO(d))
	}
	return out
}

func toSubmitResponse(o *insights.Outcome) SubmitRecordResponse {
	insightList := o.Metrics.Insights
	if insightList == nil {
		insightList = []string{}
	}
	return SubmitRecordResponse{
		Success:            true,
		Record:             toRecordDTO(o.Record),
		GrowthPercent:      toRoundedFloat(o.Metrics.GrowthPercent),
		PreviousRevenue:    toFloat(o.Metrics.PreviousRevenue),
		IsRecord:           o.Metrics.IsRecord,
		TotalGrowthPercent: toRoundedFloat(o.Metrics.TotalGrowthPercent),
		Achievements:       toAchievementDTOs(o.Unlocked),
		Insights:           insightList,
		PointsAwarded:      o.PointsAwarded,
		TotalPoints:        o.Client.TotalPoints,
	}
}

func toFloat(d *decimal.Decimal) *float64 {
	if d == nil {
		return nil
	}
	f := d.InexactFloat64()
	return &f
}

// toRoundedFloat rounds percentages to one decimal place.
func toRoundedFloat(d *decimal.Decimal) *float64 {
	if d == nil {
		return nil
	}
	f := d.Round(1).InexactFloat64()
	return &f
}
