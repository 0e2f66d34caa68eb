package insights

// =============================================================================
// ACHIEVEMENT CATALOG - Static reference data
// =============================================================================

const (
	AchievementFirstRecord   AchievementCode = "first_record"
	AchievementGrowth10      AchievementCode = "growth_10"
	AchievementGrowth25      AchievementCode = "growth_25"
	AchievementGrowth50      AchievementCode = "growth_50"
	AchievementStreak3       AchievementCode = "streak_3"
	AchievementStreak6       AchievementCode = "streak_6"
	AchievementRecordBreaker AchievementCode = "record_breaker"
	AchievementConsistent6   AchievementCode = "consistent_6"
	AchievementConsistent12  AchievementCode = "consistent_12"
	AchievementTicketUp20    AchievementCode = "ticket_up_20"
	AchievementSixFigures    AchievementCode = "six_figures"
	AchievementFirstYear     AchievementCode = "first_year"
	AchievementGoalAchieved  AchievementCode = "goal_achieved"
)

// Catalog lists every achievement shown to clients. Only the codes produced by
// Evaluate are ever awarded by this engine; the rest are display-only.
var Catalog = []AchievementDefinition{
	{Code: AchievementFirstRecord, Name: "First Time", Description: "Recorded your first month", Icon: "rocket", Points: 10},
	{Code: AchievementGrowth10, Name: "Growing", Description: "Grew 10% or more in a month", Icon: "trending-up", Points: 20},
	{Code: AchievementGrowth25, Name: "Taking Off", Description: "Grew 25% or more in a month", Icon: "plane-takeoff", Points: 30},
	{Code: AchievementGrowth50, Name: "Rocket", Description: "Grew 50% or more in a month", Icon: "rocket", Points: 50},
	{Code: AchievementStreak3, Name: "On Fire", Description: "3 consecutive months of growth", Icon: "flame", Points: 40},
	{Code: AchievementStreak6, Name: "Unstoppable", Description: "6 consecutive months of growth", Icon: "zap", Points: 80},
	{Code: AchievementRecordBreaker, Name: "Record", Description: "Beat your own revenue record", Icon: "gem", Points: 30},
	{Code: AchievementConsistent6, Name: "Consistent", Description: "Recorded 6 months in a row", Icon: "calendar", Points: 25},
	{Code: AchievementConsistent12, Name: "Dedicated", Description: "Recorded 12 months in a row", Icon: "trophy", Points: 50},
	{Code: AchievementTicketUp20, Name: "Golden Ticket", Description: "Average ticket up 20% or more", Icon: "ticket", Points: 25},
	{Code: AchievementSixFigures, Name: "Six Figures", Description: "Earned 100,000+ in a month", Icon: "coins", Points: 100},
	{Code: AchievementFirstYear, Name: "Anniversary", Description: "Completed 1 year of tracking", Icon: "cake", Points: 50},
	{Code: AchievementGoalAchieved, Name: "Goal Hit", Description: "Reached the monthly goal", Icon: "target", Points: 25},
}

var catalogIndex = func() map[AchievementCode]AchievementDefinition {
	idx := make(map[AchievementCode]AchievementDefinition, len(Catalog))
	for _, def := range Catalog {
		idx[def.Code] = def
	}
	return idx
}()

// Lookup returns the catalog entry for code.
func Lookup(code AchievementCode) (AchievementDefinition, error) {
	def, ok := catalogIndex[code]
	if !ok {
		return AchievementDefinition{}, ErrUnknownAchievement
	}
	return def, nil
}

// =============================================================================
// LEVELS - Derived from total points, never stored
// =============================================================================

type Level struct {
	Number    int    `json:"level"`
	Name      string `json:"name"`
	MinPoints int    `json:"min_points"`
	Icon      string `json:"icon"`
}

// Levels is ordered by MinPoints ascending.
var Levels = []Level{
	{Number: 1, Name: "Beginner", MinPoints: 0, Icon: "seedling"},
	{Number: 2, Name: "Consistent", MinPoints: 100, Icon: "bar-chart"},
	{Number: 3, Name: "Rising", MinPoints: 300, Icon: "trending-up"},
	{Number: 4, Name: "Performer", MinPoints: 600, Icon: "flame"},
	{Number: 5, Name: "Elite", MinPoints: 1000, Icon: "crown"},
}

// LevelFor returns the highest level whose threshold points reaches.
func LevelFor(points int) Level {
	current := Levels[0]
	for _, l := range Levels {
		if points >= l.MinPoints {
			current = l
		}
	}
	return current
}

// NextLevel returns the level after the one for points, or false at the top.
func NextLevel(points int) (Level, bool) {
	for _, l := range Levels {
		if l.MinPoints > points {
			return l, true
		}
	}
	return Level{}, false
}
