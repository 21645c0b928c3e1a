package station

// levelThresholds maps total points to rank labels, highest first. The
// highest threshold not exceeding the total wins; hitting a threshold
// exactly awards that rank.
var levelThresholds = []struct {
	points int
	name   string
}{
	{50000, "Meister III"},
	{35000, "Meister II"},
	{25000, "Meister I"},
	{20000, "Diamant III"},
	{16000, "Diamant II"},
	{12000, "Diamant I"},
	{10000, "Platin III"},
	{8000, "Platin II"},
	{6000, "Platin I"},
	{5000, "Gold III"},
	{4000, "Gold II"},
	{3000, "Gold I"},
	{2500, "Silber III"},
	{2000, "Silber II"},
	{1500, "Silber I"},
	{1250, "Bronze III"},
	{1000, "Bronze II"},
	{750, "Bronze I"},
	{500, "Eisen III"},
	{250, "Eisen II"},
	{0, "Eisen I"},
}

// LevelForPoints returns the rank label for a point total.
func LevelForPoints(totalPoints int) string {
	for _, t := range levelThresholds {
		if totalPoints >= t.points {
			return t.name
		}
	}
	return "Eisen I"
}
