package account

// Rank is the level-band prefix shown before a role name.
type Rank string

const (
	RankTrainee     Rank = "trainee"
	RankApprentice  Rank = "apprentice"
	RankRegular     Rank = "regular"
	RankSkilled     Rank = "skilled"
	RankVeteran     Rank = "veteran"
	RankMaster      Rank = "master"
	RankGrandmaster Rank = "grandmaster"
)

type rankBand struct {
	max  int
	rank Rank
}

var rankBands = []rankBand{
	{0, RankTrainee},
	{3, RankApprentice},
	{6, RankRegular},
	{9, RankSkilled},
	{12, RankVeteran},
	{14, RankMaster},
}

// RankFor returns the rank for level. Levels past the last band are grandmaster.
func RankFor(level int) Rank {
	for _, b := range rankBands {
		if level <= b.max {
			return b.rank
		}
	}
	return RankGrandmaster
}
