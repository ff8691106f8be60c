package match

import "sort"

// RankingPolicy selects how non-winners are ordered.
type RankingPolicy string

const (
	// RankBySurvival orders non-winners by time alive only.
	RankBySurvival RankingPolicy = "survival"
	// RankByCascade orders by time alive, then score, then kills, and
	// turns a wipe-out into a joint win for the best group.
	RankByCascade RankingPolicy = "cascade"
)

const (
	ReasonAllEliminated = "all eliminated"
	ReasonSimultaneous  = "simultaneous elimination"
	ReasonLastStanding  = "last standing"
	ReasonHighestScore  = "highest score at time expiry"
	ReasonTieAtScore    = "tie at score"
)

// MaxRank is the lowest placement handed out.
const MaxRank = 4

// Outcome is the verdict of Resolve. Winners are player ids in ascending
// order; Ranks covers every player when Terminal is set.
type Outcome struct {
	Terminal bool           `json:"-"`
	Reason   string         `json:"reason"`
	Winners  []string       `json:"winners"`
	Ranks    map[string]int `json:"ranks"`
}

// Resolve decides whether the match is over. The first matching rule wins:
// nobody alive, exactly one alive, then clock expiry with two or more alive.
// aliveBefore is the alive count before the step that triggered the check.
// The result depends only on the player values, never on slice order.
func Resolve(players []Player, aliveBefore int, clockExpired bool, policy RankingPolicy) Outcome {
	var alive []Player
	for _, p := range players {
		if !p.Dead {
			alive = append(alive, p)
		}
	}

	var out Outcome
	switch {
	case len(alive) == 0:
		out.Reason = ReasonAllEliminated
		if aliveBefore >= 2 {
			out.Reason = ReasonSimultaneous
		}
		if policy == RankByCascade {
			out.Winners = bestByCascade(players)
		}
	case len(alive) == 1:
		out.Reason = ReasonLastStanding
		out.Winners = []string{alive[0].ID}
	case clockExpired:
		out.Winners = topScorers(alive)
		out.Reason = ReasonHighestScore
		if len(out.Winners) > 1 {
			out.Reason = ReasonTieAtScore
		}
	default:
		return Outcome{}
	}

	out.Terminal = true
	if out.Winners == nil {
		out.Winners = []string{}
	}
	sort.Strings(out.Winners)
	out.Ranks = assignRanks(players, out.Winners, policy)
	return out
}

func topScorers(players []Player) []string {
	best := players[0].Score
	for _, p := range players[1:] {
		if p.Score > best {
			best = p.Score
		}
	}
	var ids []string
	for _, p := range players {
		if p.Score == best {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

func bestByCascade(players []Player) []string {
	if len(players) == 0 {
		return nil
	}
	best := players[0]
	for _, p := range players[1:] {
		if compareCascade(p, best) < 0 {
			best = p
		}
	}
	var ids []string
	for _, p := range players {
		if compareCascade(p, best) == 0 {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// compareCascade orders a before b (negative) when a placed better.
func compareCascade(a, b Player) int {
	if c := compareSurvival(a, b); c != 0 {
		return c
	}
	if a.Score != b.Score {
		return b.Score - a.Score
	}
	return b.Kills - a.Kills
}

func compareSurvival(a, b Player) int {
	return b.TimeAlive - a.TimeAlive
}

// assignRanks gives winners rank 1 and the rest dense ranks from 2, one step
// per strictly worse key, never past MaxRank.
func assignRanks(players []Player, winners []string, policy RankingPolicy) map[string]int {
	compare := compareSurvival
	if policy == RankByCascade {
		compare = compareCascade
	}

	won := make(map[string]bool, len(winners))
	ranks := make(map[string]int, len(players))
	for _, id := range winners {
		won[id] = true
		ranks[id] = 1
	}

	var rest []Player
	for _, p := range players {
		if !won[p.ID] {
			rest = append(rest, p)
		}
	}
	sort.SliceStable(rest, func(i, j int) bool { return compare(rest[i], rest[j]) < 0 })

	rank := 2
	for i, p := range rest {
		if i > 0 && compare(rest[i-1], p) < 0 {
			rank++
		}
		if rank > MaxRank {
			rank = MaxRank
		}
		ranks[p.ID] = rank
	}
	return ranks
}
