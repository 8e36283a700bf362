package game

import "maps"

// Example is one recorded self-play decision.
//
// State is the snapshot the search saw. Policy maps each candidate key to its
// normalized visit share. Value is the terminal outcome for Player and is only
// meaningful once the game has finished.
type Example struct {
	GameID   string
	Seq      int
	State    GameState
	MoveType MoveType
	Policy   map[string]float64
	Player   int
	Value    float64
}

// BestMove returns the policy key with the highest probability. Ties go to
// the lexically smallest key so the choice is stable across map iteration.
func (e Example) BestMove() (string, float64, bool) {
	best := ""
	bestP := -1.0
	for k, p := range e.Policy {
		if p > bestP || (p == bestP && k < best) {
			best, bestP = k, p
		}
	}
	return best, bestP, best != ""
}

func (e Example) Clone() Example {
	out := e
	out.State = *e.State.Clone()
	out.Policy = maps.Clone(e.Policy)
	return out
}
