package models

// RPSMove is a rock/paper/scissors throw.
type RPSMove string

const (
	RPSRock     RPSMove = "rock"
	RPSPaper    RPSMove = "paper"
	RPSScissors RPSMove = "scissors"
)

// RPSMoves lists the legal throws.
var RPSMoves = []RPSMove{RPSRock, RPSPaper, RPSScissors}

// Valid reports whether m is a legal throw.
func (m RPSMove) Valid() bool {
	return m == RPSRock || m == RPSPaper || m == RPSScissors
}

// Beats reports whether m defeats other under ordinary comparison.
func (m RPSMove) Beats(other RPSMove) bool {
	switch m {
	case RPSRock:
		return other == RPSScissors
	case RPSPaper:
		return other == RPSRock
	case RPSScissors:
		return other == RPSPaper
	}
	return false
}

// RPSPhase is the two-phase round progression. It only advances
// initial -> final -> result, then resets to initial for the next round.
type RPSPhase string

const (
	RPSPhaseInitial RPSPhase = "initial"
	RPSPhaseFinal   RPSPhase = "final"
	RPSPhaseResult  RPSPhase = "result"
)

// RPSSeatMoves holds one seat's throws. Final may only be populated once the
// round phase is final.
type RPSSeatMoves struct {
	Initial *RPSMove `json:"initial,omitempty"`
	Final   *RPSMove `json:"final,omitempty"`
}

// Changed reports whether the seat switched throws between phases.
func (sm RPSSeatMoves) Changed() bool {
	return sm.Initial != nil && sm.Final != nil && *sm.Initial != *sm.Final
}

// RPSState is the two-phase rock/paper/scissors game state.
type RPSState struct {
	CurrentRound    int                      `json:"current_round"`
	Scores          map[string]int           `json:"scores"`
	Moves           map[string]*RPSSeatMoves `json:"moves"`
	Phase           RPSPhase                 `json:"phase"`
	RoundWinner     string                   `json:"round_winner,omitempty"`
	RoundResultText string                   `json:"round_result_text,omitempty"`
}

// AllInitial reports whether every seat has an initial throw.
func (r *RPSState) AllInitial(playerIDs []string) bool {
	for _, uid := range playerIDs {
		if r.Moves[uid] == nil || r.Moves[uid].Initial == nil {
			return false
		}
	}
	return len(playerIDs) > 0
}

// AllFinal reports whether every seat has a final throw.
func (r *RPSState) AllFinal(playerIDs []string) bool {
	for _, uid := range playerIDs {
		if r.Moves[uid] == nil || r.Moves[uid].Final == nil {
			return false
		}
	}
	return len(playerIDs) > 0
}

// ResetRound clears throws and results and returns the phase to initial.
func (r *RPSState) ResetRound() {
	for uid := range r.Moves {
		r.Moves[uid] = &RPSSeatMoves{}
	}
	r.Phase = RPSPhaseInitial
	r.RoundWinner = ""
	r.RoundResultText = ""
}

func (r *RPSState) clone() *RPSState {
	if r == nil {
		return nil
	}
	out := *r
	out.Scores = cloneCounts(r.Scores)
	out.Moves = make(map[string]*RPSSeatMoves, len(r.Moves))
	for uid, sm := range r.Moves {
		if sm == nil {
			out.Moves[uid] = nil
			continue
		}
		cp := RPSSeatMoves{}
		if sm.Initial != nil {
			v := *sm.Initial
			cp.Initial = &v
		}
		if sm.Final != nil {
			v := *sm.Final
			cp.Final = &v
		}
		out.Moves[uid] = &cp
	}
	return &out
}
