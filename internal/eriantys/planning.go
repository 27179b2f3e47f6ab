package eriantys

import (
	"fmt"
	"sort"
)

// beginPlanning opens a planning round: clouds are refilled from the bag and
// every player must play exactly one assistant card, in the acting order
// derived from the previous round's priorities.
func (g *Game) beginPlanning() {
	g.Phase = PhasePlanning
	g.TurnCursor = 0
	g.RoundPriorities = nil
	for _, p := range g.Players {
		p.Played = nil
	}

	for _, cloud := range g.Clouds {
		for i := 0; i < cloudSize(len(g.Players)); i++ {
			c, ok := g.drawFromBag()
			if !ok {
				// Bag exhausted: this becomes the final round.
				g.LastRound = true
				return
			}
			cloud.Add(c, 1)
		}
	}
}

// PlayAssistant plays the acting player's card with the given priority value.
// A priority already submitted this round by another player is rejected,
// unless every card left in the player's hand has already been played by the
// group (forced repeat). When the whole roster has played, the acting order
// for the rest of the round is re-derived from ascending priority.
func (g *Game) PlayAssistant(priority int) error {
	if g.Phase != PhasePlanning {
		return ErrWrongPhase
	}
	p := g.CurrentPlayer()
	if !p.HasPriority(priority) {
		return fmt.Errorf("PRIORITY_UNAVAILABLE: you no longer hold card %d", priority)
	}
	if g.priorityPlayedThisRound(priority) && !g.handExhaustedByGroup(p) {
		return fmt.Errorf("PRIORITY_TAKEN: card %d was already played this round", priority)
	}

	card, _ := p.takePriority(priority)
	p.Played = &card
	g.RoundPriorities = append(g.RoundPriorities, priority)
	if len(p.Hand) == 0 {
		g.LastRound = true
	}

	g.TurnCursor++
	if g.TurnCursor == len(g.Players) {
		g.resolveActingOrder()
		g.TurnCursor = 0
		g.beginActionTurn()
	}
	return nil
}

func (g *Game) priorityPlayedThisRound(priority int) bool {
	for _, played := range g.RoundPriorities {
		if played == priority {
			return true
		}
	}
	return false
}

// handExhaustedByGroup reports whether every priority left in p's hand has
// already been played this round, which forces a repeat.
func (g *Game) handExhaustedByGroup(p *Player) bool {
	for _, card := range p.Hand {
		if !g.priorityPlayedThisRound(card.Priority) {
			return false
		}
	}
	return true
}

// resolveActingOrder sorts the turn order by ascending submitted priority,
// lowest first. Ties (forced repeats) keep their planning order.
func (g *Game) resolveActingOrder() {
	sort.SliceStable(g.TurnOrder, func(a, b int) bool {
		return g.Players[g.TurnOrder[a]].Played.Priority < g.Players[g.TurnOrder[b]].Played.Priority
	})
}

// beginActionTurn resets per-turn state for the acting player.
func (g *Game) beginActionTurn() {
	g.Phase = PhaseMovingStudents
	g.MovesDone = 0
	g.MovementBonus = 0
	g.TieProfessors = false
	g.CardPlayed = false
}
