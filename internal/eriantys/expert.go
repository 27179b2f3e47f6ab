package eriantys

import (
	"errors"
	"fmt"
)

// ExpertCardKind identifies a power-up card effect. The session controller
// treats cards opaquely: it checks cost and the played flag, collects any
// follow-up choices, then applies the effect through PlayExpertCard.
type ExpertCardKind string

const (
	// CardExtraMovement grants two extra mother nature steps this turn.
	CardExtraMovement ExpertCardKind = "EXTRA_MOVEMENT"
	// CardProfessorOnTie lets the acting player claim professors on equal
	// hall counts for the rest of the turn.
	CardProfessorOnTie ExpertCardKind = "PROFESSOR_ON_TIE"
	// CardSwapStudents swaps one entrance student with one hall student.
	CardSwapStudents ExpertCardKind = "SWAP_STUDENTS"
)

type ExpertCard struct {
	Kind   ExpertCardKind `json:"kind"`
	Price  int            `json:"price"`
	Played bool           `json:"played"`
}

// NeedsColorPair reports whether playing the card requires two follow-up
// color choices before the effect can fire.
func (c *ExpertCard) NeedsColorPair() bool {
	return c.Kind == CardSwapStudents
}

func newExpertCards() []*ExpertCard {
	return []*ExpertCard{
		{Kind: CardExtraMovement, Price: 1},
		{Kind: CardProfessorOnTie, Price: 2},
		{Kind: CardSwapStudents, Price: 1},
	}
}

// ExpertArgs carries card-specific follow-up choices.
type ExpertArgs struct {
	EntranceColor Color
	HallColor     Color
}

// PlayExpertCard plays the card at idx for the acting player. Gated by
// extended mode, sufficient coins and one card per action turn. The price
// rises by one coin after the card's first play.
func (g *Game) PlayExpertCard(idx int, args ExpertArgs) error {
	if !g.Extended {
		return errors.New("NOT_EXTENDED: not an extended-mode session")
	}
	if g.Phase != PhaseMovingStudents {
		return ErrWrongPhase
	}
	if g.CardPlayed {
		return errors.New("CARD_ALREADY_PLAYED: you already played a card this turn")
	}
	if idx < 0 || idx >= len(g.ExpertCards) {
		return fmt.Errorf("CARD_INVALID: card %d does not exist", idx+1)
	}
	card := g.ExpertCards[idx]
	p := g.CurrentPlayer()
	if p.Board.Coins < card.Price {
		return fmt.Errorf("NOT_ENOUGH_COINS: card costs %d, you have %d", card.Price, p.Board.Coins)
	}

	switch card.Kind {
	case CardExtraMovement:
		g.MovementBonus = 2
	case CardProfessorOnTie:
		g.TieProfessors = true
		for _, c := range AllColors() {
			g.updateProfessor(c)
		}
	case CardSwapStudents:
		if err := g.swapStudents(p, args.EntranceColor, args.HallColor); err != nil {
			return err
		}
	default:
		return fmt.Errorf("CARD_INVALID: unknown card kind %s", card.Kind)
	}

	p.Board.Coins -= card.Price
	if !card.Played {
		card.Played = true
		card.Price++
	}
	g.CardPlayed = true
	return nil
}

func (g *Game) swapStudents(p *Player, entranceColor, hallColor Color) error {
	if p.Board.Entrance.Count(entranceColor) == 0 {
		return fmt.Errorf("COLOR_UNAVAILABLE: no %s student in your entrance", entranceColor)
	}
	if p.Board.Hall.Count(hallColor) == 0 {
		return fmt.Errorf("COLOR_UNAVAILABLE: no %s student in your hall", hallColor)
	}
	if !p.Board.HallFillable(entranceColor) {
		return fmt.Errorf("HALL_FULL: the %s hall row is full", entranceColor)
	}

	p.Board.Entrance.Remove(entranceColor)
	p.Board.Hall.Add(entranceColor, 1)
	p.Board.Hall.Remove(hallColor)
	p.Board.Entrance.Add(hallColor, 1)

	g.updateProfessor(entranceColor)
	g.updateProfessor(hallColor)
	return nil
}
