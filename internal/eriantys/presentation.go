package eriantys

import (
	"fmt"
	"strings"
)

// Describe renders a player's board as text. Pure function of current state,
// sent to clients after each mutating operation.
func Describe(g *Game, p *Player) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Board of %s\n", p.Nickname)
	fmt.Fprintf(&b, "  entrance: %s\n", describeStudents(p.Board.Entrance))
	fmt.Fprintf(&b, "  hall:     %s\n", describeStudents(p.Board.Hall))

	professors := make([]string, 0, len(p.Board.Professors))
	for _, c := range AllColors() {
		if p.Board.Professors[c] {
			professors = append(professors, string(c))
		}
	}
	fmt.Fprintf(&b, "  professors: [%s]\n", strings.Join(professors, " "))
	fmt.Fprintf(&b, "  towers: %d %s\n", p.Board.TowersLeft, p.Board.Tower)
	if g.Extended {
		fmt.Fprintf(&b, "  coins: %d\n", p.Board.Coins)
	}
	return strings.TrimRight(b.String(), "\n")
}

// DescribeArchipelago renders the island chain with mother nature's position.
func DescribeArchipelago(g *Game) string {
	var b strings.Builder
	for i, island := range g.Archipelago {
		fmt.Fprintf(&b, "island %d: %s", i+1, describeStudents(island.Students))
		if island.Towers > 0 {
			fmt.Fprintf(&b, " towers %d %s", island.Towers, island.Tower)
		}
		if i == g.MotherNature {
			b.WriteString(" (mother nature)")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// DescribeClouds renders the cloud tiles that can still be taken.
func DescribeClouds(g *Game) string {
	var b strings.Builder
	for i, cloud := range g.Clouds {
		if cloud.IsEmpty() {
			continue
		}
		fmt.Fprintf(&b, "cloud %d: %s\n", i+1, describeStudents(cloud))
	}
	return strings.TrimRight(b.String(), "\n")
}

// DescribeExpertCards renders the drawn expert cards with current prices.
func DescribeExpertCards(g *Game) string {
	var b strings.Builder
	for i, card := range g.ExpertCards {
		fmt.Fprintf(&b, "card %d: %s price %d\n", i+1, card.Kind, card.Price)
	}
	return strings.TrimRight(b.String(), "\n")
}

func describeStudents(s StudentSet) string {
	if s.IsEmpty() {
		return "[]"
	}
	parts := make([]string, 0, len(s))
	for _, c := range AllColors() {
		if n := s.Count(c); n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", c, n))
		}
	}
	return "[" + strings.Join(parts, " ") + "]"
}
