package eriantys

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
)

// Phase is the current state of the turn state machine. Commands are only
// accepted when they match the active phase.
type Phase string

const (
	PhaseJoin           Phase = "JOIN"
	PhasePlanning       Phase = "PLANNING"
	PhaseMovingStudents Phase = "MOVING_STUDENTS"
	PhaseMotherMovement Phase = "MOTHER_MOVEMENT"
	PhaseCloudSelection Phase = "CLOUD_SELECTION"
	PhaseGameOver       Phase = "GAME_OVER"
)

type Color string

const (
	Yellow Color = "YELLOW"
	Blue   Color = "BLUE"
	Green  Color = "GREEN"
	Red    Color = "RED"
	Pink   Color = "PINK"
)

// AllColors returns the student colors in canonical order.
func AllColors() []Color {
	return []Color{Yellow, Blue, Green, Red, Pink}
}

func ParseColor(s string) (Color, bool) {
	for _, c := range AllColors() {
		if strings.EqualFold(s, string(c)) {
			return c, true
		}
	}
	return "", false
}

type TowerColor string

const (
	TowerWhite TowerColor = "WHITE"
	TowerBlack TowerColor = "BLACK"
	TowerGray  TowerColor = "GRAY"

	// TowerNone marks an unconquered island.
	TowerNone TowerColor = ""
)

func ParseTowerColor(s string) (TowerColor, bool) {
	for _, t := range []TowerColor{TowerWhite, TowerBlack, TowerGray} {
		if strings.EqualFold(s, string(t)) {
			return t, true
		}
	}
	return TowerNone, false
}

type CardBack string

const (
	BackKing  CardBack = "KING"
	BackWitch CardBack = "WITCH"
	BackSage  CardBack = "SAGE"
	BackDruid CardBack = "DRUID"
)

func ParseCardBack(s string) (CardBack, bool) {
	for _, b := range []CardBack{BackKing, BackWitch, BackSage, BackDruid} {
		if strings.EqualFold(s, string(b)) {
			return b, true
		}
	}
	return "", false
}

// StudentSet is a multiset of students keyed by color.
type StudentSet map[Color]int

func NewStudentSet() StudentSet {
	return make(StudentSet)
}

func (s StudentSet) Add(c Color, n int) {
	s[c] += n
}

func (s StudentSet) Remove(c Color) error {
	if s[c] == 0 {
		return fmt.Errorf("COLOR_UNAVAILABLE: no %s student available", strings.ToLower(string(c)))
	}
	s[c]--
	if s[c] == 0 {
		delete(s, c)
	}
	return nil
}

func (s StudentSet) Count(c Color) int {
	return s[c]
}

func (s StudentSet) Total() int {
	total := 0
	for _, n := range s {
		total += n
	}
	return total
}

func (s StudentSet) IsEmpty() bool {
	return s.Total() == 0
}

// ColorsAvailable returns the colors with at least one student, in canonical
// order so prompts and rendering are stable.
func (s StudentSet) ColorsAvailable() []Color {
	available := make([]Color, 0, len(s))
	for _, c := range AllColors() {
		if s[c] > 0 {
			available = append(available, c)
		}
	}
	return available
}

// TransferAllTo empties the set into dst.
func (s StudentSet) TransferAllTo(dst StudentSet) {
	for c, n := range s {
		dst[c] += n
		delete(s, c)
	}
}

func (s StudentSet) Clone() StudentSet {
	clone := make(StudentSet, len(s))
	for c, n := range s {
		clone[c] = n
	}
	return clone
}

// AssistantCard is a move-priority card. Priority decides acting order
// (lowest first), Movement caps mother nature steps.
type AssistantCard struct {
	Priority int `json:"priority"`
	Movement int `json:"movement"`
}

// Board is the school board owned by a single player.
type Board struct {
	Entrance   StudentSet     `json:"entrance"`
	Hall       StudentSet     `json:"hall"`
	Professors map[Color]bool `json:"professors"`
	Tower      TowerColor     `json:"towerColor"`
	TowersLeft int            `json:"towersLeft"`
	Coins      int            `json:"coins"`
}

const hallSeatsPerColor = 10

func (b *Board) HallFillable(c Color) bool {
	return b.Hall.Count(c) < hallSeatsPerColor
}

type Player struct {
	Nickname string          `json:"nickname"`
	Board    *Board          `json:"board"`
	CardBack CardBack        `json:"cardBack,omitempty"`
	Hand     []AssistantCard `json:"hand"`
	Played   *AssistantCard  `json:"played,omitempty"`
}

// HasPriority reports whether the player still holds the card with the given
// priority value.
func (p *Player) HasPriority(priority int) bool {
	for _, card := range p.Hand {
		if card.Priority == priority {
			return true
		}
	}
	return false
}

func (p *Player) takePriority(priority int) (AssistantCard, bool) {
	for i, card := range p.Hand {
		if card.Priority == priority {
			p.Hand = append(p.Hand[:i], p.Hand[i+1:]...)
			return card, true
		}
	}
	return AssistantCard{}, false
}

func (p *Player) professorCount() int {
	count := 0
	for _, has := range p.Board.Professors {
		if has {
			count++
		}
	}
	return count
}

// Island is one tile of the archipelago. Merged islands keep a tower per
// original tile, so Towers can exceed one.
type Island struct {
	Students StudentSet `json:"students"`
	Towers   int        `json:"towers"`
	Tower    TowerColor `json:"towerColor,omitempty"`
}

// Game is the authoritative shared state of one session. All mutation goes
// through phase-checked methods; the session controller serializes access.
type Game struct {
	Phase    Phase     `json:"phase"`
	Extended bool      `json:"extended"`
	Players  []*Player `json:"players"`

	// TurnOrder holds roster indexes in acting order for the current round;
	// TurnCursor is the position of the acting player within it.
	TurnOrder       []int `json:"turnOrder"`
	TurnCursor      int   `json:"turnCursor"`
	RoundPriorities []int `json:"roundPriorities"`
	MovesDone       int   `json:"movesDone"`

	Archipelago  []*Island    `json:"archipelago"`
	Clouds       []StudentSet `json:"clouds"`
	MotherNature int          `json:"motherNature"`
	Bag          StudentSet   `json:"bag"`

	AvailableTowers []TowerColor `json:"availableTowers"`
	AvailableBacks  []CardBack   `json:"availableBacks"`

	ExpertCards   []*ExpertCard `json:"expertCards,omitempty"`
	MovementBonus int           `json:"movementBonus"`
	TieProfessors bool          `json:"tieProfessors"`
	CardPlayed    bool          `json:"cardPlayed"`

	LastRound bool   `json:"lastRound"`
	Winner    string `json:"winner,omitempty"`
}

const (
	islandCount      = 12
	handSize         = 10
	studentsPerColor = 24
)

var (
	ErrWrongPhase = errors.New("WRONG_PHASE: command does not match the current phase")
)

func movesPerTurn(numPlayers int) int {
	if numPlayers == 3 {
		return 4
	}
	return 3
}

func entranceSize(numPlayers int) int {
	if numPlayers == 3 {
		return 9
	}
	return 7
}

func cloudSize(numPlayers int) int {
	if numPlayers == 3 {
		return 4
	}
	return 3
}

func towersPerPlayer(numPlayers int) int {
	if numPlayers == 3 {
		return 6
	}
	return 8
}

// NewGame builds a game in the JOIN phase for the given ordered roster.
// Tower colors and card backs are assigned afterwards, one player at a time.
func NewGame(nicknames []string, extended bool) (*Game, error) {
	if len(nicknames) < 2 || len(nicknames) > 3 {
		return nil, fmt.Errorf("INVALID_ROSTER: sessions hold 2 or 3 players, got %d", len(nicknames))
	}
	seen := make(map[string]bool, len(nicknames))
	for _, nick := range nicknames {
		if nick == "" {
			return nil, errors.New("INVALID_ROSTER: empty nickname")
		}
		if seen[nick] {
			return nil, fmt.Errorf("INVALID_ROSTER: duplicate nickname %q", nick)
		}
		seen[nick] = true
	}

	numPlayers := len(nicknames)
	g := &Game{
		Phase:        PhaseJoin,
		Extended:     extended,
		Bag:          NewStudentSet(),
		MotherNature: 0,
	}

	for _, c := range AllColors() {
		g.Bag.Add(c, studentsPerColor)
	}

	// Two students of each color seed the islands; the island opposite
	// mother nature and mother nature's own island stay empty.
	seed := make([]Color, 0, 10)
	for _, c := range AllColors() {
		if err := g.Bag.Remove(c); err != nil {
			return nil, err
		}
		if err := g.Bag.Remove(c); err != nil {
			return nil, err
		}
		seed = append(seed, c, c)
	}
	rand.Shuffle(len(seed), func(i, j int) { seed[i], seed[j] = seed[j], seed[i] })

	g.Archipelago = make([]*Island, 0, islandCount)
	seedIdx := 0
	for i := 0; i < islandCount; i++ {
		island := &Island{Students: NewStudentSet()}
		if i != 0 && i != islandCount/2 {
			island.Students.Add(seed[seedIdx], 1)
			seedIdx++
		}
		g.Archipelago = append(g.Archipelago, island)
	}

	for i, nick := range nicknames {
		board := &Board{
			Entrance:   NewStudentSet(),
			Hall:       NewStudentSet(),
			Professors: make(map[Color]bool),
		}
		if extended {
			board.Coins = 1
		}
		hand := make([]AssistantCard, 0, handSize)
		for priority := 1; priority <= handSize; priority++ {
			hand = append(hand, AssistantCard{Priority: priority, Movement: (priority + 1) / 2})
		}
		g.Players = append(g.Players, &Player{
			Nickname: nick,
			Board:    board,
			Hand:     hand,
		})
		g.TurnOrder = append(g.TurnOrder, i)

		for j := 0; j < entranceSize(numPlayers); j++ {
			c, ok := g.drawFromBag()
			if !ok {
				return nil, errors.New("SETUP_FAILED: bag exhausted during setup")
			}
			board.Entrance.Add(c, 1)
		}
	}

	g.AvailableTowers = []TowerColor{TowerWhite, TowerBlack}
	if numPlayers == 3 {
		g.AvailableTowers = append(g.AvailableTowers, TowerGray)
	}
	g.AvailableBacks = []CardBack{BackKing, BackWitch, BackSage, BackDruid}

	g.Clouds = make([]StudentSet, numPlayers)
	for i := range g.Clouds {
		g.Clouds[i] = NewStudentSet()
	}

	if extended {
		g.ExpertCards = newExpertCards()
	}

	return g, nil
}

// drawFromBag removes one random student from the bag.
func (g *Game) drawFromBag() (Color, bool) {
	total := g.Bag.Total()
	if total == 0 {
		return "", false
	}
	pick := rand.Intn(total)
	for _, c := range AllColors() {
		n := g.Bag.Count(c)
		if pick < n {
			g.Bag.Remove(c)
			return c, true
		}
		pick -= n
	}
	return "", false
}

// CurrentIndex is the roster index of the acting player.
func (g *Game) CurrentIndex() int {
	return g.TurnOrder[g.TurnCursor]
}

// CurrentPlayer is the acting player for the current phase.
func (g *Game) CurrentPlayer() *Player {
	return g.Players[g.CurrentIndex()]
}

// Roster returns the original ordered nicknames.
func (g *Game) Roster() []string {
	roster := make([]string, len(g.Players))
	for i, p := range g.Players {
		roster[i] = p.Nickname
	}
	return roster
}

func (g *Game) PlayerByNickname(nick string) *Player {
	for _, p := range g.Players {
		if p.Nickname == nick {
			return p
		}
	}
	return nil
}

func (g *Game) playerByTower(t TowerColor) *Player {
	for _, p := range g.Players {
		if p.Board.Tower == t {
			return p
		}
	}
	return nil
}

// MovesPerTurn is the number of students the acting player places each turn.
func (g *Game) MovesPerTurn() int {
	return movesPerTurn(len(g.Players))
}

// AssignCardBack gives an available card back to the player at roster index
// i. First come first served, no rollback once chosen.
func (g *Game) AssignCardBack(i int, back CardBack) error {
	if g.Phase != PhaseJoin {
		return ErrWrongPhase
	}
	p := g.Players[i]
	if p.CardBack != "" {
		return fmt.Errorf("ALREADY_CHOSEN: %s already picked a card back", p.Nickname)
	}
	for j, b := range g.AvailableBacks {
		if b == back {
			g.AvailableBacks = append(g.AvailableBacks[:j], g.AvailableBacks[j+1:]...)
			p.CardBack = back
			return nil
		}
	}
	return fmt.Errorf("BACK_UNAVAILABLE: card back %s is taken", back)
}

// AssignTower gives an available tower color to the player at roster index i
// and fills their tower reserve.
func (g *Game) AssignTower(i int, tower TowerColor) error {
	if g.Phase != PhaseJoin {
		return ErrWrongPhase
	}
	p := g.Players[i]
	if p.Board.Tower != TowerNone {
		return fmt.Errorf("ALREADY_CHOSEN: %s already picked a tower color", p.Nickname)
	}
	for j, t := range g.AvailableTowers {
		if t == tower {
			g.AvailableTowers = append(g.AvailableTowers[:j], g.AvailableTowers[j+1:]...)
			p.Board.Tower = tower
			p.Board.TowersLeft = towersPerPlayer(len(g.Players))
			return nil
		}
	}
	return fmt.Errorf("TOWER_UNAVAILABLE: tower color %s is taken", tower)
}

// StartPlay leaves the JOIN phase once every player holds a card back and a
// tower color, and opens the first planning round.
func (g *Game) StartPlay() error {
	if g.Phase != PhaseJoin {
		return ErrWrongPhase
	}
	for _, p := range g.Players {
		if p.CardBack == "" || p.Board.Tower == TowerNone {
			return fmt.Errorf("SETUP_INCOMPLETE: %s has not finished setup", p.Nickname)
		}
	}
	g.beginPlanning()
	return nil
}
