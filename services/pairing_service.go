package services

// NameResolver turns a user id into the name shown in brackets and invites.
type NameResolver interface {
	DisplayName(userID string) string
}

// Pair is one seeded pairing of the bracket.
type Pair struct {
	Key         MatchKey
	Player1ID   string
	Player1Name string
	Player2ID   string
	Player2Name string
}

// generateSemifinalPairs seeds the two semifinals from join order:
// semi1 is players 0 and 1, semi2 is players 2 and 3.
func generateSemifinalPairs(players []string, names NameResolver) []Pair {
	keys := []MatchKey{MatchSemi1, MatchSemi2}
	pairs := make([]Pair, 0, len(keys))
	for i, key := range keys {
		if 2*i+1 >= len(players) {
			break
		}
		p1, p2 := players[2*i], players[2*i+1]
		pairs = append(pairs, Pair{
			Key:         key,
			Player1ID:   p1,
			Player1Name: displayName(names, p1),
			Player2ID:   p2,
			Player2Name: displayName(names, p2),
		})
	}
	return pairs
}

func (p Pair) bracketMatch() *BracketMatch {
	return &BracketMatch{
		Key:    p.Key,
		P1:     p.Player1ID,
		P2:     p.Player2ID,
		Status: SlotPending,
		DisplayNames: map[string]string{
			p.Player1ID: p.Player1Name,
			p.Player2ID: p.Player2Name,
		},
	}
}

// seedBracket builds the initial bracket. The final is empty until both
// semifinal winners are known.
func seedBracket(players []string, names NameResolver) Bracket {
	b := Bracket{Final: &BracketMatch{Key: MatchFinal, Status: SlotPending}}
	for _, p := range generateSemifinalPairs(players, names) {
		switch p.Key {
		case MatchSemi1:
			b.Semi1 = p.bracketMatch()
		case MatchSemi2:
			b.Semi2 = p.bracketMatch()
		}
	}
	return b
}

// seedFinal fills the final from the semifinal winners. It is a no-op once
// the final has players.
func seedFinal(b Bracket, names NameResolver) bool {
	if b.Final == nil || b.Final.P1 != "" || b.Semi1 == nil || b.Semi2 == nil {
		return false
	}
	if b.Semi1.Winner == "" || b.Semi2.Winner == "" {
		return false
	}
	p := Pair{
		Key:         MatchFinal,
		Player1ID:   b.Semi1.Winner,
		Player1Name: displayName(names, b.Semi1.Winner),
		Player2ID:   b.Semi2.Winner,
		Player2Name: displayName(names, b.Semi2.Winner),
	}
	seeded := p.bracketMatch()
	*b.Final = *seeded
	return true
}

func displayName(names NameResolver, userID string) string {
	if names == nil {
		return userID
	}
	if n := names.DisplayName(userID); n != "" {
		return n
	}
	return userID
}
