// Package pairing derives canonical, order-independent keys for two user
// identifiers. Every pair-scoped key in the service (match uniqueness, match
// lookup between two users, chat rooms) goes through this package so that the
// order in which the two identifiers arrive never changes the address.
package pairing

// RoomSeparator joins the two sorted identifiers of a room key.
const RoomSeparator = "|"

// Pair is two user identifiers in canonical order: Lo < Hi lexicographically
// (or Lo == Hi when both inputs are equal).
type Pair struct {
	Lo string
	Hi string
}

// Canonical sorts a and b lexicographically. Canonical(a, b) == Canonical(b, a).
func Canonical(a, b string) Pair {
	if b < a {
		return Pair{Lo: b, Hi: a}
	}
	return Pair{Lo: a, Hi: b}
}

// RoomID returns the chat room key for a and b, e.g. "alice|bob".
func RoomID(a, b string) string {
	return Canonical(a, b).Room()
}

// Room returns the room key of an already canonical pair.
func (p Pair) Room() string {
	return p.Lo + RoomSeparator + p.Hi
}

// Has reports whether userID is one of the two members.
func (p Pair) Has(userID string) bool {
	return userID == p.Lo || userID == p.Hi
}

// Other returns the member that is not userID, or "" if userID is not a member.
func (p Pair) Other(userID string) string {
	switch userID {
	case p.Lo:
		return p.Hi
	case p.Hi:
		return p.Lo
	}
	return ""
}
