// Package rooms computes room identifiers. An ID is a comparable value
// derived only from its participants, so every caller that knows the
// participants computes the same ID.
package rooms

import "chat-live/internal/models"

type Kind uint8

const (
	Personal Kind = iota + 1
	Pair
)

// ID is usable as a map key. The zero value is not a valid room.
type ID struct {
	kind Kind
	a, b models.UserID
}

// ForUser is the user's personal notification room.
func ForUser(user models.UserID) ID {
	return ID{kind: Personal, a: user}
}

// ForPair is the conversation room of two users; argument order does not
// matter.
func ForPair(userA, userB models.UserID) ID {
	if userB < userA {
		userA, userB = userB, userA
	}
	return ID{kind: Pair, a: userA, b: userB}
}

func (id ID) Kind() Kind { return id.kind }

func (id ID) IsZero() bool { return id.kind == 0 }

// Partner returns the other participant of a pair room that includes self.
func (id ID) Partner(self models.UserID) (models.UserID, bool) {
	if id.kind != Pair {
		return "", false
	}
	switch self {
	case id.a:
		return id.b, true
	case id.b:
		return id.a, true
	}
	return "", false
}

// Owner returns the user of a personal room.
func (id ID) Owner() (models.UserID, bool) {
	if id.kind != Personal {
		return "", false
	}
	return id.a, true
}

func (id ID) String() string {
	switch id.kind {
	case Personal:
		return "user:" + string(id.a)
	case Pair:
		return "dm:" + string(id.a) + ":" + string(id.b)
	}
	return ""
}
