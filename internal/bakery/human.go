// Package bakery is a small object model of people who bake, buy and eat
// cookies. Friendships are mutual and stored as peer IDs, never as pointers.
package bakery

import (
	"errors"
	"fmt"
	"slices"
)

// MaxEnergy caps the energy of every human.
const MaxEnergy = 100

// SleepGain is the energy restored per hour of sleep.
const SleepGain = 10

var (
	// ErrTooTired is returned when an action costs more energy than is left.
	ErrTooTired = errors.New("too tired")
	// ErrOutOfStock is returned when a baker cannot cover an order.
	ErrOutOfStock = errors.New("out of stock")
	// ErrInsufficientFunds is returned when a customer cannot pay.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrNoCookies is returned when a customer eats more than they own.
	ErrNoCookies = errors.New("no cookies left")
	// ErrSelfFriendship is returned when a human befriends themself.
	ErrSelfFriendship = errors.New("cannot befriend oneself")
)

// Greeter is anything that can introduce itself.
type Greeter interface {
	Greet() string
}

// Human is the base of every participant.
type Human struct {
	friends map[string]struct{}
	ID      string
	Name    string
	Energy  int
}

// NewHuman returns a rested human.
func NewHuman(id, name string) *Human {
	return &Human{ID: id, Name: name, Energy: MaxEnergy, friends: make(map[string]struct{})}
}

// Greet introduces the human.
func (h *Human) Greet() string {
	return fmt.Sprintf("Hi, I'm %s.", h.Name)
}

// Sleep restores SleepGain energy per hour, up to MaxEnergy.
func (h *Human) Sleep(hours int) int {
	if hours > 0 {
		h.gain(hours * SleepGain)
	}
	return h.Energy
}

// Befriend links both humans. Repeated calls are no-ops.
func (h *Human) Befriend(other *Human) error {
	if other == nil || other.ID == h.ID {
		return ErrSelfFriendship
	}
	h.link(other.ID)
	other.link(h.ID)
	return nil
}

// Unfriend removes the link from both sides.
func (h *Human) Unfriend(other *Human) {
	if other == nil {
		return
	}
	delete(h.friends, other.ID)
	delete(other.friends, h.ID)
}

// IsFriend reports whether id is a friend.
func (h *Human) IsFriend(id string) bool {
	_, ok := h.friends[id]
	return ok
}

// Friends returns friend IDs in sorted order.
func (h *Human) Friends() []string {
	ids := make([]string, 0, len(h.friends))
	for id := range h.friends {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (h *Human) link(id string) {
	if h.friends == nil {
		h.friends = make(map[string]struct{})
	}
	h.friends[id] = struct{}{}
}

func (h *Human) spend(cost int) error {
	if h.Energy < cost {
		return fmt.Errorf("%w: %s has %d energy, needs %d", ErrTooTired, h.Name, h.Energy, cost)
	}
	h.Energy -= cost
	return nil
}

func (h *Human) gain(n int) {
	h.Energy = min(h.Energy+n, MaxEnergy)
}

// GreetAll collects greetings in order.
func GreetAll(gs ...Greeter) []string {
	out := make([]string, 0, len(gs))
	for _, g := range gs {
		out = append(out, g.Greet())
	}
	return out
}
