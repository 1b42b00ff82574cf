package bakery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFriendshipIsMutual(t *testing.T) {
	anna := NewHuman("anna", "Anna")
	ben := NewHuman("ben", "Ben")
	cleo := NewHuman("cleo", "Cleo")

	require.NoError(t, anna.Befriend(ben))
	require.NoError(t, cleo.Befriend(anna))
	require.NoError(t, anna.Befriend(ben))

	assert.Equal(t, []string{"ben", "cleo"}, anna.Friends())
	assert.Equal(t, []string{"anna"}, ben.Friends())

	anna.Unfriend(ben)
	assert.Equal(t, []string{"cleo"}, anna.Friends())
	assert.Empty(t, ben.Friends())

	assert.ErrorIs(t, anna.Befriend(anna), ErrSelfFriendship)
	assert.ErrorIs(t, anna.Befriend(nil), ErrSelfFriendship)
}

func TestFriendshipAcrossRoles(t *testing.T) {
	b := NewBaker("b1", "Bea", 250)
	c := NewCustomer("c1", "Carl", 1000)

	require.NoError(t, c.Befriend(&b.Human))
	assert.True(t, b.IsFriend("c1"))
	assert.Equal(t, 450, b.Quote(c, 2))
}

func TestBakeAndSleep(t *testing.T) {
	b := NewBaker("b1", "Bea", 250)

	require.NoError(t, b.Bake(12))
	assert.Equal(t, 12, b.Stock)
	assert.Equal(t, MaxEnergy-60, b.Energy)

	err := b.Bake(9)
	assert.ErrorIs(t, err, ErrTooTired)
	assert.Equal(t, 12, b.Stock)
	assert.Equal(t, 40, b.Energy)

	assert.Equal(t, 70, b.Sleep(3))
	assert.Equal(t, MaxEnergy, b.Sleep(8))
	require.NoError(t, b.Bake(9))
}

func TestSell(t *testing.T) {
	b := NewBaker("b1", "Bea", 250)
	c := NewCustomer("c1", "Carl", 600)
	require.NoError(t, b.Bake(3))

	_, err := c.Buy(b, 4)
	assert.ErrorIs(t, err, ErrOutOfStock)

	_, err = c.Buy(b, 3)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, 3, b.Stock)
	assert.Equal(t, 600, c.Wallet)

	paid, err := c.Buy(b, 2)
	require.NoError(t, err)
	assert.Equal(t, 500, paid)
	assert.Equal(t, 1, b.Stock)
	assert.Equal(t, 500, b.Till)
	assert.Equal(t, 100, c.Wallet)
	assert.Equal(t, 2, c.Cookies)
}

func TestEat(t *testing.T) {
	c := NewCustomer("c1", "Carl", 0)
	c.Energy = 50
	c.Cookies = 2

	assert.ErrorIs(t, c.Eat(3), ErrNoCookies)
	require.NoError(t, c.Eat(1))
	assert.Equal(t, 65, c.Energy)
	require.NoError(t, c.Eat(1))
	assert.Equal(t, 80, c.Energy)
	assert.Zero(t, c.Cookies)
}

func TestGreetAll(t *testing.T) {
	got := GreetAll(
		NewHuman("h", "Hal"),
		NewBaker("b", "Bea", 250),
		NewCustomer("c", "Carl", 0),
	)
	assert.Equal(t, []string{
		"Hi, I'm Hal.",
		"Hi, I'm Bea, cookies are 2.50 each.",
		"Hello, Carl here, looking for cookies.",
	}, got)
}

func TestFormatCents(t *testing.T) {
	assert.Equal(t, "0.05", FormatCents(5))
	assert.Equal(t, "12.30", FormatCents(1230))
	assert.Equal(t, "-1.01", FormatCents(-101))
}
