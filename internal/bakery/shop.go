package bakery

import "fmt"

// BakeCost is the energy a baker spends per cookie.
const BakeCost = 5

// EatGain is the energy a cookie restores.
const EatGain = 15

// Baker sells cookies from stock. Prices and money are in cents.
type Baker struct {
	Human
	Stock int
	Price int
	Till  int
}

// NewBaker returns a rested baker with an empty shelf.
func NewBaker(id, name string, price int) *Baker {
	return &Baker{Human: *NewHuman(id, name), Price: price}
}

// Greet introduces the baker and the price.
func (b *Baker) Greet() string {
	return fmt.Sprintf("Hi, I'm %s, cookies are %s each.", b.Name, FormatCents(b.Price))
}

// Bake adds n cookies to stock. Nothing is baked when energy runs short.
func (b *Baker) Bake(n int) error {
	if n <= 0 {
		return nil
	}
	if err := b.spend(n * BakeCost); err != nil {
		return fmt.Errorf("bake %d: %w", n, err)
	}
	b.Stock += n
	return nil
}

// Sell hands n cookies to c and takes payment. Friends get 10% off.
func (b *Baker) Sell(c *Customer, n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	if b.Stock < n {
		return 0, fmt.Errorf("%w: %s has %d cookies, %d ordered", ErrOutOfStock, b.Name, b.Stock, n)
	}

	total := b.Quote(c, n)
	if c.Wallet < total {
		return 0, fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, c.Name, FormatCents(c.Wallet), FormatCents(total))
	}

	b.Stock -= n
	b.Till += total
	c.Wallet -= total
	c.Cookies += n
	return total, nil
}

// Quote returns the price of n cookies for c.
func (b *Baker) Quote(c *Customer, n int) int {
	total := b.Price * n
	if b.IsFriend(c.ID) {
		total -= total / 10
	}
	return total
}

// Customer buys and eats cookies.
type Customer struct {
	Human
	Wallet  int
	Cookies int
}

// NewCustomer returns a rested customer with wallet cents.
func NewCustomer(id, name string, wallet int) *Customer {
	return &Customer{Human: *NewHuman(id, name), Wallet: wallet}
}

// Greet introduces the customer.
func (c *Customer) Greet() string {
	return fmt.Sprintf("Hello, %s here, looking for cookies.", c.Name)
}

// Buy orders n cookies from b.
func (c *Customer) Buy(b *Baker, n int) (int, error) {
	return b.Sell(c, n)
}

// Eat consumes n cookies and restores energy.
func (c *Customer) Eat(n int) error {
	if n <= 0 {
		return nil
	}
	if c.Cookies < n {
		return fmt.Errorf("%w: %s has %d, wants %d", ErrNoCookies, c.Name, c.Cookies, n)
	}
	c.Cookies -= n
	c.gain(n * EatGain)
	return nil
}

// FormatCents renders an amount like 2.50.
func FormatCents(v int) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}
