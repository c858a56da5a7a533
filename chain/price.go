package chain

import (
	"math/big"
)

// ArithmeticError reports settlement math that cannot produce a meaningful
// result, such as decay pricing over an empty time window. It is fatal for
// the settlement attempt.
type ArithmeticError struct {
	Op     string
	Reason string
}

func (e *ArithmeticError) Error() string {
	return "arithmetic error in " + e.Op + ": " + e.Reason
}

// MulDiv computes x*y/d with a full-precision intermediate product, so the
// multiplication can never overflow before the division. Truncates toward
// zero. Both decay pricing and fee math go through here.
func MulDiv(x, y, d *big.Int) (*big.Int, error) {
	if d.Sign() == 0 {
		return nil, &ArithmeticError{Op: "muldiv", Reason: "division by zero"}
	}
	z := new(big.Int).Mul(x, y)
	return z.Quo(z, d), nil
}

// CurrentPrice returns the settlement price of an order at the given unix
// time.
//
// Fixed-price orders (EndPrice or Start zero) always price at StartPrice.
// Decaying orders interpolate linearly from StartPrice at Start down to
// EndPrice at Deadline, clamped to StartPrice before the window and to
// EndPrice after it. A decaying order whose Deadline is not after its Start
// fails with ArithmeticError rather than dividing by zero.
//
// Pure function: callable by anyone to preview a price without settling.
func CurrentPrice(order *Order, now int64) (*big.Int, error) {
	if !order.DecayActive() {
		return new(big.Int).Set(order.StartPrice), nil
	}
	if order.Deadline.Cmp(order.Start) <= 0 {
		return nil, &ArithmeticError{Op: "price decay", Reason: "deadline not after start"}
	}

	t := big.NewInt(now)
	if t.Cmp(order.Start) <= 0 {
		return new(big.Int).Set(order.StartPrice), nil
	}
	if t.Cmp(order.Deadline) >= 0 {
		return new(big.Int).Set(order.EndPrice), nil
	}

	spread := new(big.Int).Sub(order.StartPrice, order.EndPrice)
	elapsed := new(big.Int).Sub(t, order.Start)
	window := new(big.Int).Sub(order.Deadline, order.Start)

	drop, err := MulDiv(spread, elapsed, window)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Sub(order.StartPrice, drop), nil
}
