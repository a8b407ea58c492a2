package risk

import (
	"fmt"
	"math/big"

	"vaultrisk/core/types"
)

// ExerciseQuote is what a force exerciser owes the position owner, per token.
type ExerciseQuote struct {
	InRange bool
	// Fee is the exercise cost charged on the long legs' moved amounts.
	Fee [2]*big.Int
	// Delta compensates the owner where the chunk is worth more at the
	// oracle tick than at the current tick.
	Delta [2]*big.Int
	Total [2]*big.Int
}

// ExerciseCost prices closing another account's position. Only long legs
// contribute. The in-range rate applies when any long leg straddles the
// current tick, the out-of-range rate otherwise.
func (c *Calculator) ExerciseCost(open OpenPosition, currentTick, oracleTick int32) (ExerciseQuote, error) {
	quote := ExerciseQuote{}
	for t := range quote.Total {
		quote.Fee[t] = new(big.Int)
		quote.Delta[t] = new(big.Int)
		quote.Total[t] = new(big.Int)
	}
	size := open.Balance.Size()
	if size.Sign() == 0 {
		return quote, fmt.Errorf("%w: position %s has no size", types.ErrInvalidPosition, open.Key.Hex())
	}
	var longs []types.Leg
	for _, leg := range open.Position.Legs {
		if !leg.IsLong {
			continue
		}
		longs = append(longs, leg)
		lower, upper := leg.TickRange(c.params.TickSpacing)
		if currentTick >= lower && currentTick < upper {
			quote.InRange = true
		}
	}
	if len(longs) == 0 {
		return quote, fmt.Errorf("%w: position %s has no long legs", types.ErrInvalidPosition, open.Key.Hex())
	}
	rate := c.params.OutOfRangeExerciseCost
	if quote.InRange {
		rate = c.params.ForceExerciseCost
	}
	den := new(big.Int).SetUint64(ExerciseDecimals)

	for _, leg := range longs {
		moved, err := c.moved(leg, size)
		if err != nil {
			return quote, err
		}
		fee := mulDivUp(moved, new(big.Int).SetUint64(rate), den)
		quote.Fee[leg.TokenType].Add(quote.Fee[leg.TokenType], fee)

		c0, c1, err := c.amounts.AmountsAtTick(leg, size, currentTick)
		if err != nil {
			return quote, err
		}
		o0, o1, err := c.amounts.AmountsAtTick(leg, size, oracleTick)
		if err != nil {
			return quote, err
		}
		quote.Delta[0].Add(quote.Delta[0], new(big.Int).Sub(o0, c0))
		quote.Delta[1].Add(quote.Delta[1], new(big.Int).Sub(o1, c1))
	}
	for t := range quote.Total {
		quote.Delta[t] = positive(quote.Delta[t])
		quote.Total[t].Add(quote.Fee[t], quote.Delta[t])
		if err := checked("exercise cost", quote.Total[t]); err != nil {
			return quote, err
		}
	}
	return quote, nil
}
