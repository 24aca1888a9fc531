package api

import (
	"fmt"
	"math"
)

// num abbreviates a monetary amount: 1234567 becomes "1m".
func num(x float64) string {
	if x < 0 {
		return "-" + num(-x)
	}
	switch {
	case x < 1e3:
		return fmt.Sprintf("%.2f", x)
	case x < 1e6:
		return fmt.Sprintf("%.0fk", x/1e3)
	case x < 1e9:
		return fmt.Sprintf("%.0fm", x/1e6)
	case x < 1e10:
		return fmt.Sprintf("%.2fbn", x/1e9)
	case x < 1e12:
		return fmt.Sprintf("%.1fbn", x/1e9)
	default:
		return fmt.Sprintf("%.2ftr", x/1e12)
	}
}

// money formats an amount with its currency, sign first.
func money(currency string, x float64) string {
	sign := ""
	if x < 0 {
		sign = "-"
	}
	return sign + currency + num(math.Abs(x))
}

// pctChange is the relative change from old to new, zero when old is zero.
func pctChange(old, new float64) float64 {
	if old == 0 {
		return 0
	}
	return (new - old) / old
}

// round rounds x to the given number of decimal places.
func round(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}

var (
	green = [3]float64{0, 176, 80}
	grey  = [3]float64{97, 97, 97}
	white = [3]float64{255, 255, 255}
)

// colour maps a provision's signed rank to a chart colour. Positive ranks
// shade green and negative ranks grey, darker the further from zero. Rank
// zero is always the base grey.
func colour(rank int, ranks []int) string {
	if rank == 0 {
		return rgb(grey)
	}
	extreme := 0
	base := grey
	for _, r := range ranks {
		if rank > 0 && r > extreme {
			extreme = r
		}
		if rank < 0 && -r > extreme {
			extreme = -r
		}
	}
	if rank > 0 {
		base = green
	}
	magnitude := rank
	if magnitude < 0 {
		magnitude = -magnitude
	}
	intensity := 0.9 * float64(magnitude+1) / float64(extreme+1)

	var c [3]float64
	for i := range c {
		c[i] = white[i] + (base[i]-white[i])*intensity
	}
	return rgb(c)
}

func rgb(c [3]float64) string {
	return fmt.Sprintf("rgb(%d, %d, %d)", int(math.Round(c[0])), int(math.Round(c[1])), int(math.Round(c[2])))
}
