package credits

import "sort"

// DefaultCost applies to engines missing from the table.
const DefaultCost = 1

// pricing is the credit cost of one successful generation per engine.
var pricing = map[string]int{
	"gemini-image": 1,
	"runware":      1,
	"deapi":        1,
	"gemini-tts":   1,
	"dalle3":       2,
	"seedream":     2,
	"elevenlabs":   2,
	"seedance":     6,
	"klingai":      8,
	"sora":         10,
}

// Price is one row of the public price list.
type Price struct {
	Engine  string `json:"engine"`
	Credits int    `json:"credits"`
}

// Cost returns the credits charged for one successful generation.
func Cost(engine string) int {
	if c, ok := pricing[engine]; ok {
		return c
	}
	return DefaultCost
}

// PriceList returns the pricing table ordered by cost, then engine.
func PriceList() []Price {
	out := make([]Price, 0, len(pricing))
	for engine, c := range pricing {
		out = append(out, Price{Engine: engine, Credits: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Credits != out[j].Credits {
			return out[i].Credits < out[j].Credits
		}
		return out[i].Engine < out[j].Engine
	})
	return out
}
