package billing

// Pack is a one-off credit bundle sold through Stripe Checkout.
type Pack struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Credits     int    `json:"credits"`
	AmountCents int64  `json:"amountCents"`
	Currency    string `json:"currency"`
}

var packs = []Pack{
	{ID: "starter", Name: "Starter", Credits: 50, AmountCents: 500, Currency: "usd"},
	{ID: "creator", Name: "Creator", Credits: 150, AmountCents: 1200, Currency: "usd"},
	{ID: "studio", Name: "Studio", Credits: 500, AmountCents: 3500, Currency: "usd"},
}

// Packs lists the packs on sale.
func Packs() []Pack {
	out := make([]Pack, len(packs))
	copy(out, packs)
	return out
}

// FindPack returns the pack with the given id.
func FindPack(id string) (Pack, bool) {
	for _, p := range packs {
		if p.ID == id {
			return p, true
		}
	}
	return Pack{}, false
}
