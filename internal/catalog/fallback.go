package catalog

import "otp-agent/internal/model"

// fallbackCountries is offered when the backend list cannot be loaded.
// Russia and USA share id 1 upstream.
var fallbackCountries = []model.Country{
	{ID: "1", Title: "Russia", Code: "RU"},
	{ID: "2", Title: "Ukraine", Code: "UA"},
	{ID: "7", Title: "Kazakhstan", Code: "KZ"},
	{ID: "16", Title: "Philippines", Code: "PH"},
	{ID: "91", Title: "India", Code: "IN"},
	{ID: "44", Title: "United Kingdom", Code: "GB"},
	{ID: "1", Title: "USA", Code: "US"},
}

func FallbackCountries() []model.Country {
	out := make([]model.Country, len(fallbackCountries))
	copy(out, fallbackCountries)
	return out
}
