package catalog

import (
	"strings"

	"otp-agent/internal/model"
	"otp-agent/internal/util"
)

// FilterCountries keeps countries whose title or code contains term.
func FilterCountries(countries []model.Country, term string) []model.Country {
	term = util.NormalizeTerm(term)
	if term == "" {
		return countries
	}
	out := make([]model.Country, 0, len(countries))
	for _, c := range countries {
		if strings.Contains(strings.ToLower(c.Title), term) || strings.Contains(strings.ToLower(c.Code), term) {
			out = append(out, c)
		}
	}
	return out
}

// FilterServices keeps services whose name or display price contains term.
func FilterServices(services []model.Service, term string) []model.Service {
	term = util.NormalizeTerm(term)
	if term == "" {
		return services
	}
	out := make([]model.Service, 0, len(services))
	for _, s := range services {
		if strings.Contains(strings.ToLower(s.Name), term) || strings.Contains(strings.ToLower(s.DisplayPrice), term) {
			out = append(out, s)
		}
	}
	return out
}
