package core

import "sort"

// Registry is the canonical company roster, keyed by company code.
// It is immutable after construction and safe for concurrent reads.
type Registry struct {
	byCode     map[string]Company
	byIndustry map[string][]Company
}

// NewRegistry builds a registry from the given companies.
// Later entries with a duplicate code replace earlier ones.
func NewRegistry(companies []Company) *Registry {
	r := &Registry{
		byCode:     make(map[string]Company, len(companies)),
		byIndustry: make(map[string][]Company),
	}
	for _, c := range companies {
		r.byCode[c.Code] = c
	}
	for _, c := range r.byCode {
		r.byIndustry[c.Industry] = append(r.byIndustry[c.Industry], c)
	}
	for industry := range r.byIndustry {
		sort.Slice(r.byIndustry[industry], func(i, j int) bool {
			return r.byIndustry[industry][i].Code < r.byIndustry[industry][j].Code
		})
	}
	return r
}

// DefaultRoster returns the built-in set of tracked companies.
// Codes are KRX listing codes.
func DefaultRoster() []Company {
	return []Company{
		{Code: "005930", Name: "Samsung Electronics", Industry: "semiconductor"},
		{Code: "000660", Name: "SK Hynix", Industry: "semiconductor"},
		{Code: "035420", Name: "NAVER", Industry: "internet"},
		{Code: "035720", Name: "Kakao", Industry: "internet"},
		{Code: "373220", Name: "LG Energy Solution", Industry: "battery"},
	}
}

// Resolve looks up a company by code.
func (r *Registry) Resolve(code string) (Company, bool) {
	c, ok := r.byCode[code]
	return c, ok
}

// ByIndustry returns the companies in an industry, ordered by code.
// Returns nil for an unknown industry.
func (r *Registry) ByIndustry(industry string) []Company {
	return r.byIndustry[industry]
}

// Industries returns all known industries in sorted order.
func (r *Registry) Industries() []string {
	industries := make([]string, 0, len(r.byIndustry))
	for ind := range r.byIndustry {
		industries = append(industries, ind)
	}
	sort.Strings(industries)
	return industries
}

// Companies returns all companies ordered by code.
func (r *Registry) Companies() []Company {
	companies := make([]Company, 0, len(r.byCode))
	for _, c := range r.byCode {
		companies = append(companies, c)
	}
	sort.Slice(companies, func(i, j int) bool { return companies[i].Code < companies[j].Code })
	return companies
}

// Len returns the number of registered companies.
func (r *Registry) Len() int {
	return len(r.byCode)
}
