package domain

// Plan represents a subscription plan. Prices are in TZS.
type Plan struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	ActualPrice     int64    `json:"actualPrice"`
	DiscountedPrice int64    `json:"discountedPrice"`
	DurationMonths  int      `json:"durationMonths"`
	Features        []string `json:"features"`
	Popular         bool     `json:"popular"`
}

// AvailablePlans returns the fixed plan catalog. Plans are immutable once
// fetched; callers must not modify the returned values.
func AvailablePlans() []Plan {
	return []Plan{
		{
			ID:              "monthly",
			Title:           "Monthly",
			ActualPrice:     15000,
			DiscountedPrice: 10000,
			DurationMonths:  1,
			Features: []string{
				"Unlimited quizzes and past papers",
				"All subjects for your level",
				"Progress tracking",
			},
		},
		{
			ID:              "quarterly",
			Title:           "Quarterly",
			ActualPrice:     45000,
			DiscountedPrice: 25000,
			DurationMonths:  3,
			Features: []string{
				"Everything in Monthly",
				"Downloadable notes",
				"Priority forum answers",
			},
			Popular: true,
		},
		{
			ID:              "yearly",
			Title:           "Yearly",
			ActualPrice:     120000,
			DiscountedPrice: 80000,
			DurationMonths:  12,
			Features: []string{
				"Everything in Quarterly",
				"Mock exam series",
				"Best value for a full school year",
			},
		},
	}
}

// FindPlan returns the plan for a given ID.
func FindPlan(id string) (Plan, bool) {
	for _, p := range AvailablePlans() {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}
