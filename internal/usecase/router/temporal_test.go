package router

import "testing"

func TestHasTemporalLanguage(t *testing.T) {
	positive := []string{
		"What was revenue in 2024?",
		"Q1 results",
		"sales in the third quarter",
		"policies updated in March",
		"report from 2025-01-15",
		"incidents in the last 3 months",
		"changes this year",
		"what happened two weeks ago",
		"tickets since the migration",
		"between launch and now",
		"recent hiring plans",
	}
	for _, s := range positive {
		if !hasTemporalLanguage(s) {
			t.Errorf("expected temporal match for %q", s)
		}
	}

	negative := []string{
		"What is our vacation policy?",
		"Who owns the billing service?",
		"How many customers are in EMEA",
		"explain the marching band budget",
	}
	for _, s := range negative {
		if hasTemporalLanguage(s) {
			t.Errorf("unexpected temporal match for %q", s)
		}
	}
}
