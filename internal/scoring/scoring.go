package scoring

import (
	"strings"

	"portal-api/internal/model"
)

// Source tags carried by inbound leads.
const (
	SourceWebsite = "website"
	SourceBooking = "booking"
)

// ScoreResult is the outcome of the lead heuristic.
type ScoreResult struct {
	Score int    `json:"score"`
	Band  string `json:"band"`
}

var urgencyKeywords = []string{"urgent", "asap", "breach", "incident", "attack", "ransomware", "compromised"}

var complianceKeywords = []string{"compliance", "soc", "soc 2", "iso 27001", "audit", "pci", "hipaa", "ndpr"}

// Score rates an inbound demo/booking request. It is a pure function:
// identical inputs always produce identical results.
//
// Base 10; company-size brackets add 10/20/30; urgency or breach language
// adds 20; compliance/SOC language adds 10; booking-sourced leads add 15.
// Bands: >=50 hot, >=30 warm, else cold.
func Score(companySize, message, source string) ScoreResult {
	score := 10

	switch companySize {
	case "26-100":
		score += 10
	case "101-500":
		score += 20
	case "500+":
		score += 30
	}

	lower := strings.ToLower(message)
	if containsAny(lower, urgencyKeywords) {
		score += 20
	}
	if containsAny(lower, complianceKeywords) {
		score += 10
	}

	if source == SourceBooking {
		score += 15
	}

	return ScoreResult{Score: score, Band: bandFor(score)}
}

func bandFor(score int) string {
	switch {
	case score >= 50:
		return model.BandHot
	case score >= 30:
		return model.BandWarm
	default:
		return model.BandCold
	}
}

func containsAny(haystack string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}
