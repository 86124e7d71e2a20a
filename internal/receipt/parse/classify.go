package parse

import (
	"sort"
	"strings"
)

// ClassificationResult is a keyword-scored category suggestion.
type ClassificationResult struct {
	SuggestedCategory string   `json:"suggested_category"`
	Confidence        float64  `json:"confidence"`
	MatchedKeywords   []string `json:"matched_keywords"`
}

// categoryKeywords maps expense categories to their trigger keywords.
var categoryKeywords = map[string][]string{
	"train":      {"train", "rail", "amtrak", "station", "metro"},
	"flight":     {"flight", "airlines", "airway", "boarding", "airport"},
	"taxi":       {"taxi", "uber", "lyft", "cab", "ride"},
	"hotel":      {"hotel", "inn", "resort", "hostel", "check-in"},
	"meals":      {"restaurant", "meal", "dinner", "lunch", "breakfast", "cafe"},
	"parking":    {"parking", "garage", "meter", "park"},
	"car_rental": {"rental", "rent-a-car", "hertz", "avis", "enterprise"},
	"fuel":       {"fuel", "petrol", "diesel", "gas station", "refuel"},
}

// Classify scores the text against category keyword lists. Ties break on
// category name to keep the result deterministic.
func Classify(text, merchant string) ClassificationResult {
	corpus := strings.ToLower(text + "\n" + merchant)

	scores := map[string]float64{}
	matched := map[string][]string{}
	for category, keywords := range categoryKeywords {
		for _, kw := range keywords {
			if strings.Contains(corpus, kw) {
				scores[category]++
				matched[category] = append(matched[category], kw)
			}
		}
	}

	if len(scores) == 0 {
		return ClassificationResult{
			SuggestedCategory: "other",
			Confidence:        0.35,
			MatchedKeywords:   []string{},
		}
	}

	categories := make([]string, 0, len(scores))
	var total float64
	for category, score := range scores {
		categories = append(categories, category)
		total += score
	}
	sort.Slice(categories, func(i, j int) bool {
		if scores[categories[i]] != scores[categories[j]] {
			return scores[categories[i]] > scores[categories[j]]
		}
		return categories[i] < categories[j]
	})

	best := categories[0]
	confidence := 0.5 + (scores[best]/total)*0.45
	if confidence > 0.95 {
		confidence = 0.95
	}
	return ClassificationResult{
		SuggestedCategory: best,
		Confidence:        round3(confidence),
		MatchedKeywords:   matched[best],
	}
}
