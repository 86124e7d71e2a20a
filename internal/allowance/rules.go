// Package allowance computes German per-diem meal allowances. The rates and
// deduction ratios are versioned so historic calculations keep their legal
// context; persisted rows carry the rule version that produced them.
package allowance

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/travelmate/internal/money"
)

// RuleVersion identifies the policy revision behind every calculation.
const RuleVersion = "DE_TRAVEL_RULES_2026_01"

const (
	domesticFullDayCents    = 2800
	domesticPartialDayCents = 1400

	// Single-day trips earn the partial rate only from eight hours of
	// absence.
	singleDayMinimumHours = 8.0
)

// Rates are the per-diem amounts for one country.
type Rates struct {
	FullDayCents    int64
	PartialDayCents int64
}

// mealDeductions lists provided-meal deductions as percentages of the
// full-day rate, in a fixed evaluation order.
var mealDeductions = []struct {
	Meal    string
	Percent int64
}{
	{"breakfast", 20},
	{"lunch", 40},
	{"dinner", 40},
}

// internationalRates holds example published country rates. Extend from the
// official tables as destinations are added.
var internationalRates = map[string]Rates{
	"AT": {FullDayCents: 4000, PartialDayCents: 2700},
	"CH": {FullDayCents: 6400, PartialDayCents: 4300},
	"FR": {FullDayCents: 5300, PartialDayCents: 3500},
	"NL": {FullDayCents: 4700, PartialDayCents: 3200},
}

var (
	ErrInvalidSpan    = errors.New("invalid_span")
	ErrUnknownCountry = errors.New("unknown_country")
)

// DayMeals flags employer-provided meals for one calendar day.
type DayMeals struct {
	Day       time.Time
	Breakfast bool
	Lunch     bool
	Dinner    bool
}

// Result is one complete calculation with its traceable steps.
type Result struct {
	RuleVersion         string
	Rates               Rates
	GrossAllowanceCents int64
	DeductionCents      int64
	NetAllowanceCents   int64
	Steps               []string
}

// RatesFor resolves the per-diem rates for a country code. DE is domestic;
// other codes must be present in the international table.
func RatesFor(countryCode string) (Rates, error) {
	normalized := normalizeCountry(countryCode)
	if normalized == "DE" {
		return Rates{FullDayCents: domesticFullDayCents, PartialDayCents: domesticPartialDayCents}, nil
	}
	rates, ok := internationalRates[normalized]
	if !ok {
		return Rates{}, fmt.Errorf("%w: %s", ErrUnknownCountry, normalized)
	}
	return rates, nil
}

// Calculate produces the per-diem total for one trip span. Arrival and
// departure days earn the partial rate, days in between the full rate.
// Single-day trips earn the partial rate only from eight hours of absence.
func Calculate(countryCode string, start, end time.Time, meals []DayMeals) (Result, error) {
	if start.IsZero() || end.IsZero() || !end.After(start) {
		return Result{}, ErrInvalidSpan
	}
	rates, err := RatesFor(countryCode)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		RuleVersion: RuleVersion,
		Rates:       rates,
		Steps:       []string{fmt.Sprintf("Applying rule version: %s", RuleVersion)},
	}

	start = start.UTC()
	end = end.UTC()
	gross, daySteps := dayAllowance(rates, start, end)
	result.Steps = append(result.Steps, daySteps...)

	deduction, mealSteps := mealDeductionTotal(rates.FullDayCents, start, end, meals)
	result.Steps = append(result.Steps, mealSteps...)

	result.GrossAllowanceCents = gross
	result.DeductionCents = deduction
	result.NetAllowanceCents = gross - deduction
	result.Steps = append(result.Steps, fmt.Sprintf(
		"Total = %s - %s = %s",
		money.FormatCents(gross), money.FormatCents(deduction), money.FormatCents(result.NetAllowanceCents),
	))
	return result, nil
}

func dayAllowance(rates Rates, start, end time.Time) (int64, []string) {
	startDay := dateOnly(start)
	endDay := dateOnly(end)

	if startDay.Equal(endDay) {
		hours := end.Sub(start).Hours()
		if hours >= singleDayMinimumHours {
			return rates.PartialDayCents, []string{fmt.Sprintf(
				"Single-day trip %s: absence %.2fh >= 8h, partial-day rate %s",
				startDay.Format("2006-01-02"), hours, money.FormatCents(rates.PartialDayCents),
			)}
		}
		return 0, []string{fmt.Sprintf(
			"Single-day trip %s: absence %.2fh < 8h, no per diem",
			startDay.Format("2006-01-02"), hours,
		)}
	}

	var total int64
	var steps []string
	for day := startDay; !day.After(endDay); day = day.AddDate(0, 0, 1) {
		if day.Equal(startDay) || day.Equal(endDay) {
			total += rates.PartialDayCents
			steps = append(steps, fmt.Sprintf("%s: arrival/departure partial-day rate %s", day.Format("2006-01-02"), money.FormatCents(rates.PartialDayCents)))
		} else {
			total += rates.FullDayCents
			steps = append(steps, fmt.Sprintf("%s: full-day rate %s", day.Format("2006-01-02"), money.FormatCents(rates.FullDayCents)))
		}
	}
	return total, steps
}

func mealDeductionTotal(fullDayCents int64, start, end time.Time, meals []DayMeals) (int64, []string) {
	byDay := make(map[time.Time]DayMeals, len(meals))
	for _, entry := range meals {
		byDay[dateOnly(entry.Day)] = entry
	}

	var total int64
	var steps []string
	endDay := dateOnly(end)
	for day := dateOnly(start); !day.After(endDay); day = day.AddDate(0, 0, 1) {
		entry, ok := byDay[day]
		if !ok {
			continue
		}

		var dayTotal int64
		for _, rule := range mealDeductions {
			provided := false
			switch rule.Meal {
			case "breakfast":
				provided = entry.Breakfast
			case "lunch":
				provided = entry.Lunch
			case "dinner":
				provided = entry.Dinner
			}
			if !provided {
				continue
			}
			deduction := roundedShare(fullDayCents, rule.Percent)
			dayTotal += deduction
			steps = append(steps, fmt.Sprintf(
				"%s: %s provided, deduct %d%% of full-day rate = %s",
				day.Format("2006-01-02"), rule.Meal, rule.Percent, money.FormatCents(deduction),
			))
		}
		if dayTotal > 0 {
			total += dayTotal
			steps = append(steps, fmt.Sprintf("%s: meal deduction subtotal %s", day.Format("2006-01-02"), money.FormatCents(dayTotal)))
		}
	}

	if total == 0 {
		steps = append(steps, "No meal deductions")
	}
	return total, steps
}

// roundedShare computes percent of cents with half-up rounding.
func roundedShare(cents, percent int64) int64 {
	return (cents*percent + 50) / 100
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func normalizeCountry(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
