// Package dosage parses free-text dosage expressions and checks parsed doses
// and lab levels against the reference ranges of a catalog record.
package dosage

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/thiskanishk/healthassist-cds/entities"
)

// Routes recognised after the frequency phrase.
const (
	RouteOral       = "oral"
	RouteIV         = "iv"
	RouteIM         = "im"
	RouteSC         = "sc"
	RouteTopical    = "topical"
	RouteInhalation = "inhalation"
	RoutePR         = "pr"
	RouteSL         = "sl"
)

var (
	// <number>[-<number>] <unit>[/<unit>...] <rest>
	dosageRegex = regexp.MustCompile(`(?s)^(\d+(?:\.\d+)?|\.\d+)(?:\s*(?:-|–|to)\s*(\d+(?:\.\d+)?))?\s*([a-zA-Zµ]+(?:/[a-zA-Zµ0-9]+)*)(?:[\s,;.]+(.*))?$`)

	// A trailing per-time segment ("mg/kg/day") belongs to the frequency.
	perTimeSuffixes = map[string]string{
		"day":   "per day",
		"d":     "per day",
		"24h":   "per day",
		"dose":  "per dose",
		"hour":  "per hour",
		"hr":    "per hour",
		"h":     "per hour",
		"min":   "per minute",
		"week":  "per week",
		"wk":    "per week",
		"month": "per month",
	}

	routeRegex = regexp.MustCompile(`(?i)\b(oral|orally|po|by mouth|iv|intravenous|im|intramuscular|sc|subcutaneous|subcut|topical|inhalation|inhaled|pr|rectal|sl|sublingual)\b`)

	routeAliases = map[string]string{
		"oral":          RouteOral,
		"orally":        RouteOral,
		"po":            RouteOral,
		"by mouth":      RouteOral,
		"iv":            RouteIV,
		"intravenous":   RouteIV,
		"im":            RouteIM,
		"intramuscular": RouteIM,
		"sc":            RouteSC,
		"subcutaneous":  RouteSC,
		"subcut":        RouteSC,
		"topical":       RouteTopical,
		"inhalation":    RouteInhalation,
		"inhaled":       RouteInhalation,
		"pr":            RoutePR,
		"rectal":        RoutePR,
		"sl":            RouteSL,
		"sublingual":    RouteSL,
	}
)

// Parse converts text such as "5-10 mg/kg every 6-8 hours oral" into a
// ParsedDosage. It never panics; failures come back with IsValid false and a
// diagnostic message.
func Parse(text string) entities.ParsedDosage {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return invalid("dosage text is empty")
	}

	m := dosageRegex.FindStringSubmatch(trimmed)
	if m == nil {
		return invalid(fmt.Sprintf("unable to parse dosage %q: expected <number> <unit> [frequency] [route]", trimmed))
	}

	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return invalid(fmt.Sprintf("invalid dose value %q", m[1]))
	}

	unit, perTime := splitPerTime(strings.ToLower(m[3]))
	parsed := entities.ParsedDosage{
		Value:   value,
		Unit:    unit,
		IsValid: true,
	}

	if m[2] != "" {
		upper, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return invalid(fmt.Sprintf("invalid dose value %q", m[2]))
		}
		if upper < value {
			return invalid(fmt.Sprintf("dose range %s-%s has its bounds reversed", m[1], m[2]))
		}
		parsed.MaxValue = upper
	}

	parsed.PerWeight = strings.HasSuffix(parsed.Unit, "/kg")
	parsed.Frequency, parsed.Route = splitRoute(m[4])
	if perTime != "" {
		parsed.Frequency = strings.TrimSpace(perTime + " " + parsed.Frequency)
	}

	return parsed
}

// ParseRoute maps a route keyword or alias to its canonical form, or "".
func ParseRoute(s string) string {
	return routeAliases[strings.ToLower(strings.TrimSpace(s))]
}

// UpperValue returns the top of a dose range, or the single value.
func UpperValue(p entities.ParsedDosage) float64 {
	if p.MaxValue > p.Value {
		return p.MaxValue
	}
	return p.Value
}

// splitPerTime moves a trailing "/day"-style segment out of the unit.
func splitPerTime(unit string) (string, string) {
	i := strings.LastIndex(unit, "/")
	if i <= 0 {
		return unit, ""
	}
	if per, ok := perTimeSuffixes[unit[i+1:]]; ok {
		return unit[:i], per
	}
	return unit, ""
}

// splitRoute separates the frequency phrase from the first route keyword.
func splitRoute(rest string) (frequency, route string) {
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return "", ""
	}

	loc := routeRegex.FindStringSubmatchIndex(rest)
	if loc == nil {
		return strings.TrimRight(strings.Join(strings.Fields(rest), " "), ".,;"), ""
	}

	route = routeAliases[strings.ToLower(rest[loc[2]:loc[3]])]
	frequency = strings.TrimSpace(rest[:loc[0]])
	if frequency == "" {
		// "10 mg po bid": the route leads, so the frequency follows it
		frequency = strings.TrimSpace(rest[loc[1]:])
	}
	return strings.TrimRight(strings.Join(strings.Fields(frequency), " "), ".,;"), route
}

func invalid(msg string) entities.ParsedDosage {
	return entities.ParsedDosage{IsValid: false, Message: msg}
}
