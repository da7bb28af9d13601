package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MarketAttributes are the structured facts extracted from a market title.
type MarketAttributes struct {
	City         string
	Date         string // MM-DD, or YYYY-MM-DD when the title carries a year
	ThresholdF   float64
	UpperF       float64 // BETWEEN only
	Direction    Direction
	HasThreshold bool
}

// ParsedQuestion is the result of ParseQuestion. Unparseable titles carry a
// reason and no attributes.
type ParsedQuestion struct {
	MarketAttributes
	Unparseable bool
	Reason      string
}

// CityDateKey returns the diversification key city|date. ok is false when
// the title has no city or no date.
func (p ParsedQuestion) CityDateKey() (string, bool) {
	if p.Unparseable || p.Date == "" {
		return "", false
	}
	return p.City + "|" + p.Date, true
}

type cityPattern struct {
	re   *regexp.Regexp
	name string
}

// Longer aliases first so "new york city" wins over "new york".
var cityPatterns = buildCityPatterns([][2]string{
	{"new york city", "New York"},
	{"new york", "New York"},
	{"nyc", "New York"},
	{"manhattan", "New York"},
	{"los angeles", "Los Angeles"},
	{"la", "Los Angeles"},
	{"san francisco", "San Francisco"},
	{"buenos aires", "Buenos Aires"},
	{"london", "London"},
	{"seoul", "Seoul"},
	{"chicago", "Chicago"},
	{"miami", "Miami"},
	{"denver", "Denver"},
	{"phoenix", "Phoenix"},
	{"seattle", "Seattle"},
	{"boston", "Boston"},
	{"tokyo", "Tokyo"},
	{"paris", "Paris"},
	{"berlin", "Berlin"},
	{"sydney", "Sydney"},
	{"toronto", "Toronto"},
	{"houston", "Houston"},
	{"atlanta", "Atlanta"},
	{"dallas", "Dallas"},
	{"washington", "Washington"},
	{"philadelphia", "Philadelphia"},
	{"ankara", "Ankara"},
})

func buildCityPatterns(pairs [][2]string) []cityPattern {
	out := make([]cityPattern, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, cityPattern{
			re:   regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(p[0]) + `\b`),
			name: p[1],
		})
	}
	return out
}

var (
	reBetween = regexp.MustCompile(`(?i)between\s*(-?\d+(?:\.\d+)?)\s*(?:-|and|to)\s*(-?\d+(?:\.\d+)?)\s*°?\s*([FC])\b`)
	reAbove   = regexp.MustCompile(`(?i)(?:above|exceed|exceeds|over|>=|≥|at least)\s*(-?\d+(?:\.\d+)?)\s*°?\s*([FC])\b`)
	reBelow   = regexp.MustCompile(`(?i)(?:below|under|<=|≤|less than)\s*(-?\d+(?:\.\d+)?)\s*°?\s*([FC])\b`)
	reOrMore  = regexp.MustCompile(`(?i)(-?\d+(?:\.\d+)?)\s*°?\s*([FC])\s+or\s+(higher|above|more|below|lower|less)\b`)
	reBare    = regexp.MustCompile(`(?i)(-?\d+(?:\.\d+)?)\s*°\s*([FC])\b`)

	reISODate   = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	reMonthDate = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s+(\d{4}))?\b`)
)

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

// ParseQuestion extracts city, date and temperature threshold from a
// free-form market title. A title without a recognizable city is
// Unparseable.
func ParseQuestion(q string) ParsedQuestion {
	q = strings.TrimSpace(q)
	if q == "" {
		return ParsedQuestion{Unparseable: true, Reason: "empty question"}
	}

	city := parseCity(q)
	if city == "" {
		return ParsedQuestion{Unparseable: true, Reason: "no known city"}
	}

	out := ParsedQuestion{MarketAttributes: MarketAttributes{City: city, Date: parseDate(q)}}
	parseThreshold(q, &out.MarketAttributes)
	return out
}

func parseCity(q string) string {
	for _, c := range cityPatterns {
		if c.re.MatchString(q) {
			return c.name
		}
	}
	return ""
}

func parseDate(q string) string {
	if m := reISODate.FindStringSubmatch(q); m != nil {
		return fmt.Sprintf("%s-%s-%s", m[1], m[2], m[3])
	}
	m := reMonthDate.FindStringSubmatch(q)
	if m == nil {
		return ""
	}
	month := months[strings.ToLower(m[1])]
	day, err := strconv.Atoi(m[2])
	if err != nil || day < 1 || day > 31 {
		return ""
	}
	if m[3] != "" {
		return fmt.Sprintf("%s-%02d-%02d", m[3], int(month), day)
	}
	return fmt.Sprintf("%02d-%02d", int(month), day)
}

func parseThreshold(q string, a *MarketAttributes) {
	if m := reBetween.FindStringSubmatch(q); m != nil {
		a.ThresholdF = toFahrenheit(m[1], m[3])
		a.UpperF = toFahrenheit(m[2], m[3])
		a.Direction = DirectionBetween
		a.HasThreshold = true
		return
	}
	if m := reOrMore.FindStringSubmatch(q); m != nil {
		a.ThresholdF = toFahrenheit(m[1], m[2])
		a.Direction = DirectionAbove
		switch strings.ToLower(m[3]) {
		case "below", "lower", "less":
			a.Direction = DirectionBelow
		}
		a.HasThreshold = true
		return
	}
	if m := reAbove.FindStringSubmatch(q); m != nil {
		a.ThresholdF = toFahrenheit(m[1], m[2])
		a.Direction = DirectionAbove
		a.HasThreshold = true
		return
	}
	if m := reBelow.FindStringSubmatch(q); m != nil {
		a.ThresholdF = toFahrenheit(m[1], m[2])
		a.Direction = DirectionBelow
		a.HasThreshold = true
		return
	}
	if m := reBare.FindStringSubmatch(q); m != nil {
		a.ThresholdF = toFahrenheit(m[1], m[2])
		a.Direction = DirectionAbove
		a.HasThreshold = true
	}
}

func toFahrenheit(v, unit string) float64 {
	f, _ := strconv.ParseFloat(v, 64)
	if strings.EqualFold(unit, "C") {
		return f*9/5 + 32
	}
	return f
}
