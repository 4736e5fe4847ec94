package report

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"

	"github.com/ArionMiles/budgetbrief/pkg/api"
)

// Category is a fixed spending bucket.
type Category int

const (
	CategoryOther Category = iota
	CategoryFoodDining
	CategoryGroceries
	CategoryTransport
	CategoryShopping
	CategoryEntertainment
	CategoryBillsUtilities
	CategoryHealth
)

var categoryNames = map[Category]string{
	CategoryOther:          "Other",
	CategoryFoodDining:     "Food & Dining",
	CategoryGroceries:      "Groceries",
	CategoryTransport:      "Transport",
	CategoryShopping:       "Shopping",
	CategoryEntertainment:  "Entertainment",
	CategoryBillsUtilities: "Bills & Utilities",
	CategoryHealth:         "Health",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Category(%d)", int(c))
}

// MarshalText encodes the display name.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText accepts a display name.
func (c *Category) UnmarshalText(b []byte) error {
	for k, name := range categoryNames {
		if name == string(b) {
			*c = k
			return nil
		}
	}
	return fmt.Errorf("unknown category %q", b)
}

// categoryRule maps keywords to a category. Keywords are lower case and must
// start and end on a word boundary in the folded text; a trailing "s" is
// tolerated so "sainsbury" still matches "SAINSBURYS".
type categoryRule struct {
	category Category
	keywords []string
}

// categoryRules are evaluated top to bottom; the first keyword hit wins.
// Groceries comes before dining so supermarket cafes land as groceries.
var categoryRules = []categoryRule{
	{CategoryGroceries, []string{
		"tesco", "sainsbury", "asda", "morrisons", "waitrose", "aldi", "lidl",
		"co-op", "coop", "ocado", "m&s food", "iceland", "grocer", "grocery", "supermarket",
	}},
	{CategoryFoodDining, []string{
		"restaurant", "cafe", "coffee", "pret", "starbucks", "costa", "greggs",
		"mcdonald", "kfc", "nando", "pizza", "burger", "deliveroo", "just eat",
		"uber eats", "wagamama", "takeaway", "bakery",
	}},
	{CategoryTransport, []string{
		"tfl", "transport for london", "uber", "bolt", "trainline", "national rail",
		"lner", "gwr", "avanti", "railway", "stagecoach", "taxi", "parking", "petrol",
		"shell", "bp", "esso", "texaco", "ryanair", "easyjet", "british airways",
	}},
	{CategoryBillsUtilities, []string{
		"octopus", "british gas", "edf", "e.on", "thames water", "water",
		"council tax", "vodafone", "o2", "virgin media", "bt group",
		"sky digital", "insurance", "rent payment", "mortgage", "tv licence", "broadband",
	}},
	{CategoryEntertainment, []string{
		"netflix", "spotify", "disney", "prime video", "cinema", "odeon", "vue",
		"cineworld", "steam", "playstation", "xbox", "nintendo", "ticketmaster",
		"theatre", "youtube", "apple music",
	}},
	{CategoryHealth, []string{
		"pharmacy", "boots", "superdrug", "dentist", "dental", "optician",
		"specsavers", "gym", "puregym", "fitness", "nhs", "clinic", "doctor",
	}},
	{CategoryShopping, []string{
		"amazon", "amzn", "ebay", "argos", "john lewis", "next retail", "zara", "h&m",
		"primark", "uniqlo", "ikea", "currys", "apple store", "asos", "etsy",
		"waterstones", "whsmith",
	}},
}

// Categorize matches the merchant and description against the rules.
func Categorize(txn api.Txn) Category {
	// A Caser is stateful, so each call gets its own.
	text := cases.Fold().String(txn.Merchant + " " + txn.Description)
	text = strings.Join(strings.Fields(text), " ")
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if containsWord(text, kw) {
				return rule.category
			}
		}
	}
	return CategoryOther
}

// containsWord reports whether kw occurs in text with a word boundary on both
// sides, allowing one trailing "s" before the right boundary.
func containsWord(text, kw string) bool {
	for offset := 0; ; {
		i := strings.Index(text[offset:], kw)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(kw)
		if !wordBefore(text, start) {
			rest := text[end:]
			if strings.HasPrefix(rest, "s") {
				rest = rest[1:]
			}
			if !wordAfter(rest) {
				return true
			}
		}
		offset = start + 1
	}
}

func wordBefore(text string, i int) bool {
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return isWordRune(r)
}

func wordAfter(rest string) bool {
	r, _ := utf8.DecodeRuneInString(rest)
	return isWordRune(r)
}

func isWordRune(r rune) bool {
	return r != utf8.RuneError && (unicode.IsLetter(r) || unicode.IsDigit(r))
}
