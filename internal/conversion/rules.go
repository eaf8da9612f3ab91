package conversion

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"pricetool/internal/model"
)

// ErrInvalidRule flags a rule table that cannot be used for conversion.
var ErrInvalidRule = errors.New("conversion: invalid currency rule")

// RuleBook indexes currency rules by currency pair.
type RuleBook struct {
	rules map[string]model.CurrencyRule
}

// NewRuleBook indexes rules, rejecting duplicate pairs and converting rules
// without a positive conversion factor.
func NewRuleBook(rules []model.CurrencyRule) (*RuleBook, error) {
	book := &RuleBook{rules: make(map[string]model.CurrencyRule, len(rules))}
	for i, rule := range rules {
		if _, dup := book.rules[rule.Currency]; dup {
			return nil, fmt.Errorf("%w: duplicate currency %q at row %d", ErrInvalidRule, rule.Currency, i)
		}
		if rule.ConvertPrice && !rule.ConversionFactor.IsPositive() {
			return nil, fmt.Errorf("%w: currency %q converts with factor %s", ErrInvalidRule, rule.Currency, rule.ConversionFactor)
		}
		book.rules[rule.Currency] = rule
	}
	return book, nil
}

// Lookup returns the rule for a currency pair.
func (b *RuleBook) Lookup(currency string) (model.CurrencyRule, bool) {
	rule, ok := b.rules[currency]
	return rule, ok
}

// Len reports the number of rules.
func (b *RuleBook) Len() int {
	return len(b.rules)
}

// SpotIndex holds spot rates per currency pair in ascending time order.
type SpotIndex struct {
	byPair map[string][]model.SpotRate
}

// NewSpotIndex groups rates by pair and sorts each group by time. Input order
// is kept among equal timestamps, so the last duplicate in the file wins.
func NewSpotIndex(rates []model.SpotRate) *SpotIndex {
	idx := &SpotIndex{byPair: make(map[string][]model.SpotRate)}
	for _, r := range rates {
		idx.byPair[r.Currency] = append(idx.byPair[r.Currency], r)
	}
	for _, group := range idx.byPair {
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Timestamp.Before(group[j].Timestamp)
		})
	}
	return idx
}

// Lookup finds the latest rate for currency at or before ts that is no older
// than tolerance. A zero tolerance requires an exact timestamp match.
func (s *SpotIndex) Lookup(currency string, ts time.Time, tolerance time.Duration) (model.SpotRate, bool) {
	group := s.byPair[currency]
	i := sort.Search(len(group), func(i int) bool {
		return group[i].Timestamp.After(ts)
	})
	if i == 0 {
		return model.SpotRate{}, false
	}
	candidate := group[i-1]
	if ts.Sub(candidate.Timestamp) > tolerance {
		return model.SpotRate{}, false
	}
	return candidate, true
}
