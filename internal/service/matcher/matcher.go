// Package matcher ranks a tenant's products against free text with a
// deterministic lexical score.
package matcher

import (
	"sort"
	"strings"
	"unicode"

	"shopchat/internal/model"
)

const (
	// Threshold minimum score for a confident single-product match
	Threshold = 0.7

	// DefaultTopN number of candidates offered when no match is confident
	DefaultTopN = 3

	skuScore     = 0.95
	nameScore    = 0.8
	tokenBase    = 0.3
	tokenStep    = 0.1
	tokenCap     = 0.8
	weakSKUScore = 0.5
	minTokenLen  = 3
	skuAffixLen  = 3
)

// Match product with its score
type Match struct {
	Product *model.Product
	Score   float64
}

// Score scores text against a product name and SKU in [0, 1]
func Score(text, name, sku string) float64 {
	text = strings.ToLower(text)
	name = strings.ToLower(strings.TrimSpace(name))
	sku = strings.ToLower(strings.TrimSpace(sku))

	var score float64
	switch {
	case sku != "" && strings.Contains(text, sku):
		score = skuScore
	case name != "" && strings.Contains(text, name):
		score = nameScore
	default:
		hits := 0
		for _, token := range tokenize(name) {
			if strings.Contains(text, token) {
				hits++
			}
		}
		if hits > 0 {
			score = minFloat(tokenCap, tokenBase+tokenStep*float64(hits))
		}
	}

	if len(sku) >= skuAffixLen {
		if strings.Contains(text, sku[:skuAffixLen]) || strings.Contains(text, sku[len(sku)-skuAffixLen:]) {
			score = maxFloat(score, weakSKUScore)
		}
	}
	return score
}

// BestMatch returns the highest scoring product, the first one in catalog order on ties.
// The product is nil when nothing scores above zero.
func BestMatch(text string, products []*model.Product) (*model.Product, float64) {
	var best *model.Product
	var bestScore float64
	for _, p := range products {
		if s := Score(text, p.Name, p.SKUCode()); s > bestScore {
			best, bestScore = p, s
		}
	}
	return best, bestScore
}

// TopN returns up to n products ordered by descending score, catalog order on ties
func TopN(text string, products []*model.Product, n int) []Match {
	matches := Rank(text, products)
	if n >= 0 && len(matches) > n {
		matches = matches[:n]
	}
	return matches
}

// Rank scores every product, ordered by descending score, catalog order on ties
func Rank(text string, products []*model.Product) []Match {
	matches := make([]Match, 0, len(products))
	for _, p := range products {
		matches = append(matches, Match{Product: p, Score: Score(text, p.Name, p.SKUCode())})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches
}

func tokenize(name string) []string {
	fields := strings.FieldsFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if len(f) >= minTokenLen {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
