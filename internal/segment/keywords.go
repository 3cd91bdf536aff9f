package segment

import (
	"sort"
	"strings"
	"unicode"
)

var stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		a about above after again all also an and any are as at be because been
		before being below between both but by can could did do does doing down
		during each few for from further had has have having here how if in into
		is it its itself just more most no nor not now of off on once only or
		other our out over own same should so some such than that the their them
		then there these they this those through to too under until up use used
		using very was we were what when where which while who why will with
		would you your yours`) {
		stopwords[w] = struct{}{}
	}
}

// Keywords returns up to n of the most frequent non-stopword terms in text,
// most frequent first and alphabetical among equals. Terms are lowercase,
// at least three characters long and not purely numeric.
func Keywords(text string, n int) []string {
	if n <= 0 {
		return nil
	}
	counts := make(map[string]int)
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), isSeparator) {
		tok = strings.Trim(tok, "-_")
		if len(tok) < 3 || isNumeric(tok) {
			continue
		}
		if _, stop := stopwords[tok]; stop {
			continue
		}
		counts[tok]++
	}
	if len(counts) == 0 {
		return nil
	}

	terms := make([]string, 0, len(counts))
	for t := range counts {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool {
		if counts[terms[i]] != counts[terms[j]] {
			return counts[terms[i]] > counts[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > n {
		terms = terms[:n]
	}
	return terms
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-'
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
