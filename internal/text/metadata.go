package text

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

const (
	maxKeywords = 5
	maxTitle    = 120
)

var headerRe = regexp.MustCompile(`(?m)^#{1,6}\s+(.+?)\s*#*\s*$`)

// Title is the first markdown heading, else the first non-empty line.
func Title(content string) string {
	if m := headerRe.FindStringSubmatch(content); m != nil {
		return truncateRunes(strings.TrimSpace(m[1]), maxTitle)
	}
	for _, line := range strings.Split(content, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return truncateRunes(line, maxTitle)
		}
	}
	return ""
}

// Keywords returns up to n content terms by frequency; ties sort alphabetically.
func Keywords(content string, n int) []string {
	counts := make(map[string]int)
	words := strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	for _, w := range words {
		w = strings.Trim(w, "-")
		if len([]rune(w)) < 3 || isNumeric(w) {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		counts[w]++
	}
	if len(counts) == 0 {
		return nil
	}

	terms := make([]string, 0, len(counts))
	for w := range counts {
		terms = append(terms, w)
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

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}

var stopwords = func() map[string]struct{} {
	list := strings.Fields(`the and for are but not you all any can had her was one our out has have
		him his how its may new now old see two way who did get let put say she too use with this that
		from they will would there their what about which when make like time just know take into year
		your some could them than then look only come over think also back after work first well even
		want because these give most were been being such very more other each much must should where
		while shall upon does done here those both between through during before under again further
		once same nor own off few why yet per via`)
	m := make(map[string]struct{}, len(list))
	for _, w := range list {
		m[w] = struct{}{}
	}
	return m
}()
