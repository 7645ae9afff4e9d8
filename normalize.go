package main

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// titlePunctuation is replaced by spaces before stopword removal. The curly
// quotes are deliberate: scraped retailer titles carry them.
const titlePunctuation = "!”#$%&’()*+,-./:;<=>?@[\\]^_`{|}~"

var punctuationReplacer = func() *strings.Replacer {
	var oldnew []string
	for _, r := range titlePunctuation {
		oldnew = append(oldnew, string(r), " ")
	}
	return strings.NewReplacer(oldnew...)
}()

// Normalize cleans a raw product title: punctuation becomes whitespace, the
// text is lowercased, English stopwords and the literal "null" are dropped
// and runs of whitespace collapse to single spaces.
//
// Lowercasing happens before the stopword filter so that
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(phrase string) string {
	lower := cases.Lower(language.English).String(punctuationReplacer.Replace(phrase))
	words := strings.Fields(lower)
	kept := words[:0]
	for _, w := range words {
		if _, stop := stopwords[w]; stop {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

// stopwords is the NLTK English list plus "null".
var stopwords = func() map[string]struct{} {
	list := []string{
		"i", "me", "my", "myself", "we", "our", "ours", "ourselves", "you",
		"you're", "you've", "you'll", "you'd", "your", "yours", "yourself",
		"yourselves", "he", "him", "his", "himself", "she", "she's", "her",
		"hers", "herself", "it", "it's", "its", "itself", "they", "them",
		"their", "theirs", "themselves", "what", "which", "who", "whom", "this",
		"that", "that'll", "these", "those", "am", "is", "are", "was", "were",
		"be", "been", "being", "have", "has", "had", "having", "do", "does",
		"did", "doing", "a", "an", "the", "and", "but", "if", "or", "because",
		"as", "until", "while", "of", "at", "by", "for", "with", "about",
		"against", "between", "into", "through", "during", "before", "after",
		"above", "below", "to", "from", "up", "down", "in", "out", "on", "off",
		"over", "under", "again", "further", "then", "once", "here", "there",
		"when", "where", "why", "how", "all", "any", "both", "each", "few",
		"more", "most", "other", "some", "such", "no", "nor", "not", "only",
		"own", "same", "so", "than", "too", "very", "s", "t", "can", "will",
		"just", "don", "don't", "should", "should've", "now", "d", "ll", "m",
		"o", "re", "ve", "y", "ain", "aren", "aren't", "couldn", "couldn't",
		"didn", "didn't", "doesn", "doesn't", "hadn", "hadn't", "hasn",
		"hasn't", "haven", "haven't", "isn", "isn't", "ma", "mightn",
		"mightn't", "mustn", "mustn't", "needn", "needn't", "shan", "shan't",
		"shouldn", "shouldn't", "wasn", "wasn't", "weren", "weren't", "won",
		"won't", "wouldn", "wouldn't",
		"null",
	}
	m := make(map[string]struct{}, len(list))
	for _, w := range list {
		m[w] = struct{}{}
	}
	return m
}()
