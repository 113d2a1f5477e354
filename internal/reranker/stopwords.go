package reranker

// stopwords are function words that carry no topic. Questions are full of
// them ("how do I ..."), FAQ entries rarely repeat them.
var stopwords = map[string]bool{
	"a": true, "about": true, "am": true, "an": true, "and": true,
	"any": true, "are": true, "as": true, "at": true, "be": true,
	"been": true, "but": true, "by": true, "can": true, "could": true,
	"did": true, "do": true, "does": true, "for": true, "from": true,
	"get": true, "had": true, "has": true, "have": true, "he": true,
	"her": true, "here": true, "him": true, "his": true, "how": true,
	"i": true, "if": true, "in": true, "into": true, "is": true,
	"it": true, "its": true, "me": true, "my": true, "of": true,
	"on": true, "or": true, "our": true, "please": true, "she": true,
	"should": true, "so": true, "some": true, "that": true, "the": true,
	"their": true, "them": true, "there": true, "they": true, "this": true,
	"to": true, "us": true, "was": true, "we": true, "were": true,
	"what": true, "when": true, "where": true, "which": true, "who": true,
	"why": true, "will": true, "with": true, "would": true, "you": true,
	"your": true,
}

// contentTerms drops stop words from terms. A query made only of stop
// words keeps all of them so it can still be scored.
func contentTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if !stopwords[t] {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return terms
	}
	return out
}
