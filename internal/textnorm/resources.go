package textnorm

import (
	"sync"

	"github.com/rewired-gh/unrestwatch/internal/logger"
)

// Resources are the word lists a Normalizer filters against.
// They are read-only once a Normalizer has been built over them.
// A nil Lemmatizer leaves tokens in their surface form.
type Resources struct {
	Stopwords  map[string]struct{}
	Allowlist  map[string]struct{}
	Lemmatizer Lemmatizer
}

// englishStopwords is the standard English function-word list.
var englishStopwords = []string{
	"i", "me", "my", "myself", "we", "our", "ours", "ourselves", "you", "you're",
	"you've", "you'll", "you'd", "your", "yours", "yourself", "yourselves", "he",
	"him", "his", "himself", "she", "she's", "her", "hers", "herself", "it", "it's",
	"its", "itself", "they", "them", "their", "theirs", "themselves", "what", "which",
	"who", "whom", "this", "that", "that'll", "these", "those", "am", "is", "are",
	"was", "were", "be", "been", "being", "have", "has", "had", "having", "do",
	"does", "did", "doing", "a", "an", "the", "and", "but", "if", "or", "because",
	"as", "until", "while", "of", "at", "by", "for", "with", "about", "against",
	"between", "into", "through", "during", "before", "after", "above", "below",
	"to", "from", "up", "down", "in", "out", "on", "off", "over", "under", "again",
	"further", "then", "once", "here", "there", "when", "where", "why", "how", "all",
	"any", "both", "each", "few", "more", "most", "other", "some", "such", "no",
	"nor", "not", "only", "own", "same", "so", "than", "too", "very", "s", "t",
	"can", "will", "just", "don", "don't", "should", "should've", "now", "d", "ll",
	"m", "o", "re", "ve", "y", "ain", "aren", "aren't", "couldn", "couldn't",
	"didn", "didn't", "doesn", "doesn't", "hadn", "hadn't", "hasn", "hasn't",
	"haven", "haven't", "isn", "isn't", "ma", "mightn", "mightn't", "mustn",
	"mustn't", "needn", "needn't", "shan", "shan't", "shouldn", "shouldn't",
	"wasn", "wasn't", "weren", "weren't", "won", "won't", "wouldn", "wouldn't",
}

// conflictVocabulary survives stopword filtering regardless of the stopword list.
var conflictVocabulary = []string{
	"conflict", "war", "peace", "violence", "attack", "protest",
	"demonstration", "riot", "clash", "tension", "security",
	"unrest", "ceasefire", "mediation", "negotiation",
}

var (
	defaultOnce      sync.Once
	defaultResources Resources
)

// Initialize builds the process-wide stopword set, domain allowlist and
// English lemmatizer. It is safe to call more than once; only the first call
// does any work.
func Initialize() {
	defaultOnce.Do(func() {
		defaultResources = NewResources(englishStopwords, conflictVocabulary)
		lem, err := NewEnglishLemmatizer()
		if err != nil {
			logger.Warn("Lemma dictionary unavailable, tokens are kept unlemmatized: %v", err)
			return
		}
		defaultResources.Lemmatizer = lem
	})
}

// DefaultResources returns the process-wide resources, initializing them on first use.
func DefaultResources() Resources {
	Initialize()
	return defaultResources
}

// NewResources builds a resource set; allowlisted words are removed from the stopwords.
func NewResources(stopwords, allowlist []string) Resources {
	res := Resources{
		Stopwords: make(map[string]struct{}, len(stopwords)),
		Allowlist: make(map[string]struct{}, len(allowlist)),
	}
	for _, w := range allowlist {
		res.Allowlist[w] = struct{}{}
	}
	for _, w := range stopwords {
		if _, keep := res.Allowlist[w]; keep {
			continue
		}
		res.Stopwords[w] = struct{}{}
	}
	return res
}

func (r Resources) isStopword(token string) bool {
	if _, ok := r.Allowlist[token]; ok {
		return false
	}
	_, ok := r.Stopwords[token]
	return ok
}
