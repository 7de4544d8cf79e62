package tokenize

import (
	"strings"
	"unicode"
)

// POS is a coarse part-of-speech tag.
type POS int

const (
	Other POS = iota
	Noun
	ProperNoun
	Verb
	Adjective
	Adverb
	Determiner
	Preposition
	Auxiliary
	Modal
	Conjunction
	Pronoun
	RelativePronoun
	Punctuation
)

// IsModifier reports whether p precedes and describes a noun (determiner or
// adjective), the context Tag's reinforcement pass uses to push an
// ambiguous following word towards Noun.
func (p POS) IsModifier() bool { return p == Determiner || p == Adjective }

// IsVerbal reports whether p is a tag Tag's baseline pass can assign to a
// word that is really functioning as a verb in context.
func (p POS) IsVerbal() bool { return p == Verb || p == Noun }

// IsNominal reports whether p is a tag Tag's baseline pass can assign to a
// word that is really functioning as a noun in context.
func (p POS) IsNominal() bool { return p == Noun || p == ProperNoun }

// Tagger assigns POS tags to raw (pre-canonicalization) words using a fixed
// lexicon plus suffix heuristics, then corrects ambiguous baseline tags
// with a small set of context rules. Unlike Canonicalize/Normalize, which
// fold away case and punctuation for indexing, Tag needs the original
// casing to recognize proper nouns, so callers pass words split from the
// raw string, not from Normalize's output.
type Tagger struct {
	lexicon map[string]POS
}

// NewTagger builds a Tagger with the default English lexicon.
func NewTagger() *Tagger {
	t := &Tagger{lexicon: make(map[string]POS)}
	t.loadDefaultLexicon()
	return t
}

// Tag returns one POS per word in words, in order.
func (t *Tagger) Tag(words []string) []POS {
	tags := make([]POS, len(words))
	for i, word := range words {
		tags[i] = t.lookupBaseline(word)
	}

	for i := range tags {
		currentTag := tags[i]

		var prevTag POS = Other
		if i > 0 {
			prevTag = tags[i-1]
		}

		// Determiner/adjective forces a following verb-or-noun-ambiguous
		// word to Noun: "the run", "a fast attack".
		if (prevTag == Determiner || prevTag.IsModifier()) && currentTag.IsVerbal() {
			tags[i] = Noun
			continue
		}

		// Modal forces a following noun-or-verb-ambiguous word to Verb:
		// "can run", "will attack".
		if prevTag == Modal && currentTag.IsNominal() {
			tags[i] = Verb
			continue
		}

		// Infinitive "to" forces Verb: "want to run".
		if i > 0 && isTo(words[i-1]) && currentTag.IsNominal() {
			tags[i] = Verb
			continue
		}

		// "Of" forces Noun: "word of honor".
		if i > 0 && isOf(words[i-1]) && currentTag.IsVerbal() {
			tags[i] = Noun
			continue
		}

		if len(words[i]) == 1 && unicode.IsPunct(rune(words[i][0])) {
			tags[i] = Punctuation
		}
	}

	return tags
}

func (t *Tagger) lookupBaseline(word string) POS {
	lower := fastLower(word)
	if pos, ok := t.lexicon[lower]; ok {
		return pos
	}
	return t.inferPOS(word)
}

func (t *Tagger) inferPOS(word string) POS {
	lower := fastLower(word)

	if len(word) == 1 && unicode.IsPunct(rune(word[0])) {
		return Punctuation
	}
	if len(word) > 0 && unicode.IsUpper(rune(word[0])) {
		return ProperNoun
	}

	switch {
	case strings.HasSuffix(lower, "ly"):
		return Adverb
	case strings.HasSuffix(lower, "ing"), strings.HasSuffix(lower, "ed"), strings.HasSuffix(lower, "en"):
		return Verb
	case strings.HasSuffix(lower, "ness"), strings.HasSuffix(lower, "tion"),
		strings.HasSuffix(lower, "ment"), strings.HasSuffix(lower, "ity"),
		strings.HasSuffix(lower, "er"), strings.HasSuffix(lower, "or"):
		return Noun
	case strings.HasSuffix(lower, "ful"), strings.HasSuffix(lower, "less"),
		strings.HasSuffix(lower, "ous"), strings.HasSuffix(lower, "ive"),
		strings.HasSuffix(lower, "able"), strings.HasSuffix(lower, "ible"):
		return Adjective
	}
	return Noun
}

// fastLower returns s unchanged if it has no uppercase byte, avoiding an
// allocation for the common already-lowercase case.
func fastLower(s string) string {
	for i := 0; i < len(s); i++ {
		if c := s[i]; 'A' <= c && c <= 'Z' {
			return strings.ToLower(s)
		}
	}
	return s
}

func isTo(s string) bool { return len(s) == 2 && (s[0]|0x20) == 't' && (s[1]|0x20) == 'o' }
func isOf(s string) bool { return len(s) == 2 && (s[0]|0x20) == 'o' && (s[1]|0x20) == 'f' }

func (t *Tagger) loadDefaultLexicon() {
	set := func(pos POS, words ...string) {
		for _, w := range words {
			t.lexicon[w] = pos
		}
	}

	set(Determiner, "the", "a", "an", "this", "that", "these", "those", "my", "your",
		"his", "her", "its", "our", "their", "some", "any", "no", "every", "each", "all", "both",
		"few", "many", "much", "most", "other")

	set(Preposition, "in", "on", "at", "to", "for", "with", "by", "from", "of", "about",
		"into", "through", "during", "before", "after", "above", "below", "between", "under", "over",
		"against", "among", "around", "behind", "beside", "beyond", "near", "toward", "towards",
		"upon", "within", "without", "across", "along", "inside", "outside", "throughout")

	set(Auxiliary, "is", "are", "was", "were", "be", "been", "being", "am",
		"have", "has", "had", "having", "do", "does", "did", "doing")

	set(Modal, "can", "could", "will", "would", "shall", "should", "may", "might", "must")

	set(Conjunction, "and", "or", "but", "nor", "yet", "so", "because", "although",
		"while", "if", "unless", "until", "since", "when", "where", "whether")

	set(Pronoun, "i", "you", "he", "she", "it", "we", "they", "me", "him", "us", "them",
		"myself", "yourself", "himself", "herself", "itself", "ourselves", "themselves")

	set(RelativePronoun, "who", "whom", "whose", "which", "that")

	set(Adjective, "old", "new", "good", "bad", "great", "small", "large", "big", "little",
		"young", "long", "short", "high", "low", "early", "late", "first", "last")

	set(Adverb, "very", "quite", "rather", "really", "too", "just", "only",
		"now", "then", "here", "there", "always", "never", "often", "sometimes", "slowly",
		"quickly", "suddenly", "finally", "already", "still", "even")

	set(Verb, "go", "went", "gone", "going", "come", "came", "coming",
		"say", "said", "saying", "see", "saw", "seen", "seeing", "know", "knew", "known", "knowing",
		"take", "took", "taken", "taking", "get", "got", "getting", "make", "made", "making",
		"walk", "walked", "walking", "run", "ran", "running", "live", "lived", "living",
		"speak", "spoke", "spoken", "speaking")
}
