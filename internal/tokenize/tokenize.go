// Package tokenize turns raw memory text into normalized tokens and resolves
// entity mentions against a compiled dictionary, using a single Aho-Corasick
// automaton as both pattern store and text scanner.
package tokenize

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/coregx/ahocorasick"
	"github.com/mozillazg/go-pinyin"
	"github.com/orsinium-labs/stopwords"

	"github.com/kittclouds/recall/internal/types"
)

// isJoiner reports punctuation that commonly appears inside names/terms and
// is preserved during canonicalization so multiword entities stay coherent.
func isJoiner(r rune) bool {
	switch r {
	case '\'', '’', '‘',
		'-', '–', '—',
		'·', '.', '_', '/', '#', '&':
		return true
	default:
		return false
	}
}

func isSeparator(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) || isJoiner(r) {
		return false
	}
	return true
}

// Canonicalize folds to lowercase, normalizes curly quotes/dashes, keeps
// letters/digits/joiners and collapses everything else to single spaces.
// It is the one function used for both pattern compilation and scanning, so
// offsets recovered from a scan always line up with the original text.
func Canonicalize(s string) string {
	var out strings.Builder
	out.Grow(len(s))

	lastWasSpace := true
	for _, ch := range s {
		c := unicode.ToLower(ch)
		if c == '’' || c == '‘' {
			c = '\''
		}
		if c == '–' || c == '—' {
			c = '-'
		}

		if unicode.IsLetter(c) || unicode.IsDigit(c) || isJoiner(c) {
			out.WriteRune(c)
			lastWasSpace = false
		} else if !lastWasSpace {
			out.WriteRune(' ')
			lastWasSpace = true
		}
	}

	result := out.String()
	if len(result) > 0 && result[len(result)-1] == ' ' {
		result = result[:len(result)-1]
	}
	return result
}

// Token is a token with its byte offsets in the original string.
type Token struct {
	Text  string
	Start int
	End   int
}

// TokenizeWithOffsets splits text into canonicalized tokens, preserving the
// original byte spans for span-anchored callers (entity index, context
// builder highlighting).
func TokenizeWithOffsets(s string) []Token {
	out := make([]Token, 0, 64)

	i := 0
	for i < len(s) {
		for i < len(s) {
			r, w := utf8.DecodeRuneInString(s[i:])
			if !isSeparator(r) {
				break
			}
			i += w
		}
		start := i

		for i < len(s) {
			r, w := utf8.DecodeRuneInString(s[i:])
			if isSeparator(r) {
				break
			}
			i += w
		}
		end := i

		if start < end {
			out = append(out, Token{Text: Canonicalize(s[start:end]), Start: start, End: end})
		}
	}
	return out
}

var extraStopWords = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true,
}

// Normalize splits, canonicalizes and removes stop words, combining the
// orsinium-labs English list with a handful of narrative-domain honorifics
// the general list doesn't carry.
func Normalize(text string) []string {
	words := strings.Fields(Canonicalize(text))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w == "" || extraStopWords[w] || stopwords.English.Has(w) {
			continue
		}
		out = append(out, w)
	}
	return out
}

// FoldCJK returns the pinyin reading of Han characters in s, space
// separated. Nothing in the ingest or indexing path calls it, so the
// keyword and n-gram indexes see CJK text as raw characters only.
func FoldCJK(s string) string {
	args := pinyin.NewArgs()
	args.Style = pinyin.Normal
	readings := pinyin.LazyConvert(s, &args)
	return strings.Join(readings, " ")
}

// NGrams returns the set of character n-grams (sizes 2 and 3) of a
// canonicalized string, used by the fuzzy (L6) n-gram index.
func NGrams(s string) []string {
	runes := []rune(Canonicalize(s))
	out := make([]string, 0, len(runes)*2)
	for _, n := range [2]int{2, 3} {
		if len(runes) < n {
			continue
		}
		for i := 0; i+n <= len(runes); i++ {
			out = append(out, string(runes[i:i+n]))
		}
	}
	return out
}

// RegisteredEntity is one entity submitted for dictionary compilation.
type RegisteredEntity struct {
	Name    string
	Type    types.EntityType
	Aliases []string
}

// priority orders entity types for SelectBest disambiguation when several
// entities share a surface form.
func priority(t types.EntityType) int {
	switch t {
	case types.EntityPerson:
		return 10
	case types.EntityPlace:
		return 8
	case types.EntityOrg:
		return 7
	case types.EntityObject:
		return 5
	case types.EntityConcept:
		return 3
	default:
		return 2
	}
}

// Match is a detected entity mention in text, offsets in the original string.
type Match struct {
	Start       int
	End         int
	MatchedText string
	Refs        []types.EntityRef
}

// Dictionary is a compiled Aho-Corasick automaton used both as an exact
// lookup table (IsKnownEntity, Lookup) and a linear-time text scanner (Scan).
type Dictionary struct {
	ac             *ahocorasick.Automaton
	patternToRefs  [][]types.EntityRef
	patternIndex   map[string]int
	patterns       []string
}

// Compile builds a Dictionary from the given entities plus generated
// auto-aliases (surname-only, acronym, suffix-stripped variants).
func Compile(entities []RegisteredEntity) (*Dictionary, error) {
	d := &Dictionary{
		patternToRefs: [][]types.EntityRef{},
		patternIndex:  make(map[string]int),
		patterns:      []string{},
	}

	for _, e := range entities {
		ref := types.EntityRef{Name: e.Name, Type: e.Type}
		surfaces := append([]string{e.Name}, e.Aliases...)
		surfaces = append(surfaces, autoAliases(e.Name, e.Type)...)

		for _, surface := range surfaces {
			key := Canonicalize(surface)
			if key == "" {
				continue
			}
			if idx, ok := d.patternIndex[key]; ok {
				d.patternToRefs[idx] = appendUniqueRef(d.patternToRefs[idx], ref)
				continue
			}
			idx := len(d.patterns)
			d.patterns = append(d.patterns, key)
			d.patternIndex[key] = idx
			d.patternToRefs = append(d.patternToRefs, []types.EntityRef{ref})
		}
	}

	automaton, err := ahocorasick.NewBuilder().
		AddStrings(d.patterns).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		return nil, err
	}
	d.ac = automaton
	return d, nil
}

// Lookup returns the entity refs registered under an exact surface form.
func (d *Dictionary) Lookup(surface string) []types.EntityRef {
	if d.ac == nil {
		return nil
	}
	idx, ok := d.patternIndex[Canonicalize(surface)]
	if !ok {
		return nil
	}
	return d.patternToRefs[idx]
}

// IsKnownEntity reports whether token matches any registered surface form.
func (d *Dictionary) IsKnownEntity(token string) bool {
	_, ok := d.patternIndex[Canonicalize(token)]
	return ok
}

// Scan finds every entity mention in text in O(n), mapping canonicalized
// match offsets back onto the original byte positions.
func (d *Dictionary) Scan(text string) []Match {
	if d.ac == nil {
		return nil
	}
	canon := Canonicalize(text)
	offsetMap := buildOffsetMap(text)

	raw := d.ac.FindAllOverlapping([]byte(canon))
	result := make([]Match, 0, len(raw))
	for _, m := range raw {
		start := mapOffset(m.Start, offsetMap, len(text))
		end := mapOffset(m.End, offsetMap, len(text))
		if start >= len(text) || end > len(text) || start >= end {
			continue
		}
		result = append(result, Match{
			Start:       start,
			End:         end,
			MatchedText: text[start:end],
			Refs:        d.patternToRefs[m.PatternID],
		})
	}
	return result
}

// SelectBest picks the highest-priority entity among several candidates
// sharing one surface form (e.g. a name that is both a place and a person).
func SelectBest(refs []types.EntityRef) (types.EntityRef, bool) {
	var best types.EntityRef
	found := false
	for _, r := range refs {
		if !found || priority(r.Type) > priority(best.Type) {
			best = r
			found = true
		}
	}
	return best, found
}

func buildOffsetMap(original string) []int {
	mapping := make([]int, 0, len(original)+1)
	lastWasSpace := true
	origPos := 0

	for _, ch := range original {
		runeLen := utf8.RuneLen(ch)
		c := unicode.ToLower(ch)
		if c == '’' || c == '‘' {
			c = '\''
		}
		if c == '–' || c == '—' {
			c = '-'
		}

		if unicode.IsLetter(c) || unicode.IsDigit(c) || isJoiner(c) {
			canonLen := utf8.RuneLen(c)
			for i := 0; i < canonLen; i++ {
				mapping = append(mapping, origPos)
			}
			lastWasSpace = false
		} else if !lastWasSpace {
			mapping = append(mapping, origPos)
			lastWasSpace = true
		}
		origPos += runeLen
	}
	mapping = append(mapping, origPos)
	return mapping
}

func mapOffset(canonOffset int, mapping []int, originalLen int) int {
	if canonOffset >= len(mapping) {
		return originalLen
	}
	if canonOffset < 0 {
		return 0
	}
	return mapping[canonOffset]
}

func autoAliases(name string, kind types.EntityType) []string {
	tokens := Normalize(name)
	if len(tokens) <= 1 {
		return nil
	}
	first := tokens[0]
	last := tokens[len(tokens)-1]
	var out []string

	if kind == types.EntityPerson {
		if len(last) >= 3 {
			out = append(out, last)
		}
		if len(tokens) >= 3 && first != last {
			out = append(out, first+" "+last)
		}
		if len(first) >= 4 && first != last {
			out = append(out, first)
		}
	}

	if kind == types.EntityOrg {
		var acronym strings.Builder
		for _, tok := range tokens {
			if len(tok) > 0 {
				acronym.WriteByte(tok[0])
			}
		}
		if acronym.Len() >= 2 && acronym.Len() <= 5 {
			out = append(out, acronym.String())
		}
	}

	if kind == types.EntityPlace && len(first) >= 4 {
		out = append(out, first)
	}

	return out
}

func appendUniqueRef(slice []types.EntityRef, ref types.EntityRef) []types.EntityRef {
	for _, r := range slice {
		if r == ref {
			return slice
		}
	}
	return append(slice, ref)
}
