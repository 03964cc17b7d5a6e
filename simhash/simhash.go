// Package simhash scores how close two normalized page bodies are using
// 64-bit SimHash fingerprints of their tag sequence and of their text.
//
// The score is informational. The body verdict itself is an exact
// comparison of the normalized bodies.
package simhash

import (
	"hash/fnv"
	"math/bits"
	"strings"

	"golang.org/x/net/html"

	"github.com/use-agent/pagediff/models"
)

// shingleSize is the tag n-gram length used for the structure fingerprint.
const shingleSize = 3

// Fingerprint is a 64-bit SimHash.
type Fingerprint uint64

// Distance returns the Hamming distance between two fingerprints.
func (f Fingerprint) Distance(g Fingerprint) int {
	return bits.OnesCount64(uint64(f ^ g))
}

// Similarity maps the Hamming distance onto [0, 1].
func (f Fingerprint) Similarity(g Fingerprint) float64 {
	return 1 - float64(f.Distance(g))/64
}

// textFingerprint fingerprints the whitespace-separated words of s.
func textFingerprint(s string) Fingerprint {
	return fingerprint(strings.Fields(s))
}

// structureFingerprint fingerprints the element sequence of markup, ignoring
// text and attributes. Markup too short for one shingle is hashed tag by tag.
func structureFingerprint(markup string) Fingerprint {
	tags, _ := tokenize(markup)
	return structureOf(tags)
}

// Compare scores two normalized bodies. Identical bodies score 1 on both
// axes.
func Compare(a, b string) models.Similarity {
	if a == b {
		return models.Similarity{Structure: 1, Text: 1}
	}
	tagsA, wordsA := tokenize(a)
	tagsB, wordsB := tokenize(b)
	return models.Similarity{
		Structure: structureOf(tagsA).Similarity(structureOf(tagsB)),
		Text:      fingerprint(wordsA).Similarity(fingerprint(wordsB)),
	}
}

func structureOf(tags []string) Fingerprint {
	if sh := shingles(tags, shingleSize); len(sh) > 0 {
		return fingerprint(sh)
	}
	return fingerprint(tags)
}

// fingerprint accumulates FNV-64a votes of every token per bit.
func fingerprint(tokens []string) Fingerprint {
	if len(tokens) == 0 {
		return 0
	}

	var vector [64]int
	h := fnv.New64a()
	for _, tok := range tokens {
		h.Reset()
		h.Write([]byte(tok))
		sum := h.Sum64()
		for i := range 64 {
			if sum&(1<<uint(i)) != 0 {
				vector[i]++
			} else {
				vector[i]--
			}
		}
	}

	var fp Fingerprint
	for i, v := range vector {
		if v > 0 {
			fp |= 1 << uint(i)
		}
	}
	return fp
}

// tokenize walks markup once, collecting opening tag names in document
// order and the words of every text node.
func tokenize(markup string) (tags, words []string) {
	z := html.NewTokenizer(strings.NewReader(markup))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return tags, words
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tags = append(tags, string(name))
		case html.TextToken:
			words = append(words, strings.Fields(string(z.Text()))...)
		}
	}
}

func shingles(tokens []string, n int) []string {
	if len(tokens) < n {
		return nil
	}
	out := make([]string, 0, len(tokens)-n+1)
	for i := 0; i+n <= len(tokens); i++ {
		out = append(out, strings.Join(tokens[i:i+n], "_"))
	}
	return out
}
