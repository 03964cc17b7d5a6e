// Package normalizer turns rendered page markup into stable strings that can
// be compared across two independent captures.
//
// The stripping and anonymization here are regular-expression heuristics.
// They hold for browser-serialized markup (which is what the capturer
// produces) but are not a guarantee of semantic equivalence for adversarial
// or malformed input.
package normalizer

import (
	"regexp"
	"strings"
)

// Placeholders substituted for volatile content in the body.
const (
	AnonymousHostname = "ANONYMOUS_HOSTNAME"
	AnonymousID       = "ANONYMOUS_ID"
	AnonymousBy       = "aria-ANONYMOUS_BY"
)

var (
	headRe = regexp.MustCompile(`(?is)<head(?:\s[^>]*)?>(.*)</head\s*>`)
	bodyRe = regexp.MustCompile(`(?is)<body(?:\s[^>]*)?>(.*)</body\s*>`)

	commentRe = regexp.MustCompile(`(?s)<!--.*?-->`)

	hostRe       = regexp.MustCompile(`\b[a-zA-Z][a-zA-Z0-9+.\-]*://[^/\s"'<>?#]*`)
	idAttrRe     = regexp.MustCompile(`\bid="[^"]*"`)
	ariaByAttrRe = regexp.MustCompile(`\baria-[a-z]*by="[^"]*"`)
	spaceRe      = regexp.MustCompile(`\s+`)

	// tagRes caches one subtree pattern per stripped tag name.
	tagRes = map[string]*regexp.Regexp{}
)

func init() {
	for _, tag := range []string{"script", "style", "iframe"} {
		tagRes[tag] = regexp.MustCompile(`(?is)<` + tag + `\b.*?</` + tag + `\s*>`)
	}
}

// ExtractMetadata returns the inner markup of <head> with <script> and
// <style> subtrees removed. Missing head yields "".
func ExtractMetadata(markup string) string {
	return stripSubtrees(section(headRe, markup), "script", "style")
}

// ExtractBody returns the inner markup of <body> with <script>, <style> and
// <iframe> subtrees and HTML comments removed, then anonymized.
// Missing body yields "".
func ExtractBody(markup string) string {
	body := stripSubtrees(section(bodyRe, markup), "script", "style", "iframe")
	body = commentRe.ReplaceAllString(body, "")
	return Anonymize(body)
}

// Anonymize replaces volatile values with fixed placeholders:
// scheme://host prefixes, id attribute values and aria-*by attribute pairs,
// then collapses whitespace. Every substitution is a fixed point, so
// Anonymize(Anonymize(s)) == Anonymize(s).
func Anonymize(body string) string {
	body = hostRe.ReplaceAllString(body, AnonymousHostname)
	body = idAttrRe.ReplaceAllString(body, `id="`+AnonymousID+`"`)
	body = ariaByAttrRe.ReplaceAllString(body, AnonymousBy+`="`+AnonymousID+`"`)
	body = spaceRe.ReplaceAllString(body, " ")
	return strings.TrimSpace(body)
}

func section(re *regexp.Regexp, markup string) string {
	m := re.FindStringSubmatch(markup)
	if m == nil {
		return ""
	}
	return m[1]
}

func stripSubtrees(markup string, tags ...string) string {
	for _, tag := range tags {
		markup = tagRes[tag].ReplaceAllString(markup, "")
	}
	return markup
}
