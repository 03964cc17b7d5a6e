package normalizer

import (
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/pagediff/models"
)

// TitleKey is the entry that every SEOMetadata carries.
const TitleKey = "title"

// SEOMetadata is the normalized, key-sorted view of a page head: the
// document title plus every og:* meta property.
type SEOMetadata []models.MetadataEntry

// ExtractSEOMetadata parses markup (a full document or just head content)
// with goquery and collects the title and every <meta> whose property, or
// failing that name, attribute starts with "og:". A missing content
// attribute yields "". Later duplicates win. The result is sorted by key
// and always contains a "title" entry.
func ExtractSEOMetadata(markup string) SEOMetadata {
	values := map[string]string{TitleKey: ""}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return fromMap(values)
	}

	values[TitleKey] = strings.Join(strings.Fields(doc.Find("title").First().Text()), " ")

	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		key, ok := s.Attr("property")
		if !ok {
			key, ok = s.Attr("name")
		}
		if !ok || !strings.HasPrefix(key, "og:") {
			return
		}
		content, _ := s.Attr("content")
		values[key] = content
	})

	return fromMap(values)
}

func fromMap(values map[string]string) SEOMetadata {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(SEOMetadata, 0, len(keys))
	for _, k := range keys {
		out = append(out, models.MetadataEntry{Key: k, Value: values[k]})
	}
	return out
}

// Get returns the value stored under key.
func (m SEOMetadata) Get(key string) (string, bool) {
	i := sort.Search(len(m), func(i int) bool { return m[i].Key >= key })
	if i < len(m) && m[i].Key == key {
		return m[i].Value, true
	}
	return "", false
}

// Equal reports whether m and other hold exactly the same keys and values.
func (m SEOMetadata) Equal(other SEOMetadata) bool {
	if len(m) != len(other) {
		return false
	}
	for i := range m {
		if m[i] != other[i] {
			return false
		}
	}
	return true
}

// String renders one "key: value" line per entry.
func (m SEOMetadata) String() string {
	var b strings.Builder
	for _, e := range m {
		b.WriteString(e.Key)
		b.WriteString(": ")
		b.WriteString(e.Value)
		b.WriteByte('\n')
	}
	return b.String()
}
