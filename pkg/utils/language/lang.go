// Package language validates subtitle language selections against BCP 47
// using x/text/language.
package language

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// Tag is a parsed BCP 47 language tag.
type Tag language.Tag

// Parse parses a single BCP 47 code. Underscore separators are accepted.
func Parse(s string) (Tag, error) {
	tag, err := language.Parse(strings.TrimSpace(s))
	if err != nil {
		return Tag(language.Und), fmt.Errorf("language: %q: %w", s, err)
	}
	return Tag(tag), nil
}

// String returns the canonical form, or "" for the undefined tag.
func (t Tag) String() string {
	if t == Tag(language.Und) {
		return ""
	}
	return language.Tag(t).String()
}

// NormalizeSubLangs validates a yt-dlp --sub-langs selection and returns its
// entries in canonical form. Plain codes are checked and canonicalized
// ("EN_us" becomes "en-US"). yt-dlp's own syntax passes through untouched:
// "all", exclusions ("-live_chat") and regular expressions ("en.*").
func NormalizeSubLangs(entries []string) ([]string, error) {
	var out []string
	for _, raw := range entries {
		for _, e := range strings.Split(raw, ",") {
			e = strings.TrimSpace(e)
			switch {
			case e == "":
				continue
			case e == "all", strings.HasPrefix(e, "-"), strings.ContainsAny(e, `.*+?[]()|^$\`):
				out = append(out, e)
			default:
				tag, err := Parse(e)
				if err != nil {
					return nil, err
				}
				out = append(out, tag.String())
			}
		}
	}
	return out, nil
}
