package intake

import "strings"

// Validate applies the submission rules to a pair of raw input values. The
// rules are evaluated in order and the first failing rule wins:
//
//  1. neither source populated
//  2. URL only, without a recognized image extension anywhere in it
//  3. both sources populated
//
// The same rules run in the browser before a submit and on the server when
// the form arrives.
func Validate(hasFile bool, url string) error {
	trimmed := strings.TrimSpace(url)

	if trimmed == "" && !hasFile {
		return ErrMissingInput
	}
	if trimmed != "" && !hasFile {
		if !HasImageExtension(trimmed) {
			return ErrUnrecognizedImageURL
		}
	}
	if trimmed != "" && hasFile {
		return ErrAmbiguousInput
	}
	return nil
}

// HasImageExtension reports whether the lowercased URL contains any of the
// recognized extensions. This is a containment check, so
// "https://host/cat.png?size=large" passes.
func HasImageExtension(url string) bool {
	lowered := strings.ToLower(strings.TrimSpace(url))
	for _, ext := range ImageExtensions {
		if strings.Contains(lowered, ext) {
			return true
		}
	}
	return false
}

// LooksLikeURL reports whether dropped plain text should be treated as a URL.
func LooksLikeURL(text string) bool {
	return strings.HasPrefix(text, "http://") || strings.HasPrefix(text, "https://")
}
