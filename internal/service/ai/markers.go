package ai

import "regexp"

// Variant markers embedded in model answers, e.g. {v:gid://shopify/ProductVariant/42}.
var markerRe = regexp.MustCompile(`\{v:([^{}\s]+)\}`)

// ExtractMarkers returns the variant ids cited in an answer, in order.
func ExtractMarkers(answer string) []string {
	groups := markerRe.FindAllStringSubmatch(answer, -1)
	if len(groups) == 0 {
		return nil
	}
	ids := make([]string, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, g[1])
	}
	return ids
}

// FilterMarkers strips markers citing variants outside the allowed set. The
// model occasionally invents ids; an invented marker would render a broken
// add-to-cart control.
func FilterMarkers(answer string, allowed map[string]struct{}) string {
	return markerRe.ReplaceAllStringFunc(answer, func(marker string) string {
		id := markerRe.FindStringSubmatch(marker)[1]
		if _, ok := allowed[id]; ok {
			return marker
		}
		return ""
	})
}
