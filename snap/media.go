package snap

import (
	"strconv"
	"strings"
)

// MediaMatches evaluates a media query list against vp. Unknown features are
// assumed to match.
func MediaMatches(prelude string, vp Viewport) bool {
	if strings.TrimSpace(prelude) == "" {
		return true
	}
	for _, raw := range strings.Split(prelude, ",") {
		query := strings.ToLower(strings.TrimSpace(raw))
		if query == "" {
			continue
		}
		negate := false
		if rest, ok := strings.CutPrefix(query, "not "); ok {
			negate = true
			query = strings.TrimSpace(rest)
		} else if rest, ok := strings.CutPrefix(query, "only "); ok {
			query = strings.TrimSpace(rest)
		}

		mediaType := ""
		rest := query
		if parts := strings.Fields(query); len(parts) > 0 && !strings.HasPrefix(parts[0], "(") {
			mediaType = parts[0]
			rest = strings.TrimSpace(strings.TrimPrefix(query, mediaType))
			rest = strings.TrimSpace(strings.TrimPrefix(rest, "and"))
		}

		match := false
		switch mediaType {
		case "", "all", "screen":
			match = mediaFeaturesMatch(rest, vp)
		default:
			// print, speech and the legacy types never apply to a screen snapshot
		}
		if match != negate {
			return true
		}
	}
	return false
}

func mediaFeaturesMatch(expr string, vp Viewport) bool {
	width, height := vp.Width, vp.Height
	for _, clause := range strings.Split(expr, " and ") {
		c := strings.TrimSpace(clause)
		if c == "" {
			continue
		}
		c = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(c, "("), ")"))
		feature, value, _ := strings.Cut(c, ":")
		feature = strings.TrimSpace(feature)
		value = strings.TrimSpace(value)

		switch feature {
		case "orientation":
			orientation := "portrait"
			if width > height {
				orientation = "landscape"
			}
			if value != "" && value != orientation {
				return false
			}
		case "min-width":
			if px, ok := cssLengthToPx(value, width); ok && width < px {
				return false
			}
		case "max-width":
			if px, ok := cssLengthToPx(value, width); ok && width > px {
				return false
			}
		case "min-height":
			if px, ok := cssLengthToPx(value, height); ok && height < px {
				return false
			}
		case "max-height":
			if px, ok := cssLengthToPx(value, height); ok && height > px {
				return false
			}
		case "prefers-color-scheme":
			scheme := "light"
			if vp.Dark {
				scheme = "dark"
			}
			if value != "" && value != scheme {
				return false
			}
		}
	}
	return true
}

func cssLengthToPx(val string, base int) (int, bool) {
	v := strings.ToLower(strings.TrimSpace(val))
	if v == "" {
		return 0, false
	}
	unit := ""
	for _, suffix := range []string{"rem", "px", "em", "vw", "vh", "%"} {
		if strings.HasSuffix(v, suffix) {
			unit = suffix
			v = strings.TrimSpace(v[:len(v)-len(suffix)])
			break
		}
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	switch unit {
	case "", "px":
		return int(f + 0.5), true
	case "em", "rem":
		return int(f*16.0 + 0.5), true
	default:
		if base <= 0 {
			return 0, false
		}
		return int(float64(base) * f / 100.0), true
	}
}
