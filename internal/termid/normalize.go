// Package termid canonicalizes model term names written in run files.
package termid

import "strings"

// Normalize canonicalizes a formula term. Attribute terms accept the
// forms nodematch.group, nodematch(group) and nodematch("group").
func Normalize(term string) string {
	normalized := strings.TrimSpace(strings.ToLower(term))
	if normalized == "" {
		return ""
	}
	if base, attr, ok := splitAttrTerm(normalized); ok {
		if canonical, known := canonicalTermName(base); known {
			base = canonical
		}
		return base + "." + attr
	}
	normalized = strings.ReplaceAll(normalized, " ", "")
	if canonical, ok := canonicalTermName(normalized); ok {
		return canonical
	}
	return normalized
}

// NormalizeAll normalizes every term, keeping order.
func NormalizeAll(terms []string) []string {
	if terms == nil {
		return nil
	}
	out := make([]string, len(terms))
	for i, term := range terms {
		out[i] = Normalize(term)
	}
	return out
}

func splitAttrTerm(term string) (string, string, bool) {
	if open := strings.IndexByte(term, '('); open > 0 && strings.HasSuffix(term, ")") {
		base := strings.TrimSpace(term[:open])
		attr := strings.Trim(strings.TrimSpace(term[open+1:len(term)-1]), `"'`)
		if attr == "" {
			return "", "", false
		}
		return base, attr, true
	}
	if dot := strings.IndexByte(term, '.'); dot > 0 && dot < len(term)-1 {
		return strings.TrimSpace(term[:dot]), strings.TrimSpace(term[dot+1:]), true
	}
	return "", "", false
}

func canonicalTermName(alias string) (string, bool) {
	compact := strings.NewReplacer("-", "", "_", "").Replace(alias)
	switch compact {
	case "edges", "edge":
		return "edges", true
	case "meandeg", "meandegree":
		return "meandeg", true
	case "concurrent", "concurrency":
		return "concurrent", true
	case "nodematch", "match":
		return "nodematch", true
	default:
		return "", false
	}
}
