package alert

import "strings"

// ResolveRoute maps an alert to the navigation target the UI should open
// when the alert is clicked. ok is false when the alert has no sensible
// target (unknown domain, or an inventory/sales alert without a subject).
//
// The app's route table has two historically inconsistent shapes, which
// are normalized here so callers never see them:
//   - a bare "/inventory/{id}" becomes "/inventory/view/{id}"
//   - "/sales/view/{id}" becomes "/sales/{id}"
func ResolveRoute(a Alert) (route string, ok bool) {
	switch a.Domain {
	case DomainStock, DomainExpiry, DomainExpired:
		if a.SubjectID == "" {
			return "", false
		}
		return NormalizeRoute("/inventory/" + a.SubjectID), true
	case DomainSale:
		if a.SubjectID == "" {
			return "", false
		}
		return NormalizeRoute("/sales/view/" + a.SubjectID), true
	case DomainSystem:
		return "/settings", true
	default:
		return "", false
	}
}

// NormalizeRoute rewrites the two known-inconsistent route shapes and
// passes everything else through unchanged.
func NormalizeRoute(path string) string {
	if rest, found := strings.CutPrefix(path, "/inventory/"); found {
		if !strings.HasPrefix(rest, "view/") {
			return "/inventory/view/" + rest
		}
		return path
	}
	if rest, found := strings.CutPrefix(path, "/sales/view/"); found {
		return "/sales/" + rest
	}
	return path
}
