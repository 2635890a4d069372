package core

import (
	"net/mail"
	"sort"
	"strings"
)

// Match grades every candidate against the order and returns those with at least
// WEAK confidence, strongest first and most recently received first within a grade.
// The result is deterministic for a given input; remaining ties keep input order.
// An order number without letters or digits matches nothing.
func Match(order Order, candidates []RawInvoiceCandidate) []MatchResult {
	orderID := Normalize(order.OrderNumber)
	if orderID.IsEmpty() {
		return nil
	}

	var results []MatchResult
	for _, c := range candidates {
		res := scoreCandidate(orderID, order.SupplierName, c)
		if res.Confidence == ConfidenceNone {
			continue
		}
		res.OrderNumber = order.OrderNumber
		results = append(results, res)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Confidence != results[j].Confidence {
			return results[i].Confidence > results[j].Confidence
		}
		return results[i].Candidate.EmailReceivedAt.After(results[j].Candidate.EmailReceivedAt)
	})
	return results
}

// Best returns the top-ranked result, if any.
func Best(results []MatchResult) (MatchResult, bool) {
	if len(results) == 0 {
		return MatchResult{}, false
	}
	return results[0], true
}

func scoreCandidate(orderID NormalizedIdentifier, orderSupplier string, c RawInvoiceCandidate) MatchResult {
	res := MatchResult{Candidate: c}

	rawMatch, normMatch := compareOrderNumber(orderID, orderNumberTokens(c))
	switch {
	case rawMatch:
		res.Reasons = append(res.Reasons, ReasonOrderNumberExact)
	case normMatch:
		res.Reasons = append(res.Reasons, ReasonOrderNumberNormalized)
	}

	supplierExact, supplierPartial := compareSupplier(orderSupplier, supplierNames(c))
	switch {
	case supplierExact:
		res.Reasons = append(res.Reasons, ReasonSupplierExact)
	case supplierPartial:
		res.Reasons = append(res.Reasons, ReasonSupplierPartial)
	}

	orderMatch := rawMatch || normMatch
	supplierMatch := supplierExact || supplierPartial
	switch {
	case rawMatch && supplierMatch:
		res.Confidence = ConfidenceExact
	case normMatch && supplierMatch:
		res.Confidence = ConfidenceStrong
	case orderMatch || supplierMatch:
		res.Confidence = ConfidenceWeak
	default:
		res.Confidence = ConfidenceNone
	}
	return res
}

// orderNumberTokens lists the identifier strings a candidate offers for comparison:
// the extracted invoice number and order reference, then the whitespace-separated
// words of the email subject.
func orderNumberTokens(c RawInvoiceCandidate) []string {
	tokens := make([]string, 0, 4)
	for _, s := range []string{c.InvoiceNumber, c.OrderReference} {
		if s = strings.TrimSpace(s); s != "" {
			tokens = append(tokens, s)
		}
	}
	for _, w := range strings.Fields(c.EmailSubject) {
		tokens = append(tokens, strings.Trim(w, ".,;:()[]#\"'"))
	}
	return tokens
}

// compareOrderNumber reports a raw (verbatim) and a canonical match. A degenerate
// order number never matches anything.
func compareOrderNumber(orderID NormalizedIdentifier, tokens []string) (raw, normalized bool) {
	if orderID.IsEmpty() {
		return false, false
	}
	want := strings.TrimSpace(orderID.Raw)
	for _, t := range tokens {
		if t == want {
			return true, true
		}
		if orderID.Equal(Normalize(t)) {
			normalized = true
		}
	}
	return false, normalized
}

// supplierNames returns the supplier names a candidate can be compared under.
func supplierNames(c RawInvoiceCandidate) []string {
	var names []string
	if n := strings.TrimSpace(c.SupplierName); n != "" {
		names = append(names, n)
	}
	if n := fromDisplayName(c.EmailFrom); n != "" {
		names = append(names, n)
	}
	return names
}

func fromDisplayName(from string) string {
	from = strings.TrimSpace(from)
	if from == "" {
		return ""
	}
	addr, err := mail.ParseAddress(from)
	if err != nil {
		if i := strings.Index(from, "<"); i > 0 {
			return strings.Trim(strings.TrimSpace(from[:i]), `"`)
		}
		return ""
	}
	return strings.TrimSpace(addr.Name)
}

func compareSupplier(orderSupplier string, names []string) (exact, partial bool) {
	want := strings.ToLower(strings.TrimSpace(orderSupplier))
	if want == "" {
		return false, false
	}
	for _, n := range names {
		have := strings.ToLower(strings.TrimSpace(n))
		if have == "" {
			continue
		}
		if have == want {
			return true, true
		}
		if strings.Contains(have, want) || strings.Contains(want, have) {
			partial = true
		}
	}
	return false, partial
}
