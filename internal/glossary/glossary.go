// Package glossary enriches user questions with business-term hints before
// prompt construction.
package glossary

import "strings"

type Entry struct {
	Term      string
	Hint      string
	AppliesTo string
}

var defaultEntries = []Entry{
	{
		Term:      "membership holder",
		Hint:      "customers.is_member = TRUE",
		AppliesTo: "customers,ticket_sales",
	},
	{
		Term:      "active sales",
		Hint:      "status = 'active' OR payment_status = 'paid'",
		AppliesTo: "ticket_sales,merch_orders",
	},
	{
		Term:      "ticketing",
		Hint:      "use ticket_sales table; date column often sale_date",
		AppliesTo: "ticket_sales",
	},
	{
		Term:      "merchandise",
		Hint:      "use merch_orders with product_category, revenue",
		AppliesTo: "merch_orders",
	},
}

type Enricher struct {
	entries []Entry
}

func NewEnricher() *Enricher {
	return &Enricher{entries: defaultEntries}
}

func NewEnricherWithEntries(entries []Entry) *Enricher {
	return &Enricher{entries: entries}
}

// Enrich appends a HINTS block listing every glossary term found in the
// question. Questions without matches pass through unchanged.
func (e *Enricher) Enrich(question string) string {
	lower := strings.ToLower(question)
	var hints []string
	for _, entry := range e.entries {
		if strings.Contains(lower, entry.Term) {
			hints = append(hints, "- "+entry.Term+": "+entry.Hint)
		}
	}
	if len(hints) == 0 {
		return question
	}
	return question + "\n\nHINTS:\n" + strings.Join(hints, "\n")
}
