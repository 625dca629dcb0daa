package domain

import "fmt"

// SessionItem pairs an invoice item with the sessions it bills.
type SessionItem struct {
	Item     *InvoiceItem
	Sessions []*TimeSession
}

// BuildSessionItems turns stopped, unbilled, billable sessions into invoice
// items. With groupByProject there is one item per project in order of first
// appearance; otherwise one item per session. Item totals are always the
// exact sum of the underlying billable amounts.
func BuildSessionItems(sessions []*TimeSession, projectNames map[int64]string, groupByProject bool) []SessionItem {
	if !groupByProject {
		out := make([]SessionItem, 0, len(sessions))
		for i, s := range sessions {
			desc := s.Description
			if desc == "" {
				desc = projectNames[s.ProjectID]
			}
			out = append(out, SessionItem{
				Item: &InvoiceItem{
					Description:    fmt.Sprintf("%s (%s)", desc, s.StartTime.Format("2006-01-02")),
					Quantity:       HoursFromSeconds(s.Duration()),
					UnitPriceCents: s.HourlyRateCents,
					TotalCents:     s.Amount(),
					Position:       i,
					FromSessions:   true,
				},
				Sessions: []*TimeSession{s},
			})
		}
		return out
	}

	var order []int64
	groups := make(map[int64][]*TimeSession)
	for _, s := range sessions {
		if _, seen := groups[s.ProjectID]; !seen {
			order = append(order, s.ProjectID)
		}
		groups[s.ProjectID] = append(groups[s.ProjectID], s)
	}

	out := make([]SessionItem, 0, len(order))
	for i, projectID := range order {
		var seconds, amount int64
		for _, s := range groups[projectID] {
			seconds += s.Duration()
			amount += s.Amount()
		}
		hours := HoursFromSeconds(seconds)
		out = append(out, SessionItem{
			Item: &InvoiceItem{
				Description:    fmt.Sprintf("%s - %s hours", projectNames[projectID], hours.StringFixed(2)),
				Quantity:       hours,
				UnitPriceCents: AverageRateCents(amount, seconds),
				TotalCents:     amount,
				Position:       i,
				FromSessions:   true,
			},
			Sessions: groups[projectID],
		})
	}
	return out
}
