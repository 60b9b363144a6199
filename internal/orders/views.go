package orders

import (
	"sort"
	"time"
)

// View is the single-order projection cached under the order id (customer)
// and under ADMIN-<id> (admin, with Creator set).
type View struct {
	ID          string     `json:"id"`
	CreatedAt   time.Time  `json:"createdAt"`
	Status      Status     `json:"status"`
	NumItems    int        `json:"numItems"`
	LastUpdated *time.Time `json:"lastUpdated,omitempty"`
	Items       []Pizza    `json:"items"`
	Creator     string     `json:"creator,omitempty"`
}

// Summary is the list-row projection. It never carries items or creator.
type Summary struct {
	ID          string     `json:"id"`
	CreatedAt   time.Time  `json:"createdAt"`
	Status      Status     `json:"status"`
	NumItems    int        `json:"numItems"`
	LastUpdated *time.Time `json:"lastUpdated,omitempty"`
}

// CustomerView projects o without the creator.
func CustomerView(o Order) View {
	items := o.Items
	if items == nil {
		items = []Pizza{}
	}
	return View{
		ID:          o.ID,
		CreatedAt:   o.CreatedAt,
		Status:      o.Status,
		NumItems:    o.NumItems,
		LastUpdated: o.LastUpdated,
		Items:       items,
	}
}

// AdminView projects o including the creator.
func AdminView(o Order) View {
	v := CustomerView(o)
	v.Creator = o.Creator
	return v
}

// SummaryOf projects o as a list row.
func SummaryOf(o Order) Summary {
	return Summary{
		ID:          o.ID,
		CreatedAt:   o.CreatedAt,
		Status:      o.Status,
		NumItems:    o.NumItems,
		LastUpdated: o.LastUpdated,
	}
}

// SortSummaries orders rows newest first. Ties keep their relative order.
func SortSummaries(rows []Summary) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})
}
