package orders

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Status is the lifecycle state of an order.
type Status string

// Order statuses
const (
	StatusWaitingOnCustomer Status = "WAITING_ON_CUSTOMER"
	StatusSubmitted         Status = "SUBMITTED"
	StatusInProgress        Status = "IN_PROGRESS"
	StatusCompleted         Status = "COMPLETED"
	StatusRejected          Status = "REJECTED"
)

// Storage layout: one metadata record plus one record per pizza, all under pk=order id.
const (
	RecordType        = "order"
	SortKeyMetadata   = "metadata"
	itemSortKeyPrefix = "item#"
)

// Pizza is a single line item of an order.
type Pizza struct {
	Size     string   `json:"size"`
	Crust    string   `json:"crust"`
	Sauce    string   `json:"sauce"`
	Toppings []string `json:"toppings"`
}

// Order is an order with its items assembled from the metadata and item records.
type Order struct {
	ID          string
	CreatedAt   time.Time
	Status      Status
	Creator     string
	NumItems    int
	LastUpdated *time.Time
	Items       []Pizza
}

// MetadataRecord is the metadata item stored in the orders table.
// type and creator back the "type" global secondary index.
type MetadataRecord struct {
	PK          string     `dynamodbav:"pk"`
	SK          string     `dynamodbav:"sk"`
	Type        string     `dynamodbav:"type"`
	Creator     string     `dynamodbav:"creator"`
	CreatedAt   time.Time  `dynamodbav:"createdAt"`
	Status      Status     `dynamodbav:"status"`
	NumItems    int        `dynamodbav:"numItems"`
	LastUpdated *time.Time `dynamodbav:"lastUpdated,omitempty"`
}

// ItemRecord is one pizza of an order, stored under sk=item#<index>.
type ItemRecord struct {
	PK         string    `dynamodbav:"pk"`
	SK         string    `dynamodbav:"sk"`
	Size       string    `dynamodbav:"size"`
	Crust      string    `dynamodbav:"crust"`
	Sauce      string    `dynamodbav:"sauce"`
	Toppings   []string  `dynamodbav:"toppings"`
	LastUpdate time.Time `dynamodbav:"lastUpdate"`
}

// Pizza returns the value object stored in the record.
func (r ItemRecord) Pizza() Pizza {
	toppings := r.Toppings
	if toppings == nil {
		toppings = []string{}
	}
	return Pizza{Size: r.Size, Crust: r.Crust, Sauce: r.Sauce, Toppings: toppings}
}

// ItemSortKey returns the sort key of the item at index i.
func ItemSortKey(i int) string {
	return itemSortKeyPrefix + strconv.Itoa(i)
}

// IsItemSortKey reports whether sk addresses an item record.
func IsItemSortKey(sk string) bool {
	return strings.HasPrefix(sk, itemSortKeyPrefix)
}

// ItemIndex parses the position out of an item sort key.
func ItemIndex(sk string) (int, error) {
	if !IsItemSortKey(sk) {
		return 0, fmt.Errorf("not an item sort key: %q", sk)
	}
	i, err := strconv.Atoi(strings.TrimPrefix(sk, itemSortKeyPrefix))
	if err != nil || i < 0 {
		return 0, fmt.Errorf("invalid item sort key: %q", sk)
	}
	return i, nil
}

// Order returns the order described by the record, without items.
func (r MetadataRecord) Order() Order {
	return Order{
		ID:          r.PK,
		CreatedAt:   r.CreatedAt,
		Status:      r.Status,
		Creator:     r.Creator,
		NumItems:    r.NumItems,
		LastUpdated: r.LastUpdated,
	}
}
