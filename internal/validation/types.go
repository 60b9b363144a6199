package validation

import "github.com/imrishuroy/pizza-tracker/internal/orders"

// MaxPizzas caps the number of pizzas in one order.
const MaxPizzas = 25

// PizzaRequest is one pizza in an order body.
type PizzaRequest struct {
	Size     string   `json:"size" validate:"required,oneof=small medium large x-large"`
	Crust    string   `json:"crust" validate:"required,crust"`
	Sauce    string   `json:"sauce" validate:"required,oneof=tomato alfredo pesto bbq"`
	Toppings []string `json:"toppings" validate:"max=10,dive,required,max=40"`
}

// ItemsRequest is the payload for POST /orders and PUT /orders/{orderId}.
type ItemsRequest struct {
	Items []PizzaRequest `json:"items" validate:"max=25,dive"`
}

// StatusRequest is the payload for POST /orders/{orderId}/statuses.
type StatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// Pizzas converts the request items to domain values. Toppings are never nil.
func (r ItemsRequest) Pizzas() []orders.Pizza {
	out := make([]orders.Pizza, 0, len(r.Items))
	for _, it := range r.Items {
		toppings := it.Toppings
		if toppings == nil {
			toppings = []string{}
		}
		out = append(out, orders.Pizza{Size: it.Size, Crust: it.Crust, Sauce: it.Sauce, Toppings: toppings})
	}
	return out
}
