// Package loadgen produces random but valid order payloads for load tests.
package loadgen

import (
	"math/rand"
	"sync"

	"github.com/imrishuroy/pizza-tracker/internal/validation"
)

var (
	Sizes    = []string{"small", "medium", "large", "x-large"}
	Crusts   = []string{"thin", "hand-tossed", "deep dish"}
	Toppings = []string{"cheese", "pepperoni", "sausage", "olives", "peppers", "mushrooms", "onions", "anchovies", "chicken"}
	Sauces   = []string{"tomato", "alfredo", "pesto", "bbq"}
)

// MaxPizzasPerOrder is the exclusive upper bound of pizzas in a generated order.
const MaxPizzasPerOrder = 6

// MaxOrders caps one generation request.
const MaxOrders = 10000

type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewGenerator(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

// Orders returns n order bodies, each with 0 to 5 pizzas.
func (g *Generator) Orders(n int) []validation.ItemsRequest {
	if n < 0 {
		n = 0
	}
	if n > MaxOrders {
		n = MaxOrders
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]validation.ItemsRequest, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, g.order())
	}
	return out
}

func (g *Generator) order() validation.ItemsRequest {
	count := g.rnd.Intn(MaxPizzasPerOrder)
	items := make([]validation.PizzaRequest, 0, count)
	for i := 0; i < count; i++ {
		items = append(items, validation.PizzaRequest{
			Size:     pick(g.rnd, Sizes),
			Crust:    pick(g.rnd, Crusts),
			Sauce:    pick(g.rnd, Sauces),
			Toppings: g.toppings(),
		})
	}
	return validation.ItemsRequest{Items: items}
}

// toppings is a random subset of Toppings with no repeats.
func (g *Generator) toppings() []string {
	n := g.rnd.Intn(len(Toppings))
	out := make([]string, 0, n)
	for _, i := range g.rnd.Perm(len(Toppings))[:n] {
		out = append(out, Toppings[i])
	}
	return out
}

func pick(rnd *rand.Rand, from []string) string {
	return from[rnd.Intn(len(from))]
}
