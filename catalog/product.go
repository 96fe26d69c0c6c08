// Package catalog holds the point-of-sale product records that flow through
// the demo pipelines, and the sources they are fetched from.
package catalog

import (
	"errors"
	"fmt"
)

// Product is a point-of-sale item. It is passed by value, so a received
// Product is the receiver's own copy.
type Product struct {
	Name     string `yaml:"name"`
	ID       string `yaml:"id"`
	Quantity int    `yaml:"quantity"`
}

func (p Product) String() string {
	return fmt.Sprintf("%s(%s)x%d", p.Name, p.ID, p.Quantity)
}

// Validate reports whether p is usable.
func (p Product) Validate() error {
	if p.Name == "" {
		return errors.New("catalog: product name is empty")
	}
	if p.Quantity < 0 {
		return fmt.Errorf("catalog: product %q has negative quantity %d", p.Name, p.Quantity)
	}
	return nil
}

// Names returns the product names in order.
func Names(products []Product) []string {
	out := make([]string, len(products))
	for i, p := range products {
		out[i] = p.Name
	}
	return out
}
