package catalog

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v2"
)

// Source fetches an ordered list of products.
type Source interface {
	Fetch(ctx context.Context) ([]Product, error)
}

// SourceFunc adapts a function to [Source].
type SourceFunc func(ctx context.Context) ([]Product, error)

func (f SourceFunc) Fetch(ctx context.Context) ([]Product, error) {
	return f(ctx)
}

// DefaultProducts is the list served by the default source.
func DefaultProducts() []Product {
	return []Product{
		{Name: "Apple", ID: "123", Quantity: 1},
		{Name: "Pear", ID: "124", Quantity: 1},
		{Name: "Plum", ID: "125", Quantity: 1},
	}
}

// LateArrivals are sent by the second publisher of the conflated demo.
func LateArrivals() []Product {
	return []Product{
		{Name: "Peach", ID: "126", Quantity: 4},
		{Name: "Blackcurrant", ID: "127", Quantity: 30},
	}
}

// StaticSource serves a fixed list, optionally after a simulated latency.
type StaticSource struct {
	Products []Product
	Latency  time.Duration
}

// NewStaticSource returns a source serving products.
func NewStaticSource(products []Product) *StaticSource {
	return &StaticSource{Products: products}
}

// Fetch returns a copy of the list. It honours ctx while simulating latency.
func (s *StaticSource) Fetch(ctx context.Context) ([]Product, error) {
	if s.Latency > 0 {
		timer := time.NewTimer(s.Latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]Product(nil), s.Products...), nil
}

// file is the on-disk layout read by FileSource.
type file struct {
	Products []Product `yaml:"products"`
}

// FileSource reads products from a YAML file:
//
//	products:
//	  - name: Apple
//	    id: "123"
//	    quantity: 1
//
// Products without an id are assigned a random UUID.
type FileSource struct {
	Path string
}

func (s FileSource) Fetch(ctx context.Context) ([]Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", s.Path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML product list.
func Parse(data []byte) ([]Product, error) {
	var f file
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("catalog: decode products: %w", err)
	}
	for i := range f.Products {
		if err := f.Products[i].Validate(); err != nil {
			return nil, fmt.Errorf("catalog: product %d: %w", i, err)
		}
		if f.Products[i].ID == "" {
			f.Products[i].ID = uuid.NewString()
		}
	}
	return f.Products, nil
}
