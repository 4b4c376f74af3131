// Package catalog holds the product definitions sold through the /buy
// flow. The catalog is static; changing it is a deploy, not a runtime
// operation.
package catalog

type Product struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	ProductURL  string  `json:"url_produto"`
	Image       string  `json:"image"`
}

type Catalog struct {
	products []Product
	byID     map[string]int
}

func New(products []Product) *Catalog {
	c := &Catalog{products: products, byID: make(map[string]int, len(products))}
	for i, p := range products {
		c.byID[p.ID] = i
	}
	return c
}

// Default is the catalog shipped with the service.
func Default() *Catalog {
	return New([]Product{
		{
			ID:          "licenca-1ano",
			Name:        "Licença Digital - 1 Ano",
			Description: "Licença de uso por 12 meses, entrega imediata após a confirmação do pagamento.",
			Price:       57,
			ProductURL:  "https://docs.example.com/licenca-1ano",
			Image:       "licenca-1ano.jpg",
		},
		{
			ID:          "licenca-30d",
			Name:        "Licença Digital - 30 Dias",
			Description: "Licença de uso por 30 dias, entrega imediata após a confirmação do pagamento.",
			Price:       17,
			ProductURL:  "https://docs.example.com/licenca-30d",
			Image:       "licenca-30d.jpg",
		},
		{
			ID:          "teste",
			Name:        "Produto de Teste",
			Description: "Produto de valor simbólico para validação do fluxo de pagamento.",
			Price:       2,
			ProductURL:  "https://docs.example.com/teste",
			Image:       "teste.jpg",
		},
	})
}

func (c *Catalog) All() []Product {
	out := make([]Product, len(c.products))
	copy(out, c.products)
	return out
}

func (c *Catalog) Find(id string) (Product, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Product{}, false
	}
	return c.products[i], true
}
