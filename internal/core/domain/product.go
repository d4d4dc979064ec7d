package domain

type Product struct {
	ID                int64  `json:"id" yaml:"-"`
	Name              string `json:"name" yaml:"name"`
	Price             int64  `json:"price" yaml:"price"` // cents
	NumberInInventory int    `json:"numberInInventory" yaml:"numberInInventory"`
	Version           int    `json:"-" yaml:"-"` // optimistic locking
}

func (p Product) IsInStock() bool {
	return p.NumberInInventory > 0
}

// ProductView is the API shape of a product.
type ProductView struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	Price             int64  `json:"price"`
	NumberInInventory int    `json:"numberInInventory"`
	IsInStock         bool   `json:"isInStock"`
}

func (p Product) View() ProductView {
	return ProductView{
		ID:                p.ID,
		Name:              p.Name,
		Price:             p.Price,
		NumberInInventory: p.NumberInInventory,
		IsInStock:         p.IsInStock(),
	}
}
