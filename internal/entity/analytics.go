package entity

import "github.com/shopspring/decimal"

// GenreSales counts the distinct orders that contain at least one book of a genre.
type GenreSales struct {
	Genre  string `json:"genre_name"`
	Orders int    `json:"orders"`
}

// SalesSummary is the operator dashboard snapshot.
type SalesSummary struct {
	TotalUsers         int             `json:"total_users"`
	TotalOrders        int             `json:"total_orders"`
	TotalSales         decimal.Decimal `json:"total_sales"`
	OrdersPerMonth     [12]int         `json:"orders_per_month"`
	BestSellers        []GenreSales    `json:"best_seller_categories"`
	TradeBooksPerMonth [12]int         `json:"trades_per_month"`
}
