package repository

import (
	"github.com/egannguyen/go-bookstore/internal/entity"
	"github.com/shopspring/decimal"
)

// SampleBooks is the starter catalog loaded into an empty store.
func SampleBooks() []entity.SaleBook {
	return []entity.SaleBook{
		{Title: "Dune", AuthorName: "Frank Herbert", Price: decimal.RequireFromString("12.99"), Quantity: 40, Description: "Desert planet, spice and a messiah nobody asked for."},
		{Title: "Emma", AuthorName: "Jane Austen", Price: decimal.RequireFromString("7.50"), Quantity: 25, Description: "A matchmaker who should mind her own business."},
		{Title: "The Left Hand of Darkness", AuthorName: "Ursula K. Le Guin", Price: decimal.RequireFromString("10.25"), Quantity: 15, Discount: decimal.NewFromInt(10), Description: "An envoy on a world without fixed sexes."},
		{Title: "Invisible Cities", AuthorName: "Italo Calvino", Price: decimal.RequireFromString("9.00"), Quantity: 12, Description: "Marco Polo describes cities to Kublai Khan."},
		{Title: "Season of Migration to the North", AuthorName: "Tayeb Salih", Price: decimal.RequireFromString("8.75"), Quantity: 10, Description: "A stranger's past surfaces in a Sudanese village."},
		{Title: "The Remains of the Day", AuthorName: "Kazuo Ishiguro", Price: decimal.RequireFromString("11.40"), Quantity: 8, Discount: decimal.NewFromInt(25), Description: "A butler reckons with a life of service."},
	}
}
