package http

import (
	"errors"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/egannguyen/go-bookstore/internal/apperr"
	"github.com/egannguyen/go-bookstore/internal/entity"
	"github.com/egannguyen/go-bookstore/internal/repository"
	"github.com/egannguyen/go-bookstore/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationError carries per-field messages for the error envelope.
type validationError struct {
	fields map[string]string
}

func (e *validationError) Error() string { return "request validation failed" }

func (e *validationError) Unwrap() error {
	return apperr.New(apperr.Validation, e.Error())
}

func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &apperr.Error{Kind: apperr.Validation, Message: "request validation failed", Err: err}
	}
	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields[fe.Field()] = fieldMessage(fe)
	}
	return &validationError{fields: fields}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt", "gte":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "email":
		return "must be a valid email address"
	}
	return "failed " + fe.Tag() + " validation"
}

// decodeJSON reads a size-limited JSON body into dst. Strict rejects fields
// dst does not declare.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, strict bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return apperr.New(apperr.InvalidInput, "request body is empty")
		case errors.As(err, &maxErr):
			return apperr.New(apperr.InvalidInput, "request body is too large")
		case strings.Contains(err.Error(), "unknown field"):
			return &apperr.Error{Kind: apperr.InvalidInput, Message: "request contains an unknown field", Err: err}
		}
		return &apperr.Error{Kind: apperr.InvalidInput, Message: "invalid request body", Err: err}
	}
	return nil
}

type checkoutLine struct {
	BookID   int64 `json:"book_id"`
	Quantity int   `json:"quantity"`
}

// checkoutRequest leaves line checks to the checkout service so its order of
// validation holds over HTTP.
type checkoutRequest struct {
	OrderInfo      []checkoutLine `json:"order_info"`
	ShipmentMethod string         `json:"shipment_method" validate:"max=50"`
}

func (c checkoutRequest) toService(buyerID int64) service.CheckoutRequest {
	lines := make([]service.LineRequest, len(c.OrderInfo))
	for i, l := range c.OrderInfo {
		lines[i] = service.LineRequest{BookID: l.BookID, Quantity: l.Quantity}
	}
	return service.CheckoutRequest{
		BuyerID:        buyerID,
		Lines:          lines,
		ShipmentMethod: strings.TrimSpace(c.ShipmentMethod),
	}
}

type tradeRequestBody struct {
	TradeBookID     int64  `json:"trade_book_id" validate:"required,gt=0"`
	UserID          int64  `json:"user_id" validate:"required,gt=0"`
	OfferedBookName string `json:"book_name" validate:"required,max=255"`
	Description     string `json:"description" validate:"max=2000"`
	BookImage       string `json:"book_image" validate:"max=1024"`
	Location        string `json:"location" validate:"max=255"`
}

func (t tradeRequestBody) toService() service.TradeRequestInput {
	return service.TradeRequestInput{
		TradeBookID:     t.TradeBookID,
		RequesterID:     t.UserID,
		OfferedBookName: t.OfferedBookName,
		Description:     t.Description,
		BookImage:       t.BookImage,
		Location:        t.Location,
	}
}

type bookPatchRequest struct {
	Title       *string          `json:"title" validate:"omitempty,max=255"`
	GenreID     *int64           `json:"genre_id" validate:"omitempty,gt=0"`
	AuthorName  *string          `json:"author_name" validate:"omitempty,max=255"`
	Price       *decimal.Decimal `json:"price"`
	Quantity    *int             `json:"quantity"`
	Description *string          `json:"description" validate:"omitempty,max=2000"`
	BookImage   *string          `json:"book_image" validate:"omitempty,max=1024"`
	Discount    *decimal.Decimal `json:"discount"`
	Status      *string          `json:"status"`
}

// toPatch keeps the fields in column order so generated updates are stable.
func (b bookPatchRequest) toPatch() repository.Patch {
	var p repository.Patch
	setIf(&p, "title", b.Title)
	setIf(&p, "genre_id", b.GenreID)
	setIf(&p, "author_name", b.AuthorName)
	setIf(&p, "price", b.Price)
	setIf(&p, "quantity", b.Quantity)
	setIf(&p, "description", b.Description)
	setIf(&p, "book_image", b.BookImage)
	setIf(&p, "discount", b.Discount)
	setIf(&p, "status", b.Status)
	return p
}

type userPatchRequest struct {
	FirstName             *string `json:"first_name" validate:"omitempty,max=100"`
	LastName              *string `json:"last_name" validate:"omitempty,max=100"`
	Email                 *string `json:"email" validate:"omitempty,max=255"`
	PhoneNumber           *string `json:"phone_number" validate:"omitempty,max=50"`
	Floor                 *string `json:"floor" validate:"omitempty,max=50"`
	Building              *string `json:"building" validate:"omitempty,max=100"`
	Street                *string `json:"street" validate:"omitempty,max=255"`
	City                  *string `json:"city" validate:"omitempty,max=100"`
	AdditionalDescription *string `json:"additional_description" validate:"omitempty,max=1000"`
	Role                  *string `json:"role"`
}

func (u userPatchRequest) toPatch() repository.Patch {
	var p repository.Patch
	setIf(&p, "first_name", u.FirstName)
	setIf(&p, "last_name", u.LastName)
	setIf(&p, "email", u.Email)
	setIf(&p, "phone_number", u.PhoneNumber)
	setIf(&p, "floor", u.Floor)
	setIf(&p, "building", u.Building)
	setIf(&p, "street", u.Street)
	setIf(&p, "city", u.City)
	setIf(&p, "additional_description", u.AdditionalDescription)
	setIf(&p, "role", u.Role)
	return p
}

func setIf[T any](p *repository.Patch, field string, v *T) {
	if v != nil {
		p.Set(field, *v)
	}
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }

type bookResponse struct {
	ID              int64     `json:"sale_book_id"`
	Title           string    `json:"title"`
	GenreID         int64     `json:"genre_id"`
	GenreName       string    `json:"genre_name,omitempty"`
	AuthorName      string    `json:"author_name"`
	Price           string    `json:"price"`
	Quantity        int       `json:"quantity"`
	Description     string    `json:"description"`
	BookImage       string    `json:"book_image"`
	Discount        string    `json:"discount"`
	DiscountedPrice *string   `json:"discounted_price,omitempty"`
	Status          string    `json:"status"`
	PostDate        time.Time `json:"post_date"`
}

func newBookResponse(b entity.SaleBook) bookResponse {
	resp := bookResponse{
		ID:          b.ID,
		Title:       b.Title,
		GenreID:     b.GenreID,
		GenreName:   b.GenreName,
		AuthorName:  b.AuthorName,
		Price:       money(b.Price),
		Quantity:    b.Quantity,
		Description: b.Description,
		BookImage:   b.BookImage,
		Discount:    b.Discount.String(),
		Status:      b.Status,
		PostDate:    b.PostDate,
	}
	if dp, ok := b.DiscountedPrice(); ok {
		s := money(dp)
		resp.DiscountedPrice = &s
	}
	return resp
}

func newBookResponses(books []entity.SaleBook) []bookResponse {
	out := make([]bookResponse, len(books))
	for i, b := range books {
		out[i] = newBookResponse(b)
	}
	return out
}

type orderLineResponse struct {
	BookID    int64  `json:"book_id"`
	Title     string `json:"title"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	LineTotal string `json:"line_total"`
}

type buyerSummary struct {
	ID          int64  `json:"user_id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
}

type orderResponse struct {
	ID             int64               `json:"order_id"`
	BuyerID        int64               `json:"user_id"`
	Lines          []orderLineResponse `json:"order_info"`
	Total          string              `json:"total_price"`
	TotalQuantity  int                 `json:"total_quantity"`
	Status         entity.OrderStatus  `json:"status"`
	ShipmentMethod string              `json:"shipment_method"`
	CreatedAt      time.Time           `json:"created_at"`
	Buyer          *buyerSummary       `json:"user,omitempty"`
}

func newOrderResponse(o *entity.Order) orderResponse {
	lines := make([]orderLineResponse, len(o.Lines))
	for i, l := range o.Lines {
		lines[i] = orderLineResponse{
			BookID:    l.BookID,
			Title:     l.Title,
			Quantity:  l.Quantity,
			UnitPrice: money(l.UnitPrice),
			LineTotal: money(l.LineTotal),
		}
	}
	resp := orderResponse{
		ID:             o.ID,
		BuyerID:        o.BuyerID,
		Lines:          lines,
		Total:          money(o.Total),
		TotalQuantity:  o.TotalQuantity(),
		Status:         o.Status,
		ShipmentMethod: o.ShipmentMethod,
		CreatedAt:      o.CreatedAt,
	}
	if o.Buyer != nil {
		resp.Buyer = &buyerSummary{
			ID:          o.Buyer.ID,
			Name:        o.Buyer.FullName(),
			Email:       o.Buyer.Email,
			PhoneNumber: o.Buyer.PhoneNumber,
		}
	}
	return resp
}

type summaryResponse struct {
	TotalUsers         int                 `json:"total_users"`
	TotalOrders        int                 `json:"total_orders"`
	TotalSales         string              `json:"total_sales"`
	OrdersPerMonth     [12]int             `json:"orders_per_month"`
	BestSellers        []entity.GenreSales `json:"best_seller_categories"`
	TradeBooksPerMonth [12]int             `json:"trades_per_month"`
}

func newSummaryResponse(s *entity.SalesSummary) summaryResponse {
	best := s.BestSellers
	if best == nil {
		best = []entity.GenreSales{}
	}
	return summaryResponse{
		TotalUsers:         s.TotalUsers,
		TotalOrders:        s.TotalOrders,
		TotalSales:         money(s.TotalSales),
		OrdersPerMonth:     s.OrdersPerMonth,
		BestSellers:        best,
		TradeBooksPerMonth: s.TradeBooksPerMonth,
	}
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Newf(apperr.InvalidInput, "%s must be a positive integer", name)
	}
	return id, nil
}
