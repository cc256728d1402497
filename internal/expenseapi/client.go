// Package expenseapi calls the category and expense endpoints through the
// authenticated gateway.
package expenseapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/utafrali/ExpenseGo/internal/domain"
	"github.com/utafrali/ExpenseGo/internal/gateway"
	apperrors "github.com/utafrali/ExpenseGo/pkg/errors"
	"github.com/utafrali/ExpenseGo/pkg/validator"
)

// Doer dispatches a gateway request. *gateway.Gateway satisfies it.
type Doer interface {
	DoJSON(ctx context.Context, req *gateway.Request, out any) error
}

// Client is the category and expense API.
type Client struct {
	gw Doer
}

// New creates a Client.
func New(gw Doer) *Client {
	return &Client{gw: gw}
}

// ListCategories returns the signed-in user's active categories.
func (c *Client) ListCategories(ctx context.Context) ([]domain.Category, error) {
	var out struct {
		Categories []domain.Category `json:"categories"`
		Total      int               `json:"total"`
	}
	if err := c.gw.DoJSON(ctx, &gateway.Request{Method: http.MethodGet, Path: "/categories"}, &out); err != nil {
		return nil, err
	}
	return out.Categories, nil
}

// CreateCategory validates in locally, then creates the category.
func (c *Client) CreateCategory(ctx context.Context, in domain.NewCategory) (*domain.Category, error) {
	if err := check(in); err != nil {
		return nil, err
	}
	var out struct {
		Category *domain.Category `json:"category"`
	}
	if err := c.gw.DoJSON(ctx, &gateway.Request{Method: http.MethodPost, Path: "/categories", Body: in}, &out); err != nil {
		return nil, err
	}
	if out.Category == nil {
		return nil, apperrors.Internal(errors.New("create category response has no category"))
	}
	return out.Category, nil
}

// ListExpenses returns one page of expenses matching q.
func (c *Client) ListExpenses(ctx context.Context, q domain.ExpenseQuery) (*domain.ExpensePage, error) {
	var out domain.ExpensePage
	req := &gateway.Request{Method: http.MethodGet, Path: "/expenses", Query: expenseValues(q)}
	if err := c.gw.DoJSON(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateExpense validates in locally, then records the expense.
func (c *Client) CreateExpense(ctx context.Context, in domain.NewExpense) (*domain.Expense, error) {
	if err := check(in); err != nil {
		return nil, err
	}
	var out struct {
		Expense *domain.Expense `json:"expense"`
	}
	if err := c.gw.DoJSON(ctx, &gateway.Request{Method: http.MethodPost, Path: "/expenses", Body: in}, &out); err != nil {
		return nil, err
	}
	if out.Expense == nil {
		return nil, apperrors.Internal(errors.New("create expense response has no expense"))
	}
	return out.Expense, nil
}

// Summary aggregates expenses between start and end (YYYY-MM-DD, either
// may be empty).
func (c *Client) Summary(ctx context.Context, start, end string) (*domain.Summary, error) {
	q := url.Values{}
	if start != "" {
		q.Set("start_date", start)
	}
	if end != "" {
		q.Set("end_date", end)
	}
	var out struct {
		Summary domain.Summary `json:"summary"`
	}
	if err := c.gw.DoJSON(ctx, &gateway.Request{Method: http.MethodGet, Path: "/expenses/summary", Query: q}, &out); err != nil {
		return nil, err
	}
	return &out.Summary, nil
}

func check(in any) error {
	err := validator.Validate(in)
	if err == nil {
		return nil
	}
	var ve *validator.ValidationError
	if errors.As(err, &ve) {
		return apperrors.Validation(ve.Fields())
	}
	return apperrors.Validation(nil)
}

func expenseValues(q domain.ExpenseQuery) url.Values {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PerPage > 0 {
		v.Set("per_page", strconv.Itoa(q.PerPage))
	}
	if q.CategoryID > 0 {
		v.Set("category_id", strconv.FormatInt(q.CategoryID, 10))
	}
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	set("start_date", q.StartDate)
	set("end_date", q.EndDate)
	set("search", q.Search)
	set("sort_by", q.SortBy)
	set("sort_order", q.SortOrder)
	return v
}
