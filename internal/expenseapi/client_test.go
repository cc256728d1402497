package expenseapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/ExpenseGo/internal/domain"
	"github.com/utafrali/ExpenseGo/internal/gateway"
	apperrors "github.com/utafrali/ExpenseGo/pkg/errors"
	"github.com/utafrali/ExpenseGo/pkg/httpclient"
)

type call struct {
	method string
	path   string
	query  url.Values
	body   map[string]any
}

func newClient(t *testing.T, status int, reply string) (*Client, *[]call) {
	t.Helper()
	var calls []call
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := call{method: r.Method, path: r.URL.Path, query: r.URL.Query()}
		if r.ContentLength > 0 {
			_ = json.NewDecoder(r.Body).Decode(&c.body)
		}
		calls = append(calls, c)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)

	gw, err := gateway.New(srv.URL, httpclient.New(httpclient.Config{Timeout: 5 * time.Second}), gateway.Options{})
	require.NoError(t, err)
	return New(gw), &calls
}

func TestListCategories(t *testing.T) {
	c, calls := newClient(t, http.StatusOK, `{"categories":[{"id":1,"name":"Food","color":"#6c757d","is_active":true,"expense_count":3,"total_amount":42.5}],"total":1}`)

	cats, err := c.ListCategories(context.Background())
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "Food", cats[0].Name)
	require.NotNil(t, cats[0].ExpenseCount)
	assert.Equal(t, 3, *cats[0].ExpenseCount)
	assert.Equal(t, "/categories", (*calls)[0].path)
}

func TestCreateCategory(t *testing.T) {
	c, calls := newClient(t, http.StatusCreated, `{"message":"Category created successfully","category":{"id":7,"name":"Travel","color":"#ff0000"}}`)

	cat, err := c.CreateCategory(context.Background(), domain.NewCategory{Name: "Travel", Color: "#ff0000"})
	require.NoError(t, err)
	assert.Equal(t, int64(7), cat.ID)
	assert.Equal(t, "Travel", (*calls)[0].body["name"])
	assert.Equal(t, http.MethodPost, (*calls)[0].method)
}

func TestCreateCategory_ValidationIsLocal(t *testing.T) {
	c, calls := newClient(t, http.StatusCreated, `{}`)

	_, err := c.CreateCategory(context.Background(), domain.NewCategory{Name: "", Color: "red"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "is required", appErr.Fields["name"])
	assert.Contains(t, appErr.Fields, "color")
	assert.Empty(t, *calls)
}

func TestCreateCategory_Conflict(t *testing.T) {
	c, _ := newClient(t, http.StatusConflict, `{"error":"Category name already exists"}`)

	_, err := c.CreateCategory(context.Background(), domain.NewCategory{Name: "Food"})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Equal(t, "Category name already exists", apperrors.Message(err, ""))
}

func TestListExpenses_EncodesQuery(t *testing.T) {
	c, calls := newClient(t, http.StatusOK, `{"items":[{"id":1,"amount":12.5,"description":"Lunch","date":"2024-05-01"}],"pagination":{"page":2,"per_page":10,"total":11,"pages":2,"has_prev":true,"has_next":false,"prev_num":1,"next_num":null}}`)

	page, err := c.ListExpenses(context.Background(), domain.ExpenseQuery{
		Page: 2, PerPage: 10, CategoryID: 3, StartDate: "2024-05-01", Search: "lunch",
	})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 12.5, page.Items[0].Amount)
	assert.True(t, page.Pagination.HasPrev)
	require.NotNil(t, page.Pagination.PrevNum)
	assert.Equal(t, 1, *page.Pagination.PrevNum)
	assert.Nil(t, page.Pagination.NextNum)

	q := (*calls)[0].query
	assert.Equal(t, "2", q.Get("page"))
	assert.Equal(t, "10", q.Get("per_page"))
	assert.Equal(t, "3", q.Get("category_id"))
	assert.Equal(t, "2024-05-01", q.Get("start_date"))
	assert.Equal(t, "lunch", q.Get("search"))
	assert.False(t, q.Has("end_date"))
}

func TestCreateExpense(t *testing.T) {
	c, calls := newClient(t, http.StatusCreated, `{"message":"Expense created successfully","expense":{"id":9,"amount":20,"description":"Taxi","date":"2024-05-02"}}`)

	exp, err := c.CreateExpense(context.Background(), domain.NewExpense{
		Amount: 20, Description: "Taxi", Date: "2024-05-02", CategoryID: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(9), exp.ID)
	assert.Equal(t, float64(2), (*calls)[0].body["category_id"])
}

func TestCreateExpense_Validation(t *testing.T) {
	c, calls := newClient(t, http.StatusCreated, `{}`)

	_, err := c.CreateExpense(context.Background(), domain.NewExpense{Amount: -1, Date: "05/02/2024"})
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "must be greater than 0", appErr.Fields["amount"])
	assert.Equal(t, "is required", appErr.Fields["description"])
	assert.Contains(t, appErr.Fields, "date")
	assert.Equal(t, "is required", appErr.Fields["category_id"])
	assert.Empty(t, *calls)
}

func TestSummary(t *testing.T) {
	c, calls := newClient(t, http.StatusOK, `{"summary":{"total_amount":30,"total_count":2,"average_amount":15,"categories":{"Food":{"count":2,"total":30,"percentage":100}},"monthly_totals":{"2024-05":30},"date_range":{"start":"2024-05-01","end":"2024-05-02"}}}`)

	s, err := c.Summary(context.Background(), "2024-05-01", "")
	require.NoError(t, err)
	assert.Equal(t, 30.0, s.TotalAmount)
	assert.Equal(t, 100.0, s.Categories["Food"].Percentage)
	assert.Equal(t, 30.0, s.MonthlyTotals["2024-05"])
	require.NotNil(t, s.DateRange)
	assert.Equal(t, "2024-05-02", s.DateRange.End)

	assert.Equal(t, "/expenses/summary", (*calls)[0].path)
	assert.Equal(t, "2024-05-01", (*calls)[0].query.Get("start_date"))
	assert.False(t, (*calls)[0].query.Has("end_date"))
}

func TestSummary_EmptyHasNoDateRange(t *testing.T) {
	c, _ := newClient(t, http.StatusOK, `{"summary":{"total_amount":0,"total_count":0,"average_amount":0,"categories":{},"monthly_totals":{},"date_range":null}}`)

	s, err := c.Summary(context.Background(), "", "")
	require.NoError(t, err)
	assert.Nil(t, s.DateRange)
}
