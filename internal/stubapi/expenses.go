package stubapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/utafrali/ExpenseGo/internal/domain"
	"github.com/utafrali/ExpenseGo/pkg/httputil"
	"github.com/utafrali/ExpenseGo/pkg/pagination"
	"github.com/utafrali/ExpenseGo/pkg/validator"
)

// listCategories handles GET /categories
func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	stats := strings.EqualFold(r.URL.Query().Get("include_stats"), "true")
	cats := s.store.listCategories(currentUserID(r), stats)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"categories": cats,
		"total":      len(cats),
	})
}

// createCategory handles POST /categories
func (s *Server) createCategory(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)

	var in domain.NewCategory
	if err := validator.DecodeAndValidate(r, &in); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	cat, err := s.store.createCategory(currentUserID(r), in)
	if err != nil {
		httputil.WriteError(w, r, err, s.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{
		"message":  "Category created successfully",
		"category": cat,
	})
}

// listExpenses handles GET /expenses
func (s *Server) listExpenses(w http.ResponseWriter, r *http.Request) {
	items := s.store.filterExpenses(currentUserID(r), filterFrom(r))
	httputil.WriteJSON(w, http.StatusOK, paginate(items, pagination.FromRequest(r)))
}

// createExpense handles POST /expenses
func (s *Server) createExpense(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)

	var in domain.NewExpense
	if err := validator.DecodeAndValidate(r, &in); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	exp, err := s.store.createExpense(currentUserID(r), in)
	if err != nil {
		httputil.WriteError(w, r, err, s.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{
		"message": "Expense created successfully",
		"expense": exp,
	})
}

// summary handles GET /expenses/summary
func (s *Server) summary(w http.ResponseWriter, r *http.Request) {
	items := s.store.filterExpenses(currentUserID(r), filterFrom(r))
	httputil.WriteJSON(w, http.StatusOK, map[string]domain.Summary{"summary": summarize(items)})
}

func filterFrom(r *http.Request) expenseFilter {
	q := r.URL.Query()
	f := expenseFilter{
		start:  q.Get("start_date"),
		end:    q.Get("end_date"),
		search: q.Get("search"),
		sortBy: q.Get("sort_by"),
		desc:   !strings.EqualFold(q.Get("sort_order"), "asc"),
	}
	f.categoryID, _ = strconv.ParseInt(q.Get("category_id"), 10, 64)
	return f
}

func paginate(items []domain.Expense, params pagination.Params) domain.ExpensePage {
	return domain.ExpensePage{
		Items:      pagination.Slice(items, params),
		Pagination: domain.Pagination(pagination.NewPage(len(items), params)),
	}
}
