package stubapi

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/utafrali/ExpenseGo/internal/domain"
	apperrors "github.com/utafrali/ExpenseGo/pkg/errors"
)

var (
	errEmailTaken    = apperrors.Conflict("Email already registered")
	errUsernameTaken = apperrors.Conflict("Username already taken")
	errCategoryTaken = apperrors.Conflict("Category name already exists")
	errNoCategory    = apperrors.NotFound("Category not found")
)

const timeLayout = "2006-01-02T15:04:05.000000"

type account struct {
	user     domain.User
	password []byte
}

type expenseFilter struct {
	categoryID int64
	start, end string
	search     string
	sortBy     string
	desc       bool
}

// memStore is the stub's data, partitioned by user.
type memStore struct {
	mu         sync.RWMutex
	now        func() time.Time
	nextID     int64
	accounts   map[int64]*account
	byEmail    map[string]int64
	byUsername map[string]int64
	categories map[int64][]*domain.Category
	expenses   map[int64][]*domain.Expense
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{
		now:        now,
		accounts:   make(map[int64]*account),
		byEmail:    make(map[string]int64),
		byUsername: make(map[string]int64),
		categories: make(map[int64][]*domain.Category),
		expenses:   make(map[int64][]*domain.Expense),
	}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) stamp() string {
	return s.now().UTC().Format(timeLayout)
}

func (s *memStore) createUser(u domain.User, hash []byte) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(u.Email)
	if _, ok := s.byEmail[email]; ok {
		return domain.User{}, errEmailTaken
	}
	if _, ok := s.byUsername[u.Username]; ok {
		return domain.User{}, errUsernameTaken
	}

	u.ID = s.id()
	u.Email = email
	u.FullName = strings.TrimSpace(u.FirstName + " " + u.LastName)
	u.IsActive = true
	u.CreatedAt = s.stamp()
	s.accounts[u.ID] = &account{user: u, password: hash}
	s.byEmail[email] = u.ID
	s.byUsername[u.Username] = u.ID
	return u, nil
}

func (s *memStore) accountByEmail(email string) (*account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, false
	}
	a := *s.accounts[id]
	return &a, true
}

func (s *memStore) user(id int64) (domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return domain.User{}, false
	}
	return a.user, true
}

func (s *memStore) createCategory(userID int64, in domain.NewCategory) (domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.categories[userID] {
		if strings.EqualFold(c.Name, in.Name) {
			return domain.Category{}, errCategoryTaken
		}
	}
	c := &domain.Category{
		ID:        s.id(),
		Name:      in.Name,
		Color:     in.Color,
		Icon:      in.Icon,
		IsActive:  true,
		CreatedAt: s.stamp(),
	}
	if in.Description != "" {
		d := in.Description
		c.Description = &d
	}
	if c.Color == "" {
		c.Color = domain.DefaultCategoryColor
	}
	if c.Icon == "" {
		c.Icon = "📁"
	}
	s.categories[userID] = append(s.categories[userID], c)
	return s.withStatsLocked(userID, c), nil
}

func (s *memStore) listCategories(userID int64, stats bool) []domain.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Category, 0, len(s.categories[userID]))
	for _, c := range s.categories[userID] {
		if stats {
			out = append(out, s.withStatsLocked(userID, c))
		} else {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *memStore) categoryLocked(userID, id int64) (*domain.Category, bool) {
	for _, c := range s.categories[userID] {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

func (s *memStore) withStatsLocked(userID int64, c *domain.Category) domain.Category {
	var count int
	var total float64
	for _, e := range s.expenses[userID] {
		if e.Category != nil && e.Category.ID == c.ID {
			count++
			total += e.Amount
		}
	}
	out := *c
	out.ExpenseCount = &count
	out.TotalAmount = &total
	return out
}

func (s *memStore) createExpense(userID int64, in domain.NewExpense) (domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cat, ok := s.categoryLocked(userID, in.CategoryID)
	if !ok {
		return domain.Expense{}, errNoCategory
	}
	catCopy := *cat
	e := &domain.Expense{
		ID:              s.id(),
		Amount:          round2(in.Amount),
		FormattedAmount: fmt.Sprintf("$%.2f", in.Amount),
		Description:     in.Description,
		Date:            in.Date,
		Tags:            in.Tags,
		IsRecurring:     in.IsRecurring,
		Category:        &catCopy,
		UserID:          userID,
		CreatedAt:       s.stamp(),
	}
	if e.Tags == nil {
		e.Tags = []string{}
	}
	if in.Notes != "" {
		n := in.Notes
		e.Notes = &n
	}
	s.expenses[userID] = append(s.expenses[userID], e)
	return *e, nil
}

func (s *memStore) filterExpenses(userID int64, f expenseFilter) []domain.Expense {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(f.search)
	var out []domain.Expense
	for _, e := range s.expenses[userID] {
		if f.categoryID > 0 && (e.Category == nil || e.Category.ID != f.categoryID) {
			continue
		}
		if f.start != "" && e.Date < f.start {
			continue
		}
		if f.end != "" && e.Date > f.end {
			continue
		}
		if search != "" && !matches(e, search) {
			continue
		}
		out = append(out, *e)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := &out[i], &out[j]
		if f.desc {
			a, b = b, a
		}
		switch f.sortBy {
		case "amount":
			return a.Amount < b.Amount
		case "description":
			return a.Description < b.Description
		case "created_at":
			return a.CreatedAt < b.CreatedAt
		default:
			return a.Date < b.Date
		}
	})
	return out
}

func matches(e *domain.Expense, search string) bool {
	if strings.Contains(strings.ToLower(e.Description), search) {
		return true
	}
	if e.Notes != nil && strings.Contains(strings.ToLower(*e.Notes), search) {
		return true
	}
	return e.Category != nil && strings.Contains(strings.ToLower(e.Category.Name), search)
}

func summarize(items []domain.Expense) domain.Summary {
	s := domain.Summary{
		TotalCount:    len(items),
		Categories:    map[string]domain.CategoryTotal{},
		MonthlyTotals: map[string]float64{},
	}
	for _, e := range items {
		s.TotalAmount += e.Amount
		name := "Uncategorized"
		if e.Category != nil {
			name = e.Category.Name
		}
		ct := s.Categories[name]
		ct.Count++
		ct.Total += e.Amount
		s.Categories[name] = ct
		if len(e.Date) >= 7 {
			s.MonthlyTotals[e.Date[:7]] = round2(s.MonthlyTotals[e.Date[:7]] + e.Amount)
		}
		if s.DateRange == nil {
			s.DateRange = &domain.DateRange{Start: e.Date, End: e.Date}
		}
		if e.Date < s.DateRange.Start {
			s.DateRange.Start = e.Date
		}
		if e.Date > s.DateRange.End {
			s.DateRange.End = e.Date
		}
	}
	s.TotalAmount = round2(s.TotalAmount)
	if s.TotalCount > 0 {
		s.AverageAmount = round2(s.TotalAmount / float64(s.TotalCount))
	}
	for name, ct := range s.Categories {
		ct.Total = round2(ct.Total)
		if s.TotalAmount > 0 {
			ct.Percentage = round2(ct.Total / s.TotalAmount * 100)
		}
		s.Categories[name] = ct
	}
	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
