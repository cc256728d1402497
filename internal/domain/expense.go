package domain

// DefaultCategoryColor is used when a category is created without a color.
const DefaultCategoryColor = "#6c757d"

// Category groups expenses for a user.
type Category struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Color       string  `json:"color"`
	Icon        string  `json:"icon,omitempty"`
	IsActive    bool    `json:"is_active"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   *string `json:"updated_at,omitempty"`

	ExpenseCount *int     `json:"expense_count,omitempty"`
	TotalAmount  *float64 `json:"total_amount,omitempty"`
}

// NewCategory is the input for creating a category.
type NewCategory struct {
	Name        string `json:"name" validate:"required,min=1,max=50"`
	Description string `json:"description,omitempty" validate:"max=200"`
	Color       string `json:"color,omitempty" validate:"omitempty,hexcolor,len=7"`
	Icon        string `json:"icon,omitempty" validate:"max=50"`
}

// Expense is a single spending record.
type Expense struct {
	ID              int64     `json:"id"`
	Amount          float64   `json:"amount"`
	FormattedAmount string    `json:"formatted_amount,omitempty"`
	Description     string    `json:"description"`
	Date            string    `json:"date"`
	Notes           *string   `json:"notes"`
	ReceiptURL      *string   `json:"receipt_url"`
	Tags            []string  `json:"tags"`
	IsRecurring     bool      `json:"is_recurring"`
	Category        *Category `json:"category,omitempty"`
	UserID          int64     `json:"user_id,omitempty"`
	CreatedAt       string    `json:"created_at"`
	UpdatedAt       *string   `json:"updated_at,omitempty"`
}

// NewExpense is the input for recording an expense. Date is YYYY-MM-DD.
type NewExpense struct {
	Amount      float64  `json:"amount" validate:"gt=0"`
	Description string   `json:"description" validate:"required,min=1,max=200"`
	Date        string   `json:"date" validate:"required,datetime=2006-01-02"`
	CategoryID  int64    `json:"category_id" validate:"required,gt=0"`
	Notes       string   `json:"notes,omitempty" validate:"max=1000"`
	Tags        []string `json:"tags,omitempty"`
	IsRecurring bool     `json:"is_recurring,omitempty"`
}

// ExpenseQuery filters an expense listing. Zero values are omitted.
type ExpenseQuery struct {
	Page       int
	PerPage    int
	CategoryID int64
	StartDate  string
	EndDate    string
	Search     string
	SortBy     string
	SortOrder  string
}

// Pagination describes a page of results.
type Pagination struct {
	Page    int  `json:"page"`
	PerPage int  `json:"per_page"`
	Total   int  `json:"total"`
	Pages   int  `json:"pages"`
	HasPrev bool `json:"has_prev"`
	HasNext bool `json:"has_next"`
	PrevNum *int `json:"prev_num"`
	NextNum *int `json:"next_num"`
}

// ExpensePage is one page of an expense listing.
type ExpensePage struct {
	Items      []Expense  `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// CategoryTotal is the per-category slice of a summary.
type CategoryTotal struct {
	Count      int     `json:"count"`
	Total      float64 `json:"total"`
	Percentage float64 `json:"percentage"`
}

// DateRange is the inclusive span of dates covered by a summary.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Summary aggregates a user's expenses.
type Summary struct {
	TotalAmount   float64                  `json:"total_amount"`
	TotalCount    int                      `json:"total_count"`
	AverageAmount float64                  `json:"average_amount"`
	Categories    map[string]CategoryTotal `json:"categories"`
	MonthlyTotals map[string]float64       `json:"monthly_totals"`
	DateRange     *DateRange               `json:"date_range"`
}
