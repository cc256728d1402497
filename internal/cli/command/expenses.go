package command

import (
	"fmt"
	"sort"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/utafrali/ExpenseGo/internal/domain"
)

// CategoriesCommand returns the category subcommand group.
func CategoriesCommand() *cli.Command {
	return &cli.Command{
		Name:    "categories",
		Aliases: []string{"cat"},
		Usage:   "Manage expense categories",
		Subcommands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List categories",
				Action: categoriesList,
			},
			{
				Name:  "create",
				Usage: "Create a category",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Category name", Required: true},
					&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Usage: "Description"},
					&cli.StringFlag{Name: "color", Usage: "Color as #RRGGBB"},
					&cli.StringFlag{Name: "icon", Usage: "Icon"},
				},
				Action: categoriesCreate,
			},
		},
	}
}

func categoriesList(c *cli.Context) error {
	cl, err := requireSession(c)
	if err != nil {
		return err
	}
	cats, err := cl.Expenses.ListCategories(c.Context)
	if err != nil {
		return apiError(err, "Failed to load categories")
	}

	rows := make([][]string, 0, len(cats))
	for _, cat := range cats {
		count, total := "0", money(0)
		if cat.ExpenseCount != nil {
			count = fmt.Sprint(*cat.ExpenseCount)
		}
		if cat.TotalAmount != nil {
			total = money(*cat.TotalAmount)
		}
		rows = append(rows, []string{fmt.Sprint(cat.ID), cat.Icon + " " + cat.Name, cat.Color, count, total})
	}
	return newPrinter(c).emit(cats, []string{"ID", "NAME", "COLOR", "EXPENSES", "TOTAL"}, rows)
}

func categoriesCreate(c *cli.Context) error {
	cl, err := requireSession(c)
	if err != nil {
		return err
	}
	cat, err := cl.Expenses.CreateCategory(c.Context, domain.NewCategory{
		Name:        c.String("name"),
		Description: c.String("description"),
		Color:       c.String("color"),
		Icon:        c.String("icon"),
	})
	if err != nil {
		return apiError(err, "Failed to create category")
	}
	return newPrinter(c).emit(cat, nil, [][]string{{"Created category", fmt.Sprint(cat.ID), cat.Name}})
}

// ExpensesCommand returns the expense subcommand group.
func ExpensesCommand() *cli.Command {
	return &cli.Command{
		Name:    "expenses",
		Aliases: []string{"exp"},
		Usage:   "Record and browse expenses",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List expenses",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "page", Value: 1, Usage: "Page number"},
					&cli.IntFlag{Name: "per-page", Value: 20, Usage: "Page size (max 100)"},
					&cli.Int64Flag{Name: "category", Aliases: []string{"c"}, Usage: "Filter by category ID"},
					&cli.StringFlag{Name: "start", Usage: "First date (YYYY-MM-DD)"},
					&cli.StringFlag{Name: "end", Usage: "Last date (YYYY-MM-DD)"},
					&cli.StringFlag{Name: "search", Aliases: []string{"s"}, Usage: "Match description or notes"},
					&cli.StringFlag{Name: "sort", Usage: "Sort by: date, amount, description"},
					&cli.StringFlag{Name: "order", Usage: "Sort order: asc, desc"},
				},
				Action: expensesList,
			},
			{
				Name:  "create",
				Usage: "Record an expense",
				Flags: []cli.Flag{
					&cli.Float64Flag{Name: "amount", Aliases: []string{"a"}, Usage: "Amount", Required: true},
					&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Usage: "Description", Required: true},
					&cli.Int64Flag{Name: "category", Aliases: []string{"c"}, Usage: "Category ID", Required: true},
					&cli.StringFlag{Name: "date", Usage: "Date (YYYY-MM-DD, default today)"},
					&cli.StringFlag{Name: "notes", Usage: "Notes"},
					&cli.StringSliceFlag{Name: "tag", Aliases: []string{"t"}, Usage: "Tag (repeatable)"},
					&cli.BoolFlag{Name: "recurring", Usage: "Mark as recurring"},
				},
				Action: expensesCreate,
			},
			{
				Name:  "summary",
				Usage: "Summarize spending",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "start", Usage: "First date (YYYY-MM-DD)"},
					&cli.StringFlag{Name: "end", Usage: "Last date (YYYY-MM-DD)"},
				},
				Action: expensesSummary,
			},
		},
	}
}

func expensesList(c *cli.Context) error {
	cl, err := requireSession(c)
	if err != nil {
		return err
	}
	page, err := cl.Expenses.ListExpenses(c.Context, domain.ExpenseQuery{
		Page:       c.Int("page"),
		PerPage:    c.Int("per-page"),
		CategoryID: c.Int64("category"),
		StartDate:  c.String("start"),
		EndDate:    c.String("end"),
		Search:     c.String("search"),
		SortBy:     c.String("sort"),
		SortOrder:  c.String("order"),
	})
	if err != nil {
		return apiError(err, "Failed to load expenses")
	}

	p := newPrinter(c)
	if p.json {
		return p.emit(page, nil, nil)
	}
	rows := make([][]string, 0, len(page.Items))
	for _, e := range page.Items {
		category := ""
		if e.Category != nil {
			category = e.Category.Name
		}
		rows = append(rows, []string{fmt.Sprint(e.ID), e.Date, money(e.Amount), category, e.Description})
	}
	if err := p.table([]string{"ID", "DATE", "AMOUNT", "CATEGORY", "DESCRIPTION"}, rows); err != nil {
		return err
	}
	pg := page.Pagination
	_, err = fmt.Fprintf(c.App.Writer, "page %d of %d (%d total)\n", pg.Page, max(pg.Pages, 1), pg.Total)
	return err
}

func expensesCreate(c *cli.Context) error {
	cl, err := requireSession(c)
	if err != nil {
		return err
	}
	date := c.String("date")
	if date == "" {
		date = time.Now().Format(time.DateOnly)
	}
	e, err := cl.Expenses.CreateExpense(c.Context, domain.NewExpense{
		Amount:      c.Float64("amount"),
		Description: c.String("description"),
		Date:        date,
		CategoryID:  c.Int64("category"),
		Notes:       c.String("notes"),
		Tags:        c.StringSlice("tag"),
		IsRecurring: c.Bool("recurring"),
	})
	if err != nil {
		return apiError(err, "Failed to create expense")
	}
	return newPrinter(c).emit(e, nil, [][]string{{"Recorded expense", fmt.Sprint(e.ID), e.Date, money(e.Amount), e.Description}})
}

func expensesSummary(c *cli.Context) error {
	cl, err := requireSession(c)
	if err != nil {
		return err
	}
	sum, err := cl.Expenses.Summary(c.Context, c.String("start"), c.String("end"))
	if err != nil {
		return apiError(err, "Failed to load summary")
	}

	p := newPrinter(c)
	if p.json {
		return p.emit(sum, nil, nil)
	}
	if err := p.table(nil, [][]string{
		{"Total:", money(sum.TotalAmount)},
		{"Count:", fmt.Sprint(sum.TotalCount)},
		{"Average:", money(sum.AverageAmount)},
	}); err != nil {
		return err
	}
	if len(sum.Categories) == 0 {
		return nil
	}

	names := make([]string, 0, len(sum.Categories))
	for name := range sum.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	rows := make([][]string, 0, len(names))
	for _, name := range names {
		ct := sum.Categories[name]
		rows = append(rows, []string{name, fmt.Sprint(ct.Count), money(ct.Total), fmt.Sprintf("%.1f%%", ct.Percentage)})
	}
	fmt.Fprintln(c.App.Writer)
	return p.table([]string{"CATEGORY", "COUNT", "TOTAL", "SHARE"}, rows)
}
