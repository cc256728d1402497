package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 20, p.PerPage)
	assert.Equal(t, 0, p.Offset)
}

func TestFromRequest_Defaults(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/expenses", nil)
	p := FromRequest(req)

	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 20, p.PerPage)
	assert.Equal(t, 0, p.Offset)
}

func TestFromRequest_CustomValues(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/expenses?page=3&per_page=50", nil)
	p := FromRequest(req)

	assert.Equal(t, 3, p.Page)
	assert.Equal(t, 50, p.PerPage)
	assert.Equal(t, 100, p.Offset) // (3-1) * 50
}

func TestFromRequest_Bounds(t *testing.T) {
	tests := []struct {
		query   string
		page    int
		perPage int
	}{
		{"page=-1", 1, 20},
		{"page=abc", 1, 20},
		{"per_page=0", 1, 1},
		{"per_page=500", 1, 100},
		{"per_page=xyz", 1, 20},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			p := FromRequest(httptest.NewRequest(http.MethodGet, "/expenses?"+tt.query, nil))
			assert.Equal(t, tt.page, p.Page)
			assert.Equal(t, tt.perPage, p.PerPage)
		})
	}
}

func TestNewPage_Middle(t *testing.T) {
	p := NewPage(45, Params{Page: 2, PerPage: 20, Offset: 20})

	assert.Equal(t, 3, p.Pages)
	assert.True(t, p.HasPrev)
	assert.True(t, p.HasNext)
	require.NotNil(t, p.PrevNum)
	require.NotNil(t, p.NextNum)
	assert.Equal(t, 1, *p.PrevNum)
	assert.Equal(t, 3, *p.NextNum)
}

func TestNewPage_Ends(t *testing.T) {
	first := NewPage(10, DefaultParams())
	assert.Equal(t, 1, first.Pages)
	assert.False(t, first.HasPrev)
	assert.False(t, first.HasNext)
	assert.Nil(t, first.PrevNum)
	assert.Nil(t, first.NextNum)

	empty := NewPage(0, DefaultParams())
	assert.Equal(t, 0, empty.Pages)
	assert.False(t, empty.HasNext)
}

func TestSlice(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	assert.Equal(t, []int{3, 4}, Slice(items, Params{Page: 2, PerPage: 2, Offset: 2}))
	assert.Equal(t, []int{5}, Slice(items, Params{Page: 3, PerPage: 2, Offset: 4}))
	assert.Empty(t, Slice(items, Params{Page: 9, PerPage: 2, Offset: 16}))
}
