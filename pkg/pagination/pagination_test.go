package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestParseParams(t *testing.T) {
	tests := []struct {
		name           string
		queryString    string
		expectedLimit  int
		expectedOffset int
	}{
		{
			name:           "no params uses defaults",
			queryString:    "",
			expectedLimit:  DefaultLimit,
			expectedOffset: DefaultOffset,
		},
		{
			name:           "valid limit and offset",
			queryString:    "limit=10&offset=20",
			expectedLimit:  10,
			expectedOffset: 20,
		},
		{
			name:           "zero limit uses default",
			queryString:    "limit=0",
			expectedLimit:  DefaultLimit,
			expectedOffset: DefaultOffset,
		},
		{
			name:           "negative limit uses default",
			queryString:    "limit=-10",
			expectedLimit:  DefaultLimit,
			expectedOffset: DefaultOffset,
		},
		{
			name:           "limit exceeds max",
			queryString:    "limit=200",
			expectedLimit:  MaxLimit,
			expectedOffset: DefaultOffset,
		},
		{
			name:           "negative offset uses default",
			queryString:    "offset=-10",
			expectedLimit:  DefaultLimit,
			expectedOffset: DefaultOffset,
		},
		{
			name:           "non-numeric values use defaults",
			queryString:    "limit=abc&offset=xyz",
			expectedLimit:  DefaultLimit,
			expectedOffset: DefaultOffset,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request, _ = http.NewRequest("GET", "/?"+tt.queryString, nil)

			params := ParseParams(c)

			if params.Limit != tt.expectedLimit {
				t.Errorf("Limit = %d, want %d", params.Limit, tt.expectedLimit)
			}
			if params.Offset != tt.expectedOffset {
				t.Errorf("Offset = %d, want %d", params.Offset, tt.expectedOffset)
			}
		})
	}
}

func TestBuildMeta(t *testing.T) {
	tests := []struct {
		name               string
		limit              int
		offset             int
		total              int64
		expectedTotalPages int
	}{
		{name: "first page with 100 items", limit: 10, offset: 0, total: 100, expectedTotalPages: 10},
		{name: "partial last page", limit: 10, offset: 0, total: 25, expectedTotalPages: 3},
		{name: "no items", limit: 10, offset: 0, total: 0, expectedTotalPages: 0},
		{name: "zero limit", limit: 0, offset: 0, total: 100, expectedTotalPages: 0},
		{name: "limit greater than total", limit: 50, offset: 0, total: 10, expectedTotalPages: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := BuildMeta(tt.limit, tt.offset, tt.total)

			if meta.Limit != tt.limit {
				t.Errorf("Limit = %d, want %d", meta.Limit, tt.limit)
			}
			if meta.Offset != tt.offset {
				t.Errorf("Offset = %d, want %d", meta.Offset, tt.offset)
			}
			if meta.Total != tt.total {
				t.Errorf("Total = %d, want %d", meta.Total, tt.total)
			}
			if meta.TotalPages != tt.expectedTotalPages {
				t.Errorf("TotalPages = %d, want %d", meta.TotalPages, tt.expectedTotalPages)
			}
		})
	}
}

func TestHasMore(t *testing.T) {
	tests := []struct {
		name     string
		offset   int
		limit    int
		total    int64
		expected bool
	}{
		{name: "first page has more", offset: 0, limit: 10, total: 100, expected: true},
		{name: "last page no more", offset: 90, limit: 10, total: 100, expected: false},
		{name: "offset past total", offset: 110, limit: 10, total: 100, expected: false},
		{name: "no items", offset: 0, limit: 10, total: 0, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := HasMore(tt.offset, tt.limit, tt.total)
			if result != tt.expected {
				t.Errorf("HasMore(%d, %d, %d) = %v, want %v", tt.offset, tt.limit, tt.total, result, tt.expected)
			}
		})
	}
}

func TestGetCurrentPage(t *testing.T) {
	tests := []struct {
		name     string
		offset   int
		limit    int
		expected int
	}{
		{name: "first page", offset: 0, limit: 10, expected: 1},
		{name: "second page", offset: 10, limit: 10, expected: 2},
		{name: "partial offset", offset: 15, limit: 10, expected: 2},
		{name: "zero limit returns 1", offset: 10, limit: 0, expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := GetCurrentPage(tt.offset, tt.limit)
			if result != tt.expected {
				t.Errorf("GetCurrentPage(%d, %d) = %d, want %d", tt.offset, tt.limit, result, tt.expected)
			}
		})
	}
}
