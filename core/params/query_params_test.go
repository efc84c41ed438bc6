package params

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func newContext(target string) echo.Context {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return echo.New().NewContext(req, httptest.NewRecorder())
}

func TestNewQueryParams(t *testing.T) {
	p := NewQueryParams(newContext("/?page=3&limit=50"))
	assert.Equal(t, 3, p.PageNumber)
	assert.Equal(t, 50, p.PageSize)
	assert.Equal(t, 100, p.Offset())
}

func TestNewQueryParams_Defaults(t *testing.T) {
	p := NewQueryParams(newContext("/?page=-1&limit=abc"))
	assert.Equal(t, 1, p.PageNumber)
	assert.Equal(t, 20, p.PageSize)
}

func TestNewQueryParams_CapsPageSize(t *testing.T) {
	p := NewQueryParams(newContext("/?limit=5000"))
	assert.Equal(t, 100, p.PageSize)
}
