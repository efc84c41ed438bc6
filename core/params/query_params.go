package params

import (
	"strconv"

	"homeschool-api/core/constants"

	"github.com/labstack/echo/v4"
)

type QueryParams struct {
	PageNumber int
	PageSize   int
}

func NewQueryParams(ctx echo.Context) *QueryParams {
	return &QueryParams{
		PageNumber: parsePositive(ctx.QueryParam("page"), constants.DefaultPageNumber, 0),
		PageSize:   parsePositive(ctx.QueryParam("limit"), constants.DefaultPageSize, constants.MaxPageSize),
	}
}

func (p QueryParams) Offset() int {
	return (p.PageNumber - 1) * p.PageSize
}

func parsePositive(raw string, fallback, max int) int {
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return fallback
	}
	if max > 0 && v > max {
		return max
	}
	return v
}
