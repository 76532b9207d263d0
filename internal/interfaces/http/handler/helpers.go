package handler

import (
	"fmt"
	"time"

	"github.com/commledger/backend/internal/domain/billing"
	"github.com/commledger/backend/internal/domain/shared"
	"github.com/commledger/backend/internal/domain/shared/valueobject"
	"github.com/commledger/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// listFilter converts pagination query parameters to a repository filter
func listFilter(req dto.ListRequest) shared.Filter {
	filter := shared.DefaultFilter()
	filter.Page = req.Page
	filter.PageSize = req.PageSize
	filter.Search = req.Search
	return filter
}

// reportFilter resolves the report range query parameters. A period takes
// precedence over explicit from/to dates.
func reportFilter(c *gin.Context) (billing.ReportFilter, error) {
	var filter billing.ReportFilter
	filter.Search = c.Query("search")

	if raw := c.Query("period"); raw != "" {
		period, err := valueobject.ParsePeriod(raw)
		if err != nil {
			return filter, err
		}
		from, to := period.Range()
		filter.From = &from
		filter.To = &to
		return filter, nil
	}

	if raw := c.Query("from"); raw != "" {
		from, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return filter, fmt.Errorf("invalid from date %q", raw)
		}
		filter.From = &from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return filter, fmt.Errorf("invalid to date %q", raw)
		}
		// inclusive day bound
		to = to.Add(24 * time.Hour)
		filter.To = &to
	}
	return filter, nil
}

// setCSVHeaders prepares a CSV download response
func setCSVHeaders(c *gin.Context, fileName string) {
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
}
