package response

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	DefaultPageSize   = 15
	MaxPageSize       = 500
	CountQueryTimeout = 5 * time.Second
	DataQueryTimeout  = 3 * time.Second
)

// Pagination represents the pagination details in a response.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

// PaginatedResponse is the standard structure for all paginated API responses.
type PaginatedResponse struct {
	Items      any        `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// Paginate runs a paginated find plus count on a GORM query and returns a
// standardized response. Page parameters come from the request query string.
func Paginate(c *gin.Context, query *gorm.DB, dest any) (*PaginatedResponse, error) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(DefaultPageSize)))
	if err != nil || pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	countCtx, countCancel := context.WithTimeout(context.Background(), CountQueryTimeout)
	defer countCancel()

	var totalItems int64
	countQuery := query.Session(&gorm.Session{})
	if err := countQuery.WithContext(countCtx).Count(&totalItems).Error; err != nil {
		logrus.WithError(err).Warn("Pagination COUNT query failed")
		return nil, err
	}

	dataCtx, dataCancel := context.WithTimeout(context.Background(), DataQueryTimeout)
	defer dataCancel()

	offset := (page - 1) * pageSize
	dataQuery := query.Session(&gorm.Session{})
	if err := dataQuery.WithContext(dataCtx).Limit(pageSize).Offset(offset).Find(dest).Error; err != nil {
		logrus.WithError(err).Warn("Pagination data query failed")
		return nil, err
	}

	return &PaginatedResponse{
		Items: dest,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			TotalItems: totalItems,
			TotalPages: int(math.Ceil(float64(totalItems) / float64(pageSize))),
		},
	}, nil
}
