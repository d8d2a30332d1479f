package rest

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"
)

// parseIDParam reads a positive int64 path parameter, writing a 400
// response on failure.
func parseIDParam(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// idSetSlice flattens an ID set into a sorted slice for stable JSON.
func idSetSlice(set map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
