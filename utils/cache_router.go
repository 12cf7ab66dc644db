package utils

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	CacheNoCache = 0
	CacheCustom  = -1 // handler sets its own header
	CacheWeek    = 7 * 24 * 3600
)

// CacheRouter sets the Cache-Control header for a group of routes
type CacheRouter struct {
	CacheTime int // seconds, CacheNoCache by default
}

func (cr CacheRouter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if cr.CacheTime != CacheCustom {
			SetCacheTime(c, cr.CacheTime)
		}
		c.Next()
	}
}

// SetCacheTime marks the response private; sessions decide who may see it
func SetCacheTime(c *gin.Context, seconds int) {
	if seconds <= 0 {
		c.Header("Cache-Control", "no-cache")
		return
	}
	c.Header("Cache-Control", "private, max-age="+strconv.Itoa(seconds))
}
