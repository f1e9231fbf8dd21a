package middleware

import (
	"buddiepay/utils"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

func setRateLimitHeaders(h http.Header, limiter *utils.RateLimiter, key string) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(limiter.GetRemaining(key)))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(limiter.GetResetTime(key).Unix(), 10))
}

// RateLimit ограничивает частоту запросов к gin-маршрутам по IP клиента
func RateLimit(limiter *utils.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		if !limiter.Allow(clientIP) {
			setRateLimitHeaders(c.Writer.Header(), limiter, clientIP)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests",
				"reset": limiter.GetResetTime(clientIP),
			})
			return
		}

		setRateLimitHeaders(c.Writer.Header(), limiter, clientIP)
		c.Next()
	}
}

// RateLimitHandler то же самое для маршрутов mux. Ключом служит пользователь, если он известен.
func RateLimitHandler(limiter *utils.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.RemoteAddr
			if userID, err := GetUserFromContext(r); err == nil {
				key = "user:" + userID
			}

			if !limiter.Allow(key) {
				setRateLimitHeaders(w.Header(), limiter, key)
				utils.WriteJSON(w, http.StatusTooManyRequests, map[string]interface{}{
					"error": "Too many requests",
					"reset": limiter.GetResetTime(key),
				})
				return
			}

			setRateLimitHeaders(w.Header(), limiter, key)
			next.ServeHTTP(w, r)
		})
	}
}

// Logger логирует запросы к gin-маршрутам
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		utils.LogInfo("Request: %s %s - Status: %d - Duration: %v",
			c.Request.Method,
			c.Request.URL.Path,
			c.Writer.Status(),
			time.Since(startTime),
		)

		for _, e := range c.Errors {
			utils.LogError("Error: %v", e)
		}
	}
}

// Recovery перехватывает панику в обработчике и отвечает 500
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				utils.LogError("Panic recovered: %v", err)
				utils.GetMetrics().RecordError("http")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "Internal server error",
				})
			}
		}()

		c.Next()
	}
}
