// Package httpapi mounts the Bayeux dispatcher and a small admin API on a
// gin router, following the route-group and CORS layout of the teacher's
// cmd/server/main.go.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/xtroce/sioux/internal/adminauth"
	"github.com/xtroce/sioux/internal/bayeux"
	"github.com/xtroce/sioux/internal/logger"
	"github.com/xtroce/sioux/internal/pubsub"
)

// Options configures the router.
type Options struct {
	AllowedOrigins []string
	// AdminSecretHash is the bcrypt hash of the admin bootstrap secret
	// (adminauth.HashSecret), checked against the plaintext secret a
	// caller presents to POST /admin/token.
	AdminSecretHash string
	AdminManager    *adminauth.Manager
}

// New builds the gin engine mounting the Bayeux endpoint and the admin
// API, CORS-wrapped exactly as cmd/server/main.go wraps its own router.
func New(dispatcher *bayeux.Dispatcher, registry *pubsub.Registry, connector *bayeux.Connector, opts Options) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     opts.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"*"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "sioux bayeux server")
	})

	bayeuxHandler := handleBayeux(dispatcher)
	router.POST("/bayeux", bayeuxHandler)
	router.GET("/bayeux", bayeuxHandler)
	router.POST("/bayeux/*any", bayeuxHandler)
	router.GET("/bayeux/*any", bayeuxHandler)

	admin := router.Group("/admin")
	admin.POST("/token", handleIssueToken(opts.AdminSecretHash, opts.AdminManager))
	admin.Use(adminauth.RequireBearerToken(opts.AdminManager))
	{
		admin.POST("/nodes/*channel", handleUpdateNode(registry))
		admin.GET("/status", handleStatus(connector))
	}

	return router
}

// requestLogger mirrors the teacher's middleware.LoggingMiddleware shape:
// one structured line per request through internal/logger instead of
// gin's default writer.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Infof("%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

func handleBayeux(dispatcher *bayeux.Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body []byte
		var query = c.Request.URL.Query()
		useQuery := c.Request.Method == http.MethodGet

		if !useQuery {
			b, err := io.ReadAll(c.Request.Body)
			if err != nil {
				closeWithoutResponse(c)
				return
			}
			body = b
		}

		var queryValues = query
		if !useQuery {
			queryValues = nil
		}

		result, err := dispatcher.Dispatch(c.Request.RemoteAddr, c.ContentType(), body, queryValues)
		if err != nil {
			closeWithoutResponse(c)
			return
		}

		if result.Response != nil {
			writeBatch(c, result.Response.Wait())
			return
		}
		writeBatch(c, result.Payload)
	}
}

// writeBatch serializes the reply/event batch as a bare JSON array, per
// spec §4.5's response contract (no envelope object).
func writeBatch(c *gin.Context, messages []json.RawMessage) {
	if messages == nil {
		messages = []json.RawMessage{}
	}
	body, err := json.Marshal(messages)
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}

// closeWithoutResponse implements spec §9's current malformed-body
// behavior: the connection closes without a reply, rather than sending
// any HTTP status.
func closeWithoutResponse(c *gin.Context) {
	// gin's writer always has a Hijack method; only the writer it wraps
	// tells whether hijacking can work.
	var w http.ResponseWriter = c.Writer
	if u, ok := w.(interface{ Unwrap() http.ResponseWriter }); ok {
		w = u.Unwrap()
	}
	if _, ok := w.(http.Hijacker); !ok {
		c.Status(http.StatusBadRequest)
		return
	}
	conn, _, err := c.Writer.Hijack()
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	conn.Close()
}
