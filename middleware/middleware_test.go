package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SNU-SE/analysisq/common"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type bindTarget struct {
	PaperID   string   `json:"paper_id" validate:"required"`
	Providers []string `json:"providers" validate:"required,min=1"`
}

func TestBind(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		body           string
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "valid body binds",
			body:           `{"paper_id":"p1","providers":["openai"]}`,
			expectedStatus: http.StatusOK,
			expectedBody:   `{"paper_id":"p1"}`,
		},
		{
			name:           "malformed json",
			body:           `{not json}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "missing required field",
			body:           `{"providers":["openai"]}`,
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"error":"validation failed","fields":{"PaperID":"failed required"}}`,
		},
		{
			name:           "empty provider list",
			body:           `{"paper_id":"p1","providers":[]}`,
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"error":"validation failed","fields":{"Providers":"failed min"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(ErrorHandler())
			r.POST("/bind", func(c *gin.Context) {
				var target bindTarget
				if !Bind(c, &target) {
					c.Abort()
					return
				}
				c.JSON(http.StatusOK, gin.H{"paper_id": target.PaperID})
			})

			req := httptest.NewRequest(http.MethodPost, "/bind", bytes.NewReader([]byte(tt.body)))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedBody != "" {
				assert.JSONEq(t, tt.expectedBody, w.Body.String())
			}
		})
	}
}

func TestErrorHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "api error keeps its status and message",
			err:            common.Errf(http.StatusConflict, "only failed jobs can be retried"),
			expectedStatus: http.StatusConflict,
			expectedBody:   `{"error":"only failed jobs can be retried"}`,
		},
		{
			name: "api error carries fields",
			err: common.Errf(http.StatusBadRequest, "unknown provider").
				WithFields(map[string]any{"provided": "grok"}),
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"error":"unknown provider","fields":{"provided":"grok"}}`,
		},
		{
			name:           "plain error falls back to 500",
			err:            errors.New("boom"),
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"error":"boom"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(ErrorHandler())
			r.GET("/fail", func(c *gin.Context) {
				c.Error(tt.err)
			})

			req := httptest.NewRequest(http.MethodGet, "/fail", nil)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
		})
	}
}

func TestTimeoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("handler sees a deadline", func(t *testing.T) {
		r := gin.New()
		r.Use(TimeoutMiddleware(5 * time.Second))
		r.GET("/check", func(c *gin.Context) {
			_, ok := c.Request.Context().Deadline()
			assert.True(t, ok, "request context must carry a deadline")
			c.Status(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodGet, "/check", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("expired deadline surfaces as DeadlineExceeded", func(t *testing.T) {
		var got error
		r := gin.New()
		r.Use(TimeoutMiddleware(time.Nanosecond))
		r.GET("/slow", func(c *gin.Context) {
			<-c.Request.Context().Done()
			got = c.Request.Context().Err()
			c.Status(http.StatusRequestTimeout)
		})

		req := httptest.NewRequest(http.MethodGet, "/slow", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		require.ErrorIs(t, got, context.DeadlineExceeded)
	})
}

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)

	serve := func(status int, handlerErr error) *observer.ObservedLogs {
		core, logs := observer.New(zap.InfoLevel)
		r := gin.New()
		r.Use(RequestLogger(zap.New(core)))
		r.GET("/x", func(c *gin.Context) {
			if handlerErr != nil {
				c.Error(handlerErr)
			}
			c.Status(status)
		})

		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return logs
	}

	t.Run("success logs at info", func(t *testing.T) {
		logs := serve(http.StatusOK, nil)
		require.Equal(t, 1, logs.Len())
		entry := logs.All()[0]
		assert.Equal(t, zap.InfoLevel, entry.Level)
		assert.Equal(t, "request served", entry.Message)
	})

	t.Run("server error logs at error with the cause", func(t *testing.T) {
		logs := serve(http.StatusInternalServerError, errors.New("db down"))
		require.Equal(t, 1, logs.Len())
		entry := logs.All()[0]
		assert.Equal(t, zap.ErrorLevel, entry.Level)
		assert.Equal(t, "db down", entry.ContextMap()["error"])
	})

	t.Run("client error logs at warn", func(t *testing.T) {
		logs := serve(http.StatusBadRequest, nil)
		require.Equal(t, 1, logs.Len())
		assert.Equal(t, zap.WarnLevel, logs.All()[0].Level)
	})
}
