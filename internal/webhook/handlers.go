package webhook

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/imkarma/taskplan/internal/dispatch"
)

const maxBodySize = 1 << 20

// batchRequest is the body of POST /webhooks/batch/process.
type batchRequest struct {
	Operation string           `json:"operation"`
	Tasks     []map[string]any `json:"tasks"`
}

func (s *Server) handleEvent(eventType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.dispatchEvent(c, eventType)
	}
}

func (s *Server) handleGenericEvent(c *gin.Context) {
	s.dispatchEvent(c, c.Param("type"))
}

func (s *Server) dispatchEvent(c *gin.Context, eventType string) {
	var payload dispatch.Payload
	if code, err := bindJSON(c, &payload); err != nil {
		c.JSON(code, gin.H{"error": err.Error()})
		return
	}
	if payload == nil {
		payload = dispatch.Payload{}
	}

	res, err := s.dispatcher.Dispatch(c.Request.Context(), eventType, payload)
	if errors.Is(err, dispatch.ErrNoHandler) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No callback registered"})
		return
	}
	if err != nil {
		s.logger.Error("Webhook error", "event_type", eventType, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	code := http.StatusOK
	if eventType == dispatch.EventTaskCreate {
		code = http.StatusCreated
	}
	c.JSON(code, gin.H{
		"status":    "success",
		"result":    res,
		"timestamp": s.timestamp(),
	})
}

func (s *Server) handleBatch(c *gin.Context) {
	var req batchRequest
	if code, err := bindJSON(c, &req); err != nil {
		c.JSON(code, gin.H{"error": err.Error()})
		return
	}
	if req.Operation == "" {
		req.Operation = "create"
	}

	items := make([]dispatch.Payload, len(req.Tasks))
	for i, t := range req.Tasks {
		items[i] = dispatch.Payload(t)
	}

	results, err := s.dispatcher.DispatchBatch(c.Request.Context(), req.Operation, items)
	if errors.Is(err, dispatch.ErrNoHandler) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No callback for " + dispatch.BatchPrefix + req.Operation})
		return
	}
	if err != nil {
		s.logger.Error("Batch webhook error", "operation", req.Operation, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"processed": len(results),
		"results":   results,
		"timestamp": s.timestamp(),
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"webhooks":  s.dispatcher.EventTypes(),
		"timestamp": s.timestamp(),
	})
}

func (s *Server) timestamp() string {
	return s.now().Format(time.RFC3339Nano)
}

// bindJSON binds the request body into v with gin's JSON binding, capped
// at maxBodySize. An empty body leaves v as is.
func bindJSON(c *gin.Context, v any) (int, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
	err := c.ShouldBindJSON(v)
	if err == nil || errors.Is(err, io.EOF) {
		return 0, nil
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge, fmt.Errorf("body exceeds %d bytes", maxBodySize)
	}
	return http.StatusBadRequest, fmt.Errorf("invalid JSON body: %w", err)
}
