package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/drallgood/book-manager/internal/book"
	"github.com/drallgood/book-manager/internal/library"
	"github.com/drallgood/book-manager/internal/logger"
)

type addBookRequest struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	Status string `json:"status"`
}

type updateBookRequest struct {
	Title  *string `json:"title"`
	Author *string `json:"author"`
	Status *string `json:"status"`
}

// healthChecker is implemented by stores that can report on their backend
type healthChecker interface {
	Health(ctx context.Context) error
}

func (s *Server) handleHealthCheck(c *gin.Context) {
	if hc, ok := s.store.(healthChecker); ok {
		if err := hc.Health(c.Request.Context()); err != nil {
			s.logger.Warn("Health check failed", map[string]interface{}{
				"error": err.Error(),
			})
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "message": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleListBooks(c *gin.Context) {
	status, err := parseStatusFilter(c.Query("status"))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	filter := library.Filter{Status: status, Query: c.Query("q")}

	books := []book.Book{}
	s.read(func(m *library.Manager) {
		for b := range m.List(filter) {
			books = append(books, b)
		}
	})

	c.JSON(http.StatusOK, gin.H{
		"books": books,
		"count": len(books),
	})
}

func (s *Server) handleCountBooks(c *gin.Context) {
	var n int
	s.read(func(m *library.Manager) { n = m.Count() })
	c.JSON(http.StatusOK, gin.H{"count": n})
}

func (s *Server) handleAddBook(c *gin.Context) {
	var req addBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	status, err := book.ParseStatus(req.Status)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	var id book.ID
	err = s.mutate(c.Request.Context(), func(m *library.Manager) error {
		var err error
		id, err = m.Add(req.Title, req.Author, status)
		return err
	})
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) handleGetBook(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	var b book.Book
	s.read(func(m *library.Manager) { b, err = m.Get(id) })
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, b)
}

func (s *Server) handleUpdateBook(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	var req updateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	patch := book.Patch{Title: req.Title, Author: req.Author}
	if req.Status != nil {
		status, err := book.ParseStatusStrict(*req.Status)
		if err != nil {
			s.abortWithError(c, err)
			return
		}
		patch.Status = &status
	}

	var updated book.Book
	err = s.mutate(c.Request.Context(), func(m *library.Manager) error {
		var err error
		updated, err = m.Update(id, patch)
		return err
	})
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, updated)
}

func (s *Server) handleRemoveBook(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	err = s.mutate(c.Request.Context(), func(m *library.Manager) error {
		return m.Remove(id)
	})
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// abortWithError maps domain errors to HTTP status codes
func (s *Server) abortWithError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case book.IsValidation(err):
		status = http.StatusBadRequest
	case library.IsNotFound(err):
		status = http.StatusNotFound
	default:
		logger.FromContext(c.Request.Context()).Error("Request failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	c.AbortWithStatusJSON(status, gin.H{"message": err.Error()})
}

func parseID(raw string) (book.ID, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 1 {
		return 0, &book.ValidationError{Field: "id", Msg: "must be a positive integer"}
	}
	return book.ID(n), nil
}

func parseStatusFilter(raw string) (book.Status, error) {
	if raw == "" {
		return "", nil
	}
	return book.ParseStatus(raw)
}
