package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"secondhand-aggregator/config"
	"secondhand-aggregator/models"
	"secondhand-aggregator/services"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) search(c *gin.Context) {
	req, err := parseSearchRequest(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := s.orch.Search(c.Request.Context(), req)
	if err != nil {
		var verr *services.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
			return
		}
		s.log.Error("search failed", zap.String("q", req.Query), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "internal server error",
			"items": []models.Listing{},
		})
		return
	}

	if services.AllSourcesFailed(resp) {
		resp.Error = "all sources failed"
		c.JSON(http.StatusBadGateway, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func parseSearchRequest(c *gin.Context) (models.SearchRequest, error) {
	req := models.SearchRequest{
		Query:   c.Query("q"),
		Sources: config.SplitList(c.Query("sources")),
		SortBy:  models.SortOrder(c.Query("sortBy")),
	}

	var err error
	if req.Page, err = intParam(c, "page"); err != nil {
		return req, err
	}
	if req.PerPage, err = intParam(c, "perPage"); err != nil {
		return req, err
	}
	if req.MaxResults, err = intParam(c, "maxResults"); err != nil {
		return req, err
	}
	if req.MinPrice, err = priceParam(c, "minPrice"); err != nil {
		return req, err
	}
	if req.MaxPrice, err = priceParam(c, "maxPrice"); err != nil {
		return req, err
	}
	return req, nil
}

func intParam(c *gin.Context, name string) (int, error) {
	v := c.Query(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &services.ValidationError{Field: name, Message: strconv.Quote(v) + " is not an integer"}
	}
	return n, nil
}

func priceParam(c *gin.Context, name string) (*float64, error) {
	v := c.Query(name)
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, &services.ValidationError{Field: name, Message: strconv.Quote(v) + " is not a number"}
	}
	return &f, nil
}

type sourceInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (s *Server) sources(c *gin.Context) {
	reg := s.orch.Registry()
	out := make([]sourceInfo, 0, len(reg.IDs()))
	for _, id := range reg.IDs() {
		if a, ok := reg.Get(id); ok {
			out = append(out, sourceInfo{ID: id, Name: a.Name()})
		}
	}
	c.JSON(http.StatusOK, gin.H{"sources": out})
}

func (s *Server) cacheStats(c *gin.Context) {
	cache := s.orch.Cache()
	c.JSON(http.StatusOK, gin.H{
		"stats": cache.Stats(),
		"keys":  cache.Keys(),
	})
}

func (s *Server) clearCache(c *gin.Context) {
	cache := s.orch.Cache()
	cleared := cache.Stats().Size
	cache.Clear()

	body := gin.H{"cleared": cleared}
	if s.mirror != nil {
		if err := s.mirror.Clear(c.Request.Context()); err != nil {
			s.log.Warn("clear redis mirror", zap.Error(err))
			body["mirrorError"] = err.Error()
		}
	}
	c.JSON(http.StatusOK, body)
}
