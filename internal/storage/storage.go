package storage

import (
	"sort"
	"sync"

	"github.com/lehigh-university-libraries/furnisher/internal/models"
)

// RequestStore tracks catalog requests by id
type RequestStore struct {
	requests map[string]*models.CatalogRequest
	mu       sync.RWMutex
}

func New() *RequestStore {
	return &RequestStore{
		requests: make(map[string]*models.CatalogRequest),
	}
}

// Get returns a snapshot of the request so callers never race with updates
func (s *RequestStore) Get(id string) (*models.CatalogRequest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, exists := s.requests[id]
	if !exists {
		return nil, false
	}
	return req.Clone(), true
}

func (s *RequestStore) Set(id string, req *models.CatalogRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[id] = req
}

// Update applies fn to the stored request under the write lock. It reports
// false if id is unknown.
func (s *RequestStore) Update(id string, fn func(*models.CatalogRequest)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, exists := s.requests[id]
	if !exists {
		return false
	}
	fn(req)
	return true
}

// GetAll returns snapshots of every request, newest first
func (s *RequestStore) GetAll() []*models.CatalogRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.CatalogRequest, 0, len(s.requests))
	for _, v := range s.requests {
		result = append(result, v.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result
}

func (s *RequestStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.requests, id)
}
