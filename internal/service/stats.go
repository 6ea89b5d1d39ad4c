package service

import (
	"context"

	"github.com/sakif/precinct/internal/repository"
)

// Stats is the admin dashboard summary. The record counts are "ever
// issued" tallies, so they stay up after single deletes.
type Stats struct {
	CitationCount int64 `json:"citationCount"`
	ArrestCount   int64 `json:"arrestCount"`
	Users         int   `json:"users"`
}

type StatsService struct {
	store repository.Store
}

func NewStatsService(store repository.Store) *StatsService {
	return &StatsService{store: store}
}

func (s *StatsService) Get(ctx context.Context) (Stats, error) {
	citations, err := s.store.Citations().Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	arrests, err := s.store.Arrests().Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	users, err := s.store.Users().List(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{CitationCount: citations, ArrestCount: arrests, Users: len(users)}, nil
}
