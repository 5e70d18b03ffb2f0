package dataset

import (
	"context"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Service caches dataset reads for a fixed TTL.
type Service struct {
	source  Source
	logger  *zap.Logger
	cache   *expirable.LRU[int, Table]
	group   singleflight.Group
	preview int
}

func NewService(source Source, preview, size int, ttl time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		source:  source,
		logger:  logger,
		cache:   expirable.NewLRU[int, Table](size, nil, ttl),
		preview: preview,
	}
}

// Preview returns the configured number of leading rows.
func (s *Service) Preview(ctx context.Context) (Table, error) {
	return s.load(ctx, s.preview)
}

// All returns the complete dataset.
func (s *Service) All(ctx context.Context) (Table, error) {
	return s.load(ctx, 0)
}

// Summary computes dashboard insights over the complete dataset.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	t, err := s.All(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(t)
}

// Invalidate drops every cached read.
func (s *Service) Invalidate() {
	s.cache.Purge()
}

func (s *Service) load(ctx context.Context, limit int) (Table, error) {
	if t, ok := s.cache.Get(limit); ok {
		return t, nil
	}

	v, err, _ := s.group.Do(strconv.Itoa(limit), func() (any, error) {
		start := time.Now()
		columns, rows, err := s.source.Query(ctx, limit)
		if err != nil {
			return Table{}, err
		}
		t := Table{Columns: columns, Rows: rows}
		s.cache.Add(limit, t)
		s.logger.Info("dataset loaded",
			zap.Int("limit", limit),
			zap.Int("rows", len(rows)),
			zap.Duration("elapsed", time.Since(start)))
		return t, nil
	})
	if err != nil {
		s.logger.Warn("dataset query failed", zap.Int("limit", limit), zap.Error(err))
		return Table{}, err
	}
	return v.(Table), nil
}
