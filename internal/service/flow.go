package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/capitalize-ai/guided-resolution/internal/engine"
	"github.com/capitalize-ai/guided-resolution/internal/model"
	"github.com/capitalize-ai/guided-resolution/internal/store"
	"github.com/capitalize-ai/guided-resolution/pkg/logger"
)

type flowKey struct {
	id      string
	version int
}

// FlowService registers, activates and serves flow definitions.
//
// Registered versions are immutable, so definitions loaded by version are
// cached. The active flag is the one mutable column; activation purges the
// cache so snapshots never report a stale flag from this process.
type FlowService struct {
	store  *store.Store
	cache  *lru.Cache[flowKey, *model.FlowDefinition]
	logger *logger.Logger
	now    Clock
}

// NewFlowService creates a flow service with an LRU of cacheSize snapshots.
func NewFlowService(st *store.Store, cacheSize int, log *logger.Logger) (*FlowService, error) {
	if cacheSize <= 0 {
		cacheSize = 128
	}
	cache, err := lru.New[flowKey, *model.FlowDefinition](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create flow cache: %w", err)
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &FlowService{store: st, cache: cache, logger: log.Named("flows"), now: utcNow}, nil
}

// Register validates def and stores it as the next version of its flow.
// A definition without an ID starts a new flow. The stored version is
// inactive.
func (s *FlowService) Register(ctx context.Context, def *model.FlowDefinition) (*model.FlowDefinition, error) {
	if err := engine.Validate(def); err != nil {
		return nil, err
	}
	if def.ID == "" {
		def.ID = newID()
	}
	def.IsActive = false
	def.CreatedAt = s.now()

	err := s.store.InTx(ctx, func(q *store.Queries) error {
		category, err := q.FlowCategory(ctx, def.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return err
		case category != def.Category:
			return &engine.ValidationError{Field: "category", Reason: fmt.Sprintf("flow %s is registered under category %q", def.ID, category)}
		}

		version, err := q.NextFlowVersion(ctx, def.ID)
		if err != nil {
			return err
		}
		def.Version = version
		return q.InsertFlowDefinition(ctx, def)
	})
	if errors.Is(err, store.ErrDuplicate) {
		return nil, fmt.Errorf("%w: flow %s version %d registered concurrently", engine.ErrConflict, def.ID, def.Version)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("Flow registered",
		zap.String("flow_id", def.ID),
		zap.String("category", def.Category),
		zap.Int("version", def.Version),
		zap.Int("nodes", len(def.Nodes)),
	)
	return def, nil
}

// RegisterDocument parses a JSON or YAML flow document and registers it.
func (s *FlowService) RegisterDocument(ctx context.Context, data []byte, filename string) (*model.FlowDefinition, error) {
	def, err := engine.ParseDefinition(data, filename)
	if err != nil {
		return nil, err
	}
	return s.Register(ctx, def)
}

// Activate makes one version the active flow of its category, replacing
// whichever version was active before.
func (s *FlowService) Activate(ctx context.Context, flowID string, version int) (*model.FlowDefinition, error) {
	var def *model.FlowDefinition
	err := s.store.InTx(ctx, func(q *store.Queries) error {
		var err error
		def, err = q.GetFlowDefinition(ctx, flowID, version)
		if err != nil {
			return notFound(err, "flow", flowKeyString(flowID, version))
		}
		if err := q.DeactivateCategory(ctx, def.Category); err != nil {
			return err
		}
		if err := q.ActivateFlow(ctx, flowID, version); err != nil {
			return notFound(err, "flow", flowKeyString(flowID, version))
		}
		def.IsActive = true
		return nil
	})
	if errors.Is(err, store.ErrDuplicate) {
		return nil, fmt.Errorf("%w: category activated concurrently", engine.ErrConflict)
	}
	if err != nil {
		return nil, err
	}
	s.cache.Purge()

	s.logger.Info("Flow activated",
		zap.String("flow_id", flowID),
		zap.String("category", def.Category),
		zap.Int("version", version),
	)
	return def, nil
}

// GetByVersion returns an immutable snapshot of one version. Callers must
// not modify it.
func (s *FlowService) GetByVersion(ctx context.Context, flowID string, version int) (*model.FlowDefinition, error) {
	key := flowKey{flowID, version}
	if def, ok := s.cache.Get(key); ok {
		return def, nil
	}
	def, err := s.store.Queries().GetFlowDefinition(ctx, flowID, version)
	if err != nil {
		return nil, notFound(err, "flow", flowKeyString(flowID, version))
	}
	s.cache.Add(key, def)
	return def, nil
}

// GetActive returns the active flow of a category.
func (s *FlowService) GetActive(ctx context.Context, category string) (*model.FlowDefinition, error) {
	def, err := s.store.Queries().GetActiveFlow(ctx, category)
	if err != nil {
		return nil, notFound(err, "active flow", category)
	}
	return def, nil
}

// ActiveVersion returns the active version number of a flow.
func (s *FlowService) ActiveVersion(ctx context.Context, flowID string) (int, error) {
	v, err := s.store.Queries().GetActiveVersion(ctx, flowID)
	if err != nil {
		return 0, notFound(err, "active flow", flowID)
	}
	return v, nil
}

// List returns every registered version, optionally for one category.
func (s *FlowService) List(ctx context.Context, category string) ([]model.FlowSummary, error) {
	return s.store.Queries().ListFlowSummaries(ctx, category)
}

// ListActive returns the active flow of every category.
func (s *FlowService) ListActive(ctx context.Context) ([]model.FlowSummary, error) {
	return s.store.Queries().ListActiveFlows(ctx)
}

func flowKeyString(flowID string, version int) string {
	return flowID + "@v" + strconv.Itoa(version)
}
