package normalize

import (
	"context"
	"errors"
	"strings"

	"github.com/coolbeans/contracta/pkg/document"
	"github.com/coolbeans/contracta/pkg/lei"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// RegistryLookup finds the registry record for an exact legal name.
type RegistryLookup interface {
	Lookup(ctx context.Context, name string) (*lei.Record, error)
}

// LegalEntityNormalizer title-cases entity names and attaches LEI registry
// records on exact name matches.
type LegalEntityNormalizer struct {
	registry RegistryLookup
	caser    cases.Caser
	logger   *zap.Logger
}

// NewLegalEntityNormalizer creates a normalizer. A nil registry skips lookups.
func NewLegalEntityNormalizer(registry RegistryLookup, logger *zap.Logger) *LegalEntityNormalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LegalEntityNormalizer{
		registry: registry,
		caser:    cases.Title(language.English),
		logger:   logger,
	}
}

// Normalize sets the title-cased name and, when the registry has an exact
// match, the LEI record. Lookup failures only log.
func (normalizer *LegalEntityNormalizer) Normalize(ctx context.Context, entity *document.Entity) {
	name := strings.Join(strings.Fields(entity.Name), " ")
	entity.Normalized = normalizer.caser.String(name)

	if normalizer.registry == nil || entity.Normalized == "" {
		return
	}

	record, err := normalizer.registry.Lookup(ctx, entity.Normalized)
	switch {
	case errors.Is(err, lei.ErrNotFound):
		normalizer.logger.Debug("no LEI record", zap.String("name", entity.Normalized))
	case err != nil:
		normalizer.logger.Warn("LEI lookup failed", zap.String("name", entity.Normalized), zap.Error(err))
	default:
		entity.LEI = record
	}
}
