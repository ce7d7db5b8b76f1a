package normalize

import (
	"fmt"
	"sort"

	"github.com/coolbeans/contracta/pkg/entity"
	"go.uber.org/zap"
)

// Dependencies are the shared collaborators normalizers may need.
type Dependencies struct {
	Registry      RegistryLookup
	Jurisdictions *JurisdictionTable
	Logger        *zap.Logger
}

var constructors = map[string]func(Dependencies) entity.Normalizer{
	"date": func(deps Dependencies) entity.Normalizer {
		return NewDateNormalizer(deps.Logger)
	},
	"jurisdiction": func(deps Dependencies) entity.Normalizer {
		return NewJurisdictionNormalizer(deps.Jurisdictions)
	},
	"currency": func(deps Dependencies) entity.Normalizer {
		return NewCurrencyNormalizer()
	},
	"legal_entity": func(deps Dependencies) entity.Normalizer {
		return NewLegalEntityNormalizer(deps.Registry, deps.Logger)
	},
}

// Names lists the known normalizer names.
func Names() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Known reports whether name is a normalizer name.
func Known(name string) bool {
	_, ok := constructors[name]
	return ok
}

// New builds the named normalizer. The empty name means none.
func New(name string, deps Dependencies) (entity.Normalizer, error) {
	if name == "" {
		return nil, nil
	}
	constructor, ok := constructors[name]
	if !ok {
		return nil, fmt.Errorf("unknown normalizer %q", name)
	}
	return constructor(deps), nil
}
