// Package content loads the YAML catalogs under one directory and wires
// them into the game services that depend on each other.
package content

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/cory-johannsen/ascend/internal/game/ability"
	"github.com/cory-johannsen/ascend/internal/game/achievement"
	"github.com/cory-johannsen/ascend/internal/game/destiny"
	"github.com/cory-johannsen/ascend/internal/game/dice"
	"github.com/cory-johannsen/ascend/internal/game/economy"
	"github.com/cory-johannsen/ascend/internal/game/lifecycle"
	"github.com/cory-johannsen/ascend/internal/game/modifier"
	"github.com/cory-johannsen/ascend/internal/game/table"
	"github.com/cory-johannsen/ascend/internal/scripting"
)

// File names inside the content directory.
const (
	TableFile        = "table.yaml"
	EconomyFile      = "economy.yaml"
	AbilitiesFile    = "abilities.yaml"
	FlavorsFile      = "flavors.yaml"
	RolesFile        = "roles.yaml"
	EndingsFile      = "endings.yaml"
	AchievementsFile = "achievements.yaml"
)

// Bundle is every catalog plus the services built from them.
type Bundle struct {
	Table        *table.Table
	Economy      *economy.Economy
	Abilities    *ability.Catalog
	Registry     *modifier.Registry
	Conditions   *scripting.Conditions
	Endings      *destiny.Rules
	Lifecycle    *lifecycle.Manager
	Achievements *achievement.Catalog
}

// Load reads dir and builds a Bundle whose draws go through roller.
//
// Precondition: roller and logger must be non-nil.
// Postcondition: Returns a Bundle or the first load/validation error,
// annotated with the offending file. The caller must Close the Bundle.
func Load(dir string, roller *dice.Roller, logger *zap.Logger) (*Bundle, error) {
	path := func(name string) string { return filepath.Join(dir, name) }
	b := &Bundle{}
	var err error

	if b.Table, err = table.Load(path(TableFile)); err != nil {
		return nil, err
	}
	econCfg, err := economy.LoadConfig(path(EconomyFile))
	if err != nil {
		return nil, err
	}
	if b.Economy, err = economy.New(econCfg, b.Table); err != nil {
		return nil, fmt.Errorf("%s: %w", EconomyFile, err)
	}
	if b.Abilities, err = ability.LoadCatalog(path(AbilitiesFile)); err != nil {
		return nil, err
	}
	flavors, err := modifier.LoadFlavorCatalog(path(FlavorsFile))
	if err != nil {
		return nil, err
	}
	roles, err := modifier.LoadRoleCatalog(path(RolesFile))
	if err != nil {
		return nil, err
	}
	b.Registry = modifier.NewRegistry(flavors, roles, roller)

	b.Conditions = scripting.NewConditions(0, logger)
	if b.Endings, err = destiny.Load(path(EndingsFile), b.Registry, b.Conditions); err != nil {
		b.Close()
		return nil, err
	}
	evaluator := destiny.NewEvaluator(b.Endings, b.Registry, b.Conditions, roller, logger)
	b.Lifecycle = lifecycle.NewManager(b.Registry, evaluator, logger)

	nf, nr := b.Lifecycle.Totals()
	totals := achievement.Totals{Flavors: nf, Roles: nr}
	if b.Achievements, err = achievement.Load(path(AchievementsFile), totals, b.Conditions, logger); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

// Close releases the scripting VM.
func (b *Bundle) Close() {
	if b.Conditions != nil {
		b.Conditions.Close()
	}
}
