package environment

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/drvig/updns/pkg/config"
	"github.com/drvig/updns/pkg/runtime"
	"github.com/drvig/updns/pkg/types"
)

// Environment is the immutable run context: the declared component set
// and the stack's externally observable surface, resolved exactly once at
// run start. Phases receive it by reference and never re-discover state
// mid-run, so every phase reasons about the same world.
type Environment struct {
	// RunID uniquely identifies this run
	RunID string

	// Components is the declared component set in declaration order
	Components []types.Component

	// ConfigPath is the configuration file captured by backups
	ConfigPath string

	// BackupDir is where snapshots live
	BackupDir string

	// Entrypoint is the address the full chain serves DNS on
	Entrypoint string

	// TestDomain must resolve through the chain
	TestDomain string

	// BlockedDomain must return the nullroute sentinel
	BlockedDomain string

	// Nullroute is the blocker's sentinel answer for blocked names
	Nullroute string
}

// Discover builds the run environment from configuration, verifying the
// runtime is reachable and every declared component exists. It fails
// closed: any missing component aborts before anything is mutated.
// An empty runID gets a fresh one.
func Discover(ctx context.Context, cfg *config.Config, configPath, runID string, rt runtime.Client) (*Environment, error) {
	if err := rt.Ping(ctx); err != nil {
		return nil, err
	}

	for _, comp := range cfg.Comps {
		if _, err := rt.Running(ctx, comp.Container); err != nil {
			return nil, fmt.Errorf("component %s: %w", comp.Name, err)
		}
	}

	if runID == "" {
		runID = uuid.New().String()[:8]
	}

	return &Environment{
		RunID:         runID,
		Components:    append([]types.Component(nil), cfg.Comps...),
		ConfigPath:    configPath,
		BackupDir:     cfg.Backup.Dir,
		Entrypoint:    cfg.Stack.Entrypoint,
		TestDomain:    cfg.Stack.TestDomain,
		BlockedDomain: cfg.Stack.BlockedDomain,
		Nullroute:     cfg.Stack.Nullroute,
	}, nil
}

// Component returns the declaration for name
func (e *Environment) Component(name string) (types.Component, bool) {
	for _, comp := range e.Components {
		if comp.Name == name {
			return comp, true
		}
	}
	return types.Component{}, false
}

// ByRank returns the components sorted ascending by rank, declaration
// order preserved within equal rank
func (e *Environment) ByRank() []types.Component {
	comps := append([]types.Component(nil), e.Components...)
	sort.SliceStable(comps, func(i, j int) bool {
		return comps[i].Rank < comps[j].Rank
	})
	return comps
}

// BackupTargets returns every declared volume across all components
func (e *Environment) BackupTargets() []types.VolumeRef {
	var targets []types.VolumeRef
	for _, comp := range e.Components {
		targets = append(targets, comp.Volumes...)
	}
	return targets
}
