package prompt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/drvig/updns/pkg/orchestrator"
	"github.com/drvig/updns/pkg/types"
)

// InteractiveDecider asks the operator what to do with a derived plan.
// This is the run's single decision point; once answered, the run is
// committed to its path.
type InteractiveDecider struct{}

// Decide presents the plan and the three-way choice
func (InteractiveDecider) Decide(plan types.UpdatePlan) (orchestrator.Decision, error) {
	choice := orchestrator.DecisionBackupThenProceed

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[orchestrator.Decision]().
				Title(fmt.Sprintf("Updates available: %s", strings.Join(plan.Names(), ", "))).
				Description("A backup snapshots configuration and volumes before anything restarts.").
				Options(
					huh.NewOption("Backup, then update", orchestrator.DecisionBackupThenProceed),
					huh.NewOption("Update without backup", orchestrator.DecisionProceed),
					huh.NewOption("Cancel", orchestrator.DecisionCancel),
				).
				Value(&choice),
		),
	)

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return orchestrator.DecisionCancel, nil
		}
		return orchestrator.DecisionCancel, fmt.Errorf("prompt failed: %w", err)
	}

	return choice, nil
}
