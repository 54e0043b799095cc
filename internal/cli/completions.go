package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/brain/pkg/models"
)

// completeEntityIDs completes the first argument with entity ids, showing
// each entity's name as the description.
func completeEntityIDs(_ *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if Entities == nil || len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	entities, err := Entities.List()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var ids []string
	for _, e := range entities {
		if toComplete == "" || strings.HasPrefix(e.ID, toComplete) {
			ids = append(ids, e.ID+"\t"+e.Name)
		}
	}
	return ids, cobra.ShellCompDirectiveNoFileComp
}

// completeEventTypes returns a completion function for event type values.
func completeEventTypes(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return []string{
		string(models.EventCreated) + "\tentity created",
		string(models.EventFieldUpdate) + "\tmetadata fields changed",
		string(models.EventPhaseTransition) + "\tstatus or phase moved",
		string(models.EventDecision) + "\tdecision recorded",
		string(models.EventRelationshipAdded) + "\tnew relationship",
		string(models.EventNote) + "\tfree-form note",
	}, cobra.ShellCompDirectiveNoFileComp
}

// completeFormats returns a completion function for output format values.
func completeFormats(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return []string{formatText, formatJSON, formatMarkdown}, cobra.ShellCompDirectiveNoFileComp
}
