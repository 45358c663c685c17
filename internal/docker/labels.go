package docker

import (
	"fmt"

	"github.com/google/uuid"
)

// Label keys used for vista resources
const (
	LabelProject       = "vista.project"
	LabelInstanceName  = "vista.instance.name"
	LabelInstanceRunID = "vista.instance.run_id"
	LabelWorkspacePath = "vista.workspace.path"
	LabelComponent     = "vista.component"
	LabelPluginID      = "vista.plugin.id"
)

// ComponentPlugin labels containers running channel plugins.
const ComponentPlugin = "plugin"

// BuildLabels creates the standard label set for all vista resources.
// All parameters are required except component (which is resource-specific).
func BuildLabels(instanceName, runID, workspacePath, component string) map[string]string {
	labels := map[string]string{
		LabelProject:       "true",
		LabelInstanceName:  instanceName,
		LabelInstanceRunID: runID,
		LabelWorkspacePath: workspacePath,
	}

	if component != "" {
		labels[LabelComponent] = component
	}

	return labels
}

// PluginLabels returns the labels of a plugin container.
func PluginLabels(instanceName, runID, workspacePath, pluginID string) map[string]string {
	labels := BuildLabels(instanceName, runID, workspacePath, ComponentPlugin)
	labels[LabelPluginID] = pluginID
	return labels
}

// GenerateRunID creates a new UUID for an instance run.
// Each invocation of `vista run` gets a unique run ID.
func GenerateRunID() string {
	return uuid.New().String()
}

// PluginContainerName returns the container name for a plugin of an instance
func PluginContainerName(instanceName, pluginID string) string {
	return fmt.Sprintf("vista-plugin-%s-%s", instanceName, pluginID)
}
