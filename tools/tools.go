// Package tools executes resolved actions against an ESXi host and describes
// the available tools to the model.
package tools

import (
	"fmt"
	"strings"

	"github.com/perbu/esxiops/plan"
)

// Param documents one tool parameter.
type Param struct {
	Name        string
	Description string
	Required    bool
}

// Spec documents one tool.
type Spec struct {
	Name        plan.Tool
	Description string
	Params      []Param
	// Mutating tools change VM state on the host.
	Mutating bool
}

// Catalog returns every tool the executor supports, in prompt order.
func Catalog() []Spec {
	vmid := Param{Name: "vm_id", Description: "numeric VM identifier; omit to use the VM resolved earlier in the conversation"}
	return []Spec{
		{
			Name:        plan.ToolListVMs,
			Description: "List all VMs registered on the host.",
		},
		{
			Name:        plan.ToolGetVMID,
			Description: "Look up a VM identifier from its exact name. Later actions may omit vm_id to use it.",
			Params:      []Param{{Name: "vm_name", Description: "exact VM name; defaults to the configured VM", Required: false}},
		},
		{
			Name:        plan.ToolGetPowerState,
			Description: "Show whether a VM is powered on or off.",
			Params:      []Param{vmid},
		},
		{
			Name:        plan.ToolPowerOffVM,
			Description: "Power a VM off. Does nothing if it is already off.",
			Params:      []Param{vmid},
			Mutating:    true,
		},
		{
			Name:        plan.ToolPowerOnVM,
			Description: "Power a VM on. Does nothing if it is already on.",
			Params:      []Param{vmid},
			Mutating:    true,
		},
		{
			Name:        plan.ToolCreateSnapshot,
			Description: "Create a snapshot of a VM. Every call creates a new snapshot.",
			Params: []Param{
				vmid,
				{Name: "name", Description: "snapshot name; defaults to the configured snapshot name"},
				{Name: "description", Description: "free-text snapshot description"},
			},
			Mutating: true,
		},
	}
}

// GenerateToolDocs renders the catalog as markdown for the system prompt.
func GenerateToolDocs() string {
	var sb strings.Builder
	for i, spec := range Catalog() {
		fmt.Fprintf(&sb, "%d. `%s`", i+1, spec.Name)
		if spec.Mutating {
			sb.WriteString(" (changes VM state)")
		}
		sb.WriteString(": ")
		sb.WriteString(spec.Description)
		sb.WriteString("\n")
		if len(spec.Params) == 0 {
			sb.WriteString("   - no parameters\n")
			continue
		}
		for _, p := range spec.Params {
			req := "optional"
			if p.Required {
				req = "required"
			}
			fmt.Fprintf(&sb, "   - `%s` (%s): %s\n", p.Name, req, p.Description)
		}
	}
	return sb.String()
}
