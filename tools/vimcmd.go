package tools

import (
	"fmt"
	"strings"

	"github.com/perbu/esxiops/plan"
)

// vim-cmd invocations for each primitive.
const (
	cmdGetAllVMs = "vim-cmd vmsvc/getallvms"
)

func cmdPowerGetState(vmid string) string { return "vim-cmd vmsvc/power.getstate " + vmid }
func cmdPowerOff(vmid string) string      { return "vim-cmd vmsvc/power.off " + vmid }
func cmdPowerOn(vmid string) string       { return "vim-cmd vmsvc/power.on " + vmid }

// cmdSnapshotCreate builds snapshot.create; includeMemory and quiesced are passed as 0/1.
func cmdSnapshotCreate(vmid, name, description string, includeMemory, quiesced bool) string {
	return fmt.Sprintf("vim-cmd vmsvc/snapshot.create %s %s %s %d %d",
		vmid, shellQuote(name), shellQuote(description), boolInt(includeMemory), boolInt(quiesced))
}

// VMInfo is one row of the VM listing.
type VMInfo struct {
	ID   string
	Name string
}

// ParseVMList reads `vim-cmd vmsvc/getallvms` output. The header row and
// lines without a numeric id are skipped. Names may contain spaces; the name
// runs until the "[datastore] path" file column.
func ParseVMList(out string) []VMInfo {
	var vms []VMInfo
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || !plan.IsVMID(fields[0]) {
			continue
		}

		end := len(fields)
		for i := 2; i < len(fields); i++ {
			if strings.HasPrefix(fields[i], "[") {
				end = i
				break
			}
		}
		name := fields[1]
		if end < len(fields) {
			name = strings.Join(fields[1:end], " ")
		}
		vms = append(vms, VMInfo{ID: fields[0], Name: name})
	}
	return vms
}

// FindVMID returns the id of the first VM whose name equals name exactly.
func FindVMID(vms []VMInfo, name string) (string, bool) {
	for _, vm := range vms {
		if vm.Name == name {
			return vm.ID, true
		}
	}
	return "", false
}

// ParsePowerState returns the "Powered ..." line of power.getstate output.
func ParsePowerState(out string) (string, bool) {
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "Powered") {
			return strings.TrimSpace(line), true
		}
	}
	return "", false
}

// shellQuote wraps s in single quotes for the ESXi busybox shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
