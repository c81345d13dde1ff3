// Package remotetest provides an in-memory ESXi host for tests.
package remotetest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/perbu/esxiops/remote"
)

// VM is a virtual machine on the fake host.
type VM struct {
	ID   string
	Name string
	On   bool
}

// Host answers the vim-cmd commands the executor issues and records every
// command it receives.
type Host struct {
	mu        sync.Mutex
	vms       []*VM
	commands  []string
	snapshots []string
	errs      map[string]error
}

// NewHost creates a host with the given VMs.
func NewHost(vms ...VM) *Host {
	h := &Host{errs: make(map[string]error)}
	for _, vm := range vms {
		vm := vm
		h.vms = append(h.vms, &vm)
	}
	return h
}

// FailWith makes every command starting with prefix fail with err.
func (h *Host) FailWith(prefix string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errs[prefix] = err
}

// Commands returns the commands received so far.
func (h *Host) Commands() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.commands...)
}

// Snapshots returns the snapshot.create commands received so far.
func (h *Host) Snapshots() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.snapshots...)
}

// PoweredOn reports the power state of the VM with the given id.
func (h *Host) PoweredOn(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if vm := h.find(id); vm != nil {
		return vm.On
	}
	return false
}

// Run implements remote.Runner.
func (h *Host) Run(ctx context.Context, command string) (remote.Output, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.commands = append(h.commands, command)
	for prefix, err := range h.errs {
		if strings.HasPrefix(command, prefix) {
			return remote.Output{}, &remote.ConnectionError{Addr: "fake:22", Err: err}
		}
	}

	fields := strings.Fields(command)
	if len(fields) < 2 || fields[0] != "vim-cmd" {
		return remote.Output{Stderr: "sh: " + command + ": not found", ExitStatus: 127}, nil
	}

	switch fields[1] {
	case "vmsvc/getallvms":
		var sb strings.Builder
		sb.WriteString("Vmid   Name   File   Guest OS   Version   Annotation\n")
		for _, vm := range h.vms {
			fmt.Fprintf(&sb, "%s      %s   [datastore1] %s/%s.vmx   ubuntu64Guest   vmx-19\n", vm.ID, vm.Name, vm.Name, vm.Name)
		}
		return remote.Output{Stdout: sb.String()}, nil
	case "vmsvc/power.getstate", "vmsvc/power.on", "vmsvc/power.off", "vmsvc/snapshot.create":
	default:
		return remote.Output{Stderr: "Unknown command: " + fields[1], ExitStatus: 1}, nil
	}

	if len(fields) < 3 {
		return remote.Output{Stderr: "Insufficient arguments.", ExitStatus: 1}, nil
	}
	vm := h.find(fields[2])
	if vm == nil {
		return remote.Output{Stderr: fmt.Sprintf("Unable to find a VM corresponding to \"%s\"", fields[2]), ExitStatus: 1}, nil
	}

	switch fields[1] {
	case "vmsvc/power.getstate":
		state := "Powered off"
		if vm.On {
			state = "Powered on"
		}
		return remote.Output{Stdout: "Retrieved runtime info\n" + state + "\n"}, nil
	case "vmsvc/power.on":
		if vm.On {
			return remote.Output{Stderr: "The attempted operation cannot be performed in the current state (Powered on).", ExitStatus: 1}, nil
		}
		vm.On = true
		return remote.Output{Stdout: "Powering on VM:\n"}, nil
	case "vmsvc/power.off":
		if !vm.On {
			return remote.Output{Stderr: "The attempted operation cannot be performed in the current state (Powered off).", ExitStatus: 1}, nil
		}
		vm.On = false
		return remote.Output{Stdout: "Powering off VM:\n"}, nil
	default:
		h.snapshots = append(h.snapshots, command)
		return remote.Output{Stderr: "Create Snapshot:\n"}, nil
	}
}

func (h *Host) find(id string) *VM {
	for _, vm := range h.vms {
		if vm.ID == id {
			return vm
		}
	}
	return nil
}
