package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/perbu/esxiops/plan"
	"github.com/perbu/esxiops/remote"
)

// Settings configures the executor.
type Settings struct {
	// SettleDelay is observed after every power state change, since the host
	// acknowledges the command before the transition completes.
	SettleDelay time.Duration
	// SnapshotMemory includes VM memory in snapshots.
	SnapshotMemory bool
	// SnapshotQuiesce quiesces the guest file system before snapshotting.
	SnapshotQuiesce bool
}

// Executor maps resolved actions onto remote commands.
type Executor struct {
	runner   remote.Runner
	settings Settings
	logger   *slog.Logger
	wait     func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates an Executor that issues commands through runner.
func NewExecutor(runner remote.Runner, settings Settings, logger *slog.Logger) *Executor {
	return &Executor{
		runner:   runner,
		settings: settings,
		logger:   logger,
		wait:     settle,
	}
}

// Execute runs one resolved action. Failures, including connection errors,
// are reported in the Result and never returned as errors.
func (e *Executor) Execute(ctx context.Context, ra plan.ResolvedAction) Result {
	tool := ra.Tool()

	var (
		res Result
		err error
	)
	switch a := ra.Action().(type) {
	case plan.ListVMs:
		res, err = e.listVMs(ctx)
	case plan.GetVMID:
		res, err = e.getVMID(ctx, a.VMName)
	case plan.GetPowerState:
		res, err = e.getPowerState(ctx, a.VMID)
	case plan.PowerOff:
		res, err = e.setPower(ctx, a.VMID, false)
	case plan.PowerOn:
		res, err = e.setPower(ctx, a.VMID, true)
	case plan.CreateSnapshot:
		res, err = e.createSnapshot(ctx, a)
	default:
		err = fmt.Errorf("%w: %q", plan.ErrUnsupportedTool, tool)
	}

	if err != nil {
		return Failure(tool, err)
	}
	res.Tool = tool
	return res
}

func (e *Executor) listVMs(ctx context.Context) (Result, error) {
	out, err := e.run(ctx, cmdGetAllVMs)
	if err != nil {
		return Result{}, err
	}
	return Success(plan.ToolListVMs, strings.TrimRight(out.Stdout, "\n")), nil
}

func (e *Executor) getVMID(ctx context.Context, name string) (Result, error) {
	out, err := e.run(ctx, cmdGetAllVMs)
	if err != nil {
		return Result{}, err
	}

	vmid, ok := FindVMID(ParseVMList(out.Stdout), name)
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrVMNotFound, name)
	}

	res := Success(plan.ToolGetVMID, fmt.Sprintf("VMID found: %s (%s)", vmid, name))
	res.VMID = vmid
	return res, nil
}

func (e *Executor) getPowerState(ctx context.Context, vmid string) (Result, error) {
	state, err := e.powerState(ctx, vmid)
	if err != nil {
		return Result{}, err
	}
	return Success(plan.ToolGetPowerState, fmt.Sprintf("VM %s: %s", vmid, state)), nil
}

func (e *Executor) powerState(ctx context.Context, vmid string) (string, error) {
	command := cmdPowerGetState(vmid)
	out, err := e.run(ctx, command)
	if err != nil {
		return "", err
	}

	state, ok := ParsePowerState(out.Stdout)
	if !ok {
		msg := strings.TrimSpace(out.Stderr)
		if msg == "" {
			msg = "no power state in output"
		}
		return "", &CommandError{Command: command, Message: msg}
	}
	return state, nil
}

// setPower checks the current state first and only issues the change when
// the VM is not already in the requested state.
func (e *Executor) setPower(ctx context.Context, vmid string, on bool) (Result, error) {
	tool, want, command, verb := plan.ToolPowerOffVM, "Powered off", cmdPowerOff(vmid), "off"
	if on {
		tool, want, command, verb = plan.ToolPowerOnVM, "Powered on", cmdPowerOn(vmid), "on"
	}

	state, err := e.powerState(ctx, vmid)
	if err != nil {
		return Result{}, err
	}
	if strings.Contains(state, want) {
		return Success(tool, fmt.Sprintf("VM %s is already %s.", vmid, verb)), nil
	}

	if _, err := e.run(ctx, command); err != nil {
		return Result{}, err
	}

	e.logger.Debug("waiting for power transition", "vmid", vmid, "delay", e.settings.SettleDelay)
	if err := e.wait(ctx, e.settings.SettleDelay); err != nil {
		return Result{}, fmt.Errorf("waiting for power %s: %w", verb, err)
	}

	res := Success(tool, fmt.Sprintf("Power %s command sent: VMID=%s", verb, vmid))
	res.Changed = true
	return res, nil
}

// createSnapshot always issues the command; it is not idempotent.
func (e *Executor) createSnapshot(ctx context.Context, a plan.CreateSnapshot) (Result, error) {
	command := cmdSnapshotCreate(a.VMID, a.Name, a.Description, e.settings.SnapshotMemory, e.settings.SnapshotQuiesce)
	if _, err := e.run(ctx, command); err != nil {
		return Result{}, err
	}

	res := Success(plan.ToolCreateSnapshot, fmt.Sprintf("Snapshot created: VMID=%s, Name=%s", a.VMID, a.Name))
	res.Changed = true
	return res, nil
}

// run executes command and applies the shared criterion: a non-zero exit
// status is a failure. Stderr alone is not; it is logged.
func (e *Executor) run(ctx context.Context, command string) (remote.Output, error) {
	e.logger.Debug("running remote command", "command", command)

	out, err := e.runner.Run(ctx, command)
	if err != nil {
		return out, err
	}

	if out.ExitStatus != 0 {
		msg := strings.TrimSpace(out.Stderr)
		if msg == "" {
			msg = strings.TrimSpace(out.Stdout)
		}
		return out, &CommandError{Command: command, ExitStatus: out.ExitStatus, Message: msg}
	}
	if stderr := strings.TrimSpace(out.Stderr); stderr != "" {
		e.logger.Warn("remote command wrote to stderr", "command", command, "stderr", stderr)
	}
	return out, nil
}
