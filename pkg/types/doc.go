/*
Package types defines the core data structures shared across the cyber
range orchestrator.

This package contains the domain model every other package reads and
writes: ranges, hosts, guests, networks, post-boot tasks, the planner's
step DAG, and image placement records. These types are the boundary
objects passed between pkg/spec, pkg/planner, pkg/orchestrator,
pkg/registry, pkg/images and pkg/tasks; nothing in those packages defines
its own parallel representation of a Range or a Guest.

# Architecture

The types package defines:

  - Range lifecycle (Range, RangeState)
  - Host capacity and reachability (Host, HostStatus)
  - Guest VM lifecycle (Guest, GuestState, NIC)
  - Virtual networking (Network)
  - Post-boot provisioning (Task, TaskState)
  - The planner's step DAG (Step, StepKind, Plan)
  - Image placement bookkeeping (ImageRecord)
  - The validated input boundary (RangeInputSpec and its nested *Spec types)
  - The closed error-kind vocabulary (ErrorKind, CoreError)

All types are designed to be:
  - Serializable (JSON for persistence, YAML for the input spec's fixtures)
  - Self-documenting (clear field names, doc comments on anything
    non-obvious like OverlayPath's driver-specific meaning)
  - Validated at the boundary: pkg/spec.Validate is the only place that
    may reject a RangeInputSpec; everything downstream trusts its shape

# Core Types

Range lifecycle:
  - Range: one deployed cyber range, a collection of Hosts/Networks/
    Guests/Tasks materialized from a validated RangeInputSpec
  - RangeState: pending, planning, deploying, active, degraded,
    destroying, destroyed, failed — transitions are monotonic and only
    pkg/orchestrator may move a Range backward in this list

Guest lifecycle:
  - Guest: a VM cloned from a base image onto a Host
  - GuestState: pending, imaging, cloning, booting, running, plus the
    per-failure-mode states (failed-pre-create, failed-create,
    failed-boot, failed-task, failed), destroying, destroyed

Provisioning:
  - Task: one post-boot operation applied to a Guest, carrying its kind,
    parameters, dependency edges and whether its failure must fail the
    whole Range (CriticalToRange)
  - TaskState: pending, running, succeeded, failed, skipped,
    skipped-upstream-failed

Planning:
  - Step, StepKind, Plan: the six-step-kind DAG (CreateNetwork,
    PlaceImage, CloneGuest, WaitBoot, RunTask, FinalizeRange) pkg/planner
    compiles a RangeInputSpec into, persisted immutably once emitted

# Concurrency

All types in this package are designed to be:
  - Read-safe: can be read concurrently from multiple goroutines once
    handed back by pkg/registry (each Get/List call returns a copy)
  - Write-unsafe: mutations must go through pkg/registry's Put methods,
    which journal before acknowledging

pkg/registry owns all synchronization for persisted state; callers never
mutate a Range/Guest/Task in place and expect that mutation to be durable
without a corresponding Put call.

# See Also

  - pkg/spec for the Validate() boundary function
  - pkg/registry for the persisted state layout
  - pkg/planner for how a RangeInputSpec becomes a Plan
*/
package types
