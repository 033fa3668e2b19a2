/*
Package orchestrator sequences one full update run of the DNS stack.

A run moves through fixed phases. Each phase owns the components while it
executes and hands them to the next; no two phases run concurrently and a
run is never re-entered.

# Run Flow

	┌─────────────────────────────────────────────────────┐
	│  1. Collect     read running + latest identities    │
	│  2. Plan        diff digests, order by rank         │
	│       └─ empty plan → no-update-needed, exit 0      │
	│  3. Decide      one-time operator gate              │
	│       └─ cancel → nothing mutated, exit 1           │
	│  4. Backup      optional snapshot (all-or-nothing)  │
	│       └─ incomplete → abort before any mutation     │
	│  5. Execute     per component: stop, start, poll    │
	│       └─ first unhealthy entry halts the plan       │
	│  6. Verify      end-to-end resolution + blocking    │
	│  7. Recover     on failure: roll back if a          │
	│                 snapshot exists, else surface it    │
	└─────────────────────────────────────────────────────┘

# Terminal Outcomes

Every run ends in exactly one RunOutcome, mapped to a distinct process
exit code so unattended callers can branch on the result:

	no-update-needed        0
	success                 0
	cancelled               1
	failed                  2   (no backup, failure surfaced as-is)
	failed-rolled-back      3
	failed-rollback-failed  4   (manual intervention required)

The decision gate is the only cancellation surface. Once execution
starts, the run cannot be interrupted; recovery is the rollback
controller's full-stop/restore/full-start sequence, never a partial
undo.

Phase dependencies are interfaces so each scenario in the workflow can
be tested with fakes. The wiring of real implementations lives in
cmd/updns.
*/
package orchestrator
