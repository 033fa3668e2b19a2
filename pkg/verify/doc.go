/*
Package verify checks the updated stack end to end.

Binary health is not the bar: after an update the chain must actually
resolve a known-good domain and answer a known-blocked domain with the
nullroute sentinel. Verification runs a fixed check set in order and
stops at the first failure; the latency sample is recorded but never
gates the verdict.

The reduced Smoke set (component health plus functional resolution)
runs after a rollback, where the question is only whether the restored
state serves again.
*/
package verify
