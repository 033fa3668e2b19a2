/*
Package runtime provides the container runtime client for the update
workflow.

The orchestration code only ever sees the Client interface: inspect a
component's running artifact, pull an image, start, stop, and exec. The
containerd-backed implementation handles the messy parts (recreating a
container when its image changes, graceful-then-forced shutdown), and the
FakeClient lets every phase be tested without a daemon.

A LoggingClient wrapper records each operation and its exit status in the
run log before the workflow proceeds past it. Mutating phases are always
handed the wrapped client.
*/
package runtime
