// Package ports defines the interfaces between the runtime core and its
// collaborators: the outbound HTTP transport, the inference backend, the
// module resolver and the trigger-facing executors.
package ports
