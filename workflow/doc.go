/*
Package workflow defines the workflow and step model.

# Workflows

A workflow is a named, ordered sequence of steps that is driven across a
set of devices. Workflows are plain data: they are defined over the API
(or loaded from storage by a frontend) and handed to the engine to run.
A workflow is never modified once a run has started; the engine iterates
its steps in slice order.

Workflows are identified by an ID. The ID is the handle used to pause,
resume, stop, and query a running workflow. The name is human readable
and is what ends up in logs, history records, and activity feeds.

# Steps

Steps come in two kinds. An action step is bound to a named operation on
the step executor backend and carries a bag of string parameters for it.
A wait step pauses the run for a duration before the following step;
the duration is clamped to a supported range rather than rejected.

Steps have names for logs and history. A step without a name falls back
to something derived from the step itself (the operation name for
actions) so log lines always have a usable label.

# Parameters

Action parameter values may reference template variables using shell
style ${var} syntax with an optional ${var:default} fallback. Variables
are resolved per device just before dispatch: per-device values override
shared values, and the device_id variable is always defined. Resolution
is strict; referencing an undefined variable with no default is an
error, which the engine records as a failure for that device only.
*/
package workflow
