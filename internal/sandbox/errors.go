package sandbox

import "errors"

// ErrConfigMissing is returned when the configuration file does not exist.
var ErrConfigMissing = errors.New("config file not found")

// ErrConfigInvalid is returned when the configuration is malformed or declares no directories.
var ErrConfigInvalid = errors.New("invalid config")

// ErrNoMatchingDirectory is returned when the current directory is outside every configured directory.
var ErrNoMatchingDirectory = errors.New("current directory is not in any configured directory")

// ErrRuntimeUnavailable is returned when the Docker daemon cannot be reached.
var ErrRuntimeUnavailable = errors.New("docker is not available")

// ErrRuntimeQueryFailed is returned when an inspect call fails for a reason other than not-found.
var ErrRuntimeQueryFailed = errors.New("container inspection failed")

// ErrRuntimeMutationFailed is returned when a create, start or remove call fails.
var ErrRuntimeMutationFailed = errors.New("container operation failed")

// ErrUnexpectedContainerState is returned when a container is in a phase other than running or exited.
var ErrUnexpectedContainerState = errors.New("container in unexpected state")

// ErrNoCommandSpecified is returned when there is nothing to execute.
var ErrNoCommandSpecified = errors.New("no command specified")

// ErrLockFailed is returned when the per-container lock cannot be taken.
var ErrLockFailed = errors.New("could not lock container")

// ErrExecFailed is returned when the command cannot be started inside the container.
var ErrExecFailed = errors.New("exec failed")
