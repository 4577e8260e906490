package config

import (
	"os"
	"strconv"
	"sync"
)

const dockerHostAlias = "host.docker.internal"

var (
	inContainerOnce sync.Once
	inContainer     bool
)

// IsRunningInDocker reports whether the process runs inside a container.
// DATAGENIE_IN_DOCKER overrides detection; otherwise /.dockerenv is checked once.
func IsRunningInDocker() bool {
	inContainerOnce.Do(func() {
		if v, ok := os.LookupEnv("DATAGENIE_IN_DOCKER"); ok {
			inContainer, _ = strconv.ParseBool(v)
			return
		}
		_, err := os.Stat("/.dockerenv")
		inContainer = err == nil
	})
	return inContainer
}

// ResolveHostForDocker rewrites loopback endpoint hosts to the Docker host alias
// so tenant databases registered as "localhost" stay reachable from a container.
func ResolveHostForDocker(host string) string {
	return resolveHost(host, IsRunningInDocker())
}

func resolveHost(host string, containerized bool) string {
	if !containerized {
		return host
	}
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return dockerHostAlias
	}
	return host
}
