// Command agentos is the AgentOS CLI for inspecting and feeding the
// orchestrator's store.
package main

import (
	"os"

	"github.com/agentsmith/agentos/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
