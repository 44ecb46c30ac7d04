package languages

import (
	"context"
	"os"
	"os/exec"
	"time"
)

const probeTimeout = 5 * time.Second

// NodeModuleProbe checks capabilities by asking node to resolve the module.
func NodeModuleProbe(ctx context.Context, capability string) bool {
	var module string
	switch capability {
	case CapabilityTSNode:
		module = "ts-node/register/transpile-only"
	default:
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "node", "-e", "require.resolve(process.argv[1])", module)
	// resolve from where workspaces live, not from the server's cwd
	cmd.Dir = os.TempDir()
	return cmd.Run() == nil
}
