// Command ralph drives the multi-agent orchestrator: it decomposes a
// backlog, spawns task agents in isolated git worktrees, coordinates their
// work, and merges completed branches back onto a target branch.
package main

func main() {
	Execute()
}
