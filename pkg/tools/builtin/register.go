package builtin

import "github.com/forgekit/forge-agent/pkg/tools"

// Register adds every builtin tool to reg, rooted at baseDir for filesystem
// tools. spawner may be nil if spawn_agent will never be reachable (e.g. a
// sub-agent's own registry, which excludes it by scope anyway).
//
// registry.IsParallelSafe("spawn_agent") reports true unconditionally, since
// Spec.ParallelSafe is a static per-tool flag; the agent loop additionally
// checks each invocation's mode=="read_only" input before actually
// scheduling it concurrently (spec §4.3's parallelism policy is per-call,
// not per-tool).
func Register(reg *tools.Registry, baseDir string, spawner tools.Spawner) error {
	registrations := []struct {
		spec    tools.Spec
		handler tools.Handler
	}{
		{ReadFileSpec(), NewReadFileHandler(baseDir)},
		{WriteFileSpec(), NewWriteFileHandler(baseDir)},
		{ReplaceInFileSpec(), NewReplaceInFileHandler(baseDir)},
		{SearchFilesSpec(), NewSearchFilesHandler(baseDir)},
		{ListDirectorySpec(), NewListDirectoryHandler(baseDir)},
		{CompleteTaskSpec(), NewCompleteTaskHandler()},
		{SpawnAgentSpec(), NewSpawnAgentHandler(spawner)},
	}
	for _, r := range registrations {
		if err := reg.Register(r.spec, r.handler); err != nil {
			return err
		}
	}
	return nil
}
