package cli

import "context"

// Validate loads the configuration and its inputs and assembles the program without
// solving it, so that every structural error surfaces.
func Validate(ctx context.Context, opts Options) (err error) {
	ws, err := open(ctx, opts, true)
	if err != nil {
		return err
	}
	defer closeWorkspace(ws, &err)

	planner := createPlanner(ws.cfg, ws.logger, nil, opts.Debug)
	asm, err := planner.Assemble(ctx, ws.tree, ws.spec, runOptions(ws.cfg, ""))
	if err != nil {
		return err
	}

	out := opts.out()
	printSystemMessage(out, "Tree: %d nodes, %d stages, %d scenarios.", asm.Tree.Len(), asm.Tree.Depth()+1, len(asm.Tree.Leaves()))
	printSystemMessage(out, "Program: %s formulation, %d variables, %d constraints, %d couplings.",
		asm.Formulation, asm.Program.NumVars(), asm.Program.NumRows(), len(asm.Couplings))
	printSystemMessage(out, "Configuration is valid.")
	return nil
}
