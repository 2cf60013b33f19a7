package shader

import (
	"log"

	"github.com/gogpu/naga/ir"
)

// dumpReflection logs a human-readable summary of a linked program: its
// entry points and the global parameters it binds, with type names where
// the module records one.
func dumpReflection(entryName string, program *ir.Module) {
	log.Printf("shader: === reflection: %s ===", entryName)

	log.Printf("shader: entry points: %d", len(program.EntryPoints))
	for i := range program.EntryPoints {
		ep := &program.EntryPoints[i]
		log.Printf("shader:   [%d] %s (%s)", i, ep.Name, irStageName(ep.Stage))
	}

	if len(program.GlobalVariables) > 0 {
		log.Printf("shader: global parameters: %d", len(program.GlobalVariables))
		for i := range program.GlobalVariables {
			gv := &program.GlobalVariables[i]
			log.Printf("shader:   [%d] %s : %s", i, gv.Name, globalTypeName(program, i))
		}
	}

	log.Printf("shader: ========================")
}

// globalTypeName resolves the type name of the i-th global variable
// through the module's type table.
func globalTypeName(program *ir.Module, i int) string {
	idx := int(program.GlobalVariables[i].Type)
	if idx < 0 || idx >= len(program.Types) {
		return "unknown"
	}
	if name := program.Types[idx].Name; name != "" {
		return name
	}
	return "unknown"
}

func irStageName(stage ir.ShaderStage) string {
	switch stage {
	case ir.StageVertex:
		return "vertex"
	case ir.StageFragment:
		return "fragment"
	case ir.StageCompute:
		return "compute"
	default:
		return "unknown"
	}
}
