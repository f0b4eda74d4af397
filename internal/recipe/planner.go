package recipe

import (
	"fmt"
	"sort"
)

// PlannedStage is one DAG node after planning: parameters merged and
// validated, inputs resolved to upstream artifact schemas, and an
// execution ordinal assigned.
type PlannedStage struct {
	Stage
	Ordinal      int
	ModuleID     string
	Params       map[string]any
	OutputSchema string
	OutputName   string
}

// Plan is the fully resolved, topologically ordered stage DAG.
type Plan struct {
	Stages []PlannedStage
}

// StageByID returns the planned stage with the given id, if present.
func (p *Plan) StageByID(id string) (PlannedStage, bool) {
	for _, s := range p.Stages {
		if s.ID == id {
			return s, true
		}
	}
	return PlannedStage{}, false
}

// BuildPlan performs Kahn's-algorithm topological sort over recipe.Stages
// (deterministic tie-break by stage id), validates needs existence,
// schema compatibility between a stage's module input_schemas and each
// upstream's output_schema, parameter validity, and output-filename
// uniqueness.
func BuildPlan(r *Recipe, registry *ModuleRegistry) (*Plan, error) {
	byID := make(map[string]Stage, len(r.Stages))
	for _, s := range r.Stages {
		if _, dup := byID[s.ID]; dup {
			return nil, fmt.Errorf("recipe: duplicate stage id %q", s.ID)
		}
		byID[s.ID] = s
	}

	for _, s := range r.Stages {
		for _, need := range s.Needs {
			if _, ok := byID[need]; !ok {
				return nil, fmt.Errorf("recipe: stage %q needs unknown stage %q", s.ID, need)
			}
		}
	}

	order, err := topoSort(r.Stages)
	if err != nil {
		return nil, err
	}

	moduleOutputSchema := make(map[string]string, len(byID))
	usedNames := make(map[string]string, len(order))

	plan := &Plan{Stages: make([]PlannedStage, 0, len(order))}
	for i, stageID := range order {
		stage := byID[stageID]
		module, ok := registry.Get(stage.Module)
		if !ok {
			return nil, fmt.Errorf("recipe: stage %q references unknown module %q", stage.ID, stage.Module)
		}

		for _, need := range stage.Needs {
			needStage := byID[need]
			upstreamSchema := moduleOutputSchema[need]
			if !containsString(module.InputSchemas, upstreamSchema) {
				return nil, fmt.Errorf("recipe: stage %q (module %s) does not declare input_schema %q produced by needed stage %q (module %s)",
					stage.ID, module.ModuleID, upstreamSchema, need, needStage.Module)
			}
		}
		moduleOutputSchema[stage.ID] = module.OutputSchema

		recipeDefaults := r.DefaultParams[stage.Module]
		params := MergeParams(module, recipeDefaults, stage.Params)
		if err := ValidateParams(stage.ID, module, params); err != nil {
			return nil, err
		}

		outName := resolveOutputName(stage, r.Outputs, module)
		if existingStage, dup := usedNames[outName]; dup {
			return nil, fmt.Errorf("recipe: output filename %q used by both stage %q and stage %q", outName, existingStage, stage.ID)
		}
		usedNames[outName] = stage.ID

		plan.Stages = append(plan.Stages, PlannedStage{
			Stage:        stage,
			Ordinal:      i,
			ModuleID:     module.ModuleID,
			Params:       params,
			OutputSchema: module.OutputSchema,
			OutputName:   outName,
		})
	}

	return plan, nil
}

// resolveOutputName applies precedence stage.Out > recipe.Outputs[id] > a
// module-derived default name.
func resolveOutputName(stage Stage, recipeOutputs map[string]string, module ModuleManifest) string {
	if stage.Out != "" {
		return stage.Out
	}
	if name, ok := recipeOutputs[stage.ID]; ok && name != "" {
		return name
	}
	return module.ModuleID + ".jsonl"
}

// topoSort runs Kahn's algorithm with a deterministic tie-break: among
// stages with no remaining dependencies, the lexicographically smallest
// id is scheduled first.
func topoSort(stages []Stage) ([]string, error) {
	inDegree := make(map[string]int, len(stages))
	dependents := make(map[string][]string, len(stages))
	for _, s := range stages {
		if _, ok := inDegree[s.ID]; !ok {
			inDegree[s.ID] = 0
		}
		for _, need := range s.Needs {
			inDegree[s.ID]++
			dependents[need] = append(dependents[need], s.ID)
		}
	}

	var ready []string
	for id, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	var order []string
	for len(ready) > 0 {
		sort.Strings(ready)
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		for _, dep := range dependents[next] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(order) != len(stages) {
		return nil, fmt.Errorf("recipe: dependency cycle detected among stages: %s", cycleEdges(stages, inDegree))
	}
	return order, nil
}

// cycleEdges names the stage ids still holding unresolved dependencies
// when topoSort fails, so the error identifies the cycle's participants.
func cycleEdges(stages []Stage, remainingInDegree map[string]int) string {
	var stuck []string
	for _, s := range stages {
		if remainingInDegree[s.ID] > 0 {
			stuck = append(stuck, s.ID)
		}
	}
	sort.Strings(stuck)
	out := ""
	for i, id := range stuck {
		if i > 0 {
			out += ", "
		}
		out += id
	}
	return out
}
