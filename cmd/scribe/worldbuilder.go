package main

import (
	"context"
	"math/rand"
	"strings"

	"github.com/worldforge/scribe/pipeline"
	"github.com/worldforge/scribe/pipeline/llm"
	"github.com/worldforge/scribe/pipeline/steps"
	"github.com/worldforge/scribe/pipeline/words"
)

// techniques are worldbuilding angles sampled into each scenario so the
// generated ideas do not collapse onto one narrative formula.
var techniques = []string{
	"start from the geography and let cultures grow out of it",
	"design the magic system first and derive its economy",
	"begin with a single historical cataclysm and trace its aftermath",
	"invert one law of nature and keep everything else mundane",
	"build around a scarce resource everyone needs",
	"describe the world through the eyes of its least powerful inhabitants",
	"extrapolate one present-day technology three centuries forward",
	"let two incompatible belief systems share one territory",
	"make the landscape itself alive and opinionated",
	"anchor everything to an ancient structure nobody can explain",
	"follow a trade route and describe only what it touches",
	"give the world a slow, well-known apocalypse and a culture of acceptance",
}

// ideaPromptTemplate turns a scenario's variables into the generation
// prompt. Kept deliberately open-ended; the cleanup step downstream is
// what imposes structure.
const ideaPromptTemplate = `You are a celebrated worldbuilder known for strange, internally consistent settings.

Invent several short fictional world concepts. Work these seed words into the fabric of the worlds, not just their names: {{.words}}.

Approach: {{.technique}}.

For each world give a name and a two to three sentence description. Write vivid prose, not bullet points.`

// cleanPrompt is the extraction instruction for the cleanup step.
const cleanPrompt = `Extract every distinct fictional world from the text below. Respond with JSON of the form {"worlds": [{"name": ..., "description": ...}]}. Use the text's own wording for descriptions, condensed to at most three sentences each. Do not invent worlds that are not in the text.`

// worldListSchema constrains the cleanup step's response on backends that
// support schema-guided decoding.
const worldListSchema = `{
  "type": "object",
  "properties": {
    "worlds": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string"},
          "description": {"type": "string"}
        },
        "required": ["name", "description"]
      }
    }
  },
  "required": ["worlds"]
}`

// worldBuilderRegistry assembles the world-builder pipeline's step
// prototypes. Keys flow scenario -> idea_prompt -> idea -> world_list ->
// export, with Parse and Render as optional branches off idea; every
// inkey and outkey can be rewired per --step argument.
func worldBuilderRegistry() (*pipeline.Registry, error) {
	lists, err := words.Load()
	if err != nil {
		return nil, err
	}
	client := llm.NewClientFromEnv()
	images := llm.NewImageClientFromEnv()

	reg := pipeline.NewRegistry()
	protos := []*pipeline.Step{
		steps.NewGenerate(scenarioVars(lists), "Scenario", "scenario",
			pipeline.Params{pipeline.ParamMax: "100"}),
		steps.NewExpandTemplate("IdeaPrompt", "scenario", "idea_prompt",
			pipeline.Params{pipeline.ParamTemplate: ideaPromptTemplate}),
		steps.NewLLMCompletion(client, "GenIdea", "idea_prompt", "idea", nil),
		steps.NewLLMExtraction(client, "Clean", "idea", "world_list",
			pipeline.Params{
				pipeline.ParamPrompt:     cleanPrompt,
				pipeline.ParamSchemaJSON: worldListSchema,
			}),
		steps.NewJSONParse("Parse", "idea", "world_raw", nil),
		steps.NewText2Image(images, "Render", "idea", "image", nil),
		steps.NewJSONExport("Export", "world_list", "export",
			pipeline.Params{pipeline.ParamFile: "worlds.jsonl"}),
	}
	for _, proto := range protos {
		if err := reg.Register(proto); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// scenarioVars samples the entropy for one scenario: a handful of seed
// words and a worldbuilding technique.
func scenarioVars(lists *words.Lists) steps.VarsFunc {
	return func(_ context.Context, _ string) (map[string]any, error) {
		advanced, err := lists.Random("advanced", 3)
		if err != nil {
			return nil, err
		}
		basic, err := lists.Random("basic", 3)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"words":     strings.Join(append(advanced, basic...), ", "),
			"technique": techniques[rand.Intn(len(techniques))],
		}, nil
	}
}
