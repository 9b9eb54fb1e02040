package composer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/analyzerhq/analyzer-console/pkg/logger"
)

// Stage names accepted by Compose
const (
	StageExtraction     = "extraction"
	StageCuration       = "curation"
	StageConcretization = "concretization"
)

// audienceGuidance maps each supported audience to the framing substituted
// into the rendered prompt
var audienceGuidance = map[string]string{
	"researcher": "Write for an academic researcher. Preserve nuance, cite the reasoning behind each claim, and flag uncertainty explicitly.",
	"analyst":    "Write for a professional analyst. Be structured and decision-oriented, lead with findings, and quantify where possible.",
	"executive":  "Write for an executive reader. Be concise, surface implications and recommended actions first, avoid methodological detail.",
	"activist":   "Write for an advocacy audience. Emphasize concrete stakes, affected groups, and actionable leverage points.",
}

const defaultAudience = "researcher"
const defaultFramework = "general"

// Request carries everything needed to compose one stage prompt
type Request struct {
	Stage           string
	EngineKey       string
	StageContext    map[string]interface{}
	Audience        string
	CanonicalSchema map[string]interface{}
}

// Result is a composed prompt. Skipped is set when the engine's stage context
// opts out of the requested stage.
type Result struct {
	Prompt        string `json:"prompt"`
	FrameworkUsed string `json:"framework_used"`
	Stage         string `json:"stage"`
	Audience      string `json:"audience"`
	Skipped       bool   `json:"skipped"`
}

// Composer renders stage prompts from an engine's structured stage context.
// It is constructed once at startup and shared by handlers.
type Composer struct {
	logger    *logger.Logger
	templates map[string]*template.Template
}

type templateData struct {
	EngineKey        string
	Audience         string
	AudienceGuidance string
	CoreQuestion     string
	Framework        string
	OutputFormat     string
	ExtractionSteps  []string
	CurationGuidance []string
	SchemaJSON       string
}

const extractionTemplate = `You are running the extraction stage of the {{.Framework}} framework for engine "{{.EngineKey}}".

Core question: {{.CoreQuestion}}

{{if .ExtractionSteps}}Extraction steps:
{{range $i, $step := .ExtractionSteps}}{{add1 $i}}. {{$step}}
{{end}}{{end}}{{if .SchemaJSON}}Produce output conforming to this schema:
{{.SchemaJSON}}

{{end}}{{.AudienceGuidance}}`

const curationTemplate = `You are running the curation stage of the {{.Framework}} framework for engine "{{.EngineKey}}".

Core question: {{.CoreQuestion}}

Review the extracted material and curate it.
{{if .CurationGuidance}}Curation guidance:
{{range .CurationGuidance}}- {{.}}
{{end}}{{end}}{{if .OutputFormat}}Output format: {{.OutputFormat}}

{{end}}{{.AudienceGuidance}}`

const concretizationTemplate = `You are running the concretization stage of the {{.Framework}} framework for engine "{{.EngineKey}}".

Core question: {{.CoreQuestion}}

Turn the curated analysis into concrete, specific findings grounded in the source material.
{{if .OutputFormat}}Output format: {{.OutputFormat}}

{{end}}{{.AudienceGuidance}}`

// New parses the stage templates and returns a ready composer
func New(logger *logger.Logger) (*Composer, error) {
	funcs := template.FuncMap{
		"add1": func(i int) int { return i + 1 },
	}

	sources := map[string]string{
		StageExtraction:     extractionTemplate,
		StageCuration:       curationTemplate,
		StageConcretization: concretizationTemplate,
	}

	templates := make(map[string]*template.Template, len(sources))
	for stage, src := range sources {
		tmpl, err := template.New(stage).Funcs(funcs).Parse(src)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", stage, err)
		}
		templates[stage] = tmpl
	}

	return &Composer{logger: logger, templates: templates}, nil
}

// Compose renders the prompt for one stage of an engine
func (c *Composer) Compose(req Request) (*Result, error) {
	tmpl, ok := c.templates[req.Stage]
	if !ok {
		return nil, fmt.Errorf("unknown stage %q", req.Stage)
	}

	audience := req.Audience
	if audience == "" {
		audience = defaultAudience
	}
	guidance, ok := audienceGuidance[audience]
	if !ok {
		return nil, fmt.Errorf("unknown audience %q", audience)
	}

	if req.StageContext == nil {
		return nil, errors.New("engine has no stage context")
	}

	framework := stringField(req.StageContext, "framework")
	if framework == "" {
		framework = defaultFramework
	}

	if req.Stage == StageConcretization && boolField(req.StageContext, "skip_concretization") {
		return &Result{
			FrameworkUsed: framework,
			Stage:         req.Stage,
			Audience:      audience,
			Skipped:       true,
		}, nil
	}

	data := templateData{
		EngineKey:        req.EngineKey,
		Audience:         audience,
		AudienceGuidance: guidance,
		CoreQuestion:     stringField(req.StageContext, "core_question"),
		Framework:        framework,
		OutputFormat:     stringField(req.StageContext, "output_format"),
		ExtractionSteps:  stringListField(req.StageContext, "extraction_steps"),
		CurationGuidance: stringListField(req.StageContext, "curation_guidance"),
	}

	if req.Stage == StageExtraction && req.CanonicalSchema != nil {
		schemaJSON, err := json.MarshalIndent(req.CanonicalSchema, "", "  ")
		if err == nil {
			data.SchemaJSON = string(schemaJSON)
		}
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render %s prompt: %w", req.Stage, err)
	}

	return &Result{
		Prompt:        buf.String(),
		FrameworkUsed: framework,
		Stage:         req.Stage,
		Audience:      audience,
	}, nil
}

// ValidStage reports whether s names a known stage
func ValidStage(s string) bool {
	switch s {
	case StageExtraction, StageCuration, StageConcretization:
		return true
	}
	return false
}

func stringField(m map[string]interface{}, key string) string {
	v, _ := m[key].(string)
	return v
}

func boolField(m map[string]interface{}, key string) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}

func stringListField(m map[string]interface{}, key string) []string {
	raw, ok := m[key].([]interface{})
	if !ok {
		return nil
	}
	items := make([]string, 0, len(raw))
	for _, entry := range raw {
		if s, ok := entry.(string); ok {
			items = append(items, s)
		}
	}
	return items
}
