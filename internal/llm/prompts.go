package llm

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed prompts/*
var promptFS embed.FS

type promptSet struct {
	classify         *template.Template
	draft            *template.Template
	draftSystem      string
	classifySchema   *gojsonschema.Schema
	draftSchema      *gojsonschema.Schema
	classifySchemaJS string
	draftSchemaJS    string
}

type promptData struct {
	Repo   string
	Signal SignalInput
	Schema string
}

func loadPrompts() (*promptSet, error) {
	read := func(name string) (string, error) {
		b, err := promptFS.ReadFile("prompts/" + name)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	classifyText, err := read("classify.tmpl")
	if err != nil {
		return nil, err
	}
	draftText, err := read("draft.tmpl")
	if err != nil {
		return nil, err
	}
	system, err := read("draft_system.txt")
	if err != nil {
		return nil, err
	}
	classifySchemaJS, err := read("classification.schema.json")
	if err != nil {
		return nil, err
	}
	draftSchemaJS, err := read("draft.schema.json")
	if err != nil {
		return nil, err
	}

	ps := &promptSet{
		draftSystem:      strings.TrimSpace(system),
		classifySchemaJS: strings.TrimSpace(classifySchemaJS),
		draftSchemaJS:    strings.TrimSpace(draftSchemaJS),
	}
	if ps.classify, err = template.New("classify").Parse(classifyText); err != nil {
		return nil, fmt.Errorf("parse classify prompt: %w", err)
	}
	if ps.draft, err = template.New("draft").Parse(draftText); err != nil {
		return nil, fmt.Errorf("parse draft prompt: %w", err)
	}
	if ps.classifySchema, err = gojsonschema.NewSchema(gojsonschema.NewStringLoader(classifySchemaJS)); err != nil {
		return nil, fmt.Errorf("compile classification schema: %w", err)
	}
	if ps.draftSchema, err = gojsonschema.NewSchema(gojsonschema.NewStringLoader(draftSchemaJS)); err != nil {
		return nil, fmt.Errorf("compile draft schema: %w", err)
	}
	return ps, nil
}

func render(t *template.Template, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
