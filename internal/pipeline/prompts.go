package pipeline

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

//go:embed prompts/*.tmpl
var embeddedPrompts embed.FS

// Template names. A prompt directory may override any of them with a file of
// the same name.
const (
	systemTemplate    = "system.tmpl"
	registersTemplate = "extract_registers.tmpl"
	schematicTemplate = "parse_schematic.tmpl"
	generateTemplate  = "generate_code.tmpl"
)

// promptData is the input to every stage template.
type promptData struct {
	// Content is extracted document text; empty for vision requests
	Content string

	// Registers and Pins are indented JSON of the earlier stages' output
	Registers string
	Pins      string

	Instruction string
}

// Prompts renders the stage prompts.
type Prompts struct {
	system    string
	registers *template.Template
	schematic *template.Template
	generate  *template.Template
}

// LoadPrompts parses the prompt templates. Templates found in dir replace the
// embedded defaults; an empty dir uses the defaults only.
//
// Parameters:
//   - dir: Optional directory holding replacement .tmpl files
//
// Returns:
//   - The parsed prompts
//   - An error if a template cannot be read or parsed
func LoadPrompts(dir string) (*Prompts, error) {
	read := func(name string) (string, error) {
		if dir != "" {
			data, err := os.ReadFile(filepath.Join(dir, name))
			if err == nil {
				return string(data), nil
			}
			if !errors.Is(err, fs.ErrNotExist) {
				return "", fmt.Errorf("failed to read prompt template %s: %w", name, err)
			}
		}
		data, err := embeddedPrompts.ReadFile("prompts/" + name)
		if err != nil {
			return "", fmt.Errorf("failed to read embedded prompt template %s: %w", name, err)
		}
		return string(data), nil
	}

	parse := func(name string) (*template.Template, error) {
		text, err := read(name)
		if err != nil {
			return nil, err
		}
		tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("failed to parse prompt template %s: %w", name, err)
		}
		return tmpl, nil
	}

	system, err := read(systemTemplate)
	if err != nil {
		return nil, err
	}
	p := &Prompts{system: strings.TrimSpace(system)}
	if p.registers, err = parse(registersTemplate); err != nil {
		return nil, err
	}
	if p.schematic, err = parse(schematicTemplate); err != nil {
		return nil, err
	}
	if p.generate, err = parse(generateTemplate); err != nil {
		return nil, err
	}
	return p, nil
}

// System returns the system prompt shared by the register and code stages.
func (p *Prompts) System() string {
	return p.system
}

// ExtractRegisters renders the register extraction prompt around datasheet text.
func (p *Prompts) ExtractRegisters(content string) (string, error) {
	return render(p.registers, promptData{Content: content})
}

// ParseSchematic renders the schematic prompt. An empty content produces the
// variant sent alongside an image.
func (p *Prompts) ParseSchematic(content string) (string, error) {
	return render(p.schematic, promptData{Content: content})
}

// GenerateCode renders the code generation prompt.
func (p *Prompts) GenerateCode(registers, pins, instruction string) (string, error) {
	return render(p.generate, promptData{Registers: registers, Pins: pins, Instruction: instruction})
}

func render(tmpl *template.Template, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute prompt template %s: %w", tmpl.Name(), err)
	}
	return strings.TrimSpace(buf.String()), nil
}
