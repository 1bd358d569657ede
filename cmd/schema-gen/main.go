/*
Copyright © 2025 Jayson Grace <jayson.e.grace@gmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/

// Package main generates a JSON schema for the tarforge configuration file.
// Editors use it for completion and validation of config.yaml.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"github.com/cowdogmoo/tarforge/builder"
	"github.com/cowdogmoo/tarforge/config"
)

const schemaID = "https://tarforge.dev/schema/config.json"

var (
	output = flag.String("o", "schema/tarforge-config.json", "Output path for JSON schema")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	reflector := jsonschema.Reflector{
		ExpandedStruct:            true,
		AllowAdditionalProperties: false,
	}

	// Field comments become descriptions. Missing sources only cost the
	// descriptions.
	if err := reflector.AddGoComments("github.com/cowdogmoo/tarforge", "./config"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to extract comments: %v\n", err)
	}

	schema := reflector.Reflect(&config.Config{})

	schema.ID = jsonschema.ID(schemaID)
	schema.Title = "Tarforge Configuration"
	schema.Description = "Schema for the tarforge config.yaml file"
	// schema.Version is the JSON Schema draft; the tool version goes in extras.
	if schema.Extras == nil {
		schema.Extras = make(map[string]interface{})
	}
	schema.Extras["tarforgeVersion"] = builder.Version

	schema.Examples = []interface{}{
		map[string]interface{}{
			"log": map[string]interface{}{
				"level":  "info",
				"format": "color",
			},
			"output": map[string]interface{}{
				"dir": "output",
			},
			"build": map[string]interface{}{
				"mode":        "all",
				"binary_name": "prog",
			},
			"native": map[string]interface{}{
				"make": "make",
			},
			"container": map[string]interface{}{
				"builder_name": "tarforge-builder",
				"platforms":    []string{"linux/arm64", "linux/amd64"},
				"target_stage": "builder",
				"dockerfile":   "Dockerfile",
				"workdir":      "/build",
				"concurrency":  2,
			},
		},
	}

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}

	dir := filepath.Dir(*output)
	if err := os.MkdirAll(dir, config.DirPermReadWriteExec); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	data = append(data, '\n')

	if err := os.WriteFile(*output, data, config.FilePermReadWrite); err != nil {
		return fmt.Errorf("failed to write schema file: %w", err)
	}

	fmt.Printf("✓ Generated JSON schema: %s\n", *output)
	return nil
}
