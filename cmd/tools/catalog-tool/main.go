// cmd/tools/catalog-tool/main.go
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"applicant-portal/internal/application/gate"
	"applicant-portal/internal/models"
	"applicant-portal/pkg/catalog"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	validateCmd := flag.NewFlagSet("validate", flag.ContinueOnError)
	schemaCmd := flag.NewFlagSet("schema", flag.ContinueOnError)
	checkCmd := flag.NewFlagSet("check", flag.ContinueOnError)
	exportCmd := flag.NewFlagSet("export", flag.ContinueOnError)

	validatePath := validateCmd.String("path", "", "catalog file (default: built-in form)")
	schemaPath := schemaCmd.String("path", "", "catalog file (default: built-in form)")

	checkPath := checkCmd.String("path", "", "catalog file (default: built-in form)")
	fieldsPath := checkCmd.String("fields", "", "JSON file with a field map to check")
	consent := checkCmd.Bool("consent", false, "treat consent as given")

	exportPath := exportCmd.String("path", "", "catalog file (default: built-in form)")
	format := exportCmd.String("format", "yaml", "output format (yaml|json)")

	if len(args) < 1 {
		help(out)
		return fmt.Errorf("command required")
	}

	switch args[0] {
	case "validate":
		if err := validateCmd.Parse(args[1:]); err != nil {
			return err
		}
		c, err := load(*validatePath)
		if err != nil {
			return fmt.Errorf("catalog validation failed: %w", err)
		}
		if _, err := gate.New(c); err != nil {
			return fmt.Errorf("catalog validation failed: %w", err)
		}
		fmt.Fprintf(out, "Catalog validation passed. Found %d descriptors, %d required.\n",
			len(c.Descriptors), len(c.Required()))

	case "schema":
		if err := schemaCmd.Parse(args[1:]); err != nil {
			return err
		}
		c, err := load(*schemaPath)
		if err != nil {
			return err
		}
		return writeJSON(out, gate.SchemaFor(c))

	case "check":
		if err := checkCmd.Parse(args[1:]); err != nil {
			return err
		}
		if *fieldsPath == "" {
			checkCmd.Usage()
			return fmt.Errorf("-fields is required for check")
		}
		c, err := load(*checkPath)
		if err != nil {
			return err
		}
		g, err := gate.New(c)
		if err != nil {
			return err
		}
		fields, err := readFields(*fieldsPath)
		if err != nil {
			return err
		}
		result := g.Check(fields, *consent)
		if err := writeJSON(out, result); err != nil {
			return err
		}
		if !result.Valid {
			return fmt.Errorf("submission would be refused: %s", result.Reason())
		}

	case "export":
		if err := exportCmd.Parse(args[1:]); err != nil {
			return err
		}
		c, err := load(*exportPath)
		if err != nil {
			return err
		}
		switch *format {
		case "json":
			return writeJSON(out, c)
		case "yaml":
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(c)
		default:
			return fmt.Errorf("unknown format %q", *format)
		}

	case "help":
		help(out)

	default:
		help(out)
		return fmt.Errorf("unknown command %q", args[0])
	}
	return nil
}

func load(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default(), nil
	}
	return catalog.Load(path)
}

func readFields(path string) (models.Fields, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	return models.NormalizeFields(raw)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func help(out io.Writer) {
	fmt.Fprintln(out, `
Usage: catalog-tool <command> [flags]

Commands:
  validate  Check a catalog file for consistency
  schema    Print the JSON schema the submission gate compiles
  check     Run the submission gate over a field map
  export    Re-encode a catalog as yaml or json
  help      Show this help message

Examples:
  catalog-tool validate -path configs/catalog.yaml
  catalog-tool schema
  catalog-tool check -fields draft.json -consent
  catalog-tool export -format json > catalog.json

Use 'catalog-tool <command> -h' for more information about a command.`)
}
