package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"smartlists/models"
	"smartlists/services/lists"
	"smartlists/services/rules"
)

func newValidateCommand(_ *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Compile the rules of a list definition file without saving it",
		Long:  "The file holds one list definition or a JSON array of them, as served by GET /api/lists.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return validateDefinitions(cmd.OutOrStdout(), data, time.Now().UTC())
		},
	}
}

func decodeDefinitions(data []byte) ([]models.SmartList, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var out []models.SmartList
		if err := json.Unmarshal(trimmed, &out); err != nil {
			return nil, fmt.Errorf("parse list definitions: %w", err)
		}
		return out, nil
	}
	var one models.SmartList
	if err := json.Unmarshal(trimmed, &one); err != nil {
		return nil, fmt.Errorf("parse list definition: %w", err)
	}
	return []models.SmartList{one}, nil
}

func validateDefinitions(out io.Writer, data []byte, now time.Time) error {
	defs, err := decodeDefinitions(data)
	if err != nil {
		return err
	}

	invalid := 0
	for i, list := range defs {
		label := list.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i+1)
		}
		err := lists.Validate(list, now)
		if err == nil {
			fmt.Fprintf(out, "ok      %s\n", label)
			continue
		}
		invalid++
		fmt.Fprintf(out, "invalid %s\n", label)
		compErrs := rules.CompilationErrors(err)
		if len(compErrs) == 0 {
			fmt.Fprintf(out, "  %v\n", err)
			continue
		}
		for _, ce := range compErrs {
			fmt.Fprintf(out, "  %s %s %q: %v\n", ce.Field, ce.Operator, ce.Value, ce.Err)
		}
	}
	if invalid > 0 {
		return fmt.Errorf("%d of %d list definitions are invalid", invalid, len(defs))
	}
	return nil
}
