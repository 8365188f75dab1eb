package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// formatSeconds renders a countdown as h:mm:ss.
func formatSeconds(s int64) string {
	if s < 0 {
		s = 0
	}
	return fmt.Sprintf("%d:%02d:%02d", s/3600, s/60%60, s%60)
}

// outputFlags are the machine-readable output switches shared by read-only
// commands.
type outputFlags struct {
	json bool
	yaml bool
}

func (o *outputFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&o.json, "json", false, "Print as JSON.")
	cmd.Flags().BoolVar(&o.yaml, "yaml", false, "Print as YAML.")
	cmd.MarkFlagsMutuallyExclusive("json", "yaml")
}

// print writes v in the selected format and reports whether it did. It
// returns false when human-readable output was asked for.
func (o *outputFlags) print(cmd *cobra.Command, v any) (bool, error) {
	switch {
	case o.json:
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return true, err
		}
		cmd.Println(string(b))
		return true, nil
	case o.yaml:
		b, err := marshalYAML(v)
		if err != nil {
			return true, err
		}
		cmd.Print(string(b))
		return true, nil
	}
	return false, nil
}

// marshalYAML goes through JSON first so keys match the API field names.
func marshalYAML(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return nil, err
	}
	return yaml.Marshal(generic)
}
