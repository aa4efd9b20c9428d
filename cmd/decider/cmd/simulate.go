package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/solatis/decider/internal/core/api"
	"github.com/solatis/decider/internal/rules"
	"github.com/solatis/decider/internal/types"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Evaluate a table definition file against a context without a database",
	Example: `  decider simulate --file discount.yaml --context '{"region":"EU","amount":1200}'
  decider simulate --file discount.yaml --context-file ctx.json --detailed`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().String("file", "", "table definition (YAML or JSON)")
	simulateCmd.Flags().String("context", "{}", "evaluation context as a JSON object")
	simulateCmd.Flags().String("context-file", "", "read the evaluation context from a JSON file")
	simulateCmd.Flags().Bool("detailed", false, "include the per-rule trace")
	simulateCmd.Flags().Bool("json", false, "print the decision as JSON")
	_ = simulateCmd.MarkFlagRequired("file")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("file")
	detailed, _ := cmd.Flags().GetBool("detailed")
	asJSON, _ := cmd.Flags().GetBool("json")

	definition, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read table definition: %w", err)
	}

	rawContext, _ := cmd.Flags().GetString("context")
	if contextPath, _ := cmd.Flags().GetString("context-file"); contextPath != "" {
		data, err := os.ReadFile(contextPath)
		if err != nil {
			return fmt.Errorf("failed to read context: %w", err)
		}
		rawContext = string(data)
	}

	decision, err := simulate(definition, rawContext, detailed)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(decision)
	}
	renderDecision(out, decision)
	return nil
}

// simulate validates the definition and evaluates it against the context.
func simulate(definition []byte, rawContext string, detailed bool) (rules.Decision, error) {
	doc, err := yamlToJSON(definition)
	if err != nil {
		return rules.Decision{}, fmt.Errorf("invalid table definition: %w", err)
	}
	var def api.TableDefinition
	if err := json.Unmarshal(doc, &def); err != nil {
		return rules.Decision{}, fmt.Errorf("invalid table definition: %w", err)
	}

	evalCtx := types.Context{}
	if strings.TrimSpace(rawContext) != "" {
		if err := json.Unmarshal([]byte(rawContext), &evalCtx); err != nil {
			return rules.Decision{}, fmt.Errorf("invalid context: %w", err)
		}
		if evalCtx == nil {
			evalCtx = types.Context{}
		}
	}

	policy, ruleSet, err := api.SimulationRules(def)
	if err != nil {
		return rules.Decision{}, err
	}
	return rules.NewEngine(nil).Evaluate(policy, ruleSet, evalCtx, detailed), nil
}

// yamlToJSON re-encodes a YAML document as JSON, keeping mapping keys in
// document order so rule conditions are evaluated as written.
func yamlToJSON(data []byte) ([]byte, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	if node.Kind == 0 {
		return nil, fmt.Errorf("document is empty")
	}
	var buf bytes.Buffer
	if err := writeNode(&buf, &node); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeNode(buf *bytes.Buffer, n *yaml.Node) error {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			buf.WriteString("null")
			return nil
		}
		return writeNode(buf, n.Content[0])
	case yaml.AliasNode:
		return writeNode(buf, n.Alias)
	case yaml.MappingNode:
		buf.WriteByte('{')
		for i := 0; i+1 < len(n.Content); i += 2 {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(n.Content[i].Value)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := writeNode(buf, n.Content[i+1]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case yaml.SequenceNode:
		buf.WriteByte('[')
		for i, item := range n.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeNode(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return err
		}
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("line %d: %w", n.Line, err)
		}
		buf.Write(b)
		return nil
	default:
		return fmt.Errorf("line %d: unsupported YAML node", n.Line)
	}
}

func renderDecision(w io.Writer, d rules.Decision) {
	ruleID := "-"
	if d.RuleID != nil {
		ruleID = *d.RuleID
	}
	fmt.Fprintf(w, "Hit policy: %s\nRule: %s\n", d.HitPolicy, ruleID)
	if len(d.MatchedRuleIDs) > 0 {
		fmt.Fprintf(w, "Matched: %s\n", strings.Join(d.MatchedRuleIDs, ", "))
	}
	if d.Error != nil {
		fmt.Fprintf(w, "Error: %s\n", *d.Error)
	}

	keys := make([]string, 0, len(d.Result))
	for k := range d.Result {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	result := table.NewWriter()
	result.SetOutputMirror(w)
	result.AppendHeader(table.Row{"Output", "Value"})
	for _, k := range keys {
		result.AppendRow(table.Row{k, types.FormatValue(d.Result[k])})
	}
	result.Render()

	if len(d.Trace) == 0 {
		return
	}
	trace := table.NewWriter()
	trace.SetOutputMirror(w)
	trace.AppendHeader(table.Row{"Rule", "Priority", "Matched", "Summary"})
	for _, t := range d.Trace {
		trace.AppendRow(table.Row{string(t.RuleID), t.Priority, t.Matched, t.Summary})
	}
	trace.Render()
}
