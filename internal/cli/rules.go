// rules.go implements the "leafctl rules" command group.
//
// Rule-based models are stored as Bindings (a rule set plus the state and
// action definitions it refers to) in JSON, YAML or TOML, either on the
// local file system or in S3 (s3://bucket/key). Legacy agent files use
// the ".rules" extension and are read as Agents.

package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/leaf-ai/leaf-common/internal/executor"
	"github.com/leaf-ai/leaf-common/internal/model"
	"github.com/leaf-ai/leaf-common/internal/persistence"
	"github.com/leaf-ai/leaf-common/internal/rules"
)

// NewRulesCommand creates the "rules" parent command.
func NewRulesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect, evaluate and convert rule-based models",
	}

	cmd.AddCommand(newRulesShowCommand())
	cmd.AddCommand(newRulesEvalCommand())
	cmd.AddCommand(newRulesVotesCommand())
	cmd.AddCommand(newRulesConvertCommand())

	return cmd
}

// rulesShowFlags holds the flag values for "rules show".
type rulesShowFlags struct {
	network string
}

func newRulesShowCommand() *cobra.Command {
	flags := &rulesShowFlags{}

	cmd := &cobra.Command{
		Use:   "show FILE",
		Short: "Print a rule-based model in readable form",
		Long: `Print the rules of a Binding (or of a legacy ".rules" agent file) with
state and action names resolved.

--network names the states and actions from the network.inputs and
network.outputs of an experiment config (JSON with comments) instead of
the names stored with the model.

Examples:
  leafctl rules show model.json
  leafctl rules show s3://models/run-42/best.yaml
  leafctl rules show champion.rules --network experiment.jsonc --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRulesShow(cmd.Context(), cmd.OutOrStdout(), flags, args[0])
		},
	}

	cmd.Flags().StringVar(&flags.network, "network", "", "Experiment config naming the model's states and actions")

	return cmd
}

func runRulesShow(ctx context.Context, out io.Writer, flags *rulesShowFlags, ref string) error {
	var network *rules.NetworkConfig
	if flags.network != "" {
		cfg, err := rules.LoadNetworkConfig(flags.network)
		if err != nil {
			return model.WrapCLIError(model.ExitConfigError, "failed to load network config", err)
		}
		network = cfg
	}

	if isAgentFile(ref) {
		agent, err := loadAgent(ctx, ref)
		if err != nil {
			return err
		}
		if network != nil {
			if err := renameAgent(agent, network); err != nil {
				return model.WrapCLIError(model.ExitConfigError, "invalid network config", err)
			}
		}
		if IsJSONOutput() {
			return printJSON(out, agent)
		}
		if _, err := fmt.Fprint(out, agent.String()); err != nil {
			return err
		}
		if keys := agent.ActionStates(); len(keys) > 0 {
			names := make([]string, 0, len(keys))
			for _, key := range keys {
				names = append(names, agent.States[key])
			}
			_, err = fmt.Fprintf(out, "Action states: %s\n", strings.Join(names, ", "))
		}
		return err
	}

	binding, err := restoreBinding(ctx, ref)
	if err != nil {
		return err
	}
	if network != nil {
		binding = rules.NewBinding(binding.Rules, network.Network.Inputs, network.Network.Outputs)
	}
	if IsJSONOutput() {
		return printJSON(out, binding)
	}
	_, err = fmt.Fprint(out, binding.String())
	return err
}

// renameAgent replaces the agent's state and action names with those of
// the network config.
func renameAgent(agent *rules.Agent, network *rules.NetworkConfig) error {
	states, err := rules.GetStates(network)
	if err != nil {
		return err
	}
	actions, err := rules.GetActions(network)
	if err != nil {
		return err
	}
	agent.States = states
	agent.Actions = actions
	return nil
}

func isAgentFile(ref string) bool {
	return strings.EqualFold(filepath.Ext(ref), rules.AgentFileExtension)
}

func loadAgent(ctx context.Context, ref string) (*rules.Agent, error) {
	agent, err := rules.LoadAgent(ctx, ref)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitPersistenceError, fmt.Sprintf("failed to load agent %s", ref), err)
	}
	return agent, nil
}

// rulesEvalFlags holds the flag values for "rules eval".
type rulesEvalFlags struct {
	parallelism int
}

func newRulesEvalCommand() *cobra.Command {
	flags := &rulesEvalFlags{}

	cmd := &cobra.Command{
		Use:   "eval BINDING DATA...",
		Short: "Evaluate a Binding over one or more data files",
		Long: `Evaluate the rules of BINDING over each DATA file and print one action
vector per sample.

A data file holds a feature-major matrix (data[feature][sample]) of
encoded state values in JSON or YAML. Files are evaluated concurrently
but printed in the order given, as a table with one column per action.

Examples:
  leafctl rules eval model.json day1.json day2.json
  leafctl rules eval s3://models/best.json s3://data/week.yaml --json`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRulesEval(cmd.Context(), cmd.OutOrStdout(), flags, args[0], args[1:])
		},
	}

	cmd.Flags().IntVar(&flags.parallelism, "parallelism", 4, "Maximum number of data files evaluated at once")

	return cmd
}

// evalOutput is the result for one data file.
type evalOutput struct {
	Data    string      `json:"data"`
	Outputs [][]float64 `json:"outputs"`
}

func runRulesEval(ctx context.Context, out io.Writer, flags *rulesEvalFlags, bindingRef string, dataRefs []string) error {
	binding, err := restoreBinding(ctx, bindingRef)
	if err != nil {
		return err
	}

	pool := executor.New(flags.parallelism, lggr)
	pool.Start()
	defer func() {
		if err := pool.Shutdown(context.WithoutCancel(ctx)); err != nil {
			VerboseLog("executor shutdown: %v", err)
		}
	}()

	// Evaluation updates rule statistics, so every task works on its own
	// copy of the binding.
	futures := make([]*executor.Future[[][]float64], 0, len(dataRefs))
	for _, ref := range dataRefs {
		local := rules.NewBinding(binding.Rules, binding.States, binding.Actions)
		future, err := executor.Submit(pool, ref, func(ctx context.Context) ([][]float64, error) {
			data, err := restoreData(ctx, ref)
			if err != nil {
				return nil, err
			}
			return rules.BindingEvaluator{}.Evaluate(local, data)
		})
		if err != nil {
			return err
		}
		futures = append(futures, future)
	}

	results := make([]evalOutput, 0, len(futures))
	for _, future := range futures {
		outputs, err := future.Wait(ctx)
		if err != nil {
			return model.WrapCLIError(model.ExitGeneralError,
				fmt.Sprintf("failed to evaluate %s", future.SubmitterID()), err)
		}
		VerboseLog("Evaluated %s: %d samples", future.SubmitterID(), len(outputs))
		results = append(results, evalOutput{Data: future.SubmitterID(), Outputs: outputs})
	}

	if IsJSONOutput() {
		return printJSON(out, results)
	}

	actionNames, err := binding.ActionNames()
	if err != nil {
		return err
	}
	writeEvalTable(out, actionNames, results)
	return nil
}

// writeEvalTable prints one row per sample with a column per action.
func writeEvalTable(out io.Writer, actionNames []string, results []evalOutput) {
	table := tablewriter.NewWriter(out)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeader(append([]string{"data", "sample"}, actionNames...))

	for _, r := range results {
		for s, values := range r.Outputs {
			row := make([]string, 0, len(values)+2)
			row = append(row, r.Data, strconv.Itoa(s))
			for _, v := range values {
				// Same precision the rules are printed with.
				row = append(row, strconv.FormatFloat(v, 'f', rules.DecimalDigits, 64))
			}
			table.Append(row)
		}
	}
	table.Render()
}

func newRulesVotesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "votes AGENT DATA",
		Short: "Replay a legacy agent over a data file",
		Long: `Replay the ".rules" AGENT over DATA one sample at a time and print how
many rules voted for each action and which action was taken. Taken actions
feed the rules that look back at earlier actions.

DATA is a feature-major matrix like the one read by "rules eval"; feature
i feeds the agent's i-th state. Value conditions are scaled to the range
each feature covers in DATA.

Examples:
  leafctl rules votes champion.rules episode.json
  leafctl rules votes champion.rules s3://data/episode.yaml --json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRulesVotes(cmd.Context(), cmd.OutOrStdout(), args[0], args[1])
		},
	}
}

func runRulesVotes(ctx context.Context, out io.Writer, agentRef, dataRef string) error {
	if !isAgentFile(agentRef) {
		return model.NewCLIError(model.ExitGeneralError,
			fmt.Sprintf("%s is not an agent file (want %s)", agentRef, rules.AgentFileExtension))
	}
	agent, err := loadAgent(ctx, agentRef)
	if err != nil {
		return err
	}

	data, err := restoreData(ctx, dataRef)
	if err != nil {
		return model.WrapCLIError(model.ExitPersistenceError, fmt.Sprintf("failed to load data %s", dataRef), err)
	}

	steps, err := agent.Replay(data, nil)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, fmt.Sprintf("failed to replay %s", agentRef), err)
	}
	VerboseLog("Replayed %s over %d samples", agentRef, len(steps))

	if IsJSONOutput() {
		return printJSON(out, steps)
	}

	keys := make([]string, 0, len(agent.Actions))
	for key := range agent.Actions {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	header := []string{"sample"}
	for _, key := range keys {
		header = append(header, agent.Actions[key])
	}
	header = append(header, "action")

	table := tablewriter.NewWriter(out)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeader(header)
	for s, step := range steps {
		row := make([]string, 0, len(header))
		row = append(row, strconv.Itoa(s))
		for _, key := range keys {
			row = append(row, strconv.Itoa(step.Votes[key]))
		}
		row = append(row, actionName(agent.Actions, step.Action))
		table.Append(row)
	}
	table.Render()
	return nil
}

func actionName(actions map[string]string, key string) string {
	if name, ok := actions[key]; ok {
		return name
	}
	return key
}

func newRulesConvertCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "convert IN OUT",
		Short: "Copy a Binding into another format or location",
		Long: `Read the Binding at IN and write it to OUT. Formats are taken from the
file extensions (.json, .yaml, .yml, .toml) and either side may be an
s3://bucket/key reference.

Examples:
  leafctl rules convert model.json model.yaml
  leafctl rules convert s3://models/best.json ./best.toml`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRulesConvert(cmd.Context(), cmd.OutOrStdout(), args[0], args[1])
		},
	}
}

func runRulesConvert(ctx context.Context, out io.Writer, in, dest string) error {
	binding, err := restoreBinding(ctx, in)
	if err != nil {
		return err
	}

	p, key, err := rules.BindingPersistenceFor(dest, appConfig.Persistence.Region, lggr)
	if err != nil {
		return model.WrapCLIError(model.ExitPersistenceError, fmt.Sprintf("cannot write %s", dest), err)
	}
	written, err := p.Persist(ctx, binding, key)
	if err != nil {
		return model.WrapCLIError(model.ExitPersistenceError, fmt.Sprintf("failed to write %s", dest), err)
	}

	if IsJSONOutput() {
		return printJSON(out, map[string]string{"source": in, "destination": written})
	}
	fmt.Fprintf(out, "Wrote %s\n", written)
	return nil
}

// restoreBinding reads and validates the Binding at ref.
func restoreBinding(ctx context.Context, ref string) (*rules.Binding, error) {
	p, key, err := rules.BindingPersistenceFor(ref, appConfig.Persistence.Region, lggr)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitPersistenceError, fmt.Sprintf("cannot read %s", ref), err)
	}

	VerboseLog("Restoring binding from %s", ref)
	binding, err := p.Restore(ctx, key)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitPersistenceError, fmt.Sprintf("failed to load binding %s", ref), err)
	}
	return binding, nil
}

// restoreData reads a feature-major data matrix.
func restoreData(ctx context.Context, ref string) ([][]float64, error) {
	p, key, err := persistence.ForReference[[][]float64](ref, appConfig.Persistence.Region, lggr, persistence.WithMustExist())
	if err != nil {
		return nil, err
	}
	return p.Restore(ctx, key)
}
