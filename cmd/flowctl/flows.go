package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/capitalize-ai/guided-resolution/internal/engine"
	"github.com/capitalize-ai/guided-resolution/internal/model"
)

var (
	registerActivate bool
	listCategory     string
	outboxStatus     string
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a flow document without touching the database",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

var registerCmd = &cobra.Command{
	Use:   "register <file>",
	Short: "Register a flow document as a new version",
	Long: `Register parses and validates a JSON or YAML flow document and stores it
as the next version of its flow. A document without an id starts a new flow.`,
	Args: cobra.ExactArgs(1),
	RunE: runRegister,
}

var activateCmd = &cobra.Command{
	Use:   "activate <flow-id> <version>",
	Short: "Make one flow version the active flow of its category",
	Args:  cobra.ExactArgs(2),
	RunE:  runActivate,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered flow versions",
	RunE:  runList,
}

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "List notification outbox messages by status",
	RunE:  runOutbox,
}

func init() {
	registerCmd.Flags().BoolVar(&registerActivate, "activate", false, "Activate the registered version")
	listCmd.Flags().StringVarP(&listCategory, "category", "c", "", "Filter by category")
	outboxCmd.Flags().StringVarP(&outboxStatus, "status", "s", string(model.OutboxQueued), "Message status (queued, sending, sent)")
}

func runValidate(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	def, err := engine.ParseDefinition(data, args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(def.Summary())
	}
	fmt.Printf("%s: ok (category %s, %d nodes, start %s)\n", args[0], def.Category, len(def.Nodes), def.StartNodeID)
	return nil
}

func runRegister(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	def, err := e.flows.RegisterDocument(ctx, data, args[0])
	if err != nil {
		return err
	}
	if registerActivate {
		if def, err = e.flows.Activate(ctx, def.ID, def.Version); err != nil {
			return err
		}
	}

	if jsonOutput {
		return printJSON(def.Summary())
	}
	fmt.Printf("registered %s version %d (active: %t)\n", def.ID, def.Version, def.IsActive)
	return nil
}

func runActivate(cmd *cobra.Command, args []string) error {
	version, err := strconv.Atoi(args[1])
	if err != nil || version < 1 {
		return fmt.Errorf("invalid version %q", args[1])
	}

	ctx := cmd.Context()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	def, err := e.flows.Activate(ctx, args[0], version)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(def.Summary())
	}
	fmt.Printf("activated %s version %d for category %s\n", def.ID, def.Version, def.Category)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	flows, err := e.flows.List(ctx, listCategory)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(flows)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCATEGORY\tVERSION\tACTIVE\tNODES\tNAME")
	for _, f := range flows {
		active := ""
		if f.IsActive {
			active = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\t%s\n", f.ID, f.Category, f.Version, active, f.NodeCount, f.Name)
	}
	return w.Flush()
}

func runOutbox(cmd *cobra.Command, args []string) error {
	status := model.OutboxStatus(outboxStatus)
	switch status {
	case model.OutboxQueued, model.OutboxSending, model.OutboxSent:
	default:
		return fmt.Errorf("unknown outbox status %q", outboxStatus)
	}

	ctx := cmd.Context()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	msgs, err := e.store.Queries().ListOutbox(ctx, status)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(msgs)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tSUBJECT\tATTEMPTS\tLAST ERROR")
	for _, m := range msgs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", m.ID, m.Kind, m.Subject, m.Attempts, m.LastError)
	}
	return w.Flush()
}
