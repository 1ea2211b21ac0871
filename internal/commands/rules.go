package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/tally/internal/id"
	"github.com/cleared-dev/tally/internal/importer"
	"github.com/cleared-dev/tally/internal/model"
	"github.com/cleared-dev/tally/internal/rules"
)

func newRulesCommand(g *globalOptions) *cobra.Command {
	rulesCmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage categorization rules",
	}
	rulesCmd.AddCommand(newRulesListCommand(g))
	rulesCmd.AddCommand(newRulesTestCommand(g))
	rulesCmd.AddCommand(newRulesAddCommand(g))
	return rulesCmd
}

func newRulesListCommand(g *globalOptions) *cobra.Command {
	var org string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rules in evaluation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd.Context(), g.repo, g.logLevel)
			if err != nil {
				return err
			}
			defer ws.Close()
			return runRulesList(cmd.Context(), cmd.OutOrStdout(), ws, firstNonEmpty(org, ws.cfg.Workspace.Organization))
		},
	}

	cmd.Flags().StringVar(&org, "org", "", "organization (default workspace.organization)")
	return cmd
}

func runRulesList(ctx context.Context, out io.Writer, ws *workspace, org string) error {
	list, err := ws.ruleStore().ListRules(ctx, org)
	if err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}
	if len(list) == 0 {
		fmt.Fprintf(out, "No rules for organization %s\n", org)
		return nil
	}

	_, anomalies := rules.Compile(list)
	for _, a := range anomalies {
		fmt.Fprintf(out, "warning: %v (rule never matches)\n", a)
	}

	ordered := append([]model.Rule(nil), list...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPRIORITY\tACTIVE\tKEYWORDS\tREGEX\tCATEGORY\tDIRECTION")
	for _, r := range ordered {
		fmt.Fprintf(tw, "%s\t%d\t%t\t%s\t%s\t%s\t%s\n",
			r.ID, r.Priority, r.Active, strings.Join(r.Keywords, ","), r.Regex, r.Category, r.DirectionHint)
	}
	return tw.Flush()
}

func newRulesTestCommand(g *globalOptions) *cobra.Command {
	var amount string
	var account string

	cmd := &cobra.Command{
		Use:   "test <description>",
		Short: "Show how a transaction description would be classified",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd.Context(), g.repo, g.logLevel)
			if err != nil {
				return err
			}
			defer ws.Close()
			return runRulesTest(cmd.Context(), cmd.OutOrStdout(), ws, args[0], amount, firstNonEmpty(account, ws.cfg.Import.DefaultAccount))
		},
	}

	cmd.Flags().StringVar(&amount, "amount", "", "signed amount as it appears in the CSV (required)")
	_ = cmd.MarkFlagRequired("amount")
	cmd.Flags().StringVar(&account, "account", "", "account id or name (default import.default_account)")
	return cmd
}

func runRulesTest(ctx context.Context, out io.Writer, ws *workspace, description, amountText, accountRef string) error {
	if accountRef == "" {
		return errors.New("no account: pass --account or set import.default_account")
	}
	acct, err := ws.accounts.Resolve(accountRef)
	if err != nil {
		return err
	}
	raw, err := importer.ParseAmount(amountText)
	if err != nil {
		return fmt.Errorf("parsing amount %q: %w", amountText, err)
	}
	if raw.IsZero() {
		return errors.New("zero amounts are skipped on import")
	}

	list, err := ws.ruleStore().ListRules(ctx, acct.OrganizationID)
	if err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}
	set, anomalies := rules.Compile(list)
	for _, a := range anomalies {
		fmt.Fprintf(out, "warning: %v (rule never matches)\n", a)
	}

	norm := importer.NormalizeDescription(description)
	bySign := importer.DirectionFromSign(raw)
	classified := importer.RefineDirection(norm, bySign)
	outcome := set.Apply(rules.Input{
		AccountID:             acct.ID,
		AccountName:           acct.Name,
		NormalizedDescription: norm,
		Amount:                raw.Abs(),
		Direction:             classified,
	})

	ruleID := outcome.RuleID
	if ruleID == "" {
		ruleID = "(none)"
	}
	fmt.Fprintf(out, "normalized: %s\n", norm)
	fmt.Fprintf(out, "amount:     %s\n", raw.Abs().StringFixed(2))
	fmt.Fprintf(out, "sign:       %s\n", bySign)
	fmt.Fprintf(out, "keywords:   %s\n", classified)
	fmt.Fprintf(out, "rule:       %s\n", ruleID)
	fmt.Fprintf(out, "direction:  %s\n", outcome.Direction)
	fmt.Fprintf(out, "category:   %s\n", outcome.Category)
	fmt.Fprintf(out, "merchant:   %s\n", outcome.Merchant)
	return nil
}

func newRulesAddCommand(g *globalOptions) *cobra.Command {
	var fr rules.FileRule
	var priority int
	var inactive bool

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or replace a categorization rule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd.Context(), g.repo, g.logLevel)
			if err != nil {
				return err
			}
			defer ws.Close()

			if fr.ID == "" {
				fr.ID = id.NewRuleID()
			}
			fr.Organization = firstNonEmpty(fr.Organization, ws.cfg.Workspace.Organization)
			fr.Keywords = splitKeywords(fr.Keywords)
			fr.Priority = &priority
			active := !inactive
			fr.Active = &active
			return runRulesAdd(cmd.Context(), cmd.OutOrStdout(), ws, fr)
		},
	}

	f := cmd.Flags()
	f.StringVar(&fr.ID, "id", "", "rule id (default generated)")
	f.StringVar(&fr.Organization, "org", "", "organization (default workspace.organization)")
	f.StringVar(&fr.Name, "name", "", "display name")
	f.StringSliceVar(&fr.Keywords, "keywords", nil, "comma-separated keywords; any one must appear in the description")
	f.StringVar(&fr.Regex, "regex", "", "case-insensitive pattern the description must match")
	f.StringVar(&fr.MinAmount, "min", "", "inclusive minimum absolute amount")
	f.StringVar(&fr.MaxAmount, "max", "", "inclusive maximum absolute amount")
	f.StringVar(&fr.DirectionHint, "direction", "", "direction override (income, expense, transfer, refund, unknown)")
	f.StringVar(&fr.CategoryID, "category", "", "category id")
	f.StringVar(&fr.CategoryOther, "category-other", "", "free-text category")
	f.StringVar(&fr.MerchantSet, "merchant", "", "merchant override")
	f.StringVar(&fr.AccountID, "scope-account", "", "only match this account id")
	f.StringVar(&fr.AccountOther, "scope-account-name", "", "only match the account with this name")
	f.IntVar(&priority, "priority", model.DefaultRulePriority, "lower runs first")
	f.BoolVar(&inactive, "inactive", false, "store the rule disabled")

	return cmd
}

func runRulesAdd(ctx context.Context, out io.Writer, ws *workspace, fr rules.FileRule) error {
	r, err := fr.Rule()
	if err != nil {
		return err
	}
	if r.Regex != "" {
		if _, err := regexp.Compile("(?i)" + r.Regex); err != nil {
			return fmt.Errorf("regex: %w", err)
		}
	}
	if err := ws.ruleStore().SaveRules(ctx, []model.Rule{r}); err != nil {
		return err
	}

	if _, err := ws.commit(ctx, "rules: add "+r.ID); err != nil {
		return err
	}
	fmt.Fprintf(out, "Saved rule %s (priority %d)\n", r.ID, r.Priority)
	return nil
}

func splitKeywords(values []string) []string {
	var result []string
	for _, v := range values {
		result = append(result, strings.Split(v, ",")...)
	}
	return rules.NormalizeKeywords(result)
}
