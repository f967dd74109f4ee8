package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
	"github.com/eliteGoblin/focusd/app_lock/internal/infra"
	"github.com/eliteGoblin/focusd/app_lock/internal/policy"
)

var ruleCmd = &cobra.Command{
	Use:   "rule",
	Short: "Manage tracked apps and their lock schedules",
}

var ruleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked apps",
	RunE:  runRuleList,
}

var ruleSetCmd = &cobra.Command{
	Use:   "set <package>",
	Short: "Track an app and set its lock schedule",
	Long: `Tracks an app and replaces its lock schedule.

A date list takes priority over a time window, and a time window over
--permanent. A date list that does not include today leaves the app
unlocked even when a time window or --permanent is also set.

Recurrence applies to --dates:
  one_shot           lock on exactly these dates
  repeat_by_date     lock every month on these days of month
  repeat_by_weekday  lock every week on these weekdays`,
	Args: cobra.ExactArgs(1),
	RunE: runRuleSet,
}

var ruleResetCmd = &cobra.Command{
	Use:   "reset <package>",
	Short: "Clear an app's lock schedule but keep tracking it",
	Args:  cobra.ExactArgs(1),
	RunE:  runRuleReset,
}

var ruleRemoveCmd = &cobra.Command{
	Use:   "remove <package>",
	Short: "Stop tracking an app",
	Args:  cobra.ExactArgs(1),
	RunE:  runRuleRemove,
}

var ruleImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import rules from a JSON or YAML file",
	Args:  cobra.ExactArgs(1),
	RunE:  runRuleImport,
}

var ruleExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Export rules to a JSON or YAML file (by extension)",
	Args:  cobra.ExactArgs(1),
	RunE:  runRuleExport,
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage the guardian session used for activity sync",
}

var sessionTokenCmd = &cobra.Command{
	Use:   "token <value>",
	Short: "Store the guardian's bearer token",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionToken,
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the bearer token (stops activity sync)",
	RunE:  runSessionClear,
}

var sessionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show device ID and whether a token is set",
	RunE:  runSessionShow,
}

var (
	ruleName       string
	rulePermanent  bool
	ruleDates      []string
	ruleStart      string
	ruleEnd        string
	ruleRecurrence string
)

func init() {
	ruleSetCmd.Flags().StringVar(&ruleName, "name", "", "Display name")
	ruleSetCmd.Flags().BoolVar(&rulePermanent, "permanent", false, "Lock whenever no schedule applies")
	ruleSetCmd.Flags().StringSliceVar(&ruleDates, "dates", nil, "Lock dates (YYYY-MM-DD, comma separated)")
	ruleSetCmd.Flags().StringVar(&ruleStart, "start", "", "Daily lock start (HH:MM)")
	ruleSetCmd.Flags().StringVar(&ruleEnd, "end", "", "Daily lock end (HH:MM)")
	ruleSetCmd.Flags().StringVar(&ruleRecurrence, "recurrence", string(domain.RecurrenceOneShot),
		"Date recurrence (one_shot/repeat_by_date/repeat_by_weekday)")

	ruleCmd.AddCommand(ruleListCmd, ruleSetCmd, ruleResetCmd, ruleRemoveCmd, ruleImportCmd, ruleExportCmd)
	sessionCmd.AddCommand(sessionTokenCmd, sessionClearCmd, sessionShowCmd)
}

func runRuleList(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	rules, err := store.ListRules(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Println("\n=== Tracked Applications ===")
	if len(rules) == 0 {
		fmt.Println("\nNo tracked applications.")
	}
	for _, r := range rules {
		fmt.Printf("\n[%s] %s\n", r.PackageName, r.DisplayName)
		fmt.Printf("  Schedule: %s\n", describeRule(r))
	}
	fmt.Println("\n============================")
	return nil
}

// describeRule summarizes the variant that decides the rule.
func describeRule(r domain.TrackedAppRule) string {
	switch {
	case r.HasDateRule():
		return fmt.Sprintf("%s on %s", r.Recurrence, domain.JoinLockDates(r.LockDates))
	case r.HasTimeRule():
		return fmt.Sprintf("daily %s-%s", r.LockStartTime, r.LockEndTime)
	case r.PermanentLock:
		return "always locked"
	default:
		return "not locked"
	}
}

func runRuleSet(cmd *cobra.Command, args []string) error {
	mode, ok := domain.ParseRecurrenceMode(ruleRecurrence)
	if !ok {
		return fmt.Errorf("unknown recurrence %q", ruleRecurrence)
	}

	dates := make([]string, 0, len(ruleDates))
	for _, d := range ruleDates {
		if d = strings.TrimSpace(d); d != "" {
			dates = append(dates, d)
		}
	}

	rule := domain.TrackedAppRule{
		PackageName:   args[0],
		DisplayName:   ruleName,
		PermanentLock: rulePermanent,
		LockDates:     dates,
		LockStartTime: ruleStart,
		LockEndTime:   ruleEnd,
		Recurrence:    mode,
	}
	if rule.DisplayName == "" {
		rule.DisplayName = rule.PackageName
	}
	if err := policy.ValidateRule(rule); err != nil {
		return err
	}

	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.SaveRule(cmd.Context(), rule); err != nil {
		return err
	}
	fmt.Printf("Saved %s: %s\n", rule.PackageName, describeRule(rule))
	return nil
}

func runRuleReset(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	rule, err := store.GetRule(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if rule == nil {
		return fmt.Errorf("%s is not tracked", args[0])
	}

	reset := domain.TrackedAppRule{
		PackageName: rule.PackageName,
		DisplayName: rule.DisplayName,
		Recurrence:  domain.RecurrenceOneShot,
	}
	if err := store.SaveRule(cmd.Context(), reset); err != nil {
		return err
	}
	fmt.Printf("Reset lock schedule for %s\n", rule.PackageName)
	return nil
}

func runRuleRemove(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.DeleteRule(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Stopped tracking %s\n", args[0])
	return nil
}

func runRuleImport(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := infra.ImportRules(cmd.Context(), store, args[0], policy.ValidateRule)
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d rules from %s\n", n, args[0])
	return nil
}

func runRuleExport(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := infra.ExportRules(cmd.Context(), store, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Exported %d rules to %s\n", n, args[0])
	return nil
}

func runSessionToken(cmd *cobra.Command, args []string) error {
	token := strings.TrimSpace(args[0])
	if token == "" {
		return fmt.Errorf("token is empty; use 'applock session clear' to log out")
	}

	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.SetAuthToken(token); err != nil {
		return err
	}
	fmt.Println("Session token saved; activity sync enabled")
	return nil
}

func runSessionClear(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.SetAuthToken(""); err != nil {
		return err
	}
	fmt.Println("Session token removed; activity sync disabled")
	return nil
}

func runSessionShow(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	deviceID, err := store.DeviceID()
	if err != nil {
		return err
	}
	token, err := store.AuthToken()
	if err != nil {
		return err
	}

	names, err := secretNames(store)
	if err != nil {
		return err
	}

	fmt.Printf("Device ID: %s\n", deviceID)
	fmt.Printf("Server: %s\n", infra.DefaultSyncConfig().ServerURL)
	if token == "" {
		fmt.Println("Token: not set")
	} else {
		fmt.Println("Token: set")
	}
	fmt.Printf("Stored secrets: %s\n", strings.Join(names, ", "))
	return nil
}

// secretNames lists the keys held in the secret store, sorted. Values are
// never printed.
func secretNames(store domain.SecretStore) ([]string, error) {
	secrets, err := store.GetAllSecrets()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(secrets))
	for k := range secrets {
		names = append(names, k)
	}
	sort.Strings(names)
	return names, nil
}
