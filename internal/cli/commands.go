// Package cli implements the pilltrack subcommands. Each handler loads the
// config and opens the local store directly; the server does not need to be
// running.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pilltrack/pilltrack/internal/advisory"
	"github.com/pilltrack/pilltrack/internal/config"
	"github.com/pilltrack/pilltrack/internal/export"
	"github.com/pilltrack/pilltrack/internal/medication"
	"github.com/pilltrack/pilltrack/internal/store"
	"go.uber.org/zap"
	"golang.org/x/term"
)

// env opens everything a command needs and closes it on env.close()
type env struct {
	cfg   *config.Config
	store *store.Store
	meds  *medication.Service
}

func (e *env) close() {
	e.store.Close()
}

func openEnv() *env {
	cfg, err := config.Load("", "")
	if err != nil {
		fatal("Error loading config: %v", err)
	}

	st, err := store.New(cfg)
	if err != nil {
		fatal("Error opening store: %v", err)
	}

	meds, err := medication.NewService(st, zap.NewNop())
	if err != nil {
		st.Close()
		fatal("Error loading medications: %v", err)
	}

	return &env{cfg: cfg, store: st, meds: meds}
}

func fatal(format string, args ...interface{}) {
	fmt.Printf(format+"\n", args...)
	os.Exit(1)
}

// resolveMedication finds a medication by ID or case-insensitive name prefix
func resolveMedication(meds []*medication.Medication, query string) (*medication.Medication, error) {
	q := strings.ToLower(query)

	var matches []*medication.Medication
	for _, med := range meds {
		if med.ID == query {
			return med, nil
		}
		if strings.HasPrefix(strings.ToLower(med.Name), q) {
			matches = append(matches, med)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("no medication matches %q", query)
	case 1:
		return matches[0], nil
	default:
		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = m.Name
		}
		return nil, fmt.Errorf("%q is ambiguous: %s", query, strings.Join(names, ", "))
	}
}

func HandleAddCommand(args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: pilltrack add <name> <dosage> [options]")
		fmt.Println()
		fmt.Println("Options:")
		fmt.Println("  --times 08:00,20:00     Daily dose times")
		fmt.Println("  --freq <text>           Frequency description")
		fmt.Println("  --food with|without     Food instruction")
		fmt.Println("  --quantity <n>          Tablets on hand")
		fmt.Println("  --threshold <n>         Refill alert threshold")
		os.Exit(1)
	}

	med := &medication.Medication{
		Name:   args[0],
		Dosage: args[1],
	}

	for i := 2; i < len(args); i++ {
		switch args[i] {
		case "--times":
			if i+1 < len(args) {
				med.Times = splitTimes(args[i+1])
				i++
			}
		case "--freq":
			if i+1 < len(args) {
				med.Frequency = args[i+1]
				i++
			}
		case "--food":
			if i+1 < len(args) {
				switch args[i+1] {
				case "with":
					med.FoodInstruction = medication.FoodWith
				case "without":
					med.FoodInstruction = medication.FoodWithout
				}
				i++
			}
		case "--quantity":
			if i+1 < len(args) {
				if n, err := strconv.Atoi(args[i+1]); err == nil {
					med.Quantity = &n
				}
				i++
			}
		case "--threshold":
			if i+1 < len(args) {
				if n, err := strconv.Atoi(args[i+1]); err == nil {
					med.RefillThreshold = &n
				}
				i++
			}
		}
	}

	e := openEnv()
	defer e.close()

	if err := e.meds.Add(med); err != nil {
		fatal("Error adding medication: %v", err)
	}
	fmt.Printf("Added %s %s\n", med.Name, med.Dosage)
}

func splitTimes(s string) []string {
	var times []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			times = append(times, t)
		}
	}
	return times
}

func HandleListCommand() {
	e := openEnv()
	defer e.close()

	meds := e.meds.List()
	if len(meds) == 0 {
		fmt.Println("No medications. Add one with: pilltrack add <name> <dosage>")
		return
	}

	fmt.Println("Medications:")
	fmt.Println("============")
	for _, med := range meds {
		line := fmt.Sprintf("  %s %s", med.Name, med.Dosage)
		if len(med.Times) > 0 {
			line += " at " + strings.Join(med.Times, ", ")
		}
		if med.Quantity != nil {
			line += fmt.Sprintf(" (%d left)", *med.Quantity)
			if med.RefillNeeded() {
				line += " [refill needed]"
			}
		}
		fmt.Println(line)
	}
}

// HandleMarkCommand marks a dose taken or skipped. Without --time it picks
// today's occurrence nearest the current clock.
func HandleMarkCommand(cmd string, args []string, status medication.DoseStatus) {
	if len(args) < 1 {
		fmt.Printf("Usage: pilltrack %s <medication> [--date YYYY-MM-DD] [--time HH:MM]\n", cmd)
		os.Exit(1)
	}

	date := ""
	clock := ""
	for i := 1; i < len(args); i++ {
		switch args[i] {
		case "--date":
			if i+1 < len(args) {
				date = args[i+1]
				i++
			}
		case "--time":
			if i+1 < len(args) {
				clock = args[i+1]
				i++
			}
		}
	}

	e := openEnv()
	defer e.close()

	med, err := resolveMedication(e.meds.List(), args[0])
	if err != nil {
		fatal("%v", err)
	}

	now := time.Now()
	if date == "" {
		date = medication.DateKey(now)
	}
	if clock == "" {
		day, err := time.ParseInLocation("2006-01-02", date, time.Local)
		if err != nil {
			fatal("Invalid date %q", date)
		}
		occ, ok := nearestOccurrence(med, day, now)
		if !ok {
			fatal("%s has no scheduled doses on %s; pass --time", med.Name, date)
		}
		clock = occ.Time
	}

	if err := e.meds.SetDoseStatus(med.ID, date, clock, &status); err != nil {
		fatal("Error: %v", err)
	}
	fmt.Printf("Marked %s %s %s as %s\n", med.Name, date, clock, status)

	if status == medication.StatusSkipped && term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Print("Reason (optional, enter to skip): ")
		reader := bufio.NewReader(os.Stdin)
		reason, _ := reader.ReadString('\n')
		reason = strings.TrimSpace(reason)
		if reason != "" {
			key := date + "T" + clock
			if err := e.meds.SaveMissedDoseReasons(med.ID, map[string]string{key: reason}); err != nil {
				fmt.Printf("Warning: failed to save reason: %v\n", err)
			}
		}
	}
}

// nearestOccurrence returns the day's occurrence closest to now
func nearestOccurrence(med *medication.Medication, day, now time.Time) (medication.Occurrence, bool) {
	occs := medication.OccurrencesOn(med, day)
	if len(occs) == 0 {
		return medication.Occurrence{}, false
	}

	best := occs[0]
	bestDelta := time.Duration(1<<63 - 1)
	for _, occ := range occs {
		delta := now.Sub(occ.Instant(time.Local))
		if delta < 0 {
			delta = -delta
		}
		if delta < bestDelta {
			best = occ
			bestDelta = delta
		}
	}
	return best, true
}

func HandleUndoCommand() {
	e := openEnv()
	defer e.close()

	if err := e.meds.Undo(); err != nil {
		fatal("Nothing to undo: %v", err)
	}
	fmt.Println("Undone")
}

func HandleStatusCommand() {
	e := openEnv()
	defer e.close()

	now := time.Now()
	meds := e.meds.List()

	missed := e.meds.SessionScan(now)
	if len(missed) > 0 {
		fmt.Printf("Missed doses (%d):\n", len(missed))
		for _, occ := range missed {
			fmt.Printf("  %s %s %s\n", occ.Name, occ.Date, occ.Time)
		}
		fmt.Println()
	}

	fmt.Printf("Today (%s):\n", medication.DateKey(now))
	fmt.Println("==================")

	any := false
	for _, med := range meds {
		for _, occ := range medication.OccurrencesOn(med, now) {
			any = true
			status := medication.Classify(med, occ, now, medication.BannerPolicy)
			fmt.Printf("  %s  %s %s  [%s]\n", occ.Time, occ.Name, occ.DosageLabel, status)
		}
	}
	if !any {
		fmt.Println("  nothing scheduled")
	}

	for _, med := range meds {
		if med.RefillNeeded() {
			fmt.Printf("\n%s is running low (%d left)\n", med.Name, *med.Quantity)
		}
	}
}

func HandleReportCommand(args []string) {
	days := 7
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
			days = n
		}
	}

	e := openEnv()
	defer e.close()

	now := time.Now()
	meds := e.meds.List()

	agg := medication.Aggregate(meds, now.AddDate(0, 0, -(days-1)), now, now)
	fmt.Printf("Adherence (last %d days): %d%%\n", days, agg.Percentage)
	fmt.Printf("  scheduled %d | taken %d | skipped %d | missed %d\n",
		agg.Scheduled, agg.Taken, agg.Skipped, agg.Missed)

	streak := medication.Streak(meds, now)
	fmt.Printf("\nStreak: %d days (longest %d, %d doses taken total)\n",
		streak.Current, streak.Longest, streak.TotalTaken)

	weekly := medication.WeeklySummary(meds, now.AddDate(0, 0, -6), now)
	fmt.Println("\nThis week by time of day:")
	buckets := make([]string, 0, len(weekly.Buckets))
	for name := range weekly.Buckets {
		buckets = append(buckets, name)
	}
	sort.Strings(buckets)
	for _, name := range buckets {
		b := weekly.Buckets[name]
		fmt.Printf("  %-10s %d%% (%d/%d)\n", name, b.Percentage, b.Taken, b.Scheduled)
	}
	if weekly.BestBucket != "N/A" {
		fmt.Printf("  best: %s | worst: %s\n", weekly.BestBucket, weekly.WorstBucket)
	}

	for _, a := range weekly.Achievements {
		fmt.Printf("\n* %s\n", a)
	}
}

func HandleRefillCommand(args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: pilltrack refill <medication> <quantity>")
		os.Exit(1)
	}

	quantity, err := strconv.Atoi(args[1])
	if err != nil {
		fatal("Quantity must be a number, got %q", args[1])
	}

	e := openEnv()
	defer e.close()

	med, err := resolveMedication(e.meds.List(), args[0])
	if err != nil {
		fatal("%v", err)
	}

	if err := e.meds.LogRefill(med.ID, quantity); err != nil {
		fatal("Error: %v", err)
	}

	med, _ = e.meds.Get(med.ID)
	fmt.Printf("Refilled %s: %d on hand\n", med.Name, *med.Quantity)
}

func HandleExportCommand(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: pilltrack export <medications|history> [-o file]")
		os.Exit(1)
	}

	output := ""
	for i := 1; i < len(args); i++ {
		if (args[i] == "-o" || args[i] == "--output") && i+1 < len(args) {
			output = args[i+1]
			i++
		}
	}

	e := openEnv()
	defer e.close()

	var data []byte
	var err error
	switch args[0] {
	case "medications":
		data, err = export.MedicationsCSV(e.meds.List())
	case "history":
		data, err = export.DoseHistoryCSV(e.meds.List())
	default:
		fatal("Unknown export %q (medications or history)", args[0])
	}
	if err != nil {
		fatal("Export failed: %v", err)
	}

	if output == "" {
		fmt.Print(string(data))
		return
	}
	if err := os.WriteFile(output, data, 0644); err != nil {
		fatal("Error writing %s: %v", output, err)
	}
	fmt.Printf("Wrote %s\n", output)
}

func HandleInteractionsCommand() {
	e := openEnv()
	defer e.close()

	meds := e.meds.List()
	if len(meds) < 2 {
		fmt.Println("Interaction check needs at least two medications.")
		return
	}

	if !e.cfg.Advisory.Enabled {
		fmt.Println("Advisory service is not configured.")
		fmt.Println("Set PILLTRACK_ADVISORY_API_KEY to enable interaction checks.")
		return
	}

	drugs := make([]string, 0, len(meds))
	for _, med := range meds {
		drugs = append(drugs, med.Name+" "+med.Dosage)
	}

	fmt.Println("Checking interactions...")

	client := advisory.NewClient(e.cfg.Advisory)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	result, err := client.Check(ctx, drugs)
	if err != nil {
		fatal("Check failed: %v", err)
	}

	if !result.HasInteractions {
		fmt.Println("No known interactions.")
		return
	}

	fmt.Println()
	fmt.Println(result.Summary)
	for _, d := range result.Details {
		fmt.Printf("\n[%s] %s\n", strings.ToUpper(string(d.Severity)), strings.Join(d.InteractingDrugs, " + "))
		fmt.Printf("  %s\n", d.Description)
		if d.Management != "" {
			fmt.Printf("  Management: %s\n", d.Management)
		}
	}
}

func PrintHelp() {
	fmt.Println("pilltrack - personal medication tracker")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  pilltrack                          Start the server (default)")
	fmt.Println("  pilltrack serve                    Start the server")
	fmt.Println()
	fmt.Println("Medications:")
	fmt.Println("  pilltrack add <name> <dosage>      Add a medication")
	fmt.Println("  pilltrack list                     List medications")
	fmt.Println("  pilltrack refill <name> <qty>      Log a refill")
	fmt.Println()
	fmt.Println("Doses:")
	fmt.Println("  pilltrack take <name>              Mark nearest dose taken")
	fmt.Println("  pilltrack skip <name>              Mark nearest dose skipped")
	fmt.Println("  pilltrack undo                     Undo the last mark (5s window)")
	fmt.Println("  pilltrack status                   Today's doses and missed scan")
	fmt.Println()
	fmt.Println("Reports:")
	fmt.Println("  pilltrack report [days]            Adherence, streak, weekly summary")
	fmt.Println("  pilltrack interactions             Check drug interactions")
	fmt.Println("  pilltrack export <what> [-o file]  Export CSV (medications, history)")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --config <path>                    Path to config file")
	fmt.Println("  --data <path>                      Path to data directory")
	fmt.Println("  --version, -v                      Show version")
}
