package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"kiddoquest/internal/app"
	"kiddoquest/internal/config"
	"kiddoquest/internal/logger"
	"kiddoquest/internal/models"
	"kiddoquest/internal/scheduler"
	"kiddoquest/internal/security"
	"kiddoquest/internal/validation"
)

func main() {
	// Define subcommands
	runCmd := flag.NewFlagSet("run", flag.ExitOnError)
	reportCmd := flag.NewFlagSet("report", flag.ExitOnError)
	tokenCmd := flag.NewFlagSet("token", flag.ExitOnError)
	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)

	// Export flags
	exportFamily := exportCmd.String("family", "", "Family ID (required)")
	exportOutput := exportCmd.String("output", "", "Output file path (default: export_<family>_YYYYMMDD_HHMMSS.json)")
	exportSince := exportCmd.String("since", "", "Only penalties applied on or after this day, YYYY-MM-DD")

	// Report flags
	reportFamily := reportCmd.String("family", "", "Family ID (required)")
	reportStart := reportCmd.String("start", "", "First day, YYYY-MM-DD (required)")
	reportEnd := reportCmd.String("end", "", "Last day, YYYY-MM-DD (required)")

	// Token flags
	tokenUser := tokenCmd.String("user", "", "User ID (required)")
	tokenFamily := tokenCmd.String("family", "", "Family ID")
	tokenRole := tokenCmd.String("role", models.RoleSystem, "Role: admin, parent, child or system")
	tokenTTL := tokenCmd.Duration("ttl", time.Hour, "Token lifetime")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Tokens need no database
	if os.Args[1] == "token" {
		tokenCmd.Parse(os.Args[2:])
		handleToken(cfg, models.Identity{UserID: *tokenUser, FamilyID: *tokenFamily, Role: *tokenRole}, *tokenTTL)
		return
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize engine", "error", err)
	}
	defer a.Close()

	switch os.Args[1] {
	case "migrate":
		// app.New already applied pending migrations
		log.Info("Database is up to date")

	case "run":
		runCmd.Parse(os.Args[2:])
		if runCmd.NArg() != 1 {
			fmt.Println("Error: exactly one job name is required")
			printUsage()
			os.Exit(1)
		}
		summary, err := a.Scheduler.Run(ctx, runCmd.Arg(0))
		if err != nil {
			log.Fatal("Job failed", "job", runCmd.Arg(0), "error", err)
		}
		printJSON(summary)

	case "report":
		reportCmd.Parse(os.Args[2:])
		if *reportFamily == "" || *reportStart == "" || *reportEnd == "" {
			fmt.Println("Error: -family, -start and -end are required")
			reportCmd.PrintDefaults()
			os.Exit(1)
		}
		handleReport(ctx, a, log, *reportFamily, *reportStart, *reportEnd)

	case "export":
		exportCmd.Parse(os.Args[2:])
		if *exportFamily == "" {
			fmt.Println("Error: -family flag is required")
			exportCmd.PrintDefaults()
			os.Exit(1)
		}
		handleExport(ctx, a, log, *exportFamily, *exportOutput, *exportSince)

	default:
		printUsage()
		os.Exit(1)
	}
}

func handleExport(ctx context.Context, a *app.App, log *logger.Logger, familyID, outputPath, sinceDate string) {
	var since time.Time
	if sinceDate != "" {
		parsed, err := validation.ParseDate("since", sinceDate)
		if err != nil {
			log.Fatal("Invalid since date", "error", err)
		}
		since = parsed
	}

	// Generate default filename if not provided
	if outputPath == "" {
		timestamp := time.Now().Format("20060102_150405")
		outputPath = fmt.Sprintf("export_%s_%s.json", familyID, timestamp)
	}

	// Ensure directory exists
	dir := filepath.Dir(outputPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatal("Failed to create output directory", "error", err)
		}
	}

	file, err := os.Create(outputPath)
	if err != nil {
		log.Fatal("Failed to create output file", "error", err)
	}
	defer file.Close()

	operator := models.Identity{UserID: "engine-cli", Role: models.RoleSystem}
	log.Info("Exporting family", "family_id", familyID, "output", outputPath)
	if err := a.Services.Exports.Export(ctx, operator, familyID, since, file); err != nil {
		log.Fatal("Export failed", "error", err)
	}

	// Get file size
	if fileInfo, err := file.Stat(); err == nil {
		log.Info("Export complete", "size_mb", fmt.Sprintf("%.2f", float64(fileInfo.Size())/1024/1024))
	}
}

func handleReport(ctx context.Context, a *app.App, log *logger.Logger, familyID, startDate, endDate string) {
	start, err := validation.ParseDate("start", startDate)
	if err != nil {
		log.Fatal("Invalid start date", "error", err)
	}
	end, err := validation.ParseDate("end", endDate)
	if err != nil {
		log.Fatal("Invalid end date", "error", err)
	}

	operator := models.Identity{UserID: "engine-cli", Role: models.RoleSystem}
	report, err := a.Services.Reports.GenerateRange(ctx, operator, familyID, start, end)
	if err != nil {
		log.Fatal("Report failed", "family_id", familyID, "error", err)
	}
	printJSON(report)
}

func handleToken(cfg *config.Config, identity models.Identity, ttl time.Duration) {
	verifier, err := security.NewTokenVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if identity.UserID == "" {
		fmt.Fprintln(os.Stderr, "Error: -user is required")
		os.Exit(1)
	}
	token, err := verifier.Issue(identity, ttl)
	if err == nil {
		// Round-trip so malformed identities are caught here, not at the server
		_, err = verifier.Verify(token)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func printUsage() {
	fmt.Println("Kiddo Quest engine tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  engine migrate                 Apply pending database migrations")
	fmt.Println("  engine run <job>               Run one scheduled job now")
	fmt.Println("  engine report [options]        Generate a report for a date range")
	fmt.Println("  engine export [options]        Export a family's engine data to JSON")
	fmt.Println("  engine token [options]         Issue an identity token")
	fmt.Println()
	fmt.Println("Jobs:")
	for _, job := range []string{scheduler.JobPenaltySweep, scheduler.JobStreakSweep, scheduler.JobDailyReport, scheduler.JobWeeklyReport} {
		fmt.Printf("  %s\n", job)
	}
	fmt.Println()
	fmt.Println("Report Options:")
	fmt.Println("  -family <id>      Family ID (required)")
	fmt.Println("  -start <date>     First day, YYYY-MM-DD (required)")
	fmt.Println("  -end <date>       Last day, YYYY-MM-DD (required)")
	fmt.Println()
	fmt.Println("Export Options:")
	fmt.Println("  -family <id>      Family ID (required)")
	fmt.Println("  -output <file>    Output file path (default: export_<family>_YYYYMMDD_HHMMSS.json)")
	fmt.Println("  -since <date>     Only penalties applied on or after this day")
	fmt.Println()
	fmt.Println("Token Options:")
	fmt.Println("  -user <id>        User ID (required)")
	fmt.Println("  -family <id>      Family ID (required unless -role system)")
	fmt.Println("  -role <role>      admin, parent, child or system (default: system)")
	fmt.Println("  -ttl <duration>   Token lifetime (default: 1h)")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  DATABASE_TYPE    Database type: sqlite, postgres, or mysql (default: sqlite)")
	fmt.Println("  DB_PATH          SQLite database path (default: ./kiddoquest.db)")
	fmt.Println("  DATABASE_URL     PostgreSQL or MySQL connection URL")
	fmt.Println("  ENGINE_CONFIG    Engine YAML file (schedules, severity table, thresholds)")
	fmt.Println("  JWT_SECRET       Token signing secret")
}
