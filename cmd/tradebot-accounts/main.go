// Command tradebot-accounts is an operator tool over the assignment file:
// it lists, creates, and deactivates user→account assignments without going
// through Slack. The bot picks up changes on its next restart, so prefer
// /assign-account while the bot is running.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"tradebot/internal/accounts"
	"tradebot/internal/config"
	"tradebot/internal/util"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tradebot-accounts <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  list                          Show active assignments\n")
		fmt.Fprintf(os.Stderr, "  accounts                      Show configured accounts and load\n")
		fmt.Fprintf(os.Stderr, "  history USER                  Show a user's assignment history\n")
		fmt.Fprintf(os.Stderr, "  assign USER ACCOUNT [REASON]  Assign a user to an account\n")
		fmt.Fprintf(os.Stderr, "  deactivate USER [REASON]      End a user's assignment\n")
		fmt.Fprintf(os.Stderr, "\n")
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	godotenv.Load()

	cfgPath := "config/tradebot.yaml"
	if p := os.Getenv("TRADEBOT_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	strategy, err := accounts.NewStrategy(cfg.Assignment.Strategy)
	if err != nil {
		log.Fatalf("failed to build assignment strategy: %v", err)
	}
	mgr := accounts.NewManager(cfg.Accounts, strategy, cfg.Assignment.FilePath, util.NewLogger("warn"))

	args := os.Args[2:]
	switch os.Args[1] {
	case "list":
		snapshot := mgr.Snapshot()
		if len(snapshot) == 0 {
			fmt.Println("no active assignments")
			return
		}
		for _, a := range snapshot {
			fmt.Printf("%-12s -> %-12s assigned %s by %s (%s)\n",
				a.UserID, a.AccountID, a.AssignedAt.Format("2006-01-02 15:04"), a.AssignedBy, a.Reason)
		}

	case "accounts":
		counts := mgr.Counts()
		for _, a := range cfg.Accounts {
			limit := "unlimited"
			if a.MaxUsers > 0 {
				limit = fmt.Sprintf("max %d", a.MaxUsers)
			}
			fmt.Printf("%-12s %-20s %d users (%s)\n", a.ID, a.Name, counts[a.ID], limit)
		}

	case "history":
		if len(args) < 1 {
			log.Fatal("history requires a user ID")
		}
		history := mgr.History(args[0])
		if len(history) == 0 {
			fmt.Printf("no assignments for %s\n", args[0])
			return
		}
		for _, a := range history {
			state := "inactive"
			if a.IsActive {
				state = "active"
			}
			fmt.Printf("%s  %-12s %-8s by %s (%s)\n",
				a.AssignedAt.Format("2006-01-02 15:04"), a.AccountID, state, a.AssignedBy, a.Reason)
		}

	case "assign":
		if len(args) < 2 {
			log.Fatal("assign requires a user ID and an account ID")
		}
		reason := "manual:cli"
		if len(args) > 2 {
			reason = args[2]
		}
		a, err := mgr.Assign(args[0], args[1], "cli", reason)
		if err != nil {
			log.Fatalf("assign failed: %v", err)
		}
		fmt.Printf("%s assigned to %s\n", a.UserID, a.AccountID)

	case "deactivate":
		if len(args) < 1 {
			log.Fatal("deactivate requires a user ID")
		}
		reason := "manual:cli"
		if len(args) > 1 {
			reason = args[1]
		}
		if err := mgr.Deactivate(args[0], "cli", reason); err != nil {
			log.Fatalf("deactivate failed: %v", err)
		}
		fmt.Printf("%s deactivated\n", args[0])

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		flag.Usage()
		os.Exit(1)
	}
}
