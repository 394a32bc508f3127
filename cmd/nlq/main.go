package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/Jules02/NLQ-Agent/internal/app"
	"github.com/Jules02/NLQ-Agent/internal/chat"
	"github.com/Jules02/NLQ-Agent/internal/config"
	"github.com/Jules02/NLQ-Agent/internal/db"
	"github.com/Jules02/NLQ-Agent/internal/engine"
	"github.com/Jules02/NLQ-Agent/internal/migrate"
	"github.com/Jules02/NLQ-Agent/internal/report"
	"github.com/Jules02/NLQ-Agent/internal/repo"
	"github.com/Jules02/NLQ-Agent/internal/server"
)

// cfg is the effective configuration, loaded before any command runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "nlq",
	Short: "Ask questions about employee activity and plan weather leave",
	Long: `nlq is a conversational assistant over an HR database.
Run it without a command to start a chat: questions are answered by a Gemini
model that can list tables, inspect schemas, run read-only queries, build
activity reports and plan or declare one-day weather leave.

Configuration comes from nlq.yml in the workspace (or --config), then .env,
then the environment (DB_HOST, DB_USER, DB_PASSWORD, DB_NAME, GOOGLE_API_KEY,
OPENWEATHER_API_KEY and NLQ_* overrides).`,
	Args: cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(viper.GetViper(), viper.GetString("workspace"), viper.GetString("config"))
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd.Context())
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("NLQ")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().String("config", "", "config file (default nlq.yml in the workspace)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "trace HTTP calls and agent steps to stderr")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func registerCommands() {
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(weatherCmd())
	rootCmd.AddCommand(leaveCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(employeeCmd())
	rootCmd.AddCommand(dbCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive session (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context())
		},
	}
}

func runChat(ctx context.Context) error {
	if err := cfg.RequireModel(); err != nil {
		return err
	}
	return withApp(ctx, func(ctx context.Context, c *app.Context) error {
		a, err := c.Agent(agentLogger())
		if err != nil {
			return err
		}
		return chat.Run(ctx, os.Stdin, os.Stdout, a.NewSession(), chat.Config{
			Prompt:      cfg.Chat.Prompt,
			ExitKeyword: cfg.Chat.ExitKeyword,
		})
	})
}

func weatherCmd() *cobra.Command {
	w := &cobra.Command{Use: "weather", Short: "Query the weather provider"}
	var location string
	current := &cobra.Command{
		Use:   "current",
		Short: "Show the current temperature",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.RequireWeather(); err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, c *app.Context) error {
				cur, err := c.Engine.CurrentWeather(ctx, location)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(cur)
				}
				fmt.Printf("Current temperature in %s: %.1f°C\n", cur.Location, cur.TemperatureC)
				return nil
			})
		},
	}
	current.Flags().StringVar(&location, "location", "", "City,CountryCode (default leave.location)")
	w.AddCommand(current)
	return w
}

func leaveCmd() *cobra.Command {
	l := &cobra.Command{
		Use:   "leave",
		Short: "Plan, declare and list weather leave",
		Long:  "A day qualifies for weather leave when its forecast maximum reaches the threshold. Declaring records one pending request per qualifying day; days already requested are skipped.",
	}
	l.AddCommand(leavePlanCmd())
	l.AddCommand(leaveDeclareCmd())
	l.AddCommand(leaveListCmd())
	return l
}

type planFlags struct {
	location, start, end string
	threshold            float64
}

func (f *planFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.location, "location", "", "City,CountryCode (default leave.location)")
	cmd.Flags().StringVar(&f.start, "start", "", "first day YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&f.end, "end", "", "last day YYYY-MM-DD (default start + 4 days)")
	cmd.Flags().Float64Var(&f.threshold, "threshold", config.DefaultThreshold, "minimum daily maximum in Celsius (default leave.threshold)")
}

func (f *planFlags) options(cmd *cobra.Command) engine.PlanOptions {
	opts := engine.PlanOptions{Location: f.location, Start: f.start, End: f.end}
	if cmd.Flags().Changed("threshold") {
		opts.Threshold = &f.threshold
	}
	return opts
}

func leavePlanCmd() *cobra.Command {
	var f planFlags
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "List qualifying days without recording anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.RequireWeather(); err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, c *app.Context) error {
				plan, err := c.Engine.PlanLeave(ctx, f.options(cmd))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(plan)
				}
				printPlan(plan)
				return nil
			})
		},
	}
	f.bind(cmd)
	return cmd
}

func leaveDeclareCmd() *cobra.Command {
	var f planFlags
	var employeeID, managerID int64
	cmd := &cobra.Command{
		Use:   "declare",
		Short: "Record pending weather leave for every qualifying day",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.RequireWeather(); err != nil {
				return err
			}
			opts := engine.DeclareOptions{PlanOptions: f.options(cmd), EmployeeID: employeeID}
			if cmd.Flags().Changed("manager") {
				opts.ManagerID = &managerID
			}
			return withApp(cmd.Context(), func(ctx context.Context, c *app.Context) error {
				res, err := c.Engine.DeclareWeatherLeave(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				if len(res.Plan.Days) > 0 {
					printPlan(res.Plan)
				}
				fmt.Println(res.Summary())
				return nil
			})
		},
	}
	f.bind(cmd)
	cmd.Flags().Int64Var(&employeeID, "employee", 0, "employee id")
	cmd.Flags().Int64Var(&managerID, "manager", 0, "approver id (default the employee's manager)")
	_ = cmd.MarkFlagRequired("employee")
	return cmd
}

func leaveListCmd() *cobra.Command {
	var employeeID int64
	var leaveType, status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List an employee's leave requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, c *app.Context) error {
				items, err := c.Engine.ListLeaveRequests(ctx, employeeID, leaveType, status)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Start", "End", "Type", "Status", "Approver"})
				for _, lr := range items {
					tw.AppendRow(table.Row{lr.ID, lr.StartDate, lr.EndDate, lr.Type, lr.Status, lr.ManagerID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&employeeID, "employee", 0, "employee id")
	cmd.Flags().StringVar(&leaveType, "type", "", "type filter (e.g. Weather)")
	cmd.Flags().StringVar(&status, "status", "", "status filter (e.g. Pending)")
	_ = cmd.MarkFlagRequired("employee")
	return cmd
}

func reportCmd() *cobra.Command {
	r := &cobra.Command{Use: "report", Short: "Activity reports"}
	var employeeID int64
	var from, to, xlsxPath string
	activity := &cobra.Command{
		Use:   "activity",
		Short: "Format an employee's activity records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, c *app.Context) error {
				rep, err := c.Engine.ActivityReport(ctx, employeeID, from, to)
				if err != nil {
					return err
				}
				if xlsxPath != "" {
					if err := writeXLSX(xlsxPath, rep.Rows); err != nil {
						return err
					}
					fmt.Fprintf(os.Stderr, "Wrote %d row(s) to %s\n", len(rep.Rows), xlsxPath)
				}
				if viper.GetBool("json") {
					return printJSON(rep)
				}
				fmt.Println(rep.Text)
				return nil
			})
		},
	}
	activity.Flags().Int64Var(&employeeID, "employee", 0, "employee id")
	activity.Flags().StringVar(&from, "from", "", "earliest date YYYY-MM-DD")
	activity.Flags().StringVar(&to, "to", "", "latest date YYYY-MM-DD")
	activity.Flags().StringVar(&xlsxPath, "xlsx", "", "also export the rows to this spreadsheet")
	_ = activity.MarkFlagRequired("employee")
	r.AddCommand(activity)
	return r
}

func writeXLSX(path string, rows []report.ActivityRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := report.ExportXLSX(f, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func employeeCmd() *cobra.Command {
	e := &cobra.Command{Use: "employee", Short: "Inspect employees"}
	e.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List employees",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListEmployees(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Email", "Role", "Manager", "Leave balance"})
				for _, emp := range items {
					manager := ""
					if emp.ManagerID != nil {
						manager = fmt.Sprint(*emp.ManagerID)
					}
					tw.AppendRow(table.Row{emp.ID, emp.Name, emp.Email, emp.Role, manager, emp.LeaveBalance})
				}
				tw.Render()
				return nil
			})
		},
	})
	return e
}

func dbCmd() *cobra.Command {
	d := &cobra.Command{Use: "db", Short: "Manage the database"}
	d.AddCommand(dbStatusCmd())
	d.AddCommand(dbImportCmd())
	d.AddCommand(dbTablesCmd())
	d.AddCommand(dbQueryCmd())
	return d
}

func dbStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the database location and schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, c *app.Context) error {
				status := map[string]any{"driver": c.Engine.Repo.Driver}
				if c.Engine.Repo.Driver == db.DriverSQLite {
					version, err := migrate.Version(ctx, c.DB)
					if err != nil {
						return err
					}
					latest, err := migrate.Latest()
					if err != nil {
						return err
					}
					status["path"] = db.Path(viper.GetString("workspace"))
					status["schema_version"] = version
					status["latest_version"] = latest
				} else {
					status["host"] = cfg.Database.Host
					status["name"] = cfg.Database.Name
				}
				if viper.GetBool("json") {
					return printJSON(status)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Key", "Value"})
				for _, k := range []string{"driver", "path", "schema_version", "latest_version", "host", "name"} {
					if v, ok := status[k]; ok {
						tw.AppendRow(table.Row{k, v})
					}
				}
				tw.Render()
				return nil
			})
		},
	}
}

func dbImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import employees and activity records from YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := engine.LoadSeedFile(filePath)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, c *app.Context) error {
				res, err := c.Engine.ImportSeed(ctx, seed)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("Imported %d employee(s) and %d activity record(s)\n", res.Employees, res.Activity)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML seed file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func dbTablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				tables, err := r.ListTables(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tables)
				}
				fmt.Println(strings.Join(tables, "\n"))
				return nil
			})
		},
	}
}

func dbQueryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query <select statement>",
		Short: "Run a read-only SELECT",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				res, err := r.QueryReadOnly(ctx, args[0], cfg.SQL.RowLimit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				tw := newTable()
				header := make(table.Row, 0, len(res.Columns))
				for _, col := range res.Columns {
					header = append(header, col)
				}
				tw.AppendHeader(header)
				for _, row := range res.Rows {
					out := make(table.Row, 0, len(res.Columns))
					for _, col := range res.Columns {
						out = append(out, row[col])
					}
					tw.AppendRow(out)
				}
				tw.Render()
				if res.Truncated {
					fmt.Printf("(truncated to %d rows)\n", len(res.Rows))
				}
				return nil
			})
		},
	}
}

func apiKeyCmd() *cobra.Command {
	k := &cobra.Command{Use: "apikey", Short: "Manage API keys for the HTTP server"}
	var actorID, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Issue a new API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				secret, key, err := r.CreateAPIKey(ctx, actorID, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"key": key, "secret": secret})
				}
				fmt.Printf("Created API key %s for %s\n", key.ID, key.ActorID)
				fmt.Printf("Secret (shown once): %s\n", secret)
				return nil
			})
		},
	}
	create.Flags().StringVar(&actorID, "actor", "", "actor the key authenticates as")
	create.Flags().StringVar(&name, "name", "", "label")
	_ = create.MarkFlagRequired("actor")

	var listActor string
	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, listActor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Actor", "Name", "Created"})
				for _, key := range keys {
					tw.AppendRow(table.Row{key.ID, key.ActorID, key.Name, key.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&listActor, "actor", "", "actor filter")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	k.AddCommand(create, list, del)
	return k
}

func tokenCmd() *cobra.Command {
	var subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token signed with server.jwt_secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := server.SignToken(cfg.Server.JWTSecret, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "actor id placed in the sub claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "validity (0 for no expiry)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func configCmd() *cobra.Command {
	c := &cobra.Command{Use: "config", Short: "Inspect configuration"}
	c.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			shown := *cfg
			shown.Database.Password = mask(shown.Database.Password)
			shown.Weather.APIKey = mask(shown.Weather.APIKey)
			shown.Model.APIKey = mask(shown.Model.APIKey)
			shown.Server.JWTSecret = mask(shown.Server.JWTSecret)
			out, err := yaml.Marshal(&shown)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default nlq.yml into the workspace",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	})
	return c
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Server.JWTSecret == "" {
				return fmt.Errorf("NLQ_JWT_SECRET is required for bearer auth")
			}
			if !cmd.Flags().Changed("addr") && cfg.Server.Addr != "" {
				addr = cfg.Server.Addr
			}
			if !cmd.Flags().Changed("base-path") && cfg.Server.BasePath != "" {
				basePath = cfg.Server.BasePath
			}
			return withApp(cmd.Context(), func(ctx context.Context, c *app.Context) error {
				srvCfg := server.Config{
					Engine:   c.Engine,
					BasePath: basePath,
					Auth:     server.AuthConfig{JWTSecret: cfg.Server.JWTSecret},
				}
				if cfg.RequireModel() == nil {
					a, err := c.Agent(agentLogger())
					if err != nil {
						return err
					}
					srvCfg.NewChatSession = func() chat.Asker { return a.NewSession() }
				} else {
					log.Printf("model not configured; /chat is disabled")
				}
				handler, err := server.New(srvCfg)
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					fmt.Printf("Serving NLQ API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				g.Go(func() error {
					<-gctx.Done()
					sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return srv.Shutdown(sctx)
				})
				return g.Wait()
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", config.DefaultServerAddr, "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", config.DefaultServerBase, "API base path")
	return cmd
}

// --- helpers ---

func traceWriter() io.Writer {
	if viper.GetBool("verbose") {
		return os.Stderr
	}
	return nil
}

func agentLogger() *log.Logger {
	if viper.GetBool("verbose") {
		return log.New(os.Stderr, "agent: ", log.LstdFlags)
	}
	return nil
}

func withApp(ctx context.Context, fn func(context.Context, *app.Context) error) error {
	c, err := app.Open(ctx, viper.GetString("workspace"), cfg, traceWriter())
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, c)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	return withApp(ctx, func(ctx context.Context, c *app.Context) error {
		return fn(ctx, c.Engine.Repo)
	})
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	return tw
}

func printPlan(plan engine.PlanResult) {
	if len(plan.Days) == 0 {
		fmt.Println(engine.NoQualifyingDaysMessage)
		return
	}
	fmt.Printf("Qualifying days for %s between %s and %s (max >= %.1f°C)\n", plan.Location, plan.Start, plan.End, plan.Threshold)
	tw := newTable()
	tw.AppendHeader(table.Row{"Date", "Max °C"})
	for _, d := range plan.Days {
		tw.AppendRow(table.Row{d.Date, fmt.Sprintf("%.1f", d.MaxTemperatureC)})
	}
	tw.Render()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
