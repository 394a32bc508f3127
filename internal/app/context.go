package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"time"

	client "github.com/mutablelogic/go-client"

	"github.com/Jules02/NLQ-Agent/internal/agent"
	"github.com/Jules02/NLQ-Agent/internal/config"
	"github.com/Jules02/NLQ-Agent/internal/db"
	"github.com/Jules02/NLQ-Agent/internal/engine"
	"github.com/Jules02/NLQ-Agent/internal/migrate"
	"github.com/Jules02/NLQ-Agent/internal/tool"
	"github.com/Jules02/NLQ-Agent/internal/weather"
)

// Context is an open database plus the engine built on it.
type Context struct {
	Config *config.Config
	DB     *sql.DB
	Engine engine.Engine

	// Trace, when set, receives HTTP traces of the weather and model clients.
	Trace io.Writer
}

// DBConfig maps the database section of cfg onto db.Config.
func DBConfig(workspace string, cfg *config.Config) db.Config {
	return db.Config{
		Driver:    cfg.Database.Driver,
		Workspace: workspace,
		Host:      cfg.Database.Host,
		Port:      cfg.Database.Port,
		User:      cfg.Database.User,
		Password:  cfg.Database.Password,
		Name:      cfg.Database.Name,
	}
}

// Open connects to the configured database. The SQLite schema is migrated on
// open; a MySQL schema is used as found. The weather provider is attached
// when an API key is configured.
func Open(ctx context.Context, workspace string, cfg *config.Config, trace io.Writer) (*Context, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	conn, err := db.Open(DBConfig(workspace, cfg))
	if err != nil {
		return nil, err
	}
	if cfg.Database.Driver == "" || cfg.Database.Driver == db.DriverSQLite {
		if err := migrate.Migrate(ctx, conn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	c := &Context{Config: cfg, DB: conn, Trace: trace}
	var wp weather.Provider
	if cfg.RequireWeather() == nil {
		wc, err := weather.New(cfg.Weather.Endpoint, cfg.Weather.APIKey, c.clientOpts(cfg.Weather.Timeout)...)
		if err != nil {
			conn.Close()
			return nil, err
		}
		wp = wc
	}
	driver := cfg.Database.Driver
	if driver == "" {
		driver = db.DriverSQLite
	}
	c.Engine = engine.New(conn, driver, cfg, wp)
	return c, nil
}

func (c *Context) Close() error {
	return c.DB.Close()
}

// clientOpts always sets the timeout; zero disables it.
func (c *Context) clientOpts(timeout time.Duration) []client.ClientOpt {
	opts := []client.ClientOpt{client.OptTimeout(timeout)}
	if c.Trace != nil {
		opts = append(opts, client.OptTrace(c.Trace, true))
	}
	return opts
}

// Toolkit registers every tool the assistant may call.
func (c *Context) Toolkit() (*tool.Toolkit, error) {
	var tools []tool.Tool
	tools = append(tools, tool.SQLTools(c.Engine.Repo, c.Config.SQL.SampleRows, c.Config.SQL.RowLimit)...)
	tools = append(tools, tool.ReportTools(c.Engine)...)
	tools = append(tools, tool.WeatherTools(c.Engine)...)
	return tool.NewToolkit(tools...)
}

// Agent builds the language model agent. logger may be nil.
func (c *Context) Agent(logger *log.Logger) (*agent.Agent, error) {
	if err := c.Config.RequireModel(); err != nil {
		return nil, err
	}
	tk, err := c.Toolkit()
	if err != nil {
		return nil, err
	}
	return agent.New(agent.Config{
		Endpoint:    c.Config.Model.Endpoint,
		APIKey:      c.Config.Model.APIKey,
		Model:       c.Config.Model.Name,
		Temperature: c.Config.Model.Temperature,
		MaxSteps:    c.Config.Model.MaxSteps,
		Logger:      logger,
	}, tk, c.clientOpts(c.Config.Model.Timeout)...)
}
