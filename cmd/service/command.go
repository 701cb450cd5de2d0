package service

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/quka-ai/kbcore/app/core"
	v1 "github.com/quka-ai/kbcore/app/logic/v1"
	"github.com/quka-ai/kbcore/app/logic/v1/process"
)

type Options struct {
	ConfigPath string
}

func (o *Options) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVarP(&o.ConfigPath, "config", "c", "", "init api by given config")
}

func setup(opts *Options) *core.Core {
	return core.MustSetupCore(core.MustLoadBaseConfig(opts.ConfigPath))
}

func NewCommand() *cobra.Command {
	opts := &Options{}
	cmd := &cobra.Command{
		Use:   "service",
		Short: "knowledge api service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(opts)
		},
	}
	opts.AddFlags(cmd.Flags())
	return cmd
}

func Run(opts *Options) error {
	app := setup(opts)
	p, err := process.NewProcess(app)
	if err != nil {
		return err
	}
	p.Start()
	defer p.Stop()

	return serve(app)
}

func NewProcessCommand() *cobra.Command {
	opts := &Options{}
	cmd := &cobra.Command{
		Use:   "process",
		Short: "run scheduled monitor and re-ingest jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunProcess(opts)
		},
	}
	opts.AddFlags(cmd.Flags())
	return cmd
}

func RunProcess(opts *Options) error {
	app := setup(opts)
	p, err := process.NewProcess(app)
	if err != nil {
		return err
	}
	p.Start()
	defer p.Stop()

	slog.Info("Process starting...")
	sigs := make(chan os.Signal, 1)
	// 监听 os.Interrupt (Ctrl+C) 和 syscall.SIGTERM (kill)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	<-sigs
	return nil
}

type sourceOptions struct {
	Options
	Tenant string
	Source string
}

func (o *sourceOptions) AddFlags(flagSet *pflag.FlagSet) {
	o.Options.AddFlags(flagSet)
	flagSet.StringVarP(&o.Tenant, "tenant", "t", "", "tenant id")
	flagSet.StringVarP(&o.Source, "source", "s", "", "source id")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func NewIngestCommand() *cobra.Command {
	opts := &sourceOptions{}
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "ingest one source and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := setup(&opts.Options)
			res, err := v1.NewIngestLogic(cmd.Context(), app).Ingest(opts.Tenant, opts.Source)
			if perr := printJSON(res); perr != nil {
				return perr
			}
			return err
		},
	}
	opts.AddFlags(cmd.Flags())
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func NewCheckCommand() *cobra.Command {
	opts := &sourceOptions{}
	cmd := &cobra.Command{
		Use:   "check",
		Short: "check a url source for changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := setup(&opts.Options)
			res, err := v1.NewMonitorLogic(cmd.Context(), app).Check(opts.Tenant, opts.Source)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
	opts.AddFlags(cmd.Flags())
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func NewSearchCommand() *cobra.Command {
	var (
		opts         Options
		tenant       string
		query        string
		conversation string
	)
	cmd := &cobra.Command{
		Use:   "search",
		Short: "run a hybrid search for a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := setup(&opts)
			list, err := v1.NewSearchLogic(cmd.Context(), app).Search(tenant, conversation, query)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(os.Stderr, "no results")
			}
			return printJSON(list)
		},
	}
	opts.AddFlags(cmd.Flags())
	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "tenant id")
	cmd.Flags().StringVarP(&query, "query", "q", "", "search query")
	cmd.Flags().StringVar(&conversation, "conversation", "", "conversation id")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}
