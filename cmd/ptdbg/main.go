// Command ptdbg is an interactive source-level debugger for a traced child
// process on x86-64 Linux.
package main

import (
	"fmt"
	"os"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Manu343726/ptdbg/internal/debugger"
	"github.com/Manu343726/ptdbg/internal/dwarfinfo"
	"github.com/Manu343726/ptdbg/internal/supervisor"
	"github.com/Manu343726/ptdbg/internal/trace"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "ptdbg <debuggee-path>",
	Short: "An interactive source-level debugger for a traced child process",
	Long: `ptdbg forks and traces a child process, manages software breakpoints by
in-memory code patching, reads and writes the child's registers and address
space, and can capture/restore a partial execution snapshot.`,
	Args: cobra.ExactArgs(1),
	RunE: runDebugger,
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.ptdbg.yaml)")
	rootCmd.Flags().String("snapshot", "trace", "path the snapshot command writes to")
	rootCmd.Flags().Uint64("reentry-pc", 0, "default re-entry program counter used by `restore` when none is given")
	rootCmd.Flags().String("log-file", "", "optional path to also receive structured JSON logs")
	rootCmd.Flags().String("dwarf", "", "path to an ELF image carrying DWARF debug info (defaults to the debuggee path)")
	viper.BindPFlag("snapshot", rootCmd.Flags().Lookup("snapshot"))
	viper.BindPFlag("reentry-pc", rootCmd.Flags().Lookup("reentry-pc"))
	viper.BindPFlag("log-file", rootCmd.Flags().Lookup("log-file"))
	viper.BindPFlag("dwarf", rootCmd.Flags().Lookup("dwarf"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigType("yaml")
			viper.SetConfigName(".ptdbg")
		}
	}

	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "using config file:", viper.ConfigFileUsed())
	}
}

func runDebugger(cmd *cobra.Command, args []string) error {
	debuggeePath := args[0]

	logger, closeLog, err := newLogger(viper.GetString("log-file"))
	if err != nil {
		return err
	}
	defer closeLog()

	var dwarf *dwarfinfo.Handle
	dwarfPath := viper.GetString("dwarf")
	if dwarfPath == "" {
		dwarfPath = debuggeePath
	}
	if handle, err := dwarfinfo.Load(dwarfPath); err != nil {
		colorWarning.Printf("dwarf: could not load debug info from %s: %v\n", dwarfPath, err)
	} else {
		dwarf = handle
	}

	sup, err := supervisor.New(trace.Kernel{}, debuggeePath, dwarf, logger)
	if err != nil {
		return err
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          colorPrompt.Sprint("dbg> "),
		HistoryFile:     historyFilePath(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("init line editor: %w", err)
	}
	defer rl.Close()

	snapshotPath := viper.GetString("snapshot")
	reentryPC := viper.GetUint64("reentry-pc")

	return sup.Run(func(d *debugger.Debugger) debugger.Verdict {
		return runSession(d, rl, snapshotPath, reentryPC)
	})
}

func historyFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home + "/.ptdbg_history"
}

func main() {
	// When re-invoked as the traced child's helper, dispatch before cobra
	// parses flags: the marker argument and debuggee path are positional,
	// not cobra flags/args.
	if supervisor.IsChildEntrypoint(os.Args[1:]) {
		if err := supervisor.RunChildEntrypoint(os.Args[2]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
