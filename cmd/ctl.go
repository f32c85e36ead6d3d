package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"github.com/Sitedirector05/Vesta-Technologies-Ansagrado-BASIC-Bot/botctl"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	ctlDir          string
	ctlExecutable   string
	ctlStartupGrace time.Duration
	ctlStopTimeout  time.Duration
)

const ctlRule = "=================================================="

var ctlCmd = &cobra.Command{
	Use:   "ctl",
	Short: "Start, stop and inspect a background bot process",
	Long: `Manages a detached 'run' process through a PID file (bot.pid) and a
log file (bot.log). Run without a subcommand from a terminal to get an
interactive menu.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return cmd.Help()
		}
		c, err := newController()
		if err != nil {
			return err
		}
		return ctlMenu(cmd.Context(), c, os.Stdin, cmd.OutOrStdout())
	},
}

var ctlStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the bot in the background",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := newController()
		if err != nil {
			return err
		}
		return ctlStart(cmd.Context(), c, cmd.OutOrStdout())
	},
}

var ctlStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background bot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := newController()
		if err != nil {
			return err
		}
		return ctlStop(cmd.Context(), c, cmd.OutOrStdout())
	},
}

var ctlStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the bot is running and its latest log lines",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := newController()
		if err != nil {
			return err
		}
		return ctlStatus(c, cmd.OutOrStdout())
	},
}

// newController builds a controller that re-runs this executable with
// 'run', forwarding --config.
func newController() (*botctl.Controller, error) {
	executable := ctlExecutable
	if executable == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("unable to determine executable: %w", err)
		}
		executable = exe
	}
	args := []string{runCmd.Name()}
	if configFile != "" {
		abs, err := filepath.Abs(configFile)
		if err != nil {
			return nil, err
		}
		args = append(args, "--config", abs)
	}
	c := botctl.New(ctlDir, executable, args...)
	c.StartupGrace = ctlStartupGrace
	c.StopTimeout = ctlStopTimeout
	return c, nil
}

func ctlStart(ctx context.Context, c *botctl.Controller, w io.Writer) error {
	fmt.Fprintln(w, "🚀 Iniciando el bot...")
	pid, err := c.Start(ctx)
	switch {
	case errors.Is(err, botctl.ErrAlreadyRunning):
		fmt.Fprintf(w, "⚠️  El bot ya está en ejecución (PID: %d).\n", pid)
		return nil
	case err != nil:
		fmt.Fprintf(w, "❌ Error al iniciar el bot. Revisa %s para más detalles.\n", c.LogFile)
		var startErr *botctl.StartError
		if errors.As(err, &startErr) {
			printLogTail(w, c.LogFile, startErr.LogTail)
		}
		return err
	}
	logPath, _ := filepath.Abs(c.LogFile)
	fmt.Fprintf(w, "✅ Bot iniciado con PID: %d\n", pid)
	fmt.Fprintf(w, "📝 Registros: %s\n", logPath)
	return nil
}

func ctlStop(ctx context.Context, c *botctl.Controller, w io.Writer) error {
	res, err := c.Stop(ctx)
	switch {
	case errors.Is(err, botctl.ErrNotRunning) && res.PID > 0:
		fmt.Fprintf(
			w,
			"ℹ️  El bot no está en ejecución (PID: %d). Archivo PID eliminado.\n",
			res.PID,
		)
		return nil
	case errors.Is(err, botctl.ErrNotRunning):
		fmt.Fprintln(w, "ℹ️  No se encontró información del bot en ejecución.")
		return nil
	case err != nil:
		fmt.Fprintf(w, "❌ Error al detener el bot (PID: %d): %v\n", res.PID, err)
		return err
	}
	if res.Forced {
		fmt.Fprintf(w, "✅ Proceso del bot finalizado a la fuerza (PID: %d).\n", res.PID)
	} else {
		fmt.Fprintf(w, "✅ Bot detenido correctamente (PID: %d).\n", res.PID)
	}
	return nil
}

func ctlStatus(c *botctl.Controller, w io.Writer) error {
	status, err := c.Status()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, ctlRule)
	fmt.Fprintf(w, "%*s\n", (len(ctlRule)+len("ESTADO DEL BOT"))/2, "ESTADO DEL BOT")
	fmt.Fprintln(w, ctlRule)
	if status.Running {
		fmt.Fprintln(w, "🟢 Estado: EN EJECUCIÓN")
		fmt.Fprintf(w, "📌 PID: %d\n", status.PID)
		printLogTail(w, status.LogFile, status.LogTail)
	} else {
		fmt.Fprintln(w, "🔴 Estado: DETENIDO")
		if status.StalePID > 0 {
			fmt.Fprintf(
				w,
				"⚠️  Se encontró un PID (%d) pero el proceso no está en ejecución. Archivo PID eliminado.\n",
				status.StalePID,
			)
		}
	}
	fmt.Fprintln(w, ctlRule)
	return nil
}

func printLogTail(w io.Writer, logFile string, lines []string) {
	if len(lines) == 0 {
		fmt.Fprintln(w, "ℹ️  No se encontró el archivo de registro.")
		return
	}
	fmt.Fprintf(w, "\n📋 Últimas líneas del registro (%s):\n", logFile)
	fmt.Fprintln(w, strings.Repeat("-", len(ctlRule)))
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
}

const ctlMenuText = `
=== CONTROLADOR DEL BOT ANSAGRADO ===

1. Iniciar bot
2. Detener bot
3. Ver estado
4. Salir
`

// ctlMenu runs the interactive menu until the user exits, input ends
// or ctx is cancelled.
func ctlMenu(ctx context.Context, c *botctl.Controller, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	for ctx.Err() == nil {
		fmt.Fprint(w, ctlMenuText)
		fmt.Fprint(w, "\nSelecciona una opción (1-4): ")
		if !scanner.Scan() {
			fmt.Fprintln(w, "\n👋 Operación cancelada por el usuario.")
			return scanner.Err()
		}

		var err error
		switch strings.TrimSpace(scanner.Text()) {
		case "1":
			err = ctlStart(ctx, c, w)
		case "2":
			err = ctlStop(ctx, c, w)
		case "3":
			err = ctlStatus(c, w)
		case "4":
			fmt.Fprintln(w, "👋 ¡Hasta luego!")
			return nil
		default:
			fmt.Fprintln(w, "❌ Opción no válida. Por favor, elige un número del 1 al 4.")
		}
		if err != nil {
			fmt.Fprintf(w, "❌ %v\n", err)
		}
	}
	return ctx.Err()
}

//goland:noinspection GoLinter
func init() {
	ctlCmd.PersistentFlags().StringVar(
		&ctlDir,
		"dir",
		".",
		"Directory holding bot.pid and bot.log",
	)
	ctlCmd.PersistentFlags().StringVar(
		&ctlExecutable,
		"executable",
		"",
		"Bot executable to start (defaults to this binary)",
	)
	ctlCmd.PersistentFlags().DurationVar(
		&ctlStartupGrace,
		"startup-grace",
		botctl.DefaultStartupGrace,
		"How long the bot must stay up to count as started",
	)
	ctlCmd.PersistentFlags().DurationVar(
		&ctlStopTimeout,
		"stop-timeout",
		botctl.DefaultStopTimeout,
		"How long to wait after SIGTERM before killing the bot",
	)
	ctlCmd.AddCommand(ctlStartCmd, ctlStopCmd, ctlStatusCmd)
	rootCmd.AddCommand(ctlCmd)
}
