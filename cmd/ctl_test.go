package cmd

import (
	"bytes"
	"context"
	"github.com/Sitedirector05/Vesta-Technologies-Ansagrado-BASIC-Bot/botctl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewController(t *testing.T) {
	dir := t.TempDir()
	origDir, origExe, origConfig := ctlDir, ctlExecutable, configFile
	t.Cleanup(
		func() {
			ctlDir, ctlExecutable, configFile = origDir, origExe, origConfig
		},
	)

	ctlDir = dir
	ctlExecutable = "/usr/local/bin/ansagrado"
	configFile = filepath.Join(dir, "bot.env")

	c, err := newController()
	require.NoError(t, err)
	assert.Equal(t, "/usr/local/bin/ansagrado", c.Executable)
	assert.Equal(t, []string{"run", "--config", configFile}, c.Args)
	assert.Equal(t, filepath.Join(dir, botctl.DefaultPIDFile), c.PIDFile)
	assert.Equal(t, filepath.Join(dir, botctl.DefaultLogFile), c.LogFile)

	configFile = ""
	c, err = newController()
	require.NoError(t, err)
	assert.Equal(t, []string{"run"}, c.Args)
}

func TestCtlStopped(t *testing.T) {
	c := botctl.New(t.TempDir(), filepath.Join(t.TempDir(), "missing-bot"))
	ctx := context.Background()

	var buf bytes.Buffer
	require.NoError(t, ctlStatus(c, &buf))
	assert.Contains(t, buf.String(), "ESTADO DEL BOT")
	assert.Contains(t, buf.String(), "DETENIDO")

	buf.Reset()
	require.NoError(t, ctlStop(ctx, c, &buf))
	assert.Contains(t, buf.String(), "No se encontró información del bot")

	// a pid file holding garbage is cleaned up
	require.NoError(t, os.WriteFile(c.PIDFile, []byte("garbage"), 0o644))
	buf.Reset()
	require.NoError(t, ctlStatus(c, &buf))
	assert.Contains(t, buf.String(), "DETENIDO")
	assert.NoFileExists(t, c.PIDFile)

	buf.Reset()
	assert.Error(t, ctlStart(ctx, c, &buf))
	assert.Contains(t, buf.String(), "Error al iniciar el bot")
	assert.NoFileExists(t, c.PIDFile)
}

func TestCtlMenu(t *testing.T) {
	c := botctl.New(t.TempDir(), filepath.Join(t.TempDir(), "missing-bot"))

	var buf bytes.Buffer
	err := ctlMenu(
		context.Background(),
		c,
		strings.NewReader("3\n9\n2\n4\n"),
		&buf,
	)
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "CONTROLADOR DEL BOT ANSAGRADO")
	assert.Contains(t, out, "DETENIDO")
	assert.Contains(t, out, "Opción no válida")
	assert.Contains(t, out, "No se encontró información del bot")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(out), "¡Hasta luego!"))
}

func TestCtlMenu_EndOfInput(t *testing.T) {
	c := botctl.New(t.TempDir(), "bot")

	var buf bytes.Buffer
	require.NoError(t, ctlMenu(context.Background(), c, strings.NewReader(""), &buf))
	assert.Contains(t, buf.String(), "Operación cancelada")
}

func TestCtlMenu_Cancelled(t *testing.T) {
	c := botctl.New(t.TempDir(), "bot")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	err := ctlMenu(ctx, c, strings.NewReader("3\n"), &buf)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, buf.String())
}
