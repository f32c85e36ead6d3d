package cmd

import (
	"bytes"
	"github.com/Sitedirector05/Vesta-Technologies-Ansagrado-BASIC-Bot/ansagrado"
	"github.com/stretchr/testify/assert"
	"testing"
)

func TestVersionCommand(t *testing.T) {
	originalVersion := ansagrado.Version
	originalCommitSHA := ansagrado.CommitSHA
	originalBuildTime := ansagrado.BuildTime

	t.Cleanup(
		func() {
			ansagrado.Version = originalVersion
			ansagrado.CommitSHA = originalCommitSHA
			ansagrado.BuildTime = originalBuildTime
			versionCmd.SetOut(nil)
		},
	)

	ansagrado.Version = "1.0.0"
	ansagrado.CommitSHA = "abc123"
	ansagrado.BuildTime = "2023-10-01T12:00:00Z"

	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, nil)

	assert.Equal(
		t,
		"ansagrado version=1.0.0 commit=abc123 built: 2023-10-01T12:00:00Z\n",
		buf.String(),
	)
}
