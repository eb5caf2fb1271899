package clientapp

import (
	"github.com/spf13/cobra"

	"github.com/guilherme-hl1ma/project-library-oauth/internal/business"
	"github.com/guilherme-hl1ma/project-library-oauth/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"client-app",
		"Project Library client application",
		"Project Library client application hosts the relying-party web UI and drives the authorization code flow",
		buildInfo,
		cmdutils.RunAsService,
		business.ClientAppMain,
	)
}
