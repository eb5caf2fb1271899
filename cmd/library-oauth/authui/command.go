package authui

import (
	"github.com/spf13/cobra"

	"github.com/guilherme-hl1ma/project-library-oauth/internal/business"
	"github.com/guilherme-hl1ma/project-library-oauth/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"auth-ui",
		"Project Library authorization UI",
		"Project Library authorization UI hosts the login and consent pages on the authorization server's origin",
		buildInfo,
		cmdutils.RunAsService,
		business.AuthUIMain,
	)
}
