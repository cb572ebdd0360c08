package cmd

import (
	"runtime/debug"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the version information",
		Long: `Print the harvest module version, the source revision it was built from
when the build recorded one, and the Go toolchain version. Include this
output when reporting how an output tree was produced.`,
		Run: func(cmd *cobra.Command, _ []string) {
			info, ok := debug.ReadBuildInfo()
			if !ok || info.Main.Version == "" {
				cmd.Println("version: unknown")
				return
			}

			cmd.Println("harvest version\t", info.Main.Version)
			if rev := buildSetting(info, "vcs.revision"); rev != "" {
				if buildSetting(info, "vcs.modified") == "true" {
					rev += " (modified)"
				}
				cmd.Println("revision\t", rev)
			}
			cmd.Println("go version\t", info.GoVersion)
		},
	}
}

func buildSetting(info *debug.BuildInfo, key string) string {
	for _, s := range info.Settings {
		if s.Key == key {
			return s.Value
		}
	}
	return ""
}
