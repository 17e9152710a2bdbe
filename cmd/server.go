package cmd

import (
	"vibestream/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动 vibestream 服务器",
	Long:  `启动音乐库的 HTTP 服务器，提供曲库、歌单、流式播放、播放会话和设备离线曲库 API`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return server.Start(loadConfig())
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
