package cmd

import (
	"fmt"

	"vibestream/core/catalog"
	"vibestream/core/scanner"
	"vibestream/db"
	"vibestream/repository"

	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan <dir>",
	Short: "扫描目录并导入音频文件",
	Long:  `遍历服务器上的目录，把找到的音频文件就地加入曲库。已在曲库中的文件会被跳过。`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		if err := db.ConnectGormDB(cfg); err != nil {
			return err
		}
		defer db.CloseGormDB()

		importer := catalog.NewImporter(repository.NewGormTrackRepository(db.GormDB), cfg.AudioUploadDir)
		result, err := scanner.New(importer).Scan(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("目录: %s\n", result.Directory)
		fmt.Printf("发现 %d 个音频文件: 导入 %d, 跳过 %d, 失败 %d\n",
			result.Found, result.Imported, result.Skipped, result.Failed)
		for _, fe := range result.Errors {
			fmt.Printf("  ✗ %s: %s\n", fe.Path, fe.Error)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
