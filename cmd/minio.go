package cmd

import (
	"fmt"
	"strings"

	"vibestream/storage"

	"github.com/spf13/cobra"
)

var (
	blobPrefix    string
	blobStats     bool
	blobRecursive bool
	blobDelete    bool
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "对象存储管理",
	Long:  `查看和管理离线曲库使用的对象存储 (MinIO 或本地目录)，支持列出文件、查看统计信息、按目录分组显示、删除目录等功能。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		ctx := cmd.Context()

		fmt.Printf("对象存储: %s", cfg.BlobBackend)
		if cfg.BlobBackend == "minio" {
			fmt.Printf(" (%s, Bucket: %s)", cfg.MinioEndpoint, cfg.MinioBucket)
		}
		fmt.Println()

		store, err := storage.NewBlobStore(ctx, cfg)
		if err != nil {
			return fmt.Errorf("无法连接到对象存储: %w", err)
		}

		switch {
		case blobDelete:
			if blobPrefix == "" {
				return fmt.Errorf("删除操作需要指定目录前缀")
			}
			n, err := storage.DeletePrefix(ctx, store, blobPrefix)
			if err != nil {
				return fmt.Errorf("删除目录失败 (已删除 %d 个文件): %w", n, err)
			}
			fmt.Printf("已删除 %d 个文件 (前缀: %s)\n", n, blobPrefix)
		case blobStats:
			stats, err := storage.Stats(ctx, store, blobPrefix)
			if err != nil {
				return fmt.Errorf("获取统计信息失败: %w", err)
			}
			fmt.Printf("文件总数: %d\n", stats.TotalObjects)
			fmt.Printf("总大小: %s\n", formatSize(stats.TotalSize))
			if !stats.LastModified.IsZero() {
				fmt.Printf("最后修改: %s\n", stats.LastModified.Format("2006-01-02 15:04:05"))
			}
		default:
			objects, err := store.List(ctx, blobPrefix)
			if err != nil {
				return fmt.Errorf("列出文件失败: %w", err)
			}
			if blobRecursive {
				printTree(objects, blobPrefix)
			} else {
				for _, obj := range objects {
					fmt.Printf("%-60s %10s  %s\n", obj.Key, formatSize(obj.Size), obj.LastModified.Format("2006-01-02 15:04:05"))
				}
			}
			fmt.Printf("\n共 %d 个文件\n", len(objects))
		}
		return nil
	},
}

// printTree groups objects by their first path segment below prefix.
func printTree(objects []storage.ObjectInfo, prefix string) {
	groups := make(map[string][]storage.ObjectInfo)
	var order []string
	for _, obj := range objects {
		rest := strings.TrimPrefix(strings.TrimPrefix(obj.Key, prefix), "/")
		dir := "."
		if i := strings.Index(rest, "/"); i >= 0 {
			dir = rest[:i]
		}
		if _, ok := groups[dir]; !ok {
			order = append(order, dir)
		}
		groups[dir] = append(groups[dir], obj)
	}
	for _, dir := range order {
		var size int64
		for _, obj := range groups[dir] {
			size += obj.Size
		}
		fmt.Printf("📁 %s/ (%d 个文件, %s)\n", dir, len(groups[dir]), formatSize(size))
		for _, obj := range groups[dir] {
			fmt.Printf("   └─ %s (%s)\n", obj.Key, formatSize(obj.Size))
		}
	}
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

func init() {
	rootCmd.AddCommand(minioCmd)

	minioCmd.Flags().StringVarP(&blobPrefix, "prefix", "p", "", "按前缀过滤文件或指定要操作的目录")
	minioCmd.Flags().BoolVarP(&blobStats, "stats", "s", false, "显示统计信息")
	minioCmd.Flags().BoolVarP(&blobRecursive, "recursive", "r", false, "按目录分组显示")
	minioCmd.Flags().BoolVarP(&blobDelete, "delete", "d", false, "删除指定目录及其下的所有文件")

	minioCmd.Example = `  # 列出所有文件
  vibestream minio

  # 只看某个设备的离线音频
  vibestream minio -p "devices/phone-1/"

  # 显示统计信息
  vibestream minio -s

  # 按设备分组显示
  vibestream minio -r -p "devices/"

  # 删除某个设备的全部离线数据
  vibestream minio -d -p "devices/phone-1/"`
}
