package cmd

import (
	"context"
	"fmt"
	"time"

	"vibestream/cache"
	"vibestream/config"
	"vibestream/db"

	"github.com/spf13/cobra"
)

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Redis连接测试",
	Long:  `测试Redis连接是否成功，进行基本读写操作，并列出保存了离线曲库的设备。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		return runRedisCheck(cmd.Context(), cfg)
	},
}

func runRedisCheck(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	fmt.Printf("Redis配置: %s:%s, DB: %d\n", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)
	client, err := db.NewRedisClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("无法连接到Redis: %w", err)
	}
	defer client.Close()
	fmt.Println("Redis连接成功！")

	if err := db.CheckRedis(ctx, client); err != nil {
		return fmt.Errorf("Redis操作测试失败: %w", err)
	}
	fmt.Println("Redis基本操作测试成功！")

	devices, err := cache.NewDeviceCache(client).Devices(ctx)
	if err != nil {
		return fmt.Errorf("读取设备列表失败: %w", err)
	}
	fmt.Printf("已保存离线曲库的设备: %d\n", len(devices))
	for _, d := range devices {
		fmt.Printf("  - %s\n", d)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(redisCmd)
}
