package cmd

import (
	"fmt"
	"os"

	"vibestream/core/audio"
	"vibestream/core/id3"

	"github.com/spf13/cobra"
)

var tagsCmd = &cobra.Command{
	Use:   "tags <file>",
	Short: "显示音频文件的标签信息",
	Long:  `解析音频文件的 ID3v2 标签并显示导入时会使用的元数据，用于排查标签问题。`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		tag, err := id3.Read(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("读取标签失败: %w", err)
		}

		if tag.Present() {
			fmt.Printf("ID3v2.%d 标签, %d 字节\n", tag.Version, tag.Size)
			for _, w := range tag.Warnings {
				fmt.Printf("  警告: %s\n", w)
			}
		} else {
			fmt.Println("没有 ID3v2 标签")
		}

		md, err := audio.Probe(path, "", "")
		if err != nil {
			return err
		}
		fmt.Printf("标题:   %s\n", md.Title)
		fmt.Printf("艺术家: %s\n", md.Artist)
		fmt.Printf("专辑:   %s\n", md.Album)
		if md.Year != nil {
			fmt.Printf("年份:   %d\n", *md.Year)
		}
		if md.Genre != "" {
			fmt.Printf("流派:   %s\n", md.Genre)
		}
		if md.TrackNumber != nil {
			fmt.Printf("音轨:   %d\n", *md.TrackNumber)
		}
		if md.DiscNumber != nil {
			fmt.Printf("碟号:   %d\n", *md.DiscNumber)
		}
		fmt.Printf("时长:   %ds\n", md.Duration)
		fmt.Printf("类型:   %s\n", md.MimeType)
		if len(md.CoverArt) > 0 {
			fmt.Printf("封面:   %s, %d 字节\n", md.CoverMimeType, len(md.CoverArt))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tagsCmd)
}
