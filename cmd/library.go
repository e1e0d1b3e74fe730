package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/shouni/go-persona-kit/internal/builder"
	"github.com/shouni/go-persona-kit/internal/config"
	"github.com/shouni/go-persona-kit/pkg/library"

	"github.com/spf13/cobra"
)

var libraryStats bool

// libraryCmd は、作成済みキャラクターの一覧表示を行うのだ。
var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "作成済みキャラクターの一覧を表示しますなのだ。",
	Long: `出力ディレクトリ配下のセッションを走査し、キャラクターごとの
資産数（ベース・バリエーション・スタイル別）を新しい順に表示するのだ。
--stats でライブラリ全体の集計だけを表示するのだよ。`,
	RunE: libraryCommand,
}

func init() {
	libraryCmd.Flags().BoolVar(&libraryStats, "stats", false, "一覧の代わりにライブラリ全体の集計を表示するのだ。")
}

func libraryCommand(cmd *cobra.Command, args []string) error {
	cfg := config.LoadConfig()
	cfg.Options = opts

	appCtx := builder.NewAppContext(cfg, nil, nil)
	indexer := builder.BuildIndexer(&appCtx)

	if libraryStats {
		return printStats(indexer)
	}

	var chars []library.CharacterSummary
	var err error
	if opts.SessionName != "" {
		chars, err = indexer.ListCharacters(opts.SessionName)
	} else {
		chars, err = indexer.ListAll()
	}
	if err != nil {
		return err
	}

	if len(chars) == 0 {
		fmt.Println("キャラクターがまだないのだ。まず create を実行してほしいのだ。")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tCHARACTER\tSTATUS\tBASE\tVARIATIONS\tSTYLED\tTOTAL")
	for _, c := range chars {
		status := string(c.Status)
		if c.MetadataUnavailable {
			status = "(metadata unavailable)"
		}
		base := "-"
		if c.HasBaseImage {
			base = "1"
		}
		styled := 0
		for _, n := range c.StyledCounts {
			styled += n
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
			c.SessionName, c.Name, status, base, c.VariationCount, styled, c.TotalAssets())
	}
	return w.Flush()
}

// printStats はライブラリ全体の集計を表形式で表示するのだ。
func printStats(indexer *library.Indexer) error {
	stats, err := indexer.Stats()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "sessions\t%d\n", stats.Sessions)
	fmt.Fprintf(w, "characters\t%d\n", stats.Characters)
	fmt.Fprintf(w, "total images\t%d\n", stats.TotalImages)
	for status, n := range stats.ByStatus {
		fmt.Fprintf(w, "status %s\t%d\n", status, n)
	}
	for style, n := range stats.ByStyle {
		fmt.Fprintf(w, "style %s\t%d\n", style, n)
	}
	if !stats.OldestEntry.IsZero() {
		fmt.Fprintf(w, "oldest\t%s\n", stats.OldestEntry.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(w, "newest\t%s\n", stats.NewestEntry.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}
