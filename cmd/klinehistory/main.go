// Command klinehistory is a CLI front-end over the kline engine: out of
// core scope per spec §1 ("CLI front-ends... specified only by contract"),
// rewritten from the teacher's stdlib-flag main.go into subcommands since
// this engine exposes more than one operation (range/repair/stats) where
// the teacher exposed exactly one (iterate candlesticks).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/marianogappa/kline-history/kline"
	"github.com/marianogappa/kline-history/kline/common"
)

var (
	flagCacheDir  string
	flagDebug     bool
	flagSymbol    string
	flagInterval  string
	flagMarket    string
	flagStart     string
	flagEnd       string
	flagSourceHint string
	flagUseCache  bool
	flagDay       string
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("failed to load .env file")
	}

	root := &cobra.Command{
		Use:   "klinehistory",
		Short: "Retrieve and cache Binance candlestick history",
	}
	root.PersistentFlags().StringVar(&flagCacheDir, "cache-dir", "./cache", "cache root directory")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")

	root.AddCommand(rangeCmd(), repairCmd(), statsCmd())

	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

func newEngine() (*kline.Engine, error) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if flagDebug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	e, err := kline.NewEngine(kline.WithCacheDir(flagCacheDir))
	if err != nil {
		return nil, err
	}
	e.SetDebug(flagDebug)
	return e, nil
}

func rangeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "range",
		Short: "Fetch a candlestick range and print it as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			market, err := parseMarket(flagMarket)
			if err != nil {
				return err
			}
			interval, err := common.ParseInterval(flagInterval)
			if err != nil {
				return err
			}
			start, err := time.Parse(time.RFC3339, flagStart)
			if err != nil {
				return fmt.Errorf("invalid --start: %w", err)
			}
			end, err := time.Parse(time.RFC3339, flagEnd)
			if err != nil {
				return fmt.Errorf("invalid --end: %w", err)
			}
			hint, err := parseSourceHint(flagSourceHint)
			if err != nil {
				return err
			}

			e, err := newEngine()
			if err != nil {
				return err
			}

			table, stats, err := e.GetRange(context.Background(), flagSymbol, interval, start.UTC(), end.UTC(), market, hint, flagUseCache)
			if err != nil {
				return err
			}

			bs, _ := json.MarshalIndent(struct {
				Table common.Table `json:"table"`
				Stats common.Stats `json:"stats"`
			}{table, stats}, "", "  ")
			fmt.Println(string(bs))
			return nil
		},
	}
	cmd.Flags().StringVar(&flagSymbol, "symbol", "", "e.g. BTCUSDT")
	cmd.Flags().StringVar(&flagInterval, "interval", "1h", "candlestick interval, e.g. 1m, 1h, 1d")
	cmd.Flags().StringVar(&flagMarket, "market", "SPOT", "SPOT|FUTURES_USDT|FUTURES_COIN")
	cmd.Flags().StringVar(&flagStart, "start", "", "RFC3339 start time, e.g. 2024-01-01T00:00:00Z")
	cmd.Flags().StringVar(&flagEnd, "end", "", "RFC3339 end time")
	cmd.Flags().StringVar(&flagSourceHint, "source", "AUTO", "AUTO|REST|ARCHIVE")
	cmd.Flags().BoolVar(&flagUseCache, "use-cache", true, "read/write the on-disk cache")
	cmd.MarkFlagRequired("symbol")
	cmd.MarkFlagRequired("start")
	cmd.MarkFlagRequired("end")
	return cmd
}

func repairCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Invalidate and re-fetch one day's cache entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			market, err := parseMarket(flagMarket)
			if err != nil {
				return err
			}
			interval, err := common.ParseInterval(flagInterval)
			if err != nil {
				return err
			}
			day, err := time.Parse("2006-01-02", flagDay)
			if err != nil {
				return fmt.Errorf("invalid --day (want YYYY-MM-DD): %w", err)
			}

			e, err := newEngine()
			if err != nil {
				return err
			}

			ok := e.RepairCache(context.Background(), flagSymbol, market, interval, day.UTC())
			fmt.Printf("repaired=%v\n", ok)
			return nil
		},
	}
	cmd.Flags().StringVar(&flagSymbol, "symbol", "", "e.g. BTCUSDT")
	cmd.Flags().StringVar(&flagInterval, "interval", "1h", "candlestick interval")
	cmd.Flags().StringVar(&flagMarket, "market", "SPOT", "SPOT|FUTURES_USDT|FUTURES_COIN")
	cmd.Flags().StringVar(&flagDay, "day", "", "UTC calendar date, YYYY-MM-DD")
	cmd.MarkFlagRequired("symbol")
	cmd.MarkFlagRequired("day")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print cumulative cache statistics for a fresh engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEngine()
			if err != nil {
				return err
			}
			bs, _ := json.MarshalIndent(e.CacheStats(), "", "  ")
			fmt.Println(string(bs))
			return nil
		},
	}
}

func parseMarket(s string) (common.MarketType, error) {
	switch s {
	case "SPOT":
		return common.SPOT, nil
	case "FUTURES_USDT":
		return common.FUTURES_USDT, nil
	case "FUTURES_COIN":
		return common.FUTURES_COIN, nil
	default:
		return common.UNSUPPORTED, fmt.Errorf("%w: %v", common.ErrInvalidMarketType, s)
	}
}

func parseSourceHint(s string) (common.SourceHint, error) {
	switch s {
	case "AUTO", "":
		return common.AUTO, nil
	case "REST":
		return common.RESTOnly, nil
	case "ARCHIVE":
		return common.ArchiveOnly, nil
	default:
		return common.AUTO, fmt.Errorf("invalid --source: %v", s)
	}
}
